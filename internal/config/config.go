// Package config loads opprof.toml, the optional defaults file for
// report queries. Flags always override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"opprof/internal/profile"
	"opprof/internal/view"
)

// FileName is the defaults file searched upward from the start directory.
const FileName = "opprof.toml"

// Config mirrors the layout of opprof.toml.
type Config struct {
	Report ReportConfig `toml:"report"`
}

// ReportConfig holds default view options.
type ReportConfig struct {
	Order     string  `toml:"order"`
	MaxNodes  int     `toml:"max_nodes"`
	MinTimeMS float64 `toml:"min_time_ms"`
	MinBytes  int64   `toml:"min_bytes"`
	Device    string  `toml:"device"`
	Steps     []int64 `toml:"steps"`
	Policy    string  `toml:"merge_policy"`
}

func find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load searches upward from startDir for opprof.toml. The second result
// is false when no file exists; that is not an error.
func Load(startDir string) (*Config, bool, error) {
	path, ok, err := find(startDir)
	if err != nil || !ok {
		return nil, false, err
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, false, fmt.Errorf("parse %q: %w", path, err)
	}
	return &cfg, true, nil
}

// Options converts the report section into view options.
func (c *Config) Options() (view.Options, error) {
	order, err := view.ParseOrderBy(c.Report.Order)
	if err != nil {
		return view.Options{}, err
	}
	opts := view.Options{
		Order:    order,
		MaxNodes: c.Report.MaxNodes,
		MinTime:  time.Duration(c.Report.MinTimeMS * float64(time.Millisecond)),
		MinBytes: c.Report.MinBytes,
		Device:   c.Report.Device,
	}
	for _, s := range c.Report.Steps {
		opts.Steps = append(opts.Steps, profile.StepKey(s))
	}
	return opts, nil
}

// MergePolicy parses the configured same-step merge policy, defaulting
// to summation when unset.
func (c *Config) MergePolicy() (profile.MergePolicy, error) {
	if c.Report.Policy == "" {
		return profile.PolicySum, nil
	}
	return profile.ParseMergePolicy(c.Report.Policy)
}
