// Package tracein decodes already-captured profiling inputs: the
// declared graph topology and per-step trace batch files. It performs no
// aggregation; everything it reads feeds profile.Profiler.
package tracein

import (
	"encoding/json"
	"fmt"
	"os"

	"opprof/internal/profile"
)

// topologyFile mirrors the JSON layout of a declared-graph file.
type topologyFile struct {
	Ops []topologyOp `json:"ops"`
}

type topologyOp struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Device string   `json:"device"`
	Inputs []string `json:"inputs"`
}

// ReadTopology loads the declared graph from a JSON file.
func ReadTopology(path string) (profile.Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return profile.Topology{}, fmt.Errorf("read topology: %w", err)
	}
	var file topologyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return profile.Topology{}, fmt.Errorf("parse topology %q: %w", path, err)
	}
	if len(file.Ops) == 0 {
		return profile.Topology{}, fmt.Errorf("topology %q declares no operations", path)
	}

	topo := profile.Topology{Ops: make([]profile.OpDef, len(file.Ops))}
	for i, op := range file.Ops {
		topo.Ops[i] = profile.OpDef{
			Name:   op.Name,
			Type:   op.Type,
			Device: op.Device,
			Inputs: op.Inputs,
		}
	}
	return topo, nil
}
