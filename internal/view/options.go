package view

import (
	"fmt"
	"strings"
	"time"

	"opprof/internal/profile"
)

// OrderBy selects the sort criterion applied to sibling nodes.
type OrderBy uint8

const (
	OrderByTime   OrderBy = iota + 1 // aggregate time (cumulative for the graph view)
	OrderByMemory                    // aggregate allocated bytes
	OrderByCount                     // occurrence count
)

// String returns the string representation of OrderBy.
func (o OrderBy) String() string {
	switch o {
	case OrderByTime:
		return "time"
	case OrderByMemory:
		return "memory"
	case OrderByCount:
		return "count"
	default:
		return "unknown"
	}
}

// ParseOrderBy converts a string to OrderBy.
func ParseOrderBy(s string) (OrderBy, error) {
	switch strings.ToLower(s) {
	case "time", "":
		return OrderByTime, nil
	case "memory", "mem":
		return OrderByMemory, nil
	case "count":
		return OrderByCount, nil
	default:
		return OrderByTime, fmt.Errorf("invalid order criterion: %q (expected: time|memory|count)", s)
	}
}

// Options configures one view query. The zero value selects every step,
// orders by time and applies no filters.
type Options struct {
	Steps    []profile.StepKey // restrict aggregation to these steps; empty = all
	Order    OrderBy           // zero value means OrderByTime
	MaxNodes int               // cap on emitted nodes, pre-order; 0 = unlimited
	MinTime  time.Duration     // drop nodes whose aggregate time is below
	MinBytes int64             // drop nodes whose aggregate allocation is below
	Device   string            // substring filter on the operation device
	MaxWarn  int               // warning cap; 0 uses a default
}

const defaultMaxWarnings = 256

func (o Options) selection() profile.Selection {
	return profile.Selection{Steps: o.Steps}
}

func (o Options) order() OrderBy {
	if o.Order == 0 {
		return OrderByTime
	}
	return o.Order
}

func (o Options) maxWarnings() int {
	if o.MaxWarn <= 0 {
		return defaultMaxWarnings
	}
	return o.MaxWarn
}

// matchDevice reports whether an operation on dev participates in the
// aggregation.
func (o Options) matchDevice(dev string) bool {
	return o.Device == "" || strings.Contains(dev, o.Device)
}

// passes reports whether a node with the given aggregate survives the
// minimum-value filters.
func (o Options) passes(st profile.OpStats) bool {
	return st.TotalTime >= o.MinTime && st.AllocBytes >= o.MinBytes
}
