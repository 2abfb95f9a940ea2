package profile

import (
	"fmt"
	"strings"
)

// MergePolicy decides what repeated AddStep calls with the same StepKey
// mean: partial traces to be summed, or independent runs to be averaged.
type MergePolicy uint8

const (
	PolicySum     MergePolicy = iota + 1 // additive merge (default)
	PolicyAverage                        // divide per-step sums by ingestion count
)

// String returns the string representation of MergePolicy.
func (p MergePolicy) String() string {
	switch p {
	case PolicySum:
		return "sum"
	case PolicyAverage:
		return "average"
	default:
		return "unknown"
	}
}

// ParseMergePolicy converts a string to MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(s) {
	case "sum":
		return PolicySum, nil
	case "average", "avg":
		return PolicyAverage, nil
	default:
		return PolicySum, fmt.Errorf("invalid merge policy: %q (expected: sum|average)", s)
	}
}
