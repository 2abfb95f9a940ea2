package profile

import (
	"strconv"
	"strings"
	"time"
)

// StepKey identifies one logical execution step of the graph.
type StepKey int64

// Shape is a tensor shape. A dimension of -1 is unknown.
type Shape []int64

// String renders the shape as "2x3x4". An empty shape (scalar) renders
// as "scalar" so distinct signatures never collide with the empty string.
func (s Shape) String() string {
	if len(s) == 0 {
		return "scalar"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, "x")
}

// TraceRecord is one observed execution of an operation during one step.
// The same operation may appear in several records of the same step (e.g.
// when it runs inside a loop); such records are merged additively.
type TraceRecord struct {
	Op           string
	Start        time.Time
	End          time.Time
	AllocBytes   int64
	DeallocBytes int64
	InputShapes  []Shape
	OutputShapes []Shape
}

// Duration returns the observed execution time. Records with End before
// Start (clock skew in the producer) count as zero, not negative.
func (r TraceRecord) Duration() time.Duration {
	d := r.End.Sub(r.Start)
	if d < 0 {
		return 0
	}
	return d
}

// shapeSignature builds the distinct-shape key for a record: input shapes
// joined first, then output shapes, e.g. "2x3,3x4->2x4".
func (r TraceRecord) shapeSignature() string {
	if len(r.InputShapes) == 0 && len(r.OutputShapes) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, s := range r.InputShapes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s.String())
	}
	sb.WriteString("->")
	for i, s := range r.OutputShapes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s.String())
	}
	return sb.String()
}
