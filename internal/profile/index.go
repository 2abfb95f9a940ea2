package profile

import (
	"sort"
	"time"
)

// stepAccum holds the sums observed for one (operation, step) pair.
// Multiple records and multiple AddStep calls for the same step all land
// here additively; a record is never overwritten by a later one.
type stepAccum struct {
	total   int64 // nanoseconds
	count   int64
	alloc   int64
	dealloc int64
}

// opAccum accumulates every observation of one operation across steps.
type opAccum struct {
	steps  map[StepKey]*stepAccum
	shapes map[string]struct{}
}

func newOpAccum() opAccum {
	return opAccum{
		steps:  make(map[StepKey]*stepAccum),
		shapes: make(map[string]struct{}),
	}
}

func (a *opAccum) merge(step StepKey, rec TraceRecord) {
	sa, ok := a.steps[step]
	if !ok {
		sa = &stepAccum{}
		a.steps[step] = sa
	}
	sa.total += int64(rec.Duration())
	sa.count++
	sa.alloc += rec.AllocBytes
	sa.dealloc += rec.DeallocBytes
	if sig := rec.shapeSignature(); sig != "" {
		a.shapes[sig] = struct{}{}
	}
}

// Selection restricts a statistics read to a subset of steps. An empty
// Steps slice selects every observed step.
type Selection struct {
	Steps []StepKey
}

func (sel Selection) wants(step StepKey) bool {
	if len(sel.Steps) == 0 {
		return true
	}
	for _, s := range sel.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// index is the OpStatsIndex: dense per-operation accumulators plus one
// synthetic bucket for records naming undeclared operations. It grows
// monotonically and is mutated only under the owning Profiler's lock.
type index struct {
	accums       []opAccum
	unknown      opAccum
	unknownNames map[string]int64
	ingests      map[StepKey]int64 // AddStep calls per step
}

func newIndex(n int) *index {
	x := &index{
		accums:       make([]opAccum, n),
		unknown:      newOpAccum(),
		unknownNames: make(map[string]int64),
		ingests:      make(map[StepKey]int64),
	}
	for i := range x.accums {
		x.accums[i] = newOpAccum()
	}
	return x
}

// stats materializes an OpStats snapshot from an accumulator under the
// given selection and merge policy. PolicyAverage divides each step's
// sums by the number of AddStep calls observed for that step.
func (x *index) stats(a *opAccum, sel Selection, policy MergePolicy) OpStats {
	var st OpStats
	for step, sa := range a.steps {
		if !sel.wants(step) {
			continue
		}
		total, count, alloc, dealloc := sa.total, sa.count, sa.alloc, sa.dealloc
		if policy == PolicyAverage {
			if runs := x.ingests[step]; runs > 1 {
				total /= runs
				count /= runs
				alloc /= runs
				dealloc /= runs
			}
		}
		st.TotalTime += time.Duration(total)
		st.Count += count
		st.AllocBytes += alloc
		st.DeallocBytes += dealloc
		st.Steps = append(st.Steps, step)
	}
	sort.Slice(st.Steps, func(i, j int) bool { return st.Steps[i] < st.Steps[j] })
	if len(a.shapes) > 0 {
		st.Shapes = make([]string, 0, len(a.shapes))
		for sig := range a.shapes {
			st.Shapes = append(st.Shapes, sig)
		}
		sort.Strings(st.Shapes)
	}
	return st
}
