package profile

import "time"

// OpStats is a point-in-time aggregate over one operation, one bucket or
// one report subtree. Values are plain sums; Steps and Shapes are kept
// sorted and distinct so aggregates serialize deterministically.
type OpStats struct {
	TotalTime    time.Duration
	Count        int64
	AllocBytes   int64
	DeallocBytes int64
	Steps        []StepKey
	Shapes       []string
}

// AvgTime returns TotalTime divided by Count. Zero occurrences yield a
// zero average, not an error.
func (s OpStats) AvgTime() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Count)
}

// Zero reports whether the aggregate has absorbed no observations.
func (s OpStats) Zero() bool {
	return s.Count == 0 && s.TotalTime == 0 && s.AllocBytes == 0 && s.DeallocBytes == 0
}

// Add merges other into s. Sums add; step keys and shape signatures union.
func (s *OpStats) Add(other OpStats) {
	s.TotalTime += other.TotalTime
	s.Count += other.Count
	s.AllocBytes += other.AllocBytes
	s.DeallocBytes += other.DeallocBytes
	s.Steps = mergeSortedSteps(s.Steps, other.Steps)
	s.Shapes = mergeSortedStrings(s.Shapes, other.Shapes)
}

// mergeSortedSteps unions two sorted distinct slices into a new sorted
// distinct slice.
func mergeSortedSteps(a, b []StepKey) []StepKey {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return append([]StepKey(nil), b...)
	}
	out := make([]StepKey, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func mergeSortedStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return append([]string(nil), b...)
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
