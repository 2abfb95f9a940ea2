package profile

import (
	"reflect"
	"testing"
	"time"
)

var testBase = time.Unix(1700000000, 0)

func testRecord(op string, d time.Duration, alloc int64) TraceRecord {
	return TraceRecord{
		Op:         op,
		Start:      testBase,
		End:        testBase.Add(d),
		AllocBytes: alloc,
	}
}

func testTopology() Topology {
	return Topology{Ops: []OpDef{
		{Name: "foo/conv1", Type: "Conv2D", Device: "gpu:0"},
		{Name: "foo/conv2", Type: "Conv2D", Device: "gpu:0", Inputs: []string{"foo/conv1"}},
		{Name: "bar/mm1", Type: "MatMul", Device: "cpu:0"},
	}}
}

func mustProfiler(t *testing.T, topo Topology, opts ...Option) *Profiler {
	t.Helper()
	p, err := New(topo, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNewRejectsBadTopology(t *testing.T) {
	if _, err := New(Topology{Ops: []OpDef{{Name: "a"}, {Name: "a"}}}); err == nil {
		t.Fatal("expected error for duplicate operation names")
	}
	if _, err := New(Topology{Ops: []OpDef{{Name: ""}}}); err == nil {
		t.Fatal("expected error for empty operation name")
	}
}

func TestAddStepAccumulates(t *testing.T) {
	p := mustProfiler(t, testTopology())
	p.AddStep(0, []TraceRecord{
		testRecord("foo/conv1", 10*time.Millisecond, 64),
		testRecord("foo/conv1", 5*time.Millisecond, 32),
		testRecord("bar/mm1", 3*time.Millisecond, 16),
	})

	st, ok := p.OpStats("foo/conv1", Selection{})
	if !ok {
		t.Fatal("foo/conv1 not found")
	}
	if st.TotalTime != 15*time.Millisecond {
		t.Fatalf("TotalTime = %v, want 15ms", st.TotalTime)
	}
	if st.Count != 2 {
		t.Fatalf("Count = %d, want 2", st.Count)
	}
	if st.AllocBytes != 96 {
		t.Fatalf("AllocBytes = %d, want 96", st.AllocBytes)
	}
	if got := st.AvgTime(); got != 7500*time.Microsecond {
		t.Fatalf("AvgTime = %v, want 7.5ms", got)
	}
	if want := []StepKey{0}; !reflect.DeepEqual(st.Steps, want) {
		t.Fatalf("Steps = %v, want %v", st.Steps, want)
	}
}

func TestZeroOccurrenceAverage(t *testing.T) {
	p := mustProfiler(t, testTopology())
	st, ok := p.OpStats("foo/conv2", Selection{})
	if !ok {
		t.Fatal("foo/conv2 not found")
	}
	if got := st.AvgTime(); got != 0 {
		t.Fatalf("AvgTime on empty stats = %v, want 0", got)
	}
}

func TestIngestionCommutes(t *testing.T) {
	batchA := []TraceRecord{testRecord("foo/conv1", 10*time.Millisecond, 100)}
	batchB := []TraceRecord{
		testRecord("foo/conv1", 4*time.Millisecond, 10),
		testRecord("bar/mm1", 2*time.Millisecond, 20),
	}

	forward := mustProfiler(t, testTopology())
	forward.AddStep(0, batchA)
	forward.AddStep(1, batchB)

	reverse := mustProfiler(t, testTopology())
	reverse.AddStep(1, batchB)
	reverse.AddStep(0, batchA)

	for _, name := range []string{"foo/conv1", "foo/conv2", "bar/mm1"} {
		f, _ := forward.OpStats(name, Selection{})
		r, _ := reverse.OpStats(name, Selection{})
		if !reflect.DeepEqual(f, r) {
			t.Fatalf("stats for %q differ by ingestion order:\n%+v\n%+v", name, f, r)
		}
	}
}

func TestRepeatedStepIsAdditive(t *testing.T) {
	p := mustProfiler(t, testTopology())
	p.AddStep(7, []TraceRecord{testRecord("foo/conv1", 10*time.Millisecond, 8)})
	p.AddStep(7, []TraceRecord{testRecord("foo/conv1", 6*time.Millisecond, 8)})

	st, _ := p.OpStats("foo/conv1", Selection{})
	if st.TotalTime != 16*time.Millisecond {
		t.Fatalf("TotalTime = %v, want 16ms", st.TotalTime)
	}
	if st.Count != 2 {
		t.Fatalf("Count = %d, want 2", st.Count)
	}
}

func TestAveragePolicyDividesByIngestions(t *testing.T) {
	p := mustProfiler(t, testTopology(), WithMergePolicy(PolicyAverage))
	p.AddStep(0, []TraceRecord{testRecord("foo/conv1", 10*time.Millisecond, 100)})
	p.AddStep(0, []TraceRecord{testRecord("foo/conv1", 20*time.Millisecond, 200)})

	st, _ := p.OpStats("foo/conv1", Selection{})
	if st.TotalTime != 15*time.Millisecond {
		t.Fatalf("TotalTime = %v, want 15ms (average of two runs)", st.TotalTime)
	}
	if st.Count != 1 {
		t.Fatalf("Count = %d, want 1", st.Count)
	}
	if st.AllocBytes != 150 {
		t.Fatalf("AllocBytes = %d, want 150", st.AllocBytes)
	}
}

func TestStepSelection(t *testing.T) {
	p := mustProfiler(t, testTopology())
	p.AddStep(0, []TraceRecord{testRecord("foo/conv1", 10*time.Millisecond, 1)})
	p.AddStep(1, []TraceRecord{testRecord("foo/conv1", 20*time.Millisecond, 2)})
	p.AddStep(2, []TraceRecord{testRecord("foo/conv1", 40*time.Millisecond, 4)})

	st, _ := p.OpStats("foo/conv1", Selection{Steps: []StepKey{0, 2}})
	if st.TotalTime != 50*time.Millisecond {
		t.Fatalf("TotalTime = %v, want 50ms", st.TotalTime)
	}
	if want := []StepKey{0, 2}; !reflect.DeepEqual(st.Steps, want) {
		t.Fatalf("Steps = %v, want %v", st.Steps, want)
	}
	if got := p.Steps(); !reflect.DeepEqual(got, []StepKey{0, 1, 2}) {
		t.Fatalf("Steps() = %v, want [0 1 2]", got)
	}
}

func TestUnknownOperationBucket(t *testing.T) {
	p := mustProfiler(t, testTopology())
	p.AddStep(0, []TraceRecord{
		testRecord("ghost", 5*time.Millisecond, 7),
		testRecord("ghost", 5*time.Millisecond, 7),
		testRecord("phantom", 1*time.Millisecond, 1),
	})

	if got := p.UnknownRecords(); got != 3 {
		t.Fatalf("UnknownRecords = %d, want 3", got)
	}
	if got := p.UnknownNames(); !reflect.DeepEqual(got, []string{"ghost", "phantom"}) {
		t.Fatalf("UnknownNames = %v", got)
	}
	st := p.UnknownStats(Selection{})
	if st.TotalTime != 11*time.Millisecond || st.Count != 3 {
		t.Fatalf("unknown bucket = %+v, want 11ms over 3 records", st)
	}
	if _, ok := p.OpStats("ghost", Selection{}); ok {
		t.Fatal("undeclared operation must not resolve through OpStats")
	}
}

func TestShapeMergeKeepsDistinctShapes(t *testing.T) {
	p := mustProfiler(t, testTopology())
	rec := testRecord("bar/mm1", time.Millisecond, 0)
	rec.InputShapes = []Shape{{2, 3}, {3, 4}}
	rec.OutputShapes = []Shape{{2, 4}}
	p.AddStep(0, []TraceRecord{rec})

	other := testRecord("bar/mm1", time.Millisecond, 0)
	other.InputShapes = []Shape{{8, 3}, {3, 4}}
	other.OutputShapes = []Shape{{8, 4}}
	p.AddStep(0, []TraceRecord{other})
	// same shapes again must not duplicate
	p.AddStep(1, []TraceRecord{other})

	st, _ := p.OpStats("bar/mm1", Selection{})
	want := []string{"2x3,3x4->2x4", "8x3,3x4->8x4"}
	if !reflect.DeepEqual(st.Shapes, want) {
		t.Fatalf("Shapes = %v, want %v", st.Shapes, want)
	}
}

func TestNegativeDurationClampsToZero(t *testing.T) {
	rec := TraceRecord{Op: "x", Start: testBase, End: testBase.Add(-time.Second)}
	if got := rec.Duration(); got != 0 {
		t.Fatalf("Duration = %v, want 0", got)
	}
}
