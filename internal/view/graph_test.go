package view

import (
	"errors"
	"testing"
	"time"

	"opprof/internal/diag"
	"opprof/internal/profile"
)

var testBase = time.Unix(1700000000, 0)

func record(op string, d time.Duration, alloc int64) profile.TraceRecord {
	return profile.TraceRecord{
		Op:         op,
		Start:      testBase,
		End:        testBase.Add(d),
		AllocBytes: alloc,
	}
}

func mustProfiler(t *testing.T, ops []profile.OpDef, opts ...profile.Option) *profile.Profiler {
	t.Helper()
	p, err := profile.New(profile.Topology{Ops: ops}, opts...)
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	return p
}

func findChild(t *testing.T, root *Node, name string) *Node {
	t.Helper()
	for _, c := range root.Children {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("node %q not found under %q", name, root.Name)
	return nil
}

func childNames(root *Node) []string {
	names := make([]string, len(root.Children))
	for i, c := range root.Children {
		names[i] = c.Name
	}
	return names
}

func TestGraphCumulativeChain(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "opA", Type: "Const"},
		{Name: "opB", Type: "Add", Inputs: []string{"opA"}},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("opA", 10*time.Millisecond, 0),
		record("opB", 5*time.Millisecond, 0),
	})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if got := findChild(t, res.Root, "opB").Total.TotalTime; got != 15*time.Millisecond {
		t.Fatalf("opB cumulative = %v, want 15ms", got)
	}
	if got := findChild(t, res.Root, "opA").Total.TotalTime; got != 10*time.Millisecond {
		t.Fatalf("opA cumulative = %v, want 10ms", got)
	}
}

func TestGraphDiamondCountsSharedAncestorOnce(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "a", Type: "Const"},
		{Name: "b", Type: "Mul", Inputs: []string{"a"}},
		{Name: "c", Type: "Mul", Inputs: []string{"a"}},
		{Name: "d", Type: "Add", Inputs: []string{"b", "c"}},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("a", 1*time.Millisecond, 100),
		record("b", 1*time.Millisecond, 100),
		record("c", 1*time.Millisecond, 100),
		record("d", 1*time.Millisecond, 100),
	})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	d := findChild(t, res.Root, "d")
	if d.Total.TotalTime != 4*time.Millisecond {
		t.Fatalf("d cumulative = %v, want 4ms (shared ancestor counted once)", d.Total.TotalTime)
	}
	if d.Total.AllocBytes != 400 {
		t.Fatalf("d cumulative alloc = %d, want 400", d.Total.AllocBytes)
	}
	if d.Total.Count != 4 {
		t.Fatalf("d cumulative count = %d, want 4", d.Total.Count)
	}
}

func TestGraphCycleIsFatal(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "a", Inputs: []string{"b"}},
		{Name: "b", Inputs: []string{"a"}},
		{Name: "c"},
	})
	res, err := Graph(p, Options{})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCyclicTopology) {
		t.Fatalf("err = %v, want ErrCyclicTopology", err)
	}
	if res != nil {
		t.Fatal("no partial result allowed on cycle")
	}
}

func TestGraphGhostOperationWarnsButSucceeds(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "a", Type: "Const"},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("a", time.Millisecond, 0),
		record("ghost", time.Millisecond, 0),
	})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if res.UnknownOps != 1 {
		t.Fatalf("UnknownOps = %d, want 1", res.UnknownOps)
	}
	if got := res.Warnings.Count(diag.UnknownOp); got != 1 {
		t.Fatalf("unknown-op warnings = %d, want 1", got)
	}
	for _, name := range childNames(res.Root) {
		if name == "ghost" {
			t.Fatal("ghost must not appear in the DAG")
		}
	}
}

func TestGraphDanglingEdgeDegradesNode(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "a", Inputs: []string{"missing"}},
	})
	p.AddStep(0, []profile.TraceRecord{record("a", time.Millisecond, 0)})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	a := findChild(t, res.Root, "a")
	if !a.Degraded {
		t.Fatal("node with dangling input must be degraded")
	}
	if got := res.Warnings.Count(diag.DanglingEdge); got != 1 {
		t.Fatalf("dangling-edge warnings = %d, want 1", got)
	}
}

func TestGraphNeverObservedWarns(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "a"},
		{Name: "b"},
	})
	p.AddStep(0, []profile.TraceRecord{record("a", time.Millisecond, 0)})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if got := res.Warnings.Count(diag.NeverObserved); got != 1 {
		t.Fatalf("never-observed warnings = %d, want 1", got)
	}
	if !findChild(t, res.Root, "b").Degraded {
		t.Fatal("never-observed node must be degraded")
	}
}

func TestGraphOrderingAndTruncation(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "slow"},
		{Name: "alpha"},
		{Name: "beta"},
		{Name: "quick"},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("slow", 30*time.Millisecond, 0),
		record("alpha", 10*time.Millisecond, 0),
		record("beta", 10*time.Millisecond, 0),
		record("quick", 1*time.Millisecond, 0),
	})

	res, err := Graph(p, Options{})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	want := []string{"slow", "alpha", "beta", "quick"}
	if got := childNames(res.Root); !equalStrings(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	res, err = Graph(p, Options{MaxNodes: 2})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if got := childNames(res.Root); !equalStrings(got, []string{"slow", "alpha"}) {
		t.Fatalf("truncated order = %v, want [slow alpha]", got)
	}
}

func TestGraphMinTimeFilter(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "big"},
		{Name: "small"},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("big", 20*time.Millisecond, 0),
		record("small", 1*time.Millisecond, 0),
	})

	res, err := Graph(p, Options{MinTime: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if got := childNames(res.Root); !equalStrings(got, []string{"big"}) {
		t.Fatalf("children = %v, want [big]", got)
	}
}

func TestGraphDeviceFilter(t *testing.T) {
	p := mustProfiler(t, []profile.OpDef{
		{Name: "g", Device: "gpu:0"},
		{Name: "c", Device: "cpu:0"},
	})
	p.AddStep(0, []profile.TraceRecord{
		record("g", 2*time.Millisecond, 0),
		record("c", 3*time.Millisecond, 0),
	})

	res, err := Graph(p, Options{Device: "gpu"})
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if got := childNames(res.Root); !equalStrings(got, []string{"g"}) {
		t.Fatalf("children = %v, want [g]", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
