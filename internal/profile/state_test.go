package profile

import (
	"reflect"
	"testing"
	"time"
)

func TestStateRoundTrip(t *testing.T) {
	p := mustProfiler(t, testTopology(), WithMergePolicy(PolicyAverage))
	p.AddStep(0, []TraceRecord{
		testRecord("foo/conv1", 10*time.Millisecond, 64),
		testRecord("ghost", 2*time.Millisecond, 8),
	})
	p.AddStep(3, []TraceRecord{testRecord("bar/mm1", 4*time.Millisecond, 16)})
	p.AddStep(3, []TraceRecord{testRecord("bar/mm1", 4*time.Millisecond, 16)})

	restored, err := FromState(p.State())
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}

	if restored.SessionID() != p.SessionID() {
		t.Fatalf("session = %q, want %q", restored.SessionID(), p.SessionID())
	}
	if restored.Policy() != PolicyAverage {
		t.Fatalf("policy = %v, want average", restored.Policy())
	}
	if restored.NumOps() != p.NumOps() {
		t.Fatalf("ops = %d, want %d", restored.NumOps(), p.NumOps())
	}

	for _, name := range []string{"foo/conv1", "foo/conv2", "bar/mm1"} {
		orig, _ := p.OpStats(name, Selection{})
		got, _ := restored.OpStats(name, Selection{})
		if !reflect.DeepEqual(orig, got) {
			t.Fatalf("stats for %q changed across round trip:\n%+v\n%+v", name, orig, got)
		}
	}
	if got, want := restored.UnknownRecords(), p.UnknownRecords(); got != want {
		t.Fatalf("UnknownRecords = %d, want %d", got, want)
	}
	if !reflect.DeepEqual(restored.UnknownStats(Selection{}), p.UnknownStats(Selection{})) {
		t.Fatal("unknown bucket changed across round trip")
	}
	if !reflect.DeepEqual(restored.Steps(), p.Steps()) {
		t.Fatalf("steps = %v, want %v", restored.Steps(), p.Steps())
	}
}

func TestFromStateRejectsBadInput(t *testing.T) {
	if _, err := FromState(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
	if _, err := FromState(&State{Schema: StateSchema + 1}); err == nil {
		t.Fatal("expected error for unsupported schema")
	}
}

func TestStateIsSorted(t *testing.T) {
	p := mustProfiler(t, testTopology())
	p.AddStep(5, []TraceRecord{testRecord("foo/conv1", time.Millisecond, 0)})
	p.AddStep(1, []TraceRecord{testRecord("foo/conv1", time.Millisecond, 0)})
	p.AddStep(3, []TraceRecord{testRecord("zeta", time.Millisecond, 0), testRecord("alpha", time.Millisecond, 0)})

	st := p.State()
	for i := 1; i < len(st.Ingests); i++ {
		if st.Ingests[i-1].Step >= st.Ingests[i].Step {
			t.Fatalf("ingests not sorted: %+v", st.Ingests)
		}
	}
	for _, op := range st.Ops {
		for i := 1; i < len(op.Steps); i++ {
			if op.Steps[i-1].Step >= op.Steps[i].Step {
				t.Fatalf("steps for %q not sorted: %+v", op.Name, op.Steps)
			}
		}
	}
	for i := 1; i < len(st.UnknownOps); i++ {
		if st.UnknownOps[i-1].Name >= st.UnknownOps[i].Name {
			t.Fatalf("unknown ops not sorted: %+v", st.UnknownOps)
		}
	}
}
