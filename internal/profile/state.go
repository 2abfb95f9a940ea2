package profile

import (
	"fmt"
	"sort"
)

// StateSchema is the schema version of serialized profiler state.
// Increment when the State layout changes.
const StateSchema uint16 = 1

// State is the complete serializable form of a Profiler: topology,
// per-operation per-step sums, the unknown bucket and ingestion counts.
// All slices are sorted so that encoding the same accumulated state
// always yields identical bytes.
type State struct {
	Schema  uint16
	Session string
	Policy  uint8

	Ops     []OpState
	Ingests []IngestState

	UnknownSteps  []StepState
	UnknownShapes []string
	UnknownOps    []UnknownOpState
}

// OpState captures one declared operation and its accumulated sums.
type OpState struct {
	Name   string
	Type   string
	Device string
	Inputs []string

	Steps  []StepState
	Shapes []string
}

// StepState holds the raw sums of one (operation, step) accumulator.
type StepState struct {
	Step         int64
	TotalNanos   int64
	Count        int64
	AllocBytes   int64
	DeallocBytes int64
}

// IngestState records how many AddStep calls a step key received.
type IngestState struct {
	Step  int64
	Calls int64
}

// UnknownOpState counts absorbed records for one undeclared name.
type UnknownOpState struct {
	Name    string
	Records int64
}

func accumState(a *opAccum) ([]StepState, []string) {
	steps := make([]StepState, 0, len(a.steps))
	for step, sa := range a.steps {
		steps = append(steps, StepState{
			Step:         int64(step),
			TotalNanos:   sa.total,
			Count:        sa.count,
			AllocBytes:   sa.alloc,
			DeallocBytes: sa.dealloc,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })

	var shapes []string
	if len(a.shapes) > 0 {
		shapes = make([]string, 0, len(a.shapes))
		for sig := range a.shapes {
			shapes = append(shapes, sig)
		}
		sort.Strings(shapes)
	}
	return steps, shapes
}

// State snapshots the profiler into its serializable form. The caller
// must have quiesced ingestion; State itself takes the lock so a racing
// AddStep cannot tear the snapshot.
func (p *Profiler) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := &State{
		Schema:  StateSchema,
		Session: p.session,
		Policy:  uint8(p.policy),
		Ops:     make([]OpState, len(p.defs)),
	}

	for i, def := range p.defs {
		steps, shapes := accumState(&p.stats.accums[i])
		st.Ops[i] = OpState{
			Name:   def.Name,
			Type:   def.Type,
			Device: def.Device,
			Inputs: append([]string(nil), def.Inputs...),
			Steps:  steps,
			Shapes: shapes,
		}
	}

	st.Ingests = make([]IngestState, 0, len(p.stats.ingests))
	for step, calls := range p.stats.ingests {
		st.Ingests = append(st.Ingests, IngestState{Step: int64(step), Calls: calls})
	}
	sort.Slice(st.Ingests, func(i, j int) bool { return st.Ingests[i].Step < st.Ingests[j].Step })

	st.UnknownSteps, st.UnknownShapes = accumState(&p.stats.unknown)

	st.UnknownOps = make([]UnknownOpState, 0, len(p.stats.unknownNames))
	for name, records := range p.stats.unknownNames {
		st.UnknownOps = append(st.UnknownOps, UnknownOpState{Name: name, Records: records})
	}
	sort.Slice(st.UnknownOps, func(i, j int) bool { return st.UnknownOps[i].Name < st.UnknownOps[j].Name })

	return st
}

// FromState rebuilds a Profiler behaviorally equivalent to the one the
// state was captured from, including its session id and merge policy.
func FromState(st *State) (*Profiler, error) {
	if st == nil {
		return nil, fmt.Errorf("nil profiler state")
	}
	if st.Schema != StateSchema {
		return nil, fmt.Errorf("unsupported profile schema %d (want %d)", st.Schema, StateSchema)
	}

	topo := Topology{Ops: make([]OpDef, len(st.Ops))}
	for i, op := range st.Ops {
		topo.Ops[i] = OpDef{
			Name:   op.Name,
			Type:   op.Type,
			Device: op.Device,
			Inputs: append([]string(nil), op.Inputs...),
		}
	}

	policy := MergePolicy(st.Policy)
	if policy != PolicySum && policy != PolicyAverage {
		policy = PolicySum
	}
	p, err := New(topo, WithMergePolicy(policy))
	if err != nil {
		return nil, err
	}
	if st.Session != "" {
		p.session = st.Session
	}

	restore := func(a *opAccum, steps []StepState, shapes []string) {
		for _, s := range steps {
			a.steps[StepKey(s.Step)] = &stepAccum{
				total:   s.TotalNanos,
				count:   s.Count,
				alloc:   s.AllocBytes,
				dealloc: s.DeallocBytes,
			}
		}
		for _, sig := range shapes {
			a.shapes[sig] = struct{}{}
		}
	}

	for _, op := range st.Ops {
		id, ok := p.opIndex.NameToID[op.Name]
		if !ok {
			return nil, fmt.Errorf("corrupt profile state: operation %q missing from rebuilt index", op.Name)
		}
		restore(&p.stats.accums[int(id)], op.Steps, op.Shapes)
	}
	restore(&p.stats.unknown, st.UnknownSteps, st.UnknownShapes)
	for _, u := range st.UnknownOps {
		p.stats.unknownNames[u.Name] = u.Records
	}
	for _, ing := range st.Ingests {
		p.stats.ingests[StepKey(ing.Step)] = ing.Calls
	}
	return p, nil
}
