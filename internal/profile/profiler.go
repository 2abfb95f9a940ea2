// Package profile implements the trace-aggregation core: it binds one
// declared graph topology, absorbs per-step trace records keyed by
// operation name, and answers pure statistics reads that the report
// views re-project onto graph, name-scope and operation-type structure.
package profile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownOpName is the synthetic bucket absorbing trace records that
// name an operation absent from the declared topology. Such records are
// flagged, never dropped.
const UnknownOpName = "_unknown"

// Profiler owns one topology binding and the statistics accumulated
// across every ingested step. AddStep calls must be serialized by the
// caller or arrive from one goroutine; this type takes its own lock, so
// concurrent calls are safe but will queue. Reads are pure and may run
// in parallel once ingestion is quiesced.
type Profiler struct {
	mu      sync.Mutex
	session string
	defs    []OpDef // in OpID order
	opIndex OpIndex
	stats   *index
	policy  MergePolicy
	log     *zap.Logger
}

// Option configures a Profiler at construction.
type Option func(*Profiler)

// WithLogger attaches a logger for ingestion warnings. The default is a
// no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Profiler) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMergePolicy sets how repeated AddStep calls for one step merge.
func WithMergePolicy(policy MergePolicy) Option {
	return func(p *Profiler) { p.policy = policy }
}

// New binds a Profiler to the declared topology. The topology is fixed
// for the lifetime of the session; duplicate or empty operation names
// are construction errors.
func New(topo Topology, opts ...Option) (*Profiler, error) {
	idx, err := buildOpIndex(topo.Ops)
	if err != nil {
		return nil, fmt.Errorf("bind topology: %w", err)
	}

	defs := make([]OpDef, len(idx.IDToName))
	for _, op := range topo.Ops {
		id := idx.NameToID[op.Name]
		def := op
		def.Inputs = append([]string(nil), op.Inputs...)
		defs[int(id)] = def
	}

	p := &Profiler{
		session: uuid.NewString(),
		defs:    defs,
		opIndex: idx,
		stats:   newIndex(len(defs)),
		policy:  PolicySum,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SessionID returns the id stamped into serialized profiles.
func (p *Profiler) SessionID() string { return p.session }

// Policy returns the configured same-step merge policy.
func (p *Profiler) Policy() MergePolicy { return p.policy }

// NumOps returns the number of declared operations.
func (p *Profiler) NumOps() int { return len(p.defs) }

// Ops returns the declared operations in OpID order.
// ВАЖНО: не модифицируйте возвращаемый срез! (он указывает на внутреннее состояние)
func (p *Profiler) Ops() []OpDef { return p.defs }

// Lookup resolves a declared operation name to its dense id.
func (p *Profiler) Lookup(name string) (OpID, bool) {
	id, ok := p.opIndex.NameToID[name]
	return id, ok
}

// OpName returns the declared name for a dense id.
func (p *Profiler) OpName(id OpID) string { return p.opIndex.IDToName[int(id)] }

// AddStep merges every record of one trace batch into the index under
// the given step key. Records naming undeclared operations land in the
// unknown bucket and are counted, not discarded. Calling AddStep again
// with an already-seen step is legal and additive.
func (p *Profiler) AddStep(step StepKey, records []TraceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.ingests[step]++
	for _, rec := range records {
		id, ok := p.opIndex.NameToID[rec.Op]
		if !ok {
			p.stats.unknown.merge(step, rec)
			p.stats.unknownNames[rec.Op]++
			p.log.Warn("trace record for undeclared operation",
				zap.String("op", rec.Op),
				zap.Int64("step", int64(step)))
			continue
		}
		p.stats.accums[int(id)].merge(step, rec)
	}
}

// OpStatsByID reads the accumulated statistics of one declared
// operation under a step selection. Pure read.
func (p *Profiler) OpStatsByID(id OpID, sel Selection) OpStats {
	return p.stats.stats(&p.stats.accums[int(id)], sel, p.policy)
}

// OpStats reads accumulated statistics by operation name. The second
// result is false when the name is not declared in the topology.
func (p *Profiler) OpStats(name string, sel Selection) (OpStats, bool) {
	id, ok := p.opIndex.NameToID[name]
	if !ok {
		return OpStats{}, false
	}
	return p.OpStatsByID(id, sel), true
}

// UnknownStats reads the synthetic bucket of undeclared-operation
// records under a step selection.
func (p *Profiler) UnknownStats(sel Selection) OpStats {
	return p.stats.stats(&p.stats.unknown, sel, p.policy)
}

// UnknownRecords returns the total number of trace records absorbed for
// undeclared operations.
func (p *Profiler) UnknownRecords() int64 {
	var n int64
	for _, c := range p.stats.unknownNames {
		n += c
	}
	return n
}

// UnknownNames returns the distinct undeclared operation names seen so
// far, sorted.
func (p *Profiler) UnknownNames() []string {
	names := make([]string, 0, len(p.stats.unknownNames))
	for name := range p.stats.unknownNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Steps returns every step key observed so far, sorted.
func (p *Profiler) Steps() []StepKey {
	steps := make([]StepKey, 0, len(p.stats.ingests))
	for step := range p.stats.ingests {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}
