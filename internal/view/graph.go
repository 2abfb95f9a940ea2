package view

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"

	"fortio.org/safecast"

	"opprof/internal/diag"
	"opprof/internal/profile"
)

// ErrCyclicTopology is returned when the declared input edges form a
// cycle. The query aborts with no partial result; the underlying index
// is untouched.
var ErrCyclicTopology = errors.New("cyclic topology")

// opGraph is the arena form of the declared DAG: dense ids, edge lists
// by index, no ownership pointers between nodes.
type opGraph struct {
	preds    [][]profile.OpID // preds[op] = declared producers
	succs    [][]profile.OpID // succs[op] = consumers
	indeg    []int
	degraded []bool // at least one declared input was unusable
}

func buildOpGraph(p *profile.Profiler, bag *diag.Bag) opGraph {
	n := p.NumOps()
	g := opGraph{
		preds:    make([][]profile.OpID, n),
		succs:    make([][]profile.OpID, n),
		indeg:    make([]int, n),
		degraded: make([]bool, n),
	}

	for i, def := range p.Ops() {
		id, err := safecast.Conv[profile.OpID](i)
		if err != nil {
			panic(fmt.Errorf("operation id overflow: %w", err))
		}
		seen := make(map[profile.OpID]struct{}, len(def.Inputs))
		for _, in := range def.Inputs {
			pid, ok := p.Lookup(in)
			if !ok {
				g.degraded[i] = true
				bag.Add(diag.Warning{
					Code: diag.DanglingEdge,
					Op:   def.Name,
					Msg:  fmt.Sprintf("declared input %q is not in the topology", in),
				})
				continue
			}
			if pid == id {
				g.degraded[i] = true
				bag.Add(diag.Warning{
					Code: diag.SelfEdge,
					Op:   def.Name,
					Msg:  "operation lists itself as an input",
				})
				continue
			}
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}

			g.preds[i] = append(g.preds[i], pid)
			g.succs[int(pid)] = append(g.succs[int(pid)], id)
			g.indeg[i]++
		}
		if len(g.preds[i]) > 1 {
			slices.Sort(g.preds[i])
		}
	}
	for i := range g.succs {
		if len(g.succs[i]) > 1 {
			slices.Sort(g.succs[i])
		}
	}
	return g
}

// toposort runs Kahn's algorithm over producer->consumer edges. The
// returned order lists producers before their consumers. Nodes left with
// positive in-degree are cycle members.
func toposort(g opGraph) (order []profile.OpID, cycle []profile.OpID) {
	n := len(g.preds)
	indeg := make([]int, n)
	copy(indeg, g.indeg)

	order = make([]profile.OpID, 0, n)
	current := make([]profile.OpID, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			id, err := safecast.Conv[profile.OpID](i)
			if err != nil {
				panic(fmt.Errorf("operation id overflow: %w", err))
			}
			current = append(current, id)
		}
	}
	slices.Sort(current)

	for len(current) > 0 {
		next := make([]profile.OpID, 0)
		for _, id := range current {
			order = append(order, id)
			for _, to := range g.succs[int(id)] {
				indeg[int(to)]--
				if indeg[int(to)] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if len(order) != n {
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				id, err := safecast.Conv[profile.OpID](i)
				if err != nil {
					panic(fmt.Errorf("operation id overflow: %w", err))
				}
				cycle = append(cycle, id)
			}
		}
		slices.Sort(cycle)
	}
	return order, cycle
}

// ancestorSets computes, for each operation in topological order, the
// bitset of its transitive producers. Diamond fan-in stays a single bit,
// which is what keeps cumulative costs from double counting.
func ancestorSets(g opGraph, order []profile.OpID) [][]uint64 {
	n := len(g.preds)
	words := (n + 63) / 64
	anc := make([][]uint64, n)
	for _, id := range order {
		set := make([]uint64, words)
		for _, pid := range g.preds[int(id)] {
			set[int(pid)/64] |= 1 << (uint(pid) % 64)
			for w, word := range anc[int(pid)] {
				set[w] |= word
			}
		}
		anc[int(id)] = set
	}
	return anc
}

// Graph builds the DAG-shaped view: every declared operation with its
// own statistics and the cumulative cost of its upstream closure, each
// ancestor counted exactly once regardless of how many paths reach it.
// A cycle in the declared edges is fatal and yields ErrCyclicTopology.
func Graph(p *profile.Profiler, opts Options) (*Result, error) {
	bag := diag.NewBag(opts.maxWarnings())
	g := buildOpGraph(p, bag)

	order, cycle := toposort(g)
	if len(cycle) > 0 {
		names := make([]string, len(cycle))
		for i, id := range cycle {
			names[i] = p.OpName(id)
		}
		return nil, fmt.Errorf("%w: %s", ErrCyclicTopology, strings.Join(names, " -> "))
	}

	sel := opts.selection()
	n := p.NumOps()
	own := make([]profile.OpStats, n)
	for i, def := range p.Ops() {
		if !opts.matchDevice(def.Device) {
			continue
		}
		own[i] = p.OpStatsByID(profile.OpID(i), sel)
	}

	anc := ancestorSets(g, order)

	root := &Node{Name: RootName, Kind: KindRoot}
	for i, def := range p.Ops() {
		if !opts.matchDevice(def.Device) {
			continue
		}
		total := profile.OpStats{}
		total.Add(own[i])
		for w, word := range anc[i] {
			for word != 0 {
				b := word & (-word)
				total.Add(own[w*64+bits.TrailingZeros64(b)])
				word &^= b
			}
		}

		node := &Node{
			Name:     def.Name,
			Kind:     KindOp,
			OpType:   def.Type,
			Device:   def.Device,
			Inputs:   append([]string(nil), def.Inputs...),
			Own:      own[i],
			Total:    total,
			Degraded: g.degraded[i],
		}
		if own[i].Zero() {
			node.Degraded = true
			bag.Add(diag.Warning{
				Code: diag.NeverObserved,
				Op:   def.Name,
				Msg:  "declared operation has no trace records",
			})
		}
		if !opts.passes(total) {
			continue
		}
		root.Children = append(root.Children, node)
	}

	for _, child := range root.Children {
		root.Total.Add(child.Own)
	}
	sortChildren(root.Children, opts.order())
	truncate(root, opts.MaxNodes)

	unknownWarnings(p, bag)
	bag.Sort()
	return &Result{Root: root, Warnings: bag, UnknownOps: p.UnknownRecords()}, nil
}
