// Package view projects accumulated operation statistics onto the three
// report structures: the operation DAG with cumulative upstream costs,
// the name-scope trie with bottom-up rollups, and flat operation-type
// buckets. Builders are pure reads over a quiesced Profiler and may run
// concurrently with each other.
package view

import (
	"sort"

	"opprof/internal/diag"
	"opprof/internal/profile"
)

// Kind tags the role a node plays in a report tree.
type Kind uint8

const (
	KindRoot  Kind = iota + 1 // synthetic root of every view
	KindOp                    // one operation
	KindScope                 // interior name-scope segment
	KindType                  // one operation-type bucket
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindOp:
		return "op"
	case KindScope:
		return "scope"
	case KindType:
		return "type"
	default:
		return "unknown"
	}
}

// Node is the one shape shared by all three views, so ordering,
// filtering, rendering and serialization are written once. Own carries
// the node's directly attributed statistics; Total the view-specific
// aggregate (upstream closure, subtree rollup or flat bucket sum).
type Node struct {
	Name     string
	Kind     Kind
	OpType   string
	Device   string
	Inputs   []string // producer names; graph view only
	Own      profile.OpStats
	Total    profile.OpStats
	Degraded bool // built from partial data (dangling edge, never observed)
	Children []*Node
}

// RootName is the name of every synthetic view root.
const RootName = "_root"

// Result is one completed view query.
type Result struct {
	Root     *Node
	Warnings *diag.Bag
	// UnknownOps counts trace records absorbed for operations missing
	// from the declared topology over the whole session.
	UnknownOps int64
}

func sortValue(order OrderBy, st profile.OpStats) int64 {
	switch order {
	case OrderByMemory:
		return st.AllocBytes
	case OrderByCount:
		return st.Count
	default:
		return int64(st.TotalTime)
	}
}

// sortChildren orders siblings by the chosen criterion descending, ties
// broken by name ascending.
func sortChildren(nodes []*Node, order OrderBy) {
	sort.SliceStable(nodes, func(i, j int) bool {
		vi, vj := sortValue(order, nodes[i].Total), sortValue(order, nodes[j].Total)
		if vi != vj {
			return vi > vj
		}
		return nodes[i].Name < nodes[j].Name
	})
}

// truncate caps the emitted tree at max nodes, counted in pre-order
// after ordering. The synthetic root does not consume budget.
func truncate(root *Node, max int) {
	if max <= 0 {
		return
	}
	budget := max
	var walk func(n *Node)
	walk = func(n *Node) {
		kept := n.Children[:0]
		for _, c := range n.Children {
			if budget == 0 {
				break
			}
			budget--
			kept = append(kept, c)
			walk(c)
		}
		for i := len(kept); i < len(n.Children); i++ {
			n.Children[i] = nil
		}
		n.Children = kept
	}
	walk(root)
}

// unknownWarnings surfaces the session's undeclared-operation records in
// a view result.
func unknownWarnings(p *profile.Profiler, bag *diag.Bag) {
	for _, name := range p.UnknownNames() {
		bag.Add(diag.Warning{
			Code: diag.UnknownOp,
			Op:   name,
			Msg:  "trace records reference an operation missing from the topology",
		})
	}
}
