package view

import (
	"sort"
	"strings"

	"opprof/internal/diag"
	"opprof/internal/profile"
)

// ScopeSep separates the segments of a hierarchical operation name.
const ScopeSep = "/"

// scopeTrie is the build-time form of the name hierarchy. Children are
// keyed by segment; insertion order is irrelevant because emission sorts
// by the configured criterion.
type scopeTrie struct {
	segment  string
	full     string
	children map[string]*scopeTrie
	op       profile.OpID
	hasOp    bool
}

func (t *scopeTrie) child(segment string) *scopeTrie {
	c, ok := t.children[segment]
	if !ok {
		full := segment
		if t.full != "" {
			full = t.full + ScopeSep + segment
		}
		c = &scopeTrie{segment: segment, full: full, children: make(map[string]*scopeTrie)}
		t.children[segment] = c
	}
	return c
}

// NameScope builds the scope-tree view: operation names split on "/"
// form a trie, and every node's aggregate is the strict sum of its
// subtree's leaf statistics. An operation whose name is also a prefix of
// other names is a leaf and an interior scope at once; its own stats add
// to its children's rollup, never replace it.
func NameScope(p *profile.Profiler, opts Options) *Result {
	bag := diag.NewBag(opts.maxWarnings())
	sel := opts.selection()

	root := &scopeTrie{children: make(map[string]*scopeTrie)}
	for i, def := range p.Ops() {
		if !opts.matchDevice(def.Device) {
			continue
		}
		node := root
		for _, segment := range strings.Split(def.Name, ScopeSep) {
			node = node.child(segment)
		}
		node.op = profile.OpID(i)
		node.hasOp = true
	}

	out := &Result{Warnings: bag, UnknownOps: p.UnknownRecords()}
	out.Root = emitScope(p, root, sel, opts, bag)
	out.Root.Name = RootName
	out.Root.Kind = KindRoot
	truncate(out.Root, opts.MaxNodes)

	unknownWarnings(p, bag)
	bag.Sort()
	return out
}

// emitScope converts a trie node post-order: children first, then the
// rollup. Filtering drops children from the emitted tree only after
// their stats entered the parent aggregate, so ancestors stay exact.
func emitScope(p *profile.Profiler, t *scopeTrie, sel profile.Selection, opts Options, bag *diag.Bag) *Node {
	node := &Node{Name: t.full, Kind: KindScope}
	if t.hasOp {
		def := p.Ops()[int(t.op)]
		node.Kind = KindOp
		node.OpType = def.Type
		node.Device = def.Device
		node.Own = p.OpStatsByID(t.op, sel)
		if node.Own.Zero() {
			node.Degraded = true
			bag.Add(diag.Warning{
				Code: diag.NeverObserved,
				Op:   def.Name,
				Msg:  "declared operation has no trace records",
			})
		}
	}

	segments := make([]string, 0, len(t.children))
	for segment := range t.children {
		segments = append(segments, segment)
	}
	sort.Strings(segments)

	node.Total.Add(node.Own)
	for _, segment := range segments {
		child := emitScope(p, t.children[segment], sel, opts, bag)
		node.Total.Add(child.Total)
		if !opts.passes(child.Total) {
			continue
		}
		node.Children = append(node.Children, child)
	}
	sortChildren(node.Children, opts.order())
	return node
}
