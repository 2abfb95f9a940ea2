// Package diag collects non-fatal conditions met while building report
// views. A degraded node gets a warning here instead of failing the
// whole query; only cyclic topology and index corruption are fatal and
// travel as plain errors.
package diag

import "sort"

// Warning is one non-fatal condition attached to a view result.
type Warning struct {
	Code Code
	Op   string // operation the condition refers to, if any
	Msg  string
}

// Bag accumulates warnings up to a fixed limit.
type Bag struct {
	items   []Warning
	dropped int
	max     int
}

// NewBag creates an empty bag capped at max warnings.
func NewBag(max int) *Bag {
	if max <= 0 {
		max = 1
	}
	return &Bag{items: make([]Warning, 0, 8), max: max}
}

// Add appends a warning, honoring the limit.
// Возвращает false, если предупреждение не добавлено (достигнут лимит).
func (b *Bag) Add(w Warning) bool {
	if len(b.items) >= b.max {
		b.dropped++
		return false
	}
	b.items = append(b.items, w)
	return true
}

// Len returns the number of retained warnings.
func (b *Bag) Len() int { return len(b.items) }

// Dropped returns how many warnings were discarded over the limit.
func (b *Bag) Dropped() int { return b.dropped }

// Items returns a read-only view of the retained warnings.
// ВАЖНО: не модифицируйте возвращаемый срез!
func (b *Bag) Items() []Warning { return b.items }

// Count returns how many retained warnings carry the given code.
func (b *Bag) Count(code Code) int {
	n := 0
	for i := range b.items {
		if b.items[i].Code == code {
			n++
		}
	}
	return n
}

// Sort orders warnings by code, then operation, then message, for a
// stable and deterministic output order.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		wi, wj := b.items[i], b.items[j]
		if wi.Code != wj.Code {
			return wi.Code < wj.Code
		}
		if wi.Op != wj.Op {
			return wi.Op < wj.Op
		}
		return wi.Msg < wj.Msg
	})
}
