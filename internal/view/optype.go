package view

import (
	"sort"

	"opprof/internal/diag"
	"opprof/internal/profile"
)

// UntypedBucket groups operations declared without a type string.
const UntypedBucket = "_untyped"

// OpTypes builds the flat operation-type view: one bucket per declared
// type, aggregate = plain sum of member statistics. No hierarchy and no
// cumulative semantics; every operation lands in exactly one bucket.
func OpTypes(p *profile.Profiler, opts Options) *Result {
	bag := diag.NewBag(opts.maxWarnings())
	sel := opts.selection()

	buckets := make(map[string]*Node)
	for i, def := range p.Ops() {
		if !opts.matchDevice(def.Device) {
			continue
		}
		key := def.Type
		if key == "" {
			key = UntypedBucket
		}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &Node{Name: key, Kind: KindType, OpType: key}
			buckets[key] = bucket
		}

		st := p.OpStatsByID(profile.OpID(i), sel)
		member := &Node{
			Name:   def.Name,
			Kind:   KindOp,
			OpType: def.Type,
			Device: def.Device,
			Own:    st,
			Total:  st,
		}
		if st.Zero() {
			member.Degraded = true
			bag.Add(diag.Warning{
				Code: diag.NeverObserved,
				Op:   def.Name,
				Msg:  "declared operation has no trace records",
			})
		}
		bucket.Total.Add(st)
		bucket.Own.Add(st)
		bucket.Children = append(bucket.Children, member)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	root := &Node{Name: RootName, Kind: KindRoot}
	for _, key := range keys {
		bucket := buckets[key]
		root.Total.Add(bucket.Total)
		if !opts.passes(bucket.Total) {
			continue
		}
		sortChildren(bucket.Children, opts.order())
		root.Children = append(root.Children, bucket)
	}
	sortChildren(root.Children, opts.order())
	truncate(root, opts.MaxNodes)

	unknownWarnings(p, bag)
	bag.Sort()
	return &Result{Root: root, Warnings: bag, UnknownOps: p.UnknownRecords()}
}
