// Package report turns views and raw profiler state into bytes. The
// msgpack encoding is a pure function of its input: equal accumulated
// state and equal view parameters produce byte-identical output, so
// saved profiles can be diffed between runs. Text rendering lives in
// render.go and makes no such promise.
package report

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"opprof/internal/profile"
	"opprof/internal/view"
)

// Stream formats distinguished by the envelope.
const (
	FormatRawProfile = "opprof/raw"
	FormatView       = "opprof/view"
)

// Envelope opens every serialized stream so offline tools can validate
// format and schema before decoding the payload.
type Envelope struct {
	Format  string
	Schema  uint16
	Session string
}

// WarningEntry is the wire form of one view warning.
type WarningEntry struct {
	Code uint16
	Op   string
	Msg  string
}

// StatsEntry is the wire form of OpStats. Durations travel as
// nanoseconds; AvgNanos is precomputed so consumers do not repeat the
// zero-count guard.
type StatsEntry struct {
	TotalNanos   int64
	AvgNanos     int64
	Count        int64
	AllocBytes   int64
	DeallocBytes int64
	Steps        []int64
	Shapes       []string
}

// NodeEntry is the wire form of one report node; children nest.
type NodeEntry struct {
	Name     string
	Kind     uint8
	OpType   string
	Device   string
	Inputs   []string
	Own      StatsEntry
	Total    StatsEntry
	Degraded bool
	Children []NodeEntry
}

// ViewEntry is the wire form of a completed view query.
type ViewEntry struct {
	View       string
	UnknownOps int64
	Warnings   []WarningEntry
	Root       NodeEntry
}

func statsEntry(st profile.OpStats) StatsEntry {
	steps := make([]int64, len(st.Steps))
	for i, s := range st.Steps {
		steps[i] = int64(s)
	}
	return StatsEntry{
		TotalNanos:   int64(st.TotalTime),
		AvgNanos:     int64(st.AvgTime()),
		Count:        st.Count,
		AllocBytes:   st.AllocBytes,
		DeallocBytes: st.DeallocBytes,
		Steps:        steps,
		Shapes:       st.Shapes,
	}
}

func nodeEntry(n *view.Node) NodeEntry {
	out := NodeEntry{
		Name:     n.Name,
		Kind:     uint8(n.Kind),
		OpType:   n.OpType,
		Device:   n.Device,
		Inputs:   n.Inputs,
		Own:      statsEntry(n.Own),
		Total:    statsEntry(n.Total),
		Degraded: n.Degraded,
	}
	if len(n.Children) > 0 {
		out.Children = make([]NodeEntry, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = nodeEntry(c)
		}
	}
	return out
}

func marshal(env Envelope, payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalView serializes one view result. viewName tags which of the
// three projections produced it ("graph", "scope" or "op").
func MarshalView(viewName, session string, res *view.Result) ([]byte, error) {
	if res == nil || res.Root == nil {
		return nil, fmt.Errorf("nil view result")
	}
	entry := ViewEntry{
		View:       viewName,
		UnknownOps: res.UnknownOps,
		Root:       nodeEntry(res.Root),
	}
	if res.Warnings != nil {
		entry.Warnings = make([]WarningEntry, 0, res.Warnings.Len())
		for _, w := range res.Warnings.Items() {
			entry.Warnings = append(entry.Warnings, WarningEntry{Code: uint16(w.Code), Op: w.Op, Msg: w.Msg})
		}
	}
	return marshal(Envelope{Format: FormatView, Schema: profile.StateSchema, Session: session}, entry)
}

// UnmarshalView decodes a stream produced by MarshalView.
func UnmarshalView(data []byte) (*ViewEntry, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Format != FormatView {
		return nil, fmt.Errorf("unexpected stream format %q (want %q)", env.Format, FormatView)
	}
	var entry ViewEntry
	if err := dec.Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return &entry, nil
}

// MarshalState serializes the full raw accumulated state for offline
// reloading.
func MarshalState(st *profile.State) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("nil profiler state")
	}
	return marshal(Envelope{Format: FormatRawProfile, Schema: st.Schema, Session: st.Session}, st)
}

// UnmarshalState decodes a stream produced by MarshalState. The result
// feeds profile.FromState to rebuild an equivalent profiler.
func UnmarshalState(data []byte) (*profile.State, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Format != FormatRawProfile {
		return nil, fmt.Errorf("unexpected stream format %q (want %q)", env.Format, FormatRawProfile)
	}
	if env.Schema != profile.StateSchema {
		return nil, fmt.Errorf("unsupported profile schema %d (want %d)", env.Schema, profile.StateSchema)
	}
	var st profile.State
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("decode profile state: %w", err)
	}
	return &st, nil
}
