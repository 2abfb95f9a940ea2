package tracein

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"

	"opprof/internal/profile"
)

// Batch is one ingestion unit: a step key plus the trace records
// captured for it. Several batches may carry the same step; the
// profiler merges them additively.
type Batch struct {
	Step    int64    `json:"step" msgpack:"step"`
	Records []Record `json:"records" msgpack:"records"`
}

// Record is the wire form of one trace record. Timestamps are unix
// nanoseconds as emitted by the trace producer.
type Record struct {
	Op           string    `json:"op" msgpack:"op"`
	StartNanos   int64     `json:"start_ns" msgpack:"start_ns"`
	EndNanos     int64     `json:"end_ns" msgpack:"end_ns"`
	AllocBytes   int64     `json:"alloc_bytes" msgpack:"alloc_bytes"`
	DeallocBytes int64     `json:"dealloc_bytes" msgpack:"dealloc_bytes"`
	InputShapes  [][]int64 `json:"input_shapes,omitempty" msgpack:"input_shapes"`
	OutputShapes [][]int64 `json:"output_shapes,omitempty" msgpack:"output_shapes"`
}

// Trace converts the wire record to the profiler's form.
func (r Record) Trace() profile.TraceRecord {
	rec := profile.TraceRecord{
		Op:           r.Op,
		Start:        time.Unix(0, r.StartNanos),
		End:          time.Unix(0, r.EndNanos),
		AllocBytes:   r.AllocBytes,
		DeallocBytes: r.DeallocBytes,
	}
	for _, s := range r.InputShapes {
		rec.InputShapes = append(rec.InputShapes, profile.Shape(s))
	}
	for _, s := range r.OutputShapes {
		rec.OutputShapes = append(rec.OutputShapes, profile.Shape(s))
	}
	return rec
}

// TraceRecords converts a whole batch.
func (b Batch) TraceRecords() []profile.TraceRecord {
	out := make([]profile.TraceRecord, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Trace()
	}
	return out
}

// ReadBatches loads every batch from a capture file. The format follows
// the extension: .ndjson holds one JSON batch per line, .mp/.msgpack a
// stream of msgpack batches.
func ReadBatches(path string) (batches []Batch, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl":
		return readNDJSON(f, path)
	case ".mp", ".msgpack":
		return readMsgpack(f, path)
	default:
		return nil, fmt.Errorf("unsupported trace file %q (expected .ndjson, .jsonl, .mp or .msgpack)", path)
	}
}

func readNDJSON(r io.Reader, path string) ([]Batch, error) {
	var batches []Batch
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var b Batch
		if err := json.Unmarshal([]byte(line), &b); err != nil {
			return nil, fmt.Errorf("parse %s:%d: %w", path, lineNo, err)
		}
		batches = append(batches, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return batches, nil
}

func readMsgpack(r io.Reader, path string) ([]Batch, error) {
	var batches []Batch
	dec := msgpack.NewDecoder(r)
	for {
		var b Batch
		if err := dec.Decode(&b); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}
