package diag

// Code identifies a class of profiling diagnostic.
type Code uint16

const (
	// UnknownOp: a trace record named an operation absent from the
	// declared topology; its stats went to the synthetic bucket.
	UnknownOp Code = 1001
	// DanglingEdge: a declared input refers to an operation that does
	// not exist in the topology.
	DanglingEdge Code = 1002
	// NeverObserved: an operation was declared but no trace record for
	// it was ever ingested.
	NeverObserved Code = 1003
	// SelfEdge: an operation lists itself as an input; the edge is
	// ignored.
	SelfEdge Code = 1004
)

// String returns the mnemonic form used in rendered reports.
func (c Code) String() string {
	switch c {
	case UnknownOp:
		return "unknown-op"
	case DanglingEdge:
		return "dangling-edge"
	case NeverObserved:
		return "never-observed"
	case SelfEdge:
		return "self-edge"
	default:
		return "unknown"
	}
}
