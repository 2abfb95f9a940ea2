package profile

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// OpID is a dense index assigned to a declared operation name.
type OpID uint32

// OpDef declares one operation of the computation graph: its unique name,
// its operation type (e.g. MatMul), the device it is placed on, and the
// names of the operations producing its inputs.
type OpDef struct {
	Name   string
	Type   string
	Device string
	Inputs []string
}

// Topology is the declared graph supplied once when a Profiler is created.
// It is never modified afterwards.
type Topology struct {
	Ops []OpDef
}

// OpIndex maps declared operation names to dense IDs and back.
type OpIndex struct {
	NameToID map[string]OpID
	IDToName []string
}

// собрать уникальные имена операций, sort.Strings, раздать ID по порядку
func buildOpIndex(ops []OpDef) (OpIndex, error) {
	uniq := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		if op.Name == "" {
			return OpIndex{}, fmt.Errorf("topology contains an operation with an empty name")
		}
		if _, dup := uniq[op.Name]; dup {
			return OpIndex{}, fmt.Errorf("duplicate operation %q in topology", op.Name)
		}
		uniq[op.Name] = struct{}{}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]OpID, len(names))
	for i, name := range names {
		id, err := safecast.Conv[OpID](i)
		if err != nil {
			return OpIndex{}, fmt.Errorf("operation id overflow: %w", err)
		}
		nameToID[name] = id
	}

	return OpIndex{NameToID: nameToID, IDToName: names}, nil
}
