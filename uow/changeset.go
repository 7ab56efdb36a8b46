package uow

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/tether/dialect"
	"github.com/syssam/tether/graph"
)

// Kind is the statement kind of an applied change.
type Kind string

// Statement kinds.
const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Change is one statement applied by a commit.
type Change struct {
	Kind  Kind   `msgpack:"kind"`
	Table string `msgpack:"table"`
	// ID is the internal identifier the statement addressed: the assigned
	// one for inserts, the one before the change for updates and deletes.
	ID     string         `msgpack:"id"`
	Values map[string]any `msgpack:"values,omitempty"`
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s(%s) %v", c.Kind, c.Table, c.ID, c.Values)
}

// ChangeSet is the ordered journal of a successful commit.
type ChangeSet struct {
	Changes []Change `msgpack:"changes"`
}

func (cs *ChangeSet) add(k Kind, r *graph.Record, values dialect.Row) {
	cs.Changes = append(cs.Changes, Change{
		Kind:   k,
		Table:  r.TableName(),
		ID:     r.InternalID(),
		Values: maps.Clone(values),
	})
}

// Len returns the number of changes.
func (cs *ChangeSet) Len() int { return len(cs.Changes) }

// Tables returns the sorted names of the changed tables.
func (cs *ChangeSet) Tables() []string {
	var names []string
	for _, c := range cs.Changes {
		if !slices.Contains(names, c.Table) {
			names = append(names, c.Table)
		}
	}
	slices.Sort(names)
	return names
}

// Filter returns the changes of the given kind.
func (cs *ChangeSet) Filter(k Kind) []Change {
	var out []Change
	for _, c := range cs.Changes {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Encode returns the msgpack encoding of the change set.
func (cs *ChangeSet) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("uow: encode change set: %w", err)
	}
	return data, nil
}

// DecodeChangeSet decodes a change set produced by Encode.
func DecodeChangeSet(data []byte) (*ChangeSet, error) {
	cs := &ChangeSet{}
	if err := msgpack.Unmarshal(data, cs); err != nil {
		return nil, fmt.Errorf("uow: decode change set: %w", err)
	}
	return cs, nil
}
