package uow

import (
	"github.com/syssam/tether/graph"
	"github.com/syssam/tether/privacy"
)

// mutation presents a scheduled write to privacy rules.
type mutation struct {
	op     privacy.Op
	record *graph.Record
	fields []string
}

var _ privacy.Mutation = (*mutation)(nil)

// newMutation returns the mutation of r scheduled for op. It reports false
// for deletes of records that were never persisted, which are not written.
func newMutation(r *graph.Record, op Op) (*mutation, bool) {
	m := &mutation{record: r}
	switch {
	case op == OpDelete && !r.Exists():
		return nil, false
	case op == OpDelete:
		m.op = privacy.OpDelete
	case r.Exists():
		m.op = privacy.OpUpdate
		m.fields = r.ModifiedFields()
	default:
		m.op = privacy.OpCreate
		for _, f := range r.Table().Fields() {
			if r.Get(f.Name) != nil {
				m.fields = append(m.fields, f.Name)
			}
		}
	}
	return m, true
}

func (m *mutation) Op() privacy.Op { return m.op }

func (m *mutation) Table() string { return m.record.TableName() }

func (m *mutation) Fields() []string { return append([]string(nil), m.fields...) }

func (m *mutation) Field(name string) (any, bool) {
	if m.op == privacy.OpDelete {
		return nil, false
	}
	if _, ok := m.record.Table().Field(name); !ok {
		return nil, false
	}
	return m.record.Get(name), true
}

func (m *mutation) OldField(name string) (any, bool) {
	if m.op == privacy.OpCreate {
		return nil, false
	}
	if v, ok := m.record.ModifiedValue(name); ok {
		return v, true
	}
	if _, ok := m.record.Table().Field(name); !ok {
		return nil, false
	}
	return m.record.Get(name), true
}

func (m *mutation) String() string {
	return m.op.String() + " " + m.record.String()
}
