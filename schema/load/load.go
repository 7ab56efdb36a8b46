// Package load reads schema definitions from YAML documents.
//
//	tables:
//	  - name: users
//	    mixins: [time]
//	    fields:
//	      - {name: id, type: int, identifier: true, generated: true}
//	      - {name: name, type: string, max_len: 40}
//	  - name: posts
//	    fields:
//	      - {name: id, type: uuid, identifier: true}
//	      - {name: user_id, type: int, optional: true}
//	relations:
//	  - owning: posts.user_id
//	    references: users
//	    on_delete: cascade
package load

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/syssam/tether/schema"
	"github.com/syssam/tether/schema/edge"
	"github.com/syssam/tether/schema/field"
	"github.com/syssam/tether/schema/mixin"
)

// Mixins maps the names usable in the "mixins" key of a table.
var Mixins = map[string]schema.Mixin{
	"create_time": mixin.CreateTime{},
	"update_time": mixin.UpdateTime{},
	"time":        mixin.Time{},
	"id":          mixin.ID{},
	"version":     mixin.Version{},
}

type document struct {
	Tables    []tableDoc    `yaml:"tables"`
	Relations []relationDoc `yaml:"relations"`
}

type tableDoc struct {
	Name    string     `yaml:"name"`
	View    bool       `yaml:"view"`
	Comment string     `yaml:"comment"`
	Mixins  []string   `yaml:"mixins"`
	Fields  []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name          string    `yaml:"name"`
	Type          string    `yaml:"type"`
	Identifier    bool      `yaml:"identifier"`
	Generated     bool      `yaml:"generated"`
	Optional      bool      `yaml:"optional"`
	Immutable     bool      `yaml:"immutable"`
	MaxLen        int       `yaml:"max_len"`
	Values        []string  `yaml:"values"`
	Default       yaml.Node `yaml:"default"`
	UpdateDefault string    `yaml:"update_default"`
	Comment       string    `yaml:"comment"`
}

type relationDoc struct {
	Owning     string `yaml:"owning"`     // table.field
	References string `yaml:"references"` // table or table.field
	Unique     bool   `yaml:"unique"`
	Alias      struct {
		Owning     string `yaml:"owning"`
		Referenced string `yaml:"referenced"`
	} `yaml:"alias"`
	OnDelete string `yaml:"on_delete"`
	OnUpdate string `yaml:"on_update"`
	Comment  string `yaml:"comment"`
}

// Parse decodes one YAML document into a schema and checks it.
func Parse(data []byte) (*schema.Schema, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	return build([]*document{doc})
}

// Files reads the given files concurrently and merges them, in argument
// order, into one checked schema. Relations may refer to tables of any file.
func Files(ctx context.Context, paths ...string) (*schema.Schema, error) {
	docs := make([]*document, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			doc, err := decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return build(docs)
}

func decode(data []byte) (*document, error) {
	doc := &document{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("load: %w", err)
	}
	return doc, nil
}

func build(docs []*document) (*schema.Schema, error) {
	s := schema.New()
	var errs []error
	for _, doc := range docs {
		for _, td := range doc.Tables {
			t, err := td.table()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.Tables = append(s.Tables, t.Table())
		}
	}
	for _, doc := range docs {
		for _, rd := range doc.Relations {
			e, err := rd.edge()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.Relate(e)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (td tableDoc) table() (*schema.TableBuilder, error) {
	var b *schema.TableBuilder
	if td.View {
		b = schema.NewView(td.Name)
	} else {
		b = schema.NewTable(td.Name)
	}
	b.Comment(td.Comment)
	var errs []error
	for _, name := range td.Mixins {
		m, ok := Mixins[name]
		if !ok {
			errs = append(errs, fmt.Errorf("load: table %s: unknown mixin %q", td.Name, name))
			continue
		}
		b.Mixin(m)
	}
	for _, fd := range td.Fields {
		f, err := fd.field()
		if err != nil {
			errs = append(errs, fmt.Errorf("load: table %s: %w", td.Name, err))
			continue
		}
		b.Fields(f)
	}
	return b, errors.Join(errs...)
}

func (fd fieldDoc) field() (*field.Builder, error) {
	t, err := field.ParseType(fd.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fd.Name, err)
	}
	var b *field.Builder
	switch t {
	case field.TypeBool:
		b = field.Bool(fd.Name)
	case field.TypeInt:
		b = field.Int(fd.Name)
	case field.TypeFloat:
		b = field.Float(fd.Name)
	case field.TypeString:
		b = field.String(fd.Name)
	case field.TypeEnum:
		b = field.Enum(fd.Name)
	case field.TypeTime:
		b = field.Time(fd.Name)
	case field.TypeUUID:
		b = field.UUID(fd.Name)
	case field.TypeBytes:
		b = field.Bytes(fd.Name)
	}
	if fd.Identifier {
		b.Identifier()
	}
	if fd.Generated {
		b.Generated()
	}
	if fd.Optional {
		b.Optional()
	}
	if fd.Immutable {
		b.Immutable()
	}
	if fd.MaxLen > 0 {
		b.MaxLen(fd.MaxLen)
	}
	if len(fd.Values) > 0 {
		b.Values(fd.Values...)
	}
	b.Comment(fd.Comment)
	if !fd.Default.IsZero() {
		fn, err := defaultFunc(t, &fd.Default)
		if err != nil {
			return nil, fmt.Errorf("field %s: default: %w", fd.Name, err)
		}
		b.DefaultFunc(fn)
	}
	switch fd.UpdateDefault {
	case "":
	case "now":
		if t != field.TypeTime {
			return nil, fmt.Errorf("field %s: update_default now requires a time field", fd.Name)
		}
		b.UpdateDefault(func() any { return time.Now() })
	default:
		return nil, fmt.Errorf("field %s: unsupported update_default %q", fd.Name, fd.UpdateDefault)
	}
	return b, nil
}

// defaultFunc returns the default generator of a YAML default value.
// Time fields accept "now".
func defaultFunc(t field.Type, n *yaml.Node) (func() any, error) {
	if t == field.TypeTime && n.Value == "now" {
		return func() any { return time.Now() }, nil
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	d := &field.Descriptor{Type: t}
	c, err := d.Convert(v)
	if err != nil {
		return nil, err
	}
	return func() any { return c }, nil
}

func (rd relationDoc) edge() (edge.Edge, error) {
	table, fk, ok := strings.Cut(rd.Owning, ".")
	if !ok || table == "" || fk == "" {
		return nil, fmt.Errorf("load: relation %q: owning must be table.field", rd.Owning)
	}
	refTable, refField, _ := strings.Cut(rd.References, ".")
	if refTable == "" {
		return nil, fmt.Errorf("load: relation %s: missing references", rd.Owning)
	}
	onDelete, err := edge.ParseAction(rd.OnDelete)
	if err != nil {
		return nil, fmt.Errorf("load: relation %s: %w", rd.Owning, err)
	}
	onUpdate, err := edge.ParseAction(rd.OnUpdate)
	if err != nil {
		return nil, fmt.Errorf("load: relation %s: %w", rd.Owning, err)
	}
	b := edge.Reference(table, fk).
		To(refTable).
		Field(refField).
		Alias(rd.Alias.Owning, rd.Alias.Referenced).
		OnDelete(onDelete).
		OnUpdate(onUpdate).
		Comment(rd.Comment)
	if rd.Unique {
		b.Unique()
	}
	return b, nil
}
