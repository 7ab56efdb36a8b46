// Package gen generates Go constants naming the tables, fields and relation
// aliases of a schema, so application code can refer to them without string
// literals:
//
//	src, err := gen.Generate(s, gen.Config{Package: "model"})
//
// For a "users" table the output holds:
//
//	const (
//	    UsersTable      = "users"
//	    UsersFieldID    = "id"
//	    UsersFieldName  = "name"
//	    UsersEdgePosts  = "posts"
//	)
package gen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"
	"golang.org/x/tools/imports"

	"github.com/syssam/tether/schema"
)

// Config configures the generated file.
type Config struct {
	Package  string // Package name, defaults to "schema".
	Filename string // Used in formatting errors, defaults to "schema.go".
}

// acronyms are rendered upper case in identifiers.
var acronyms = map[string]bool{
	"id": true, "uuid": true, "url": true, "uri": true, "api": true,
	"ip": true, "http": true, "json": true, "sql": true, "html": true,
}

// Pascal converts a snake_case name into an exported Go identifier.
func Pascal(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if acronyms[part] {
			b.WriteString(strings.ToUpper(part))
			continue
		}
		b.WriteString(inflect.Capitalize(part))
	}
	return b.String()
}

// Generate returns the formatted source of the constants file for s.
func Generate(s *schema.Schema, cfg Config) ([]byte, error) {
	if cfg.Package == "" {
		cfg.Package = "schema"
	}
	if cfg.Filename == "" {
		cfg.Filename = "schema.go"
	}
	if err := s.Check(); err != nil {
		return nil, err
	}
	f := jen.NewFile(cfg.Package)
	f.HeaderComment("Code generated by tether. DO NOT EDIT.")
	for _, t := range s.Tables {
		prefix := Pascal(t.Name)
		kind := "table"
		if t.View {
			kind = "view"
		}
		f.Commentf("%s is the %q %s.", prefix+"Table", t.Name, kind)
		f.Const().DefsFunc(func(g *jen.Group) {
			g.Id(prefix + "Table").Op("=").Lit(t.Name)
			for _, fd := range t.Fields {
				g.Id(prefix + "Field" + Pascal(fd.Name)).Op("=").Lit(fd.Name)
			}
			for _, alias := range aliases(s, t.Name) {
				g.Id(prefix + "Edge" + Pascal(alias)).Op("=").Lit(alias)
			}
		})
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("gen: render: %w", err)
	}
	src, err := imports.Process(cfg.Filename, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("gen: format %s: %w", cfg.Filename, err)
	}
	return src, nil
}

// aliases returns the relation aliases reachable from the named table.
func aliases(s *schema.Schema, table string) []string {
	var names []string
	for _, r := range s.Relations {
		if r.OwningTable == table {
			names = append(names, r.OwningAlias)
		}
		if r.ReferencedTable == table {
			names = append(names, r.ReferencedAlias)
		}
	}
	return names
}
