package repopulator

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "dicom-repopulator/internal/dicom"
	"dicom-repopulator/internal/mapping"
)

// Assignment is one field write produced from a mapping row.
type Assignment struct {
	Column  string
	Field   tag.Tag
	Keyword string
	Value   string
}

type binding struct {
	column  string
	index   int
	field   tag.Tag
	keyword string
}

// RewriterOptions tunes which columns a Rewriter writes.
type RewriterOptions struct {
	// IncludeKeyPair also writes the pair that designates the key field.
	// In path mode that pair is an ordinary assignment.
	IncludeKeyPair bool
	// AutoMapColumns writes columns the redirection does not mention when
	// their header is a DICOM keyword.
	AutoMapColumns bool
}

// Rewriter applies a mapping row to a dataset. It holds no per-file state
// and is shared by all workers.
type Rewriter struct {
	bindings []binding
	fields   map[tag.Tag]bool
}

// NewRewriter binds the redirection pairs to table columns.
func NewRewriter(t *mapping.Table, r *mapping.Redirection, opts RewriterOptions) (*Rewriter, error) {
	if err := mapping.Bind(t, r); err != nil {
		return nil, err
	}

	rw := &Rewriter{fields: make(map[tag.Tag]bool)}

	if r != nil {
		for _, p := range r.Pairs {
			if r.IsKeyPair(p) && !opts.IncludeKeyPair {
				continue
			}
			idx, _ := t.ColumnIndex(p.Column)
			rw.add(binding{column: t.Columns[idx], index: idx, field: p.Field, keyword: p.Keyword})
		}
	}

	if opts.AutoMapColumns {
		keyIdx, _ := t.ColumnIndex(t.KeyColumn)
		for idx, column := range t.Columns {
			if idx == keyIdx || len(r.Fields(column)) > 0 {
				continue
			}
			field, keyword, err := mapping.ResolveField(strings.ReplaceAll(column, " ", ""))
			if err != nil || rw.fields[field] {
				continue
			}
			rw.add(binding{column: column, index: idx, field: field, keyword: keyword})
		}
	}

	return rw, nil
}

func (rw *Rewriter) add(b binding) {
	rw.bindings = append(rw.bindings, b)
	rw.fields[b.field] = true
}

// Fields returns the set of fields the rewriter writes.
func (rw *Rewriter) Fields() map[tag.Tag]bool {
	out := make(map[tag.Tag]bool, len(rw.fields))
	for t := range rw.fields {
		out[t] = true
	}
	return out
}

// Len returns the number of field writes per row.
func (rw *Rewriter) Len() int {
	return len(rw.bindings)
}

// Plan lists the raw assignments for a row, in redirection order.
func (rw *Rewriter) Plan(row *mapping.Row) []Assignment {
	out := make([]Assignment, 0, len(rw.bindings))
	for _, b := range rw.bindings {
		out = append(out, Assignment{
			Column:  b.column,
			Field:   b.field,
			Keyword: b.keyword,
			Value:   row.Value(b.index),
		})
	}
	return out
}

// Convert plans a row and converts every value for its target field. vrOf
// supplies the value representation of a field.
func (rw *Rewriter) Convert(row *mapping.Row, vrOf func(tag.Tag) (string, error)) ([]Assignment, error) {
	plan := rw.Plan(row)
	for i, a := range plan {
		vr, err := vrOf(a.Field)
		if err != nil {
			return nil, fmt.Errorf("column %q to %s: %w", a.Column, a.Keyword, err)
		}
		value, err := ConvertValue(a.Value, vr)
		if err != nil {
			return nil, fmt.Errorf("column %q to %s: %w", a.Column, a.Keyword, err)
		}
		plan[i].Value = value
	}
	return plan, nil
}

// Apply writes a row's values onto ds. The dataset may be partly modified
// when an error is returned; callers discard it.
func (rw *Rewriter) Apply(ds *dcm.Dataset, row *mapping.Row) error {
	assignments, err := rw.Convert(row, ds.FieldVR)
	if err != nil {
		return err
	}
	for _, a := range assignments {
		if err := ds.SetString(a.Field, a.Value); err != nil {
			return fmt.Errorf("column %q to %s: %w", a.Column, a.Keyword, err)
		}
	}
	return nil
}
