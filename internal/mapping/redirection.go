package mapping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// KeyFields are the identifiers a redirection can designate as the matching key.
var KeyFields = map[tag.Tag]bool{
	tag.StudyInstanceUID:  true,
	tag.SeriesInstanceUID: true,
	tag.SOPInstanceUID:    true,
}

// Pair maps one table column onto one DICOM field.
type Pair struct {
	Column  string
	Field   tag.Tag
	Keyword string
	Line    int
}

// Redirection is the parsed column-to-field association list. The zero value
// is an empty redirection that substitutes nothing.
type Redirection struct {
	Path  string
	Pairs []Pair

	// KeyColumn and KeyField are set when a pair targets one of KeyFields.
	KeyColumn string
	KeyField  tag.Tag
	keyLine   int
}

// HasKey reports whether the redirection designates the matching key.
func (r *Redirection) HasKey() bool {
	return r != nil && r.KeyColumn != ""
}

// IsKeyPair reports whether p is the pair that designates the key.
func (r *Redirection) IsKeyPair(p Pair) bool {
	return r.HasKey() && p.Field == r.KeyField && foldColumn(p.Column) == foldColumn(r.KeyColumn)
}

// Fields returns every field fed by column, in file order.
func (r *Redirection) Fields(column string) []tag.Tag {
	if r == nil {
		return nil
	}
	folded := foldColumn(NormalizeColumn(column))
	var out []tag.Tag
	for _, p := range r.Pairs {
		if foldColumn(p.Column) == folded {
			out = append(out, p.Field)
		}
	}
	return out
}

// Targets reports whether some pair writes field.
func (r *Redirection) Targets(field tag.Tag) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Pairs {
		if p.Field == field {
			return true
		}
	}
	return false
}

// LoadRedirection reads a redirection file. An empty path is valid and
// yields an empty redirection.
func LoadRedirection(path string) (*Redirection, error) {
	if path == "" {
		return &Redirection{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	return ReadRedirection(f, path)
}

// ReadRedirection parses "column:field" lines from r. Blank lines and lines
// starting with '#' are ignored.
func ReadRedirection(r io.Reader, name string) (*Redirection, error) {
	redir := &Redirection{Path: name}
	fieldOwner := make(map[tag.Tag]Pair)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, byteOrderMark)
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fail := func(err error) (*Redirection, error) {
			return nil, &ConfigError{Path: name, Line: lineNo, Err: err}
		}

		column, field, ok := strings.Cut(line, ":")
		if !ok {
			return fail(fmt.Errorf("%w: expected column:field, got %q", ErrMalformedLine, line))
		}
		column = NormalizeColumn(column)
		field = strings.TrimSpace(field)
		if column == "" || field == "" {
			return fail(fmt.Errorf("%w: empty column or field in %q", ErrMalformedLine, line))
		}

		t, keyword, err := ResolveField(field)
		if err != nil {
			return fail(err)
		}
		pair := Pair{Column: column, Field: t, Keyword: keyword, Line: lineNo}

		if owner, seen := fieldOwner[t]; seen {
			if foldColumn(owner.Column) != foldColumn(column) {
				return fail(fmt.Errorf("%w: %s from %q (line %d) and %q",
					ErrConflictingField, keyword, owner.Column, owner.Line, column))
			}
			continue // repeated pair
		}
		fieldOwner[t] = pair

		if KeyFields[t] {
			if redir.HasKey() {
				return fail(fmt.Errorf("%w: %q (%s) and %q (%s, line %d)",
					ErrConflictingKey, column, keyword, redir.KeyColumn, redir.KeyField, redir.keyLine))
			}
			redir.KeyColumn = column
			redir.KeyField = t
			redir.keyLine = lineNo
		}

		redir.Pairs = append(redir.Pairs, pair)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Path: name, Line: lineNo, Err: err}
	}

	return redir, nil
}

// ResolveField turns a field identifier into a tag. Keywords ("PatientID")
// and tag numbers ("(0010,0020)", "0010,0020", "00100020") are accepted.
func ResolveField(id string) (tag.Tag, string, error) {
	id = strings.TrimSpace(id)

	if t, ok := parseTagNumber(id); ok {
		info, err := tag.Find(t)
		if err != nil {
			return tag.Tag{}, "", fmt.Errorf("%w %q", ErrUnknownField, id)
		}
		return t, info.Name, nil
	}

	info, err := tag.FindByName(id)
	if err != nil {
		return tag.Tag{}, "", fmt.Errorf("%w %q", ErrUnknownField, id)
	}
	return info.Tag, info.Name, nil
}

func parseTagNumber(s string) (tag.Tag, bool) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	s = strings.ReplaceAll(s, ",", "")
	if len(s) != 8 {
		return tag.Tag{}, false
	}
	group, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	element, err := strconv.ParseUint(s[4:], 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	return tag.Tag{Group: uint16(group), Element: uint16(element)}, true
}

// Bind checks that every column named by the redirection exists in the table.
func Bind(t *Table, r *Redirection) error {
	if r == nil {
		return nil
	}
	for _, p := range r.Pairs {
		if _, ok := t.ColumnIndex(p.Column); !ok {
			return &ConfigError{Path: r.Path, Line: p.Line,
				Err: fmt.Errorf("%w %q (not in mapping table %s)", ErrUnknownColumn, p.Column, t.Path)}
		}
	}
	return nil
}
