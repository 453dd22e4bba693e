package mapping

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const byteOrderMark = "\ufeff"

// TableOptions controls how a mapping table is parsed and indexed.
type TableOptions struct {
	// KeyColumn names the column rows are indexed by. Empty means the first column.
	KeyColumn string
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// Comment starts a line that is ignored. Zero disables comments.
	Comment rune
	// NormalizeKey, when set, is applied to key values before indexing.
	NormalizeKey func(string) string
}

// Row is one data row of the mapping table.
type Row struct {
	Line   int // line the row starts on
	Key    string
	Values []string
}

// Value returns the cell at column index i.
func (r *Row) Value(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Table is a parsed mapping table. It is immutable once loaded and safe for
// concurrent readers.
type Table struct {
	Path      string
	Columns   []string
	KeyColumn string

	rows        []Row
	columnIndex map[string]int
	index       map[string]int
}

// LoadTable reads the delimited mapping table at path.
func LoadTable(path string, opts TableOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	return ReadTable(f, path, opts)
}

// ReadTable parses a mapping table from r. name is used in errors.
func ReadTable(r io.Reader, name string, opts TableOptions) (*Table, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(len(byteOrderMark)); err == nil && string(bom) == byteOrderMark {
		br.Discard(len(byteOrderMark))
	}

	reader := csv.NewReader(br)
	reader.Comma = ','
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.Comment = opts.Comment
	reader.FieldsPerRecord = -1 // width is checked below so the error names the line

	fail := func(line int, err error) (*Table, error) {
		return nil, &LoadError{Path: name, Line: line, Err: err}
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fail(0, ErrNoRows)
	}
	if err != nil {
		return fail(parseErrorLine(err), err)
	}
	headerLine, _ := reader.FieldPos(0)

	t := &Table{
		Path:        name,
		Columns:     make([]string, len(header)),
		columnIndex: make(map[string]int, len(header)),
		index:       make(map[string]int),
	}

	for i, h := range header {
		col := NormalizeColumn(h)
		if col == "" {
			return fail(headerLine, fmt.Errorf("%w at position %d", ErrEmptyColumn, i+1))
		}
		folded := foldColumn(col)
		if _, dup := t.columnIndex[folded]; dup {
			return fail(headerLine, fmt.Errorf("%w %q", ErrDuplicateColumn, col))
		}
		t.Columns[i] = col
		t.columnIndex[folded] = i
	}

	keyIdx := 0
	if opts.KeyColumn != "" {
		idx, ok := t.ColumnIndex(opts.KeyColumn)
		if !ok {
			return fail(headerLine, fmt.Errorf("%w %q (key column)", ErrUnknownColumn, opts.KeyColumn))
		}
		keyIdx = idx
	}
	t.KeyColumn = t.Columns[keyIdx]

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(parseErrorLine(err), err)
		}
		line, _ := reader.FieldPos(0)

		if isBlank(record) {
			continue
		}
		if len(record) != len(t.Columns) {
			return fail(line, fmt.Errorf("%w: %d fields, expected %d", ErrRowWidth, len(record), len(t.Columns)))
		}

		key := strings.TrimSpace(record[keyIdx])
		if key != "" && opts.NormalizeKey != nil {
			key = opts.NormalizeKey(key)
		}
		if key == "" {
			return fail(line, fmt.Errorf("%w in column %q", ErrEmptyKey, t.KeyColumn))
		}
		if prev, dup := t.index[key]; dup {
			return fail(line, fmt.Errorf("%w %q (first seen on line %d)", ErrDuplicateKey, key, t.rows[prev].Line))
		}

		t.index[key] = len(t.rows)
		t.rows = append(t.rows, Row{Line: line, Key: key, Values: record})
	}

	if len(t.rows) == 0 {
		return fail(0, ErrNoRows)
	}
	return t, nil
}

// ColumnIndex finds a column by name, ignoring case and surrounding whitespace.
func (t *Table) ColumnIndex(name string) (int, bool) {
	idx, ok := t.columnIndex[foldColumn(NormalizeColumn(name))]
	return idx, ok
}

// Lookup returns the row indexed under key.
func (t *Table) Lookup(key string) (*Row, bool) {
	idx, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return &t.rows[idx], true
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// NormalizeColumn trims a column name and puts it in Unicode NFC form.
func NormalizeColumn(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// foldColumn returns the case-insensitive comparison form of a normalized name.
func foldColumn(name string) string {
	return cases.Fold().String(name)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}

// ParseDelimiter converts a one-character option into a rune. Empty means def.
func ParseDelimiter(s string, def rune) (rune, error) {
	if s == "" {
		return def, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid delimiter %q: must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
