// Package cropland holds the master cropland table, one row per spatial
// unit, and the resource index of simulated points.
package cropland

import (
	"fmt"

	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

// Row is one spatial unit with its non-key column values.
type Row struct {
	Key    spatial.Key
	Values []string
}

// Table is the cropland table. Header lists the non-key columns as read;
// the four key columns always come first when written. Column lookups
// match the normalized name.
type Table struct {
	Header []string
	Rows   []Row

	columns map[string]int
	keys    map[spatial.Key]int
}

// New builds a table from a header and rows. Row values shorter than the
// header are padded with empty cells.
func New(header []string, rows []Row) *Table {
	t := &Table{Header: header, Rows: rows}
	for i := range t.Rows {
		for len(t.Rows[i].Values) < len(header) {
			t.Rows[i].Values = append(t.Rows[i].Values, "")
		}
	}
	t.buildIndex()
	return t
}

func (t *Table) buildIndex() {
	t.columns = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := table.NormalizeColumn(h)
		if _, dup := t.columns[name]; !dup {
			t.columns[name] = i
		}
	}
	t.keys = make(map[spatial.Key]int, len(t.Rows))
	for i, r := range t.Rows {
		if _, dup := t.keys[r.Key]; !dup {
			t.keys[r.Key] = i
		}
	}
}

// LoadTable reads a cropland CSV. Blank admin levels become spatial.Missing.
func LoadTable(path string) (*Table, error) {
	src, err := table.LoadFile(path, table.Options{Format: table.FormatCSV})
	if err != nil {
		return nil, fmt.Errorf("load cropland: %w", err)
	}
	keyCols := make([]int, len(spatial.Columns))
	for i, col := range spatial.Columns {
		idx, ok := src.Index(col)
		if !ok {
			return nil, &table.ParseError{Path: path, Reason: fmt.Sprintf("missing key column %q", col)}
		}
		keyCols[i] = idx
	}
	isKey := make(map[int]bool, len(keyCols))
	for _, c := range keyCols {
		isKey[c] = true
	}

	var header []string
	var extra []int
	for i, col := range src.Header {
		if isKey[i] {
			continue
		}
		header = append(header, col)
		extra = append(extra, i)
	}

	rows := make([]Row, 0, src.Len())
	fields := make([]string, len(keyCols))
	for _, rec := range src.Rows {
		for i, c := range keyCols {
			fields[i] = rec[c]
		}
		key, err := spatial.FromFields(fields)
		if err != nil {
			return nil, &table.ParseError{Path: path, Reason: err.Error()}
		}
		values := make([]string, len(extra))
		for j, c := range extra {
			values[j] = rec[c]
		}
		rows = append(rows, Row{Key: key, Values: values})
	}
	return New(header, rows), nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the position of a column in Header.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.columns[table.NormalizeColumn(name)]
	return i, ok
}

// Lookup returns the first row with the given key.
func (t *Table) Lookup(key spatial.Key) (Row, bool) {
	i, ok := t.keys[key]
	if !ok {
		return Row{}, false
	}
	return t.Rows[i], true
}

// Value returns the cell of column name in the row keyed by key.
func (t *Table) Value(key spatial.Key, name string) (string, bool) {
	row, ok := t.Lookup(key)
	if !ok {
		return "", false
	}
	c, ok := t.Column(name)
	if !ok {
		return "", false
	}
	return row.Values[c], true
}

// Records renders the table with the key columns first and the sentinel
// turned back into empty fields.
func (t *Table) Records() (header []string, rows [][]string) {
	header = append(append([]string{}, spatial.Columns...), t.Header...)
	rows = make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rows = append(rows, append(r.Key.Fields(), r.Values...))
	}
	return header, rows
}

// Write stores the table at path atomically.
func (t *Table) Write(path string) error {
	header, rows := t.Records()
	return table.WriteCSV(path, header, rows)
}
