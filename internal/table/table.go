// Package table loads delimited tables: the simulator's whitespace-separated
// season/summary output and the CSV result tables written by this tool.
package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"cyclesdojo/internal/logging"
)

// Format selects the field splitter.
type Format int

const (
	// FormatWhitespace splits tab-delimited lines on tabs and any other line
	// on runs of whitespace.
	FormatWhitespace Format = iota
	// FormatCSV parses RFC 4180 comma separated values.
	FormatCSV
)

// DateLayout is the layout of the simulator's date column.
const DateLayout = "2006-01-02"

// Options controls how a table is read.
type Options struct {
	Format Format
	// SkipUnits discards the line following the header.
	SkipUnits bool
	// DateColumn is parsed with DateLayout when present. Empty disables parsing.
	DateColumn string
	DateLayout string
}

// SimulatorOutput returns the options for a Cycles season or summary file.
func SimulatorOutput() Options {
	return Options{Format: FormatWhitespace, SkipUnits: true, DateColumn: "date", DateLayout: DateLayout}
}

// ResultCSV returns the options for a result table written by this tool.
func ResultCSV() Options {
	return Options{Format: FormatCSV, DateColumn: "date", DateLayout: DateLayout}
}

// ParseError reports a malformed table.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

// Table is a loaded table with normalized column names.
type Table struct {
	Name    string
	Columns []string
	// Header is the header line as read, aligned with Columns.
	Header []string
	Rows   [][]string
	// Dates holds the parsed date column, aligned with Rows. Nil when the
	// table has no date column.
	Dates []time.Time

	index map[string]int
}

// NormalizeColumn trims, lowercases and replaces internal spaces with underscores.
func NormalizeColumn(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// LoadFile opens and loads the table at path.
func LoadFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()
	return Load(f, path, opts)
}

// Load reads a table from r. name is used in errors.
func Load(r io.Reader, name string, opts Options) (*Table, error) {
	timer := logging.StartTimer(logging.CategoryLoader, "load "+name)
	defer timer.Stop()

	var (
		records [][]string
		lines   []int
		err     error
	)
	switch opts.Format {
	case FormatCSV:
		records, lines, err = readCSV(r, name)
	default:
		records, lines, err = readWhitespace(r, name)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ParseError{Path: name, Reason: "missing header line"}
	}

	t := &Table{Name: name, index: make(map[string]int)}
	t.Header = records[0]
	for i, col := range records[0] {
		col = NormalizeColumn(col)
		t.Columns = append(t.Columns, col)
		if _, dup := t.index[col]; !dup {
			t.index[col] = i
		}
	}

	body := records[1:]
	bodyLines := lines[1:]
	if opts.SkipUnits && len(body) > 0 {
		body = body[1:]
		bodyLines = bodyLines[1:]
	}

	for i, rec := range body {
		if len(rec) != len(t.Columns) {
			return nil, &ParseError{
				Path:   name,
				Line:   bodyLines[i],
				Reason: fmt.Sprintf("expected %d fields, got %d", len(t.Columns), len(rec)),
			}
		}
		t.Rows = append(t.Rows, rec)
	}

	if opts.DateColumn != "" {
		if err := t.parseDates(opts, bodyLines); err != nil {
			return nil, err
		}
	}

	logging.LoaderDebug("Loaded %s: %d columns, %d rows", name, len(t.Columns), len(t.Rows))
	return t, nil
}

func (t *Table) parseDates(opts Options, lines []int) error {
	col, ok := t.index[NormalizeColumn(opts.DateColumn)]
	if !ok {
		return nil
	}
	layout := opts.DateLayout
	if layout == "" {
		layout = DateLayout
	}
	t.Dates = make([]time.Time, len(t.Rows))
	for i, row := range t.Rows {
		d, err := time.Parse(layout, strings.TrimSpace(row[col]))
		if err != nil {
			return &ParseError{Path: t.Name, Line: lines[i], Reason: fmt.Sprintf("bad date %q", row[col])}
		}
		t.Dates[i] = d
	}
	return nil
}

func readWhitespace(r io.Reader, name string) ([][]string, []int, error) {
	var (
		records [][]string
		lines   []int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		fields := splitFields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		records = append(records, fields)
		lines = append(lines, n)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	return records, lines, nil
}

// splitFields splits a tab-delimited line on tabs, so header names like
// "GRAIN YIELD" stay whole, and any other line on runs of whitespace.
// Empty leading and trailing fields left by padding tabs are dropped.
func splitFields(line string) []string {
	if !strings.Contains(line, "\t") {
		return strings.Fields(line)
	}
	parts := strings.Split(line, "\t")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func readCSV(r io.Reader, name string) ([][]string, []int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, nil, &ParseError{Path: name, Line: perr.Line, Reason: perr.Err.Error()}
			}
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a (normalized) column.
func (t *Table) Index(col string) (int, bool) {
	i, ok := t.index[NormalizeColumn(col)]
	return i, ok
}

// Has reports whether the table has the column.
func (t *Table) Has(col string) bool {
	_, ok := t.Index(col)
	return ok
}

// String returns the trimmed cell at row i, or "" when the column is absent.
func (t *Table) String(i int, col string) string {
	c, ok := t.Index(col)
	if !ok {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][c])
}

// Float parses the cell at row i. ok is false for absent columns, empty
// cells, NaN and unparseable values.
func (t *Table) Float(i int, col string) (float64, bool) {
	s := t.String(i, col)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Date returns the parsed date for row i.
func (t *Table) Date(i int) (time.Time, bool) {
	if t.Dates == nil {
		return time.Time{}, false
	}
	return t.Dates[i], true
}
