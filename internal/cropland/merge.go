package cropland

import (
	"strconv"

	"cyclesdojo/internal/aggregate"
	"cyclesdojo/internal/logging"
	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

// MergeStats reports the row counts of one merge step. Rows lost to the
// inner join are expected and reported here rather than as an error.
type MergeStats struct {
	Crop       string
	Before     int
	After      int
	References int
	// Dropped counts cropland rows without a reference.
	Dropped int
	// Unmatched counts references without a cropland row.
	Unmatched int
}

// Mismatch reports whether the join lost anything on either side.
func (s MergeStats) Mismatch() bool {
	return s.Dropped > 0 || s.Unmatched > 0
}

// ColumnNames returns the reference columns a crop contributes.
func ColumnNames(crop string) (pd, yield string) {
	c := table.NormalizeColumn(crop)
	return c + "_pd", c + "_grain_yield"
}

// Merge inner-joins refs onto the table on the full spatial key and sets the
// crop's reference day and yield columns, replacing columns whose
// normalized name matches. The receiver is left unchanged; row order is preserved.
func (t *Table) Merge(crop string, refs aggregate.Results) (*Table, MergeStats) {
	pdCol, yieldCol := ColumnNames(crop)

	header := append([]string{}, t.Header...)
	pdIdx := columnOrAppend(&header, pdCol)
	yieldIdx := columnOrAppend(&header, yieldCol)

	stats := MergeStats{Crop: crop, Before: len(t.Rows), References: len(refs)}
	matched := make(map[spatial.Key]struct{}, len(refs))
	rows := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		ref, ok := refs[r.Key]
		if !ok {
			stats.Dropped++
			continue
		}
		matched[r.Key] = struct{}{}
		values := make([]string, len(header))
		copy(values, r.Values)
		values[pdIdx] = strconv.Itoa(ref.Day)
		values[yieldIdx] = strconv.FormatFloat(ref.Yield, 'g', -1, 64)
		rows = append(rows, Row{Key: r.Key, Values: values})
	}
	stats.After = len(rows)
	stats.Unmatched = len(refs) - len(matched)

	logging.Merge("%s: %d rows before, %d after, %d references, %d rows dropped, %d references unmatched",
		crop, stats.Before, stats.After, stats.References, stats.Dropped, stats.Unmatched)
	return New(header, rows), stats
}

func columnOrAppend(header *[]string, name string) int {
	for i, h := range *header {
		if table.NormalizeColumn(h) == name {
			return i
		}
	}
	*header = append(*header, name)
	return len(*header) - 1
}
