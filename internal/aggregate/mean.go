package aggregate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

// MeanByKey loads one candidate-day result table and returns, per spatial
// key, the mean of metric over all rows (years). Rows of other countries and
// rows with a missing metric are ignored. An empty country keeps every row.
func MeanByKey(path, country, metric string) (map[spatial.Key]float64, error) {
	tbl, err := table.LoadFile(path, table.ResultCSV())
	if err != nil {
		return nil, err
	}
	for _, col := range append(append([]string{}, spatial.Columns...), metric) {
		if !tbl.Has(col) {
			return nil, &table.ParseError{Path: path, Reason: fmt.Sprintf("missing column %q", col)}
		}
	}

	samples := make(map[spatial.Key][]float64)
	for i := 0; i < tbl.Len(); i++ {
		key := spatial.NewKey(
			tbl.String(i, "country"),
			tbl.String(i, "admin1"),
			tbl.String(i, "admin2"),
			tbl.String(i, "admin3"),
		)
		if country != "" && key.Country != country {
			continue
		}
		v, ok := tbl.Float(i, metric)
		if !ok {
			continue
		}
		samples[key] = append(samples[key], v)
	}

	means := make(map[spatial.Key]float64, len(samples))
	for k, vs := range samples {
		means[k] = stat.Mean(vs, nil)
	}
	return means, nil
}
