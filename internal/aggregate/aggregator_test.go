package aggregate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cyclesdojo/internal/selector"
	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const resultHeader = "date,country,admin1,admin2,admin3,grain_yield\n"

// writeDay writes one candidate-day result table. rows maps "admin1/admin2"
// (admin3 left empty) to the per-year yields.
func writeDay(t *testing.T, dir, country string, day int, rows map[string][]float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(resultHeader)
	for unit, yields := range rows {
		parts := strings.SplitN(unit, "/", 2)
		for y, v := range yields {
			fmt.Fprintf(&b, "%d-06-01,%s,%s,%s,,%g\n", 2001+y, country, parts[0], parts[1], v)
		}
	}
	// A row of another country must never leak into the means.
	fmt.Fprintf(&b, "2001-06-01,Elsewhere,%s,x,,1000\n", "A")
	path := filepath.Join(dir, fmt.Sprintf("%s.maize.%d.csv", country, day))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

var curve = []float64{1, 2, 4, 8, 4, 2, 1, 0.5, 0.2, 0.1, 0.2, 0.5}

func dayFiles(t *testing.T, dir string, rowsFor func(i int) map[string][]float64) []DayFile {
	files := make([]DayFile, 0, selector.Period)
	for i, d := range selector.CandidateDays {
		files = append(files, DayFile{Day: d, Path: writeDay(t, dir, "Kenya", d, rowsFor(i))})
	}
	return files
}

func TestAggregate_SelectsPeakAndReportsRawMean(t *testing.T) {
	dir := t.TempDir()
	files := dayFiles(t, dir, func(i int) map[string][]float64 {
		// Two years around the curve value so the multi-year mean is the curve.
		return map[string][]float64{"Nairobi/Central": {curve[i] - 0.5, curve[i] + 0.5}}
	})

	agg := New(Options{HalfWindow: selector.DefaultHalfWindow, Workers: 3})
	results, stats, err := agg.Aggregate(context.Background(), "Kenya", "maize", files)
	require.NoError(t, err)

	key := spatial.NewKey("Kenya", "Nairobi", "Central", "")
	require.Contains(t, results, key)
	assert.Equal(t, 105, results[key].Day)
	assert.InDelta(t, 8.0, results[key].Yield, 1e-12)
	assert.Equal(t, 1, stats.Joined)
	assert.Zero(t, stats.Dropped)
	assert.Len(t, stats.KeysPerDay, selector.Period)
}

func TestAggregate_InnerJoinDropsIncompleteUnits(t *testing.T) {
	dir := t.TempDir()
	files := dayFiles(t, dir, func(i int) map[string][]float64 {
		rows := map[string][]float64{"A/a": {curve[i]}}
		if i != 6 {
			rows["B/b"] = []float64{curve[i]}
		}
		return rows
	})

	results, stats, err := New(Options{HalfWindow: 2}).Aggregate(context.Background(), "Kenya", "maize", files)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Contains(t, results, spatial.NewKey("Kenya", "A", "a", ""))
	assert.NotContains(t, results, spatial.NewKey("Kenya", "B", "b", ""))
	assert.Equal(t, 1, stats.Joined)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.KeysPerDay[selector.CandidateDays[6]])
}

func TestAggregate_FailedDayYieldsNothing(t *testing.T) {
	dir := t.TempDir()
	files := dayFiles(t, dir, func(i int) map[string][]float64 {
		return map[string][]float64{"A/a": {curve[i]}}
	})
	files[4].Path = filepath.Join(dir, "missing.csv")

	results, stats, err := New(Options{HalfWindow: 2}).Aggregate(context.Background(), "Kenya", "maize", files)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, results)
	assert.Equal(t, []int{selector.CandidateDays[4]}, stats.FailedDays)
}

func TestAggregate_WrongFileCount(t *testing.T) {
	_, _, err := New(Options{}).Aggregate(context.Background(), "Kenya", "maize", make([]DayFile, 11))
	var inv *selector.InvalidInputError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 11, inv.Got)
}

func TestAggregate_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	files := dayFiles(t, dir, func(i int) map[string][]float64 {
		return map[string][]float64{"A/a": {curve[i]}}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(Options{Workers: 1}).Aggregate(ctx, "Kenya", "maize", files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMeanByKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "day.csv")
	data := resultHeader +
		"2001-06-01,Kenya,A,a,,2\n" +
		"2002-06-01,Kenya,A,a,,4\n" +
		"2003-06-01,Kenya,A,a,,NaN\n" +
		"2001-06-01,Kenya,B,,,3\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	means, err := MeanByKey(path, "Kenya", DefaultMetric)
	require.NoError(t, err)
	assert.Equal(t, map[spatial.Key]float64{
		spatial.NewKey("Kenya", "A", "a", ""): 3,
		spatial.NewKey("Kenya", "B", "", ""):  3,
	}, means)
}

func TestMeanByKey_MissingMetric(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "day.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,country,admin1,admin2,admin3\n"), 0644))

	_, err := MeanByKey(path, "Kenya", DefaultMetric)
	var perr *table.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "grain_yield")
}

func TestResultsUnion(t *testing.T) {
	a := Results{spatial.NewKey("Kenya", "A", "", ""): {Day: 15, Yield: 1}}
	b := Results{spatial.NewKey("Somalia", "A", "", ""): {Day: 46, Yield: 2}}
	u := a.Union(b)
	assert.Len(t, u, 2)
	assert.Equal(t, []spatial.Key{
		spatial.NewKey("Kenya", "A", "", ""),
		spatial.NewKey("Somalia", "A", "", ""),
	}, u.Keys())
}
