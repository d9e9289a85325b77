package cropland

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesdojo/internal/aggregate"
	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

const croplandCSV = `country,admin1,admin2,admin3,maize_fractional_area,maize_pd,maize_grain_yield
Kenya,Nairobi,Central,,0.25,100,2.5
Kenya,Rift,Nakuru,Njoro,0.5,120,3
Somalia,Bay,Baidoa,,0.1,90,1.2
`

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func loadFixture(t *testing.T) *Table {
	t.Helper()
	tbl, err := LoadTable(writeFile(t, "cropland.csv", croplandCSV))
	require.NoError(t, err)
	return tbl
}

var (
	nairobi = spatial.NewKey("Kenya", "Nairobi", "Central", "")
	njoro   = spatial.NewKey("Kenya", "Rift", "Nakuru", "Njoro")
	baidoa  = spatial.NewKey("Somalia", "Bay", "Baidoa", "")
)

func TestLoadTable(t *testing.T) {
	tbl := loadFixture(t)
	assert.Equal(t, []string{"maize_fractional_area", "maize_pd", "maize_grain_yield"}, tbl.Header)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, spatial.Missing, tbl.Rows[0].Key.Admin3)

	row, ok := tbl.Lookup(njoro)
	require.True(t, ok)
	assert.Equal(t, []string{"0.5", "120", "3"}, row.Values)
}

func TestLoadTable_MissingKeyColumn(t *testing.T) {
	_, err := LoadTable(writeFile(t, "bad.csv", "country,admin1,admin2\nKenya,A,B\n"))
	var perr *table.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "admin3")
}

func TestSentinelRoundTrip(t *testing.T) {
	in := writeFile(t, "cropland.csv", croplandCSV)
	tbl, err := LoadTable(in)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, tbl.Write(out))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, croplandCSV, string(got))

	// Loading the written table again is idempotent.
	again, err := LoadTable(out)
	require.NoError(t, err)
	if diff := cmp.Diff(tbl.Rows, again.Rows); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestMerge_AddsColumnsAndKeepsOrder(t *testing.T) {
	tbl := loadFixture(t)
	refs := aggregate.Results{
		baidoa:  {Day: 74, Yield: 1.75},
		nairobi: {Day: 105, Yield: 8},
	}

	merged, stats := tbl.Merge("Sorghum", refs)

	assert.Equal(t, MergeStats{Crop: "Sorghum", Before: 3, After: 2, References: 2, Dropped: 1}, stats)
	assert.True(t, stats.Mismatch())
	assert.Equal(t, append(append([]string{}, tbl.Header...), "sorghum_pd", "sorghum_grain_yield"), merged.Header)

	want := []Row{
		{Key: nairobi, Values: []string{"0.25", "100", "2.5", "105", "8"}},
		{Key: baidoa, Values: []string{"0.1", "90", "1.2", "74", "1.75"}},
	}
	if diff := cmp.Diff(want, merged.Rows); diff != "" {
		t.Errorf("merged rows (-want +got):\n%s", diff)
	}

	// The receiver is untouched.
	assert.Equal(t, 3, tbl.Len())
	assert.Len(t, tbl.Header, 3)
}

func TestMerge_ReplacesExistingColumns(t *testing.T) {
	tbl := loadFixture(t)
	merged, _ := tbl.Merge("Maize", aggregate.Results{njoro: {Day: 196, Yield: 4.5}})

	assert.Equal(t, tbl.Header, merged.Header)
	require.Equal(t, 1, merged.Len())
	assert.Equal(t, []string{"0.5", "196", "4.5"}, merged.Rows[0].Values)
	v, ok := tbl.Value(njoro, "maize_pd")
	require.True(t, ok)
	assert.Equal(t, "120", v)
}

func TestMerge_KeepsOriginalHeaderText(t *testing.T) {
	in := "country,Admin1,admin2,admin3,Maize Fractional Area,AreaHa,Maize_PD,Maize Grain Yield\n" +
		"Kenya,Rift, Nakuru,Njoro, 0.5, 1200,90,2\n"
	tbl, err := LoadTable(writeFile(t, "cropland.csv", in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Maize Fractional Area", "AreaHa", "Maize_PD", "Maize Grain Yield"}, tbl.Header)
	assert.Equal(t, Agronomy{PlantingDay: 90, GrainYield: 2, FractionalArea: 0.5}, tbl.Agronomy(njoro, "Maize"))

	merged, _ := tbl.Merge("Maize", aggregate.Results{njoro: {Day: 105, Yield: 8}})
	assert.Equal(t, tbl.Header, merged.Header, "existing reference columns are replaced in place")

	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, merged.Write(out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	// Non-key cells keep their leading spaces; the writer quotes them.
	assert.Equal(t,
		"country,admin1,admin2,admin3,Maize Fractional Area,AreaHa,Maize_PD,Maize Grain Yield\n"+
			"Kenya,Rift,Nakuru,Njoro,\" 0.5\",\" 1200\",105,8\n",
		string(got))
}

func TestMerge_MonotonicNarrowing(t *testing.T) {
	tbl := loadFixture(t)
	perCrop := []struct {
		crop string
		refs aggregate.Results
	}{
		{"maize", aggregate.Results{nairobi: {Day: 15}, njoro: {Day: 46}, baidoa: {Day: 74}}},
		{"sorghum", aggregate.Results{nairobi: {Day: 105}, baidoa: {Day: 135}}},
		{"millet", aggregate.Results{baidoa: {Day: 166}, spatial.NewKey("Uganda", "X", "", ""): {Day: 15}}},
	}

	prev := tbl.Len()
	minRefs := prev
	cur := tbl
	for _, step := range perCrop {
		var stats MergeStats
		cur, stats = cur.Merge(step.crop, step.refs)
		assert.LessOrEqual(t, stats.After, prev, "merge %s grew the table", step.crop)
		prev = stats.After
		if len(step.refs) < minRefs {
			minRefs = len(step.refs)
		}
	}
	assert.LessOrEqual(t, cur.Len(), minRefs)

	keys := make([]spatial.Key, 0, cur.Len())
	for _, r := range cur.Rows {
		keys = append(keys, r.Key)
	}
	if diff := cmp.Diff([]spatial.Key{baidoa}, keys, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("surviving keys (-want +got):\n%s", diff)
	}
}

func TestAgronomy(t *testing.T) {
	tbl := loadFixture(t)

	assert.Equal(t, Agronomy{PlantingDay: 120, GrainYield: 3, FractionalArea: 0.5}, tbl.Agronomy(njoro, "Maize"))

	def := Agronomy{PlantingDay: DefaultPlantingDay, GrainYield: DefaultGrainYield, FractionalArea: DefaultFractionalArea}
	assert.Equal(t, def, tbl.Agronomy(njoro, "Sorghum"), "absent crop columns")
	assert.Equal(t, def, tbl.Agronomy(spatial.NewKey("Uganda", "X", "", ""), "Maize"), "absent row")
}

func TestLoadResources(t *testing.T) {
	path := writeFile(t, "resources.csv", `country,admin1,admin2,admin3,filename
Kenya,Nairobi,Central,,kenya_1.soil_weather
Somalia,Bay,Baidoa,,somalia_1.soil_weather
Kenya,Rift,Nakuru,Njoro,kenya_2.soil_weather
Kenya,Rift,Nakuru,Molo,
`)
	all, err := LoadResources(path)
	require.NoError(t, err)
	require.Len(t, all, 3)

	kenya := ResourcesFor(all, "Kenya")
	assert.Equal(t, []Resource{
		{Key: nairobi, Filename: "kenya_1.soil_weather"},
		{Key: njoro, Filename: "kenya_2.soil_weather"},
	}, kenya)
	assert.Empty(t, ResourcesFor(all, "Eritrea"))
}
