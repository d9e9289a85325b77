package cropland

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"cyclesdojo/internal/spatial"
	"cyclesdojo/internal/table"
)

// Resource is one simulated point: a spatial unit and its soil/weather file.
type Resource struct {
	Key      spatial.Key
	Filename string
}

// LoadResources reads the resource index CSV.
func LoadResources(path string) ([]Resource, error) {
	src, err := table.LoadFile(path, table.Options{Format: table.FormatCSV})
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	for _, col := range append(append([]string{}, spatial.Columns...), "filename") {
		if !src.Has(col) {
			return nil, &table.ParseError{Path: path, Reason: fmt.Sprintf("missing column %q", col)}
		}
	}
	out := make([]Resource, 0, src.Len())
	for i := 0; i < src.Len(); i++ {
		name := src.String(i, "filename")
		if name == "" {
			continue
		}
		out = append(out, Resource{
			Key:      spatial.NewKey(src.String(i, "country"), src.String(i, "admin1"), src.String(i, "admin2"), src.String(i, "admin3")),
			Filename: name,
		})
	}
	return out, nil
}

// ResourcesFor returns the points of one country in file order.
func ResourcesFor(all []Resource, country string) []Resource {
	var out []Resource
	for _, r := range all {
		if r.Key.Country == country {
			out = append(out, r)
		}
	}
	return out
}

// Defaults used when a unit has no agronomy columns for a crop.
const (
	DefaultPlantingDay    = 110
	DefaultGrainYield     = 1.0
	DefaultFractionalArea = 0.0
)

// Agronomy holds the per-crop columns of one cropland row.
type Agronomy struct {
	PlantingDay    int
	GrainYield     float64
	FractionalArea float64
}

// Agronomy returns the crop's planting day, reference yield and fractional
// area for key. If the row or any of the three columns is absent, all three
// defaults apply; an unparseable cell falls back to its own default.
func (t *Table) Agronomy(key spatial.Key, crop string) Agronomy {
	def := Agronomy{PlantingDay: DefaultPlantingDay, GrainYield: DefaultGrainYield, FractionalArea: DefaultFractionalArea}
	c := table.NormalizeColumn(crop)

	pd, ok1 := t.Value(key, c+"_pd")
	gy, ok2 := t.Value(key, c+"_grain_yield")
	fa, ok3 := t.Value(key, c+"_fractional_area")
	pd, gy, fa = strings.TrimSpace(pd), strings.TrimSpace(gy), strings.TrimSpace(fa)
	if !ok1 || !ok2 || !ok3 {
		return def
	}

	a := def
	if v, err := strconv.ParseFloat(pd, 64); err == nil && !math.IsNaN(v) {
		a.PlantingDay = int(v)
	}
	if v, err := strconv.ParseFloat(gy, 64); err == nil && !math.IsNaN(v) {
		a.GrainYield = v
	}
	if v, err := strconv.ParseFloat(fa, 64); err == nil && !math.IsNaN(v) {
		a.FractionalArea = v
	}
	return a
}
