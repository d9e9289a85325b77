package aggregate

import (
	"sort"

	"cyclesdojo/internal/spatial"
)

// Reference is the reference planting day chosen for one spatial unit and
// crop, with the raw mean yield of that day.
type Reference struct {
	Day   int
	Yield float64
}

// Results maps spatial units to their reference for one crop.
type Results map[spatial.Key]Reference

// Union adds every entry of o to r and returns r. Keys include the country,
// so per-country results never collide.
func (r Results) Union(o Results) Results {
	for k, v := range o {
		r[k] = v
	}
	return r
}

// Keys returns the keys in sorted order.
func (r Results) Keys() []spatial.Key {
	keys := make([]spatial.Key, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
