// Package spatial defines the four-level administrative key that identifies a
// simulated location (country, admin1, admin2, admin3).
package spatial

import (
	"fmt"
	"strings"
)

// Missing stands in for an absent admin level. Every key carries all four
// fields so joins compare complete tuples.
const Missing = "NaN"

// Columns are the key column names in table order.
var Columns = []string{"country", "admin1", "admin2", "admin3"}

// Key is a comparable four-level location identifier, safe to use as a map key.
type Key struct {
	Country string
	Admin1  string
	Admin2  string
	Admin3  string
}

// NewKey builds a key, replacing blank admin levels with Missing.
func NewKey(country, admin1, admin2, admin3 string) Key {
	return Key{
		Country: strings.TrimSpace(country),
		Admin1:  orMissing(admin1),
		Admin2:  orMissing(admin2),
		Admin3:  orMissing(admin3),
	}
}

// FromFields builds a key from a slice of exactly four fields.
func FromFields(fields []string) (Key, error) {
	if len(fields) != len(Columns) {
		return Key{}, fmt.Errorf("spatial key needs %d fields, got %d", len(Columns), len(fields))
	}
	return NewKey(fields[0], fields[1], fields[2], fields[3]), nil
}

// Fields renders the key for output, turning Missing back into empty fields.
func (k Key) Fields() []string {
	return []string{render(k.Country), render(k.Admin1), render(k.Admin2), render(k.Admin3)}
}

// String returns a slash separated form for logs.
func (k Key) String() string {
	return strings.Join([]string{k.Country, k.Admin1, k.Admin2, k.Admin3}, "/")
}

// Less orders keys lexicographically by level.
func (k Key) Less(o Key) bool {
	if k.Country != o.Country {
		return k.Country < o.Country
	}
	if k.Admin1 != o.Admin1 {
		return k.Admin1 < o.Admin1
	}
	if k.Admin2 != o.Admin2 {
		return k.Admin2 < o.Admin2
	}
	return k.Admin3 < o.Admin3
}

func orMissing(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Missing
	}
	return s
}

func render(s string) string {
	if s == Missing {
		return ""
	}
	return s
}
