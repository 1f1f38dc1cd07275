package models

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortGyms orders gyms by name using Swedish collation, so Å, Ä and Ö
// sort after Z. Ties are broken by id.
func SortGyms(gyms []Gym) {
	c := collate.New(language.Swedish, collate.IgnoreCase)
	slices.SortStableFunc(gyms, func(a, b Gym) int {
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
