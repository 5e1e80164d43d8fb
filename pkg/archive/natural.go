package archive

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
}

// NaturalLess reports whether a sorts before b when digit runs compare by
// numeric value and letters ignore case, so "2.jpg" < "10.jpg". Names equal
// under that collation fall back to byte order.
func NaturalLess(c *collate.Collator, a, b string) bool {
	if r := c.CompareString(a, b); r != 0 {
		return r < 0
	}
	return a < b
}

// SortNames orders names naturally in place.
func SortNames(names []string) {
	c := newCollator()
	sort.SliceStable(names, func(i, j int) bool {
		return NaturalLess(c, names[i], names[j])
	})
}

// SortFiles orders files naturally by their path inside the archive.
func SortFiles(files []File) {
	c := newCollator()
	sort.SliceStable(files, func(i, j int) bool {
		return NaturalLess(c, files[i].Path, files[j].Path)
	})
}
