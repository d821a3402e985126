package dataset

// Index maps a category to its guideline. When several guidelines share a
// category the first one in input order is kept.
type Index struct {
	byCategory map[string]Record
}

// NewIndex indexes guidelines by their Category. Guidelines without a
// string Category are skipped.
func NewIndex(guidelines []Record) *Index {
	idx := &Index{byCategory: make(map[string]Record, len(guidelines))}

	for _, g := range guidelines {
		category, ok := g.Category()
		if !ok {
			continue
		}

		if _, exists := idx.byCategory[category]; exists {
			continue
		}

		idx.byCategory[category] = g
	}

	return idx
}

// Lookup returns the guideline for category.
func (i *Index) Lookup(category string) (Record, bool) {
	g, ok := i.byCategory[category]

	return g, ok
}

// Len returns the number of indexed categories.
func (i *Index) Len() int {
	return len(i.byCategory)
}
