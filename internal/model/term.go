package model

// Term is a single entry of a taxonomy (e.g. a category or a tag).
type Term struct {
	ID       int64  `json:"id"`
	Taxonomy string `json:"taxonomy"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
}

// TermNames returns the display names of terms, preserving order.
func TermNames(terms []*Term) []string {
	names := make([]string, 0, len(terms))
	for _, t := range terms {
		names = append(names, t.Name)
	}
	return names
}
