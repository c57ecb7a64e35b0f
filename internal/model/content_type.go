package model

import "slices"

// ContentType describes a registered post type and the features it supports.
type ContentType struct {
	Name       PostType `json:"name" toml:"name" yaml:"name"`
	Label      string   `json:"label,omitempty" toml:"label" yaml:"label"`
	Revisions  bool     `json:"revisions" toml:"revisions" yaml:"revisions"`
	Taxonomies []string `json:"taxonomies,omitempty" toml:"taxonomies" yaml:"taxonomies"`
}

// HasTaxonomy reports whether the taxonomy is associated with the content type.
func (c *ContentType) HasTaxonomy(taxonomy string) bool {
	return slices.Contains(c.Taxonomies, taxonomy)
}
