package model

// FieldKind distinguishes the storage a tracked field lives in.
// Kinds are extensible; "meta" and "taxonomy" are built in.
type FieldKind string

const (
	FieldKindMeta     FieldKind = "meta"
	FieldKindTaxonomy FieldKind = "taxonomy"
)

// String returns the string representation of the field kind.
func (k FieldKind) String() string {
	return string(k)
}

// TrackedField is the serializable view of a tracked field descriptor.
type TrackedField struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Kind        FieldKind `json:"kind"`
	ContentType PostType  `json:"content_type"`
	Renderer    string    `json:"renderer,omitempty"`
}
