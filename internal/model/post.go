package model

import "time"

// PostType names a registered content type (e.g. "post", "page").
// The reserved type "revision" marks revision snapshots.
type PostType string

// TypeRevision is the post type of every revision snapshot.
const TypeRevision PostType = "revision"

// String returns the string representation of the post type.
func (t PostType) String() string {
	return string(t)
}

// Status represents the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "publish"
	StatusPrivate   Status = "private"
	StatusInherit   Status = "inherit" // revisions inherit their parent's status
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPrivate, StatusInherit:
		return true
	}
	return false
}

// Post is a content item or one of its revision snapshots.
type Post struct {
	ID        int64     `json:"id"`
	Type      PostType  `json:"type"`
	Status    Status    `json:"status"`
	Name      string    `json:"name,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Excerpt   string    `json:"excerpt"`
	ParentID  int64     `json:"parent_id,omitempty"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relational data -- populated by queries, not stored in the posts table.
	Meta  map[string][]any   `json:"meta,omitempty"`
	Terms map[string][]*Term `json:"terms,omitempty"`
}

// IsRevision returns the parent post id when p is a revision snapshot,
// or 0 otherwise.
func (p *Post) IsRevision() int64 {
	if p == nil || p.Type != TypeRevision {
		return 0
	}
	return p.ParentID
}

// CoreField is one of the built-in versioned text fields of a post.
type CoreField struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// CoreFields returns the fields every revision snapshot copies, in display order.
func CoreFields() []CoreField {
	return []CoreField{
		{Name: "title", Label: "Title"},
		{Name: "content", Label: "Content"},
		{Name: "excerpt", Label: "Excerpt"},
	}
}

// CoreValue returns the value of the named core field, or "" for unknown names.
func (p *Post) CoreValue(field string) string {
	switch field {
	case "title":
		return p.Title
	case "content":
		return p.Content
	case "excerpt":
		return p.Excerpt
	}
	return ""
}
