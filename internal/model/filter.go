package model

// PostFilter holds criteria for querying posts.
type PostFilter struct {
	Type     []PostType `json:"type,omitempty"`
	Status   []Status   `json:"status,omitempty"`
	ParentID int64      `json:"parent_id,omitempty"` // revisions of a single post
	Search   string     `json:"search,omitempty"`    // title search
	Sort     string     `json:"sort,omitempty"`      // e.g. "-created_at", "title"; prefix "-" = descending
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
