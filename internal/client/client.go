// Package client provides a transport-agnostic interface for the metarev
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/presence"
)

// ActorHeader names the acting user on every request.
const ActorHeader = "X-Metarev-Actor"

// MetarevClient is the interface the metarev CLI commands use to talk to
// the server. It is implemented by HTTPClient.
type MetarevClient interface {
	// Content types and tracked fields
	ListTypes(ctx context.Context) ([]*TypeInfo, error)
	ListFields(ctx context.Context, postType string) ([]model.TrackedField, error)

	// Posts
	CreatePost(ctx context.Context, req *CreatePostRequest) (*model.Post, error)
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	ListPosts(ctx context.Context, req *ListPostsRequest) (*ListPostsResponse, error)
	UpdatePost(ctx context.Context, id int64, req *UpdatePostRequest) (*model.Post, error)
	DeletePost(ctx context.Context, id int64) error

	// Revisions
	ListRevisions(ctx context.Context, postID int64) ([]*model.Post, error)
	GetRevision(ctx context.Context, revisionID int64) (*RevisionScreen, error)
	DiffRevisions(ctx context.Context, left, right int64) (*RevisionScreen, error)
	RestoreRevision(ctx context.Context, postID, revisionID int64) (*model.Post, error)

	// Events
	GetEvents(ctx context.Context, postID int64) ([]*model.Event, error)
	StreamEvents(ctx context.Context, filter StreamFilter, lastID uint64, fn func(StreamEvent) error) error

	// Edit locks
	GetLocks(ctx context.Context, postID int64) ([]presence.Entry, error)
	TouchLock(ctx context.Context, postID int64) (*LockStatus, error)
	ReleaseLock(ctx context.Context, postID int64) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// TypeInfo is a content type together with its tracked fields.
type TypeInfo struct {
	model.ContentType
	Fields []model.TrackedField `json:"fields"`
}

// CreatePostRequest holds parameters for creating a post.
type CreatePostRequest struct {
	Type    string              `json:"type"`
	Status  string              `json:"status,omitempty"`
	Name    string              `json:"name,omitempty"`
	Title   string              `json:"title"`
	Content string              `json:"content"`
	Excerpt string              `json:"excerpt"`
	Author  string              `json:"author,omitempty"`
	Meta    map[string][]any    `json:"meta,omitempty"`
	Terms   map[string][]string `json:"terms,omitempty"`
}

// ListPostsRequest holds parameters for listing posts.
type ListPostsRequest struct {
	Type     []string `json:"type,omitempty"`
	Status   []string `json:"status,omitempty"`
	Search   string   `json:"search,omitempty"`
	Sort     string   `json:"sort,omitempty"`
	ParentID int64    `json:"parent_id,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// ListPostsResponse is the response from ListPosts.
type ListPostsResponse struct {
	Posts []*model.Post `json:"posts"`
	Total int           `json:"total"`
}

// UpdatePostRequest holds optional parameters for updating a post.
// Nil pointer fields mean "don't change". A present meta key or taxonomy
// replaces all of its values.
type UpdatePostRequest struct {
	Name    *string             `json:"name,omitempty"`
	Title   *string             `json:"title,omitempty"`
	Content *string             `json:"content,omitempty"`
	Excerpt *string             `json:"excerpt,omitempty"`
	Status  *string             `json:"status,omitempty"`
	Meta    map[string][]any    `json:"meta,omitempty"`
	Terms   map[string][]string `json:"terms,omitempty"`
}

// Row is one rendered field of a revision screen.
type Row struct {
	Field string `json:"field"`
	Label string `json:"label"`
	HTML  string `json:"html"`
}

// RevisionScreen is a rendered single-revision view or a comparison of two
// versions of the same post.
type RevisionScreen struct {
	Post      *model.Post `json:"post"`
	Revision  *model.Post `json:"revision,omitempty"`
	Left      *model.Post `json:"left,omitempty"`
	Right     *model.Post `json:"right,omitempty"`
	Rows      []Row       `json:"rows"`
	Identical bool        `json:"identical"`
}

// LockStatus reports who else holds an edit lock after a heartbeat.
type LockStatus struct {
	Locked bool   `json:"locked"`
	Holder string `json:"holder,omitempty"`
}
