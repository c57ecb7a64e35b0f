package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// ErrNotFound is returned when a requested post does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for posts, their meta, their
// taxonomy terms, and the event log.
type Store interface {
	// Post CRUD
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	ListPosts(ctx context.Context, filter model.PostFilter) ([]*model.Post, int, error) // returns posts, total count, error
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id int64) error

	// Meta. Values are stored in their serialized string form. AddMeta does
	// not check the type or status of the target post, so it may write to
	// revisions.
	AddMeta(ctx context.Context, postID int64, key, value string) (int64, error)
	GetMeta(ctx context.Context, postID int64) ([]*model.MetaEntry, error)
	GetMetaValues(ctx context.Context, postID int64, key string) ([]string, error)
	DeleteMeta(ctx context.Context, postID int64, key string) error

	// Terms. SetObjectTerms replaces the post's assignments in one taxonomy,
	// creating missing terms by slug.
	GetObjectTerms(ctx context.Context, postID int64, taxonomies []string) ([]*model.Term, error)
	SetObjectTerms(ctx context.Context, postID int64, taxonomy string, slugs []string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, postID int64) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
