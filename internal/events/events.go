package events

import (
	"context"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// Event topic constants
const (
	TopicPostCreated      = "metarev.post.created"
	TopicPostUpdated      = "metarev.post.updated"
	TopicPostDeleted      = "metarev.post.deleted"
	TopicRevisionCreated  = "metarev.revision.created"
	TopicRevisionRestored = "metarev.revision.restored"
	TopicFieldRegistered  = "metarev.field.registered"
)

// Topics lists every topic, for subscribers that filter by name.
var Topics = []string{
	TopicPostCreated,
	TopicPostUpdated,
	TopicPostDeleted,
	TopicRevisionCreated,
	TopicRevisionRestored,
	TopicFieldRegistered,
}

// Event types

type PostCreated struct {
	Post *model.Post `json:"post"`
}

type PostUpdated struct {
	Post    *model.Post    `json:"post"`
	Changes map[string]any `json:"changes"` // field name -> new value
	Screen  string         `json:"screen,omitempty"`
}

type PostDeleted struct {
	PostID int64 `json:"post_id"`
}

type RevisionCreated struct {
	PostID     int64    `json:"post_id"`
	RevisionID int64    `json:"revision_id"`
	MetaKeys   []string `json:"meta_keys,omitempty"`  // tracked keys copied onto the revision
	Taxonomies []string `json:"taxonomies,omitempty"` // tracked taxonomies copied onto the revision
}

type RevisionRestored struct {
	PostID     int64    `json:"post_id"`
	RevisionID int64    `json:"revision_id"`
	MetaKeys   []string `json:"meta_keys,omitempty"`
	Taxonomies []string `json:"taxonomies,omitempty"`
}

type FieldRegistered struct {
	Field model.TrackedField `json:"field"`
}

// NATS headers carrying the event's post and actor alongside the JSON
// payload.
const (
	HeaderPostID = "Metarev-Post-Id"
	HeaderActor  = "Metarev-Actor"
)

// Publisher is the interface for emitting recorded events.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
	Close() error
}
