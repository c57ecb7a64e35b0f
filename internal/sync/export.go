package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// Source is what ExportJSONL reads from.
type Source interface {
	ListPosts(ctx context.Context, filter model.PostFilter) ([]*model.Post, int, error)
	// Load returns a post with its meta and terms populated.
	Load(ctx context.Context, id int64) (*model.Post, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	PostCount     int       `json:"post_count"`
	RevisionCount int       `json:"revision_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every post and then every revision as JSONL to w, each
// sorted by ID and carrying its meta and terms.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	all, _, err := src.ListPosts(ctx, model.PostFilter{Sort: "id"})
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	var posts, revisions []*model.Post
	for _, p := range all {
		loaded, err := src.Load(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("load post %d: %w", p.ID, err)
		}
		if loaded.IsRevision() != 0 {
			revisions = append(revisions, loaded)
		} else {
			posts = append(posts, loaded)
		}
	}
	byID := func(ps []*model.Post) {
		sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	}
	byID(posts)
	byID(revisions)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		PostCount:     len(posts),
		RevisionCount: len(revisions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range posts {
		if err := enc.Encode(record{Type: "post", Data: p}); err != nil {
			return fmt.Errorf("encode post %d: %w", p.ID, err)
		}
	}
	for _, r := range revisions {
		if err := enc.Encode(record{Type: "revision", Data: r}); err != nil {
			return fmt.Errorf("encode revision %d: %w", r.ID, err)
		}
	}

	return nil
}
