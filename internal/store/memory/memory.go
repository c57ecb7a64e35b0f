// Package memory implements store.Store in process memory. It backs the
// server when no database is configured and serves as the fake store in tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/store"
)

// Store is an in-memory store.Store. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	posts  map[int64]*model.Post
	meta   []*model.MetaEntry
	terms  []*model.Term
	rels   map[int64][]int64 // post id -> term ids, in assignment order
	events []*model.Event

	nextPostID  int64
	nextMetaID  int64
	nextTermID  int64
	nextEventID int64

	now func() time.Time
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		posts: make(map[int64]*model.Post),
		rels:  make(map[int64][]int64),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) CreatePost(_ context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPostID++
	post.ID = s.nextPostID
	now := s.now()
	post.CreatedAt = now
	post.UpdatedAt = now
	clone := *post
	clone.Meta, clone.Terms = nil, nil
	s.posts[post.ID] = &clone
	return nil
}

func (s *Store) GetPost(_ context.Context, id int64) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *Store) ListPosts(_ context.Context, filter model.PostFilter) ([]*model.Post, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*model.Post
	for _, p := range s.posts {
		if len(filter.Type) > 0 && !slices.Contains(filter.Type, p.Type) {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, p.Status) {
			continue
		}
		if filter.ParentID != 0 && p.ParentID != filter.ParentID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(filter.Search)) {
			continue
		}
		clone := *p
		result = append(result, &clone)
	}

	sortPosts(result, filter.Sort)

	total := len(result)
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			result = nil
		} else {
			result = result[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, total, nil
}

// sortPosts mirrors the postgres ORDER BY handling; ties break on id.
func sortPosts(posts []*model.Post, order string) {
	desc := true
	col := "created_at"
	if order != "" {
		desc = strings.HasPrefix(order, "-")
		col = strings.TrimPrefix(order, "-")
	}
	less := func(a, b *model.Post) int {
		var c int
		switch col {
		case "title":
			c = strings.Compare(a.Title, b.Title)
		case "updated_at":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case "status":
			c = strings.Compare(string(a.Status), string(b.Status))
		case "type":
			c = strings.Compare(string(a.Type), string(b.Type))
		case "id":
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			switch {
			case a.ID < b.ID:
				c = -1
			case a.ID > b.ID:
				c = 1
			}
		}
		return c
	}
	sort.SliceStable(posts, func(i, j int) bool {
		c := less(posts[i], posts[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func (s *Store) UpdatePost(_ context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.posts[post.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = post.Status
	existing.Name = post.Name
	existing.Title = post.Title
	existing.Content = post.Content
	existing.Excerpt = post.Excerpt
	existing.Author = post.Author
	existing.UpdatedAt = s.now()
	post.UpdatedAt = existing.UpdatedAt
	return nil
}

// DeletePost removes the post, its revisions, and their meta and term
// assignments, matching the cascading foreign keys of the SQL schema.
func (s *Store) DeletePost(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return store.ErrNotFound
	}
	doomed := map[int64]bool{id: true}
	for pid, p := range s.posts {
		if p.ParentID == id {
			doomed[pid] = true
		}
	}
	for pid := range doomed {
		delete(s.posts, pid)
		delete(s.rels, pid)
	}
	s.meta = slices.DeleteFunc(s.meta, func(e *model.MetaEntry) bool { return doomed[e.PostID] })
	return nil
}

func (s *Store) AddMeta(_ context.Context, postID int64, key, value string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return 0, store.ErrNotFound
	}
	s.nextMetaID++
	s.meta = append(s.meta, &model.MetaEntry{ID: s.nextMetaID, PostID: postID, Key: key, Value: value})
	return s.nextMetaID, nil
}

func (s *Store) GetMeta(_ context.Context, postID int64) ([]*model.MetaEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.MetaEntry
	for _, e := range s.meta {
		if e.PostID == postID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *Store) GetMetaValues(_ context.Context, postID int64, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.meta {
		if e.PostID == postID && e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out, nil
}

func (s *Store) DeleteMeta(_ context.Context, postID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = slices.DeleteFunc(s.meta, func(e *model.MetaEntry) bool {
		return e.PostID == postID && e.Key == key
	})
	return nil
}

// GetObjectTerms returns the post's terms in the given taxonomies ordered by
// taxonomy, then name.
func (s *Store) GetObjectTerms(_ context.Context, postID int64, taxonomies []string) ([]*model.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(taxonomies) == 0 {
		return nil, nil
	}
	var out []*model.Term
	for _, termID := range s.rels[postID] {
		t := s.termByID(termID)
		if t == nil || !slices.Contains(taxonomies, t.Taxonomy) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Taxonomy != out[j].Taxonomy {
			return out[i].Taxonomy < out[j].Taxonomy
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) SetObjectTerms(_ context.Context, postID int64, taxonomy string, slugs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return store.ErrNotFound
	}
	kept := slices.DeleteFunc(slices.Clone(s.rels[postID]), func(termID int64) bool {
		t := s.termByID(termID)
		return t != nil && t.Taxonomy == taxonomy
	})
	for _, slug := range slugs {
		t := s.termBySlug(taxonomy, slug)
		if t == nil {
			s.nextTermID++
			t = &model.Term{ID: s.nextTermID, Taxonomy: taxonomy, Slug: slug, Name: slug}
			s.terms = append(s.terms, t)
		}
		if !slices.Contains(kept, t.ID) {
			kept = append(kept, t.ID)
		}
	}
	s.rels[postID] = kept
	return nil
}

// RenameTerm sets the display name of an existing term. Terms created by
// SetObjectTerms are named after their slug until renamed.
func (s *Store) RenameTerm(taxonomy, slug, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.termBySlug(taxonomy, slug); t != nil {
		t.Name = name
	}
}

func (s *Store) termByID(id int64) *model.Term {
	for _, t := range s.terms {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Store) termBySlug(taxonomy, slug string) *model.Term {
	for _, t := range s.terms {
		if t.Taxonomy == taxonomy && t.Slug == slug {
			return t
		}
	}
	return nil
}

func (s *Store) RecordEvent(_ context.Context, event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	event.ID = s.nextEventID
	event.CreatedAt = s.now()
	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *Store) GetEvents(_ context.Context, postID int64) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.PostID == postID {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// RunInTransaction runs fn against the same store. The memory store offers
// no rollback; each method is atomic on its own.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
