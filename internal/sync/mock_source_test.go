package sync

import (
	"context"
	"errors"
	"sort"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/store"
)

// mockSource is a minimal in-memory Source for sync tests.
type mockSource struct {
	posts map[int64]*model.Post
	meta  map[int64]map[string][]any
	terms map[int64]map[string][]*model.Term
	err   error
}

func newMockSource() *mockSource {
	return &mockSource{
		posts: make(map[int64]*model.Post),
		meta:  make(map[int64]map[string][]any),
		terms: make(map[int64]map[string][]*model.Term),
	}
}

func (m *mockSource) ListPosts(_ context.Context, _ model.PostFilter) ([]*model.Post, int, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]*model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *mockSource) Load(_ context.Context, id int64) (*model.Post, error) {
	p, ok := m.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	clone.Meta = m.meta[id]
	clone.Terms = m.terms[id]
	return &clone, nil
}

var errSourceDown = errors.New("source down")
