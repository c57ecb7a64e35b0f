package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/display"
	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/revision"
	"github.com/alfredjeanlab/metarev/internal/store/memory"
)

// newTestServer wires a server the way serve does, on an in-memory store,
// with color (meta) and category (taxonomy) tracked on posts.
func newTestServer() (*Server, *memory.Store, http.Handler) {
	st := memory.New()
	catalog := content.NewCatalog(content.DefaultTypes()...)
	bus := hooks.NewBus()
	rec := events.NewRecorder(st, &events.NoopPublisher{}, nil)
	svc := content.NewService(st, catalog, bus,
		content.WithRecorder(rec),
		content.WithFormSecret([]byte("test-secret")))

	reg := fields.New(catalog)
	_ = reg.Register(fields.Field{ContentType: "post", Kind: model.FieldKindMeta, Name: "color", Label: "Color"})
	_ = reg.Register(fields.Field{ContentType: "post", Kind: model.FieldKindTaxonomy, Name: "category", Label: "Categories"})

	revision.New(svc, st, reg, revision.WithRecorder(rec)).Attach(bus)
	display.New(svc, st, reg, nil).Attach(bus)

	s := New(svc, reg, rec)
	return s, st, s.NewHTTPHandler("")
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(ActorHeader, "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("expected status %d, got %d; body: %s", code, rec.Code, rec.Body.String())
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// createTestPost creates a post tracked as red / news.
func createTestPost(t *testing.T, handler http.Handler) *model.Post {
	t.Helper()
	rec := doJSON(t, handler, "POST", "/v1/posts", map[string]any{
		"type":    "post",
		"title":   "Hello",
		"content": "first draft",
		"meta":    map[string]any{"color": []any{"red"}, "untracked": []any{"x"}},
		"terms":   map[string]any{"category": []string{"news"}},
	})
	requireStatus(t, rec, http.StatusCreated)
	var post model.Post
	decodeJSON(t, rec, &post)
	return &post
}

func listRevisions(t *testing.T, handler http.Handler, postID int64) []*model.Post {
	t.Helper()
	rec := doJSON(t, handler, "GET", fmt.Sprintf("/v1/posts/%d/revisions", postID), nil)
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Revisions []*model.Post `json:"revisions"`
	}
	decodeJSON(t, rec, &resp)
	return resp.Revisions
}

func hasRow(rows []hooks.Row, field string) bool {
	for _, r := range rows {
		if r.Field == field {
			return true
		}
	}
	return false
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/health", nil)
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a request id header")
	}
}

func TestHandleListTypes(t *testing.T) {
	_, _, h := newTestServer()
	rec := doJSON(t, h, "GET", "/v1/types", nil)
	requireStatus(t, rec, http.StatusOK)

	var resp struct {
		Types []struct {
			Name   string               `json:"name"`
			Fields []model.TrackedField `json:"fields"`
		} `json:"types"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Types) != 2 || resp.Types[0].Name != "post" {
		t.Fatalf("unexpected types %+v", resp.Types)
	}
	if len(resp.Types[0].Fields) != 2 || resp.Types[0].Fields[0].Name != "color" {
		t.Fatalf("unexpected post fields %+v", resp.Types[0].Fields)
	}
	if len(resp.Types[1].Fields) != 0 {
		t.Fatalf("expected no page fields, got %+v", resp.Types[1].Fields)
	}
}

func TestHandleListFields(t *testing.T) {
	_, _, h := newTestServer()

	rec := doJSON(t, h, "GET", "/v1/types/post/fields", nil)
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Fields []model.TrackedField `json:"fields"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Fields) != 2 || resp.Fields[1].Kind != model.FieldKindTaxonomy {
		t.Fatalf("unexpected fields %+v", resp.Fields)
	}

	requireStatus(t, doJSON(t, h, "GET", "/v1/types/widget/fields", nil), http.StatusNotFound)
}

func TestHandleCreatePost(t *testing.T) {
	_, st, h := newTestServer()
	post := createTestPost(t, h)

	if post.ID == 0 || post.Author != "alice" || post.Status != model.StatusDraft {
		t.Fatalf("unexpected post %+v", post)
	}
	if got := post.Meta["color"]; len(got) != 1 || got[0] != "red" {
		t.Fatalf("expected color=red, got %v", got)
	}
	if got := post.Terms["category"]; len(got) != 1 || got[0].Slug != "news" {
		t.Fatalf("expected category=news, got %v", got)
	}

	evts, _ := st.GetEvents(context.Background(), post.ID)
	if len(evts) != 1 || evts[0].Topic != events.TopicPostCreated || evts[0].Actor != "alice" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestHandleCreatePost_Invalid(t *testing.T) {
	_, _, h := newTestServer()
	for _, tc := range []struct {
		name string
		body string
		code int
	}{
		{"BadJSON", `{`, http.StatusBadRequest},
		{"MissingType", `{"title":"x"}`, http.StatusBadRequest},
		{"BadStatus", `{"type":"post","status":"trash"}`, http.StatusBadRequest},
		{"UnknownType", `{"type":"widget"}`, http.StatusBadRequest},
		{"ForeignTaxonomy", `{"type":"page","terms":{"category":["news"]}}`, http.StatusBadRequest},
		{"EmptyMetaKey", `{"type":"post","meta":{"":["x"]}}`, http.StatusBadRequest},
		{"EmptySlug", `{"type":"post","terms":{"category":[""]}}`, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/posts", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			requireStatus(t, rec, tc.code)
		})
	}
}

func TestHandleListPosts(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{"title": "Hello again"}), http.StatusOK)

	var resp struct {
		Posts []*model.Post `json:"posts"`
		Total int           `json:"total"`
	}
	rec := doJSON(t, h, "GET", "/v1/posts", nil)
	requireStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &resp)
	if resp.Total != 1 || len(resp.Posts) != 1 || resp.Posts[0].ID != post.ID {
		t.Fatalf("expected only the live post, got %+v", resp)
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/v1/posts?parent_id=%d", post.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &resp)
	if resp.Total != 1 || resp.Posts[0].Type != model.TypeRevision {
		t.Fatalf("expected one revision, got %+v", resp)
	}

	requireStatus(t, doJSON(t, h, "GET", "/v1/posts?limit=-1", nil), http.StatusBadRequest)
}

func TestHandleGetPost(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)

	rec := doJSON(t, h, "GET", fmt.Sprintf("/v1/posts/%d", post.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	var got model.Post
	decodeJSON(t, rec, &got)
	if got.Title != "Hello" || len(got.Meta["untracked"]) != 1 {
		t.Fatalf("unexpected post %+v", got)
	}

	requireStatus(t, doJSON(t, h, "GET", "/v1/posts/999", nil), http.StatusNotFound)
	requireStatus(t, doJSON(t, h, "GET", "/v1/posts/abc", nil), http.StatusBadRequest)
}

func TestHandleUpdatePost_VersionsTrackedFields(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)

	rec := doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{
		"meta":  map[string]any{"color": []any{"blue"}},
		"terms": map[string]any{"category": []string{"sports"}},
	})
	requireStatus(t, rec, http.StatusOK)
	var updated model.Post
	decodeJSON(t, rec, &updated)
	if updated.Meta["color"][0] != "blue" {
		t.Fatalf("expected color=blue, got %v", updated.Meta["color"])
	}

	revs := listRevisions(t, h, post.ID)
	if len(revs) != 1 {
		t.Fatalf("expected 1 revision, got %d", len(revs))
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/%d", revs[0].ID), nil)
	requireStatus(t, rec, http.StatusOK)
	var screen struct {
		Post     *model.Post `json:"post"`
		Revision *model.Post `json:"revision"`
		Rows     []hooks.Row `json:"rows"`
	}
	decodeJSON(t, rec, &screen)
	if screen.Post.ID != post.ID {
		t.Fatalf("expected parent post %d, got %+v", post.ID, screen.Post)
	}
	if got := screen.Revision.Meta["color"]; len(got) != 1 || got[0] != "red" {
		t.Fatalf("expected revision color=red, got %v", got)
	}
	if _, ok := screen.Revision.Meta["untracked"]; ok {
		t.Fatal("untracked meta must not be copied to revisions")
	}
	if got := screen.Revision.Terms["category"]; len(got) != 1 || got[0].Slug != "news" {
		t.Fatalf("expected revision category=news, got %v", got)
	}
	if !hasRow(screen.Rows, "meta:color") || !hasRow(screen.Rows, "taxonomy:category") {
		t.Fatalf("expected tracked rows, got %+v", screen.Rows)
	}
}

func TestHandleUpdatePost_Errors(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	path := fmt.Sprintf("/v1/posts/%d", post.ID)

	requireStatus(t, doJSON(t, h, "PATCH", path, map[string]any{}), http.StatusBadRequest)
	requireStatus(t, doJSON(t, h, "PATCH", path, map[string]any{"status": "bogus"}), http.StatusBadRequest)
	requireStatus(t, doJSON(t, h, "PATCH", "/v1/posts/999", map[string]any{"title": "x"}), http.StatusNotFound)

	requireStatus(t, doJSON(t, h, "PATCH", path, map[string]any{"title": "v2"}), http.StatusOK)
	revs := listRevisions(t, h, post.ID)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", revs[0].ID), map[string]any{"title": "x"}), http.StatusConflict)
}

func TestHandleDiffRevisions(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{
		"meta": map[string]any{"color": []any{"blue"}},
	}), http.StatusOK)
	rev := listRevisions(t, h, post.ID)[0]

	rec := doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/diff?left=%d&right=%d", rev.ID, post.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	var diff struct {
		Rows      []hooks.Row `json:"rows"`
		Identical bool        `json:"identical"`
	}
	decodeJSON(t, rec, &diff)
	if diff.Identical {
		t.Fatal("expected a difference")
	}
	if len(diff.Rows) != 1 || diff.Rows[0].Field != "meta:color" {
		t.Fatalf("expected only the color row, got %+v", diff.Rows)
	}
	if !strings.Contains(string(diff.Rows[0].HTML), "red") || !strings.Contains(string(diff.Rows[0].HTML), "blue") {
		t.Fatalf("expected both values in the diff, got %s", diff.Rows[0].HTML)
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/diff?left=%d&right=%d", rev.ID, rev.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec, &diff)
	if !diff.Identical || len(diff.Rows) != 0 {
		t.Fatalf("expected identical versions, got %+v", diff)
	}
}

func TestHandleDiffRevisions_Errors(t *testing.T) {
	_, _, h := newTestServer()
	a := createTestPost(t, h)
	b := createTestPost(t, h)

	requireStatus(t, doJSON(t, h, "GET", "/v1/revisions/diff?left=1", nil), http.StatusBadRequest)
	requireStatus(t, doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/diff?left=%d&right=%d", a.ID, b.ID), nil), http.StatusBadRequest)
	requireStatus(t, doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/diff?left=%d&right=999", a.ID), nil), http.StatusNotFound)
	requireStatus(t, doJSON(t, h, "GET", fmt.Sprintf("/v1/revisions/%d", a.ID), nil), http.StatusBadRequest)
}

func TestHandleRestoreRevision(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{
		"title": "Changed",
		"meta":  map[string]any{"color": []any{"blue", "green"}},
		"terms": map[string]any{"category": []string{}},
	}), http.StatusOK)
	rev := listRevisions(t, h, post.ID)[0]

	rec := doJSON(t, h, "POST", fmt.Sprintf("/v1/posts/%d/revisions/%d/restore", post.ID, rev.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	var restored model.Post
	decodeJSON(t, rec, &restored)
	if restored.Title != "Hello" {
		t.Fatalf("expected title restored, got %q", restored.Title)
	}
	if got := restored.Meta["color"]; len(got) != 1 || got[0] != "red" {
		t.Fatalf("expected color=red after restore, got %v", got)
	}
	if got := restored.Terms["category"]; len(got) != 1 || got[0].Slug != "news" {
		t.Fatalf("expected category=news after restore, got %v", got)
	}
	if len(listRevisions(t, h, post.ID)) != 2 {
		t.Fatal("expected the replaced state to be snapshotted")
	}

	requireStatus(t, doJSON(t, h, "POST", fmt.Sprintf("/v1/posts/%d/revisions/%d/restore", post.ID+100, rev.ID), nil), http.StatusBadRequest)
}

func TestHandleDeletePost(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	path := fmt.Sprintf("/v1/posts/%d", post.ID)

	requireStatus(t, doJSON(t, h, "DELETE", path, nil), http.StatusNoContent)
	requireStatus(t, doJSON(t, h, "GET", path, nil), http.StatusNotFound)
	requireStatus(t, doJSON(t, h, "DELETE", path, nil), http.StatusNotFound)
}

func TestHandleGetEvents(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{"title": "v2"}), http.StatusOK)

	rec := doJSON(t, h, "GET", fmt.Sprintf("/v1/posts/%d/events", post.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	decodeJSON(t, rec, &resp)

	topics := make(map[string]bool)
	for _, e := range resp.Events {
		topics[e.Topic] = true
	}
	for _, want := range []string{events.TopicPostCreated, events.TopicPostUpdated, events.TopicRevisionCreated} {
		if !topics[want] {
			t.Errorf("expected %s in %v", want, topics)
		}
	}
}

func TestHandleLock(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	path := fmt.Sprintf("/v1/posts/%d/lock", post.ID)

	touch := func(actor string) (holder string) {
		req := httptest.NewRequest("POST", path, nil)
		req.Header.Set(ActorHeader, actor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		requireStatus(t, rec, http.StatusOK)
		var resp struct {
			Holder string `json:"holder"`
		}
		decodeJSON(t, rec, &resp)
		return resp.Holder
	}

	if got := touch("alice"); got != "" {
		t.Fatalf("expected free post, got holder %q", got)
	}
	if got := touch("bob"); got != "alice" {
		t.Fatalf("expected alice to hold the post, got %q", got)
	}

	requireStatus(t, doJSON(t, h, "DELETE", path, nil), http.StatusNoContent) // releases alice
	if got := touch("carol"); got != "bob" {
		t.Fatalf("expected bob to hold the post, got %q", got)
	}

	rec := doJSON(t, h, "GET", path, nil)
	requireStatus(t, rec, http.StatusOK)
	var resp struct {
		Locks []struct {
			Actor string `json:"actor"`
		} `json:"locks"`
	}
	decodeJSON(t, rec, &resp)
	if len(resp.Locks) != 3 {
		t.Fatalf("expected 3 lock entries, got %+v", resp.Locks)
	}

	requireStatus(t, doJSON(t, h, "POST", "/v1/posts/999/lock", nil), http.StatusNotFound)
}

func TestAuthRequired(t *testing.T) {
	s, _, _ := newTestServer()
	h := s.NewHTTPHandler("secret")

	requireStatus(t, doJSON(t, h, "GET", "/v1/health", nil), http.StatusOK)
	requireStatus(t, doJSON(t, h, "GET", "/v1/posts", nil), http.StatusUnauthorized)

	req := httptest.NewRequest("GET", "/v1/posts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	requireStatus(t, rec, http.StatusOK)
}
