package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// recorded is what fakeServer saw of the last request.
type recorded struct {
	method, path, query string
	body, contentType   string
	auth, actor         string
}

// fakeServer answers every request with status and body, and records the
// request it got.
type fakeServer struct {
	last   recorded
	status int
	body   string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	f.last = recorded{
		method:      r.Method,
		path:        r.URL.Path,
		query:       r.URL.RawQuery,
		body:        string(data),
		contentType: r.Header.Get("Content-Type"),
		auth:        r.Header.Get("Authorization"),
		actor:       r.Header.Get(ActorHeader),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(orDefault(f.status, http.StatusOK))
	io.WriteString(w, f.body)
}

func orDefault(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func newFake(t *testing.T, status int, body string) (*fakeServer, *HTTPClient) {
	t.Helper()
	f := &fakeServer{status: status, body: body}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewHTTPClient(srv.URL+"/", "")
}

const postJSON = `{
	"id": 7, "type": "post", "status": "publish", "title": "Hello",
	"content": "first draft", "excerpt": "",
	"created_at": "2026-01-15T10:00:00Z", "updated_at": "2026-01-15T10:00:00Z",
	"meta": {"color": ["red"]},
	"terms": {"category": [{"id": 3, "taxonomy": "category", "slug": "news", "name": "News"}]}
}`

// Every client method hits the documented route.
func TestHTTPClient_Routes(t *testing.T) {
	title := "Hello again"
	ctx := context.Background()
	tests := []struct {
		name   string
		status int
		body   string
		call   func(c *HTTPClient) error
		method string
		path   string
		query  string
	}{
		{"ListTypes", 0, `{"types":[]}`, func(c *HTTPClient) error { _, err := c.ListTypes(ctx); return err },
			"GET", "/v1/types", ""},
		{"ListFields", 0, `{"fields":[]}`, func(c *HTTPClient) error { _, err := c.ListFields(ctx, "a page"); return err },
			"GET", "/v1/types/a page/fields", ""},
		{"CreatePost", 201, postJSON, func(c *HTTPClient) error {
			_, err := c.CreatePost(ctx, &CreatePostRequest{Type: "post"})
			return err
		}, "POST", "/v1/posts", ""},
		{"GetPost", 0, postJSON, func(c *HTTPClient) error { _, err := c.GetPost(ctx, 7); return err },
			"GET", "/v1/posts/7", ""},
		{"ListPosts", 0, `{"posts":[],"total":0}`, func(c *HTTPClient) error {
			_, err := c.ListPosts(ctx, &ListPostsRequest{ParentID: 7})
			return err
		}, "GET", "/v1/posts", "parent_id=7"},
		{"UpdatePost", 0, postJSON, func(c *HTTPClient) error {
			_, err := c.UpdatePost(ctx, 7, &UpdatePostRequest{Title: &title})
			return err
		}, "PATCH", "/v1/posts/7", ""},
		{"DeletePost", 204, "", func(c *HTTPClient) error { return c.DeletePost(ctx, 7) },
			"DELETE", "/v1/posts/7", ""},
		{"ListRevisions", 0, `{"revisions":[]}`, func(c *HTTPClient) error { _, err := c.ListRevisions(ctx, 7); return err },
			"GET", "/v1/posts/7/revisions", ""},
		{"GetRevision", 0, `{"rows":[]}`, func(c *HTTPClient) error { _, err := c.GetRevision(ctx, 9); return err },
			"GET", "/v1/revisions/9", ""},
		{"DiffRevisions", 0, `{"rows":[]}`, func(c *HTTPClient) error { _, err := c.DiffRevisions(ctx, 9, 7); return err },
			"GET", "/v1/revisions/diff", "left=9&right=7"},
		{"RestoreRevision", 0, postJSON, func(c *HTTPClient) error { _, err := c.RestoreRevision(ctx, 7, 9); return err },
			"POST", "/v1/posts/7/revisions/9/restore", ""},
		{"GetEvents", 0, `{"events":[]}`, func(c *HTTPClient) error { _, err := c.GetEvents(ctx, 7); return err },
			"GET", "/v1/posts/7/events", ""},
		{"GetLocks", 0, `{"locks":[]}`, func(c *HTTPClient) error { _, err := c.GetLocks(ctx, 7); return err },
			"GET", "/v1/posts/7/lock", ""},
		{"TouchLock", 0, `{"locked":false}`, func(c *HTTPClient) error { _, err := c.TouchLock(ctx, 7); return err },
			"POST", "/v1/posts/7/lock", ""},
		{"ReleaseLock", 204, "", func(c *HTTPClient) error { return c.ReleaseLock(ctx, 7) },
			"DELETE", "/v1/posts/7/lock", ""},
		{"Health", 0, `{"status":"ok"}`, func(c *HTTPClient) error { _, err := c.Health(ctx); return err },
			"GET", "/v1/health", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, c := newFake(t, tc.status, tc.body)
			if err := tc.call(c); err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if f.last.method != tc.method || f.last.path != tc.path || f.last.query != tc.query {
				t.Errorf("request = %s %s?%s, want %s %s?%s",
					f.last.method, f.last.path, f.last.query, tc.method, tc.path, tc.query)
			}
		})
	}
}

func TestHTTPClient_CreatePost(t *testing.T) {
	f, c := newFake(t, http.StatusCreated, postJSON)

	post, err := c.CreatePost(context.Background(), &CreatePostRequest{
		Type:    "post",
		Title:   "Hello",
		Content: "first draft",
		Meta:    map[string][]any{"color": {"red"}},
		Terms:   map[string][]string{"category": {"news"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.last.contentType != "application/json" {
		t.Errorf("content-type = %q", f.last.contentType)
	}

	var sent struct {
		Type   string              `json:"type"`
		Status *string             `json:"status"`
		Author *string             `json:"author"`
		Terms  map[string][]string `json:"terms"`
	}
	if err := json.Unmarshal([]byte(f.last.body), &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Type != "post" || sent.Status != nil || sent.Author != nil {
		t.Errorf("sent %s", f.last.body)
	}
	if got := sent.Terms["category"]; len(got) != 1 || got[0] != "news" {
		t.Errorf("sent terms %v", sent.Terms)
	}

	if post.ID != 7 || post.Title != "Hello" {
		t.Errorf("post = %+v", post)
	}
	if got := post.Meta["color"]; len(got) != 1 || got[0] != "red" {
		t.Errorf("meta color = %v", got)
	}
	if got := post.Terms["category"]; len(got) != 1 || got[0].Slug != "news" {
		t.Errorf("terms = %v", got)
	}
}

func TestHTTPClient_UpdatePost_EmptyListClearsKey(t *testing.T) {
	f, c := newFake(t, 0, postJSON)

	title := "Hello again"
	if _, err := c.UpdatePost(context.Background(), 7, &UpdatePostRequest{
		Title: &title,
		Meta:  map[string][]any{"color": {}},
	}); err != nil {
		t.Fatal(err)
	}

	var sent map[string]json.RawMessage
	if err := json.Unmarshal([]byte(f.last.body), &sent); err != nil {
		t.Fatal(err)
	}
	if string(sent["title"]) != `"Hello again"` {
		t.Errorf("title = %s", sent["title"])
	}
	if _, ok := sent["content"]; ok {
		t.Error("unset content was sent")
	}
	if string(sent["meta"]) != `{"color":[]}` {
		t.Errorf("meta = %s", sent["meta"])
	}
}

func TestHTTPClient_ListPosts_Query(t *testing.T) {
	f, c := newFake(t, 0, `{"posts": [`+postJSON+`], "total": 12}`)

	resp, err := c.ListPosts(context.Background(), &ListPostsRequest{
		Type:   []string{"post", "page"},
		Status: []string{"draft"},
		Search: "hello world",
		Sort:   "-created_at",
		Limit:  5,
		Offset: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "limit=5&offset=10&search=hello+world&sort=-created_at&status=draft&type=post%2Cpage"
	if f.last.query != want {
		t.Errorf("query = %q\nwant    %q", f.last.query, want)
	}
	if resp.Total != 12 || len(resp.Posts) != 1 {
		t.Errorf("total %d, %d posts", resp.Total, len(resp.Posts))
	}

	if _, err := c.ListPosts(context.Background(), &ListPostsRequest{}); err != nil {
		t.Fatal(err)
	}
	if f.last.query != "" {
		t.Errorf("unfiltered query = %q", f.last.query)
	}
}

func TestHTTPClient_RevisionScreens(t *testing.T) {
	_, c := newFake(t, 0, `{
		"post": {"id": 7, "type": "post", "status": "publish"},
		"revision": {"id": 9, "type": "revision", "status": "inherit", "parent_id": 7},
		"rows": [{"field": "color", "label": "Color", "html": "red"}],
		"identical": false
	}`)
	screen, err := c.GetRevision(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if screen.Revision == nil || screen.Revision.IsRevision() != 7 {
		t.Errorf("revision = %+v", screen.Revision)
	}
	if len(screen.Rows) != 1 || screen.Rows[0].HTML != "red" {
		t.Errorf("rows = %+v", screen.Rows)
	}

	_, c = newFake(t, 0, `{"post": {"id": 7}, "left": {"id": 9}, "right": {"id": 7}, "rows": [], "identical": true}`)
	screen, err = c.DiffRevisions(context.Background(), 9, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !screen.Identical || screen.Left.ID != 9 || screen.Right.ID != 7 {
		t.Errorf("screen = %+v", screen)
	}
}

func TestHTTPClient_GetEvents(t *testing.T) {
	_, c := newFake(t, 0, `{"events": [
		{"id": 1, "topic": "metarev.post.created", "post_id": 7, "actor": "alice",
		 "payload": {"post": {"id": 7}}, "created_at": "2026-01-15T10:00:00Z"}
	]}`)
	evts, err := c.GetEvents(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Topic != "metarev.post.created" || evts[0].Actor != "alice" {
		t.Fatalf("events = %+v", evts)
	}
	if !strings.Contains(string(evts[0].Payload), `"id": 7`) {
		t.Errorf("payload = %s", evts[0].Payload)
	}
}

func TestHTTPClient_Locks(t *testing.T) {
	f, c := newFake(t, 0, `{"locked": true, "holder": "bob"}`)
	c.SetActor("alice")

	status, err := c.TouchLock(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if f.last.actor != "alice" {
		t.Errorf("actor header = %q", f.last.actor)
	}
	if !status.Locked || status.Holder != "bob" {
		t.Errorf("status = %+v", status)
	}

	f.body = `{"locks": [{"post_id": 7, "actor": "bob", "heartbeats": 3, "idle_secs": 1.5}]}`
	locks, err := c.GetLocks(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 || locks[0].Actor != "bob" || locks[0].Heartbeats != 3 {
		t.Errorf("locks = %+v", locks)
	}
}

func TestHTTPClient_Credentials(t *testing.T) {
	f := &fakeServer{body: `{"status": "ok"}`}
	srv := httptest.NewServer(f)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "s3cret")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.last.auth != "Bearer s3cret" || f.last.actor != "" {
		t.Errorf("auth = %q, actor = %q", f.last.auth, f.last.actor)
	}

	c.SetActor("carol")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.last.actor != "carol" {
		t.Errorf("actor = %q", f.last.actor)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusBadRequest, `{"error": "post type is required"}`, "post type is required"},
		{"read-only revision", http.StatusConflict, `{"error": "post 9: revisions are read-only"}`, "post 9: revisions are read-only"},
		{"plain text", http.StatusInternalServerError, "internal server error\n", "internal server error"},
		{"empty error field", http.StatusUnprocessableEntity, `{"error": ""}`, `{"error": ""}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, c := newFake(t, tc.status, tc.body)
			_, err := c.GetPost(context.Background(), 7)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %T %v, want *APIError", err, err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Message != tc.message {
				t.Errorf("got %d %q, want %d %q", apiErr.StatusCode, apiErr.Message, tc.status, tc.message)
			}
		})
	}

	if got := (&APIError{StatusCode: 403, Message: "forbidden"}).Error(); got != "HTTP 403: forbidden" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHTTPClient_BadJSONAnswer(t *testing.T) {
	_, c := newFake(t, 0, `{"id": "seven"}`)
	if _, err := c.GetPost(context.Background(), 7); err == nil || !strings.Contains(err.Error(), "decoding response") {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPClient_CanceledContext(t *testing.T) {
	_, c := newFake(t, 0, `{"status": "ok"}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Health(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPClient_Concurrent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"status": "ok"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	errs := make(chan error, 10)
	for range 10 {
		go func() {
			_, err := c.Health(context.Background())
			errs <- err
		}()
	}
	for range 10 {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
	if calls.Load() != 10 {
		t.Errorf("server saw %d calls, want 10", calls.Load())
	}
}

func TestNewHTTPClient(t *testing.T) {
	var _ MetarevClient = (*HTTPClient)(nil)

	c := NewHTTPClient("http://localhost:8080/", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
