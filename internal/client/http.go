package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/presence"
)

// HTTPClient talks to the metarev JSON API under /v1.
type HTTPClient struct {
	baseURL string
	token   string
	actor   string
	hc      *http.Client
}

// NewHTTPClient returns a client for the server at baseURL, e.g.
// "http://localhost:8080". A non-empty token is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{},
	}
}

// SetActor names the user every later request acts as. Revisions and
// events record this name.
func (c *HTTPClient) SetActor(actor string) { c.actor = actor }

func (c *HTTPClient) Close() error { return nil }

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func postPath(id int64, rest ...string) string {
	p := "/v1/posts/" + strconv.FormatInt(id, 10)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *HTTPClient) ListTypes(ctx context.Context) ([]*TypeInfo, error) {
	resp, err := call[struct {
		Types []*TypeInfo `json:"types"`
	}](ctx, c, http.MethodGet, "/v1/types", nil)
	if err != nil {
		return nil, err
	}
	return resp.Types, nil
}

func (c *HTTPClient) ListFields(ctx context.Context, postType string) ([]model.TrackedField, error) {
	resp, err := call[struct {
		Fields []model.TrackedField `json:"fields"`
	}](ctx, c, http.MethodGet, "/v1/types/"+url.PathEscape(postType)+"/fields", nil)
	if err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

func (c *HTTPClient) CreatePost(ctx context.Context, req *CreatePostRequest) (*model.Post, error) {
	return call[model.Post](ctx, c, http.MethodPost, "/v1/posts", req)
}

func (c *HTTPClient) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	return call[model.Post](ctx, c, http.MethodGet, postPath(id), nil)
}

// ListPosts sends only the filters that are set.
func (c *HTTPClient) ListPosts(ctx context.Context, req *ListPostsRequest) (*ListPostsResponse, error) {
	q := make(url.Values)
	set := func(key, val string) {
		if val != "" && val != "0" {
			q.Set(key, val)
		}
	}
	set("type", strings.Join(req.Type, ","))
	set("status", strings.Join(req.Status, ","))
	set("search", req.Search)
	set("sort", req.Sort)
	set("parent_id", strconv.FormatInt(max(req.ParentID, 0), 10))
	set("limit", strconv.Itoa(max(req.Limit, 0)))
	set("offset", strconv.Itoa(max(req.Offset, 0)))

	path := "/v1/posts"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return call[ListPostsResponse](ctx, c, http.MethodGet, path, nil)
}

func (c *HTTPClient) UpdatePost(ctx context.Context, id int64, req *UpdatePostRequest) (*model.Post, error) {
	return call[model.Post](ctx, c, http.MethodPatch, postPath(id), req)
}

func (c *HTTPClient) DeletePost(ctx context.Context, id int64) error {
	return c.send(ctx, http.MethodDelete, postPath(id), nil)
}

// ListRevisions returns the revisions of a post, newest first.
func (c *HTTPClient) ListRevisions(ctx context.Context, postID int64) ([]*model.Post, error) {
	resp, err := call[struct {
		Revisions []*model.Post `json:"revisions"`
	}](ctx, c, http.MethodGet, postPath(postID, "revisions"), nil)
	if err != nil {
		return nil, err
	}
	return resp.Revisions, nil
}

func (c *HTTPClient) GetRevision(ctx context.Context, revisionID int64) (*RevisionScreen, error) {
	return call[RevisionScreen](ctx, c, http.MethodGet, "/v1/revisions/"+strconv.FormatInt(revisionID, 10), nil)
}

func (c *HTTPClient) DiffRevisions(ctx context.Context, left, right int64) (*RevisionScreen, error) {
	path := fmt.Sprintf("/v1/revisions/diff?left=%d&right=%d", left, right)
	return call[RevisionScreen](ctx, c, http.MethodGet, path, nil)
}

func (c *HTTPClient) RestoreRevision(ctx context.Context, postID, revisionID int64) (*model.Post, error) {
	path := postPath(postID, "revisions", strconv.FormatInt(revisionID, 10), "restore")
	return call[model.Post](ctx, c, http.MethodPost, path, nil)
}

// GetEvents returns the recorded events of a post, oldest first.
func (c *HTTPClient) GetEvents(ctx context.Context, postID int64) ([]*model.Event, error) {
	resp, err := call[struct {
		Events []*model.Event `json:"events"`
	}](ctx, c, http.MethodGet, postPath(postID, "events"), nil)
	if err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *HTTPClient) GetLocks(ctx context.Context, postID int64) ([]presence.Entry, error) {
	resp, err := call[struct {
		Locks []presence.Entry `json:"locks"`
	}](ctx, c, http.MethodGet, postPath(postID, "lock"), nil)
	if err != nil {
		return nil, err
	}
	return resp.Locks, nil
}

// TouchLock takes or refreshes the caller's edit lock.
func (c *HTTPClient) TouchLock(ctx context.Context, postID int64) (*LockStatus, error) {
	return call[LockStatus](ctx, c, http.MethodPost, postPath(postID, "lock"), nil)
}

func (c *HTTPClient) ReleaseLock(ctx context.Context, postID int64) error {
	return c.send(ctx, http.MethodDelete, postPath(postID, "lock"), nil)
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	resp, err := call[struct {
		Status string `json:"status"`
	}](ctx, c, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// newRequest builds a request carrying the client's credentials. A
// non-nil body is sent as JSON.
func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.actor != "" {
		req.Header.Set(ActorHeader, c.actor)
	}
	return req, nil
}

// roundTrip performs a request and returns the body of a 2xx answer. A
// 204 yields a nil body.
func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

// apiError prefers the server's {"error": "..."} message and falls back
// to the raw body.
func apiError(status int, body []byte) *APIError {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{StatusCode: status, Message: e.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body any) error {
	_, err := c.roundTrip(ctx, method, path, body)
	return err
}

// call performs a request and decodes the JSON answer into a T.
func call[T any](ctx context.Context, c *HTTPClient, method, path string, body any) (*T, error) {
	data, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return out, nil
}
