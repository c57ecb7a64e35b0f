package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/alfredjeanlab/metarev/internal/content"
)

var tokenPattern = regexp.MustCompile(`name="_token" value="([^"]+)"`)

func getPage(t *testing.T, h http.Handler, path, actor string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(ActorHeader, "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func formToken(t *testing.T, body string) string {
	t.Helper()
	m := tokenPattern.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no form token in page:\n%s", body)
	}
	return m[1]
}

func TestEditScreen_Renders(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)

	rec := getPage(t, h, fmt.Sprintf("/edit/%d", post.ID), "alice")
	requireStatus(t, rec, http.StatusOK)
	body := rec.Body.String()

	for _, want := range []string{
		`name="title" value="Hello"`,
		`name="meta[color]"`,
		`>red</textarea>`,
		`name="terms[category]" value="news"`,
		`Edit Posts`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in edit screen", want)
		}
	}
	formToken(t, body)

	rec = getPage(t, h, fmt.Sprintf("/edit/%d", post.ID), "bob")
	if !strings.Contains(rec.Body.String(), "alice is currently editing") {
		t.Error("expected takeover warning for a second editor")
	}

	requireStatus(t, getPage(t, h, "/edit/999", ""), http.StatusNotFound)
}

func TestEditSubmit_VersionsBeforeWrite(t *testing.T) {
	s, _, h := newTestServer()
	post := createTestPost(t, h)
	path := fmt.Sprintf("/edit/%d", post.ID)

	rec := postForm(t, h, path, url.Values{
		"_token":          {s.content.FormToken(content.EditAction(post.ID))},
		"title":           {"Edited"},
		"content":         {"second draft"},
		"excerpt":         {""},
		"status":          {"publish"},
		"meta[color]":     {"blue\r\ngreen\n"},
		"terms[category]": {"sports, tech"},
	})
	requireStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != path+"?updated=1" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	revs := listRevisions(t, h, post.ID)
	if len(revs) != 1 {
		t.Fatalf("expected exactly one revision, got %d", len(revs))
	}
	if revs[0].Title != "Hello" {
		t.Errorf("expected the pre-edit title in the revision, got %q", revs[0].Title)
	}

	var got struct {
		Title string           `json:"title"`
		Meta  map[string][]any `json:"meta"`
	}
	rec = doJSON(t, h, "GET", fmt.Sprintf("/v1/posts/%d", post.ID), nil)
	decodeJSON(t, rec, &got)
	if got.Title != "Edited" || len(got.Meta["color"]) != 2 || got.Meta["color"][1] != "green" {
		t.Fatalf("unexpected post after edit %+v", got)
	}

	rec = getPage(t, h, fmt.Sprintf("/revisions/%d", revs[0].ID), "")
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Color") || !strings.Contains(rec.Body.String(), "red") {
		t.Errorf("expected the revision's color in the revision screen:\n%s", rec.Body.String())
	}
}

func TestEditSubmit_InvalidToken(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)

	rec := postForm(t, h, fmt.Sprintf("/edit/%d", post.ID), url.Values{
		"_token": {"stale"},
		"title":  {"Edited"},
	})
	requireStatus(t, rec, http.StatusForbidden)
	if !strings.Contains(rec.Body.String(), "expired") {
		t.Errorf("expected expired-link message, got:\n%s", rec.Body.String())
	}
	if revs := listRevisions(t, h, post.ID); len(revs) != 0 {
		t.Fatalf("expected no revision after a failed check, got %d", len(revs))
	}
}

func TestEditSubmit_AutosaveSkipsRevision(t *testing.T) {
	s, _, h := newTestServer()
	post := createTestPost(t, h)

	rec := postForm(t, h, fmt.Sprintf("/edit/%d", post.ID), url.Values{
		"_token":   {s.content.FormToken(content.EditAction(post.ID))},
		"autosave": {"1"},
		"content":  {"autosaved"},
	})
	requireStatus(t, rec, http.StatusSeeOther)
	if revs := listRevisions(t, h, post.ID); len(revs) != 0 {
		t.Fatalf("expected autosave to skip versioning, got %d revisions", len(revs))
	}
}

func TestDiffScreen(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{
		"meta": map[string]any{"color": []any{"blue"}},
	}), http.StatusOK)
	rev := listRevisions(t, h, post.ID)[0]

	rec := getPage(t, h, fmt.Sprintf("/revisions/diff?left=%d&right=%d", rev.ID, post.ID), "")
	requireStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	if !strings.Contains(body, `class="diff"`) || !strings.Contains(body, "Current version") {
		t.Errorf("expected a diff table against the current version:\n%s", body)
	}
	if strings.Contains(body, "identical") {
		t.Error("did not expect the identical notice")
	}

	rec = getPage(t, h, fmt.Sprintf("/revisions/diff?left=%d&right=%d", rev.ID, rev.ID), "")
	if !strings.Contains(rec.Body.String(), "These revisions are identical.") {
		t.Error("expected the identical notice")
	}
}

func TestRestoreSubmit(t *testing.T) {
	_, _, h := newTestServer()
	post := createTestPost(t, h)
	requireStatus(t, doJSON(t, h, "PATCH", fmt.Sprintf("/v1/posts/%d", post.ID), map[string]any{
		"meta": map[string]any{"color": []any{"blue"}},
	}), http.StatusOK)
	rev := listRevisions(t, h, post.ID)[0]
	revPath := fmt.Sprintf("/revisions/%d", rev.ID)

	rec := postForm(t, h, revPath+"/restore", url.Values{"_token": {"bogus"}})
	requireStatus(t, rec, http.StatusForbidden)

	token := formToken(t, getPage(t, h, revPath, "").Body.String())
	rec = postForm(t, h, revPath+"/restore", url.Values{"_token": {token}})
	requireStatus(t, rec, http.StatusSeeOther)
	if loc := rec.Header().Get("Location"); loc != fmt.Sprintf("/edit/%d?restored=%d", post.ID, rev.ID) {
		t.Fatalf("unexpected redirect %q", loc)
	}

	rec = getPage(t, h, fmt.Sprintf("/edit/%d?restored=%d", post.ID, rev.ID), "")
	body := rec.Body.String()
	if !strings.Contains(body, ">red</textarea>") || !strings.Contains(body, "restored to revision") {
		t.Errorf("expected restored color on the edit screen:\n%s", body)
	}
}
