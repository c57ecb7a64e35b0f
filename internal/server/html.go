package server

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/presence"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"label": versionLabel,
}).ParseFS(templateFS, "templates/*.html"))

// versionLabel names one side of a comparison.
func versionLabel(p *model.Post) string {
	if p == nil {
		return ""
	}
	if p.IsRevision() == 0 {
		return "Current version"
	}
	return fmt.Sprintf("Revision %d (%s)", p.ID, p.CreatedAt.Format("2006-01-02 15:04:05"))
}

// formField is one editable meta key or taxonomy on the edit screen.
type formField struct {
	Name  string
	Label string
	Value string
}

type editPage struct {
	Title     string
	TypeLabel string
	Post      *model.Post
	Token     string
	Statuses  []model.Status
	Meta      []formField
	Terms     []formField
	Revisions []*model.Post
	Holder    string
	Updated   bool
	Restored  int64
}

type revisionPage struct {
	Title  string
	Screen *hooks.RevisionScreen
	Token  string
}

type errorPage struct {
	Title   string
	Message string
	Back    string
}

// renderPage executes a named template, answering 500 when it fails.
func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf strings.Builder
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("rendering page failed", "template", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

// renderError shows an error page with the status statusFor picks.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error, back string) {
	code := statusFor(err)
	msg := err.Error()
	switch {
	case errors.Is(err, content.ErrInvalidToken):
		msg = "The link you followed has expired. Please try again."
	case code == http.StatusInternalServerError:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"err", err)
		msg = "Something went wrong."
	}
	s.renderPage(w, code, "error", errorPage{Title: http.StatusText(code), Message: msg, Back: back})
}

// handleEditScreen handles GET /edit/{id}.
func (s *Server) handleEditScreen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: err.Error()})
		return
	}
	ctx := r.Context()
	post, err := s.content.Load(ctx, id)
	if err != nil {
		s.renderError(w, r, err, "")
		return
	}
	if post.IsRevision() != 0 {
		s.renderError(w, r, fmt.Errorf("post %d: %w", id, content.ErrRevisionReadOnly), "/revisions/"+strconv.FormatInt(id, 10))
		return
	}
	revs, err := s.content.ListRevisions(ctx, id)
	if err != nil {
		s.renderError(w, r, err, "")
		return
	}

	req := s.request(r, hooks.ScreenPostEdit, hooks.ActionEditPost)
	page := editPage{
		Title:     "Edit " + post.Title,
		TypeLabel: string(post.Type),
		Post:      post,
		Token:     s.content.FormToken(content.EditAction(id)),
		Statuses:  []model.Status{model.StatusDraft, model.StatusPublished, model.StatusPrivate},
		Revisions: revs,
		Holder:    s.Presence.Touch(presence.Heartbeat{PostID: id, Actor: req.Actor, Screen: string(req.Screen)}),
		Updated:   r.URL.Query().Get("updated") != "",
	}
	page.Restored, _ = queryInt(r.URL.Query().Get("restored"))

	if ct, ok := s.content.Catalog().ContentType(post.Type); ok {
		if ct.Label != "" {
			page.TypeLabel = ct.Label
		}
		for _, tax := range ct.Taxonomies {
			slugs := make([]string, 0, len(post.Terms[tax]))
			for _, t := range post.Terms[tax] {
				slugs = append(slugs, t.Slug)
			}
			page.Terms = append(page.Terms, formField{Name: tax, Label: tax, Value: strings.Join(slugs, ", ")})
		}
	}
	for _, d := range s.fields.Ordered(post.Type) {
		if d.Kind != model.FieldKindMeta {
			continue
		}
		values := make([]string, 0, len(post.Meta[d.Name]))
		for _, v := range post.Meta[d.Name] {
			values = append(values, fields.Printable(v))
		}
		page.Meta = append(page.Meta, formField{Name: d.Name, Label: d.Label, Value: strings.Join(values, "\n")})
	}

	s.renderPage(w, http.StatusOK, "edit", page)
}

// editUpdate builds the update an edit form submits. Each meta[<key>]
// textarea holds one value per line; each terms[<taxonomy>] input holds
// comma-separated slugs.
func editUpdate(r *http.Request) content.PostUpdate {
	form := r.PostForm
	var upd content.PostUpdate
	text := func(name string) *string {
		if _, ok := form[name]; !ok {
			return nil
		}
		v := strings.ReplaceAll(form.Get(name), "\r\n", "\n")
		return &v
	}
	upd.Title = text("title")
	upd.Content = text("content")
	upd.Excerpt = text("excerpt")
	if st := form.Get("status"); st != "" {
		status := model.Status(st)
		upd.Status = &status
	}

	for name, vals := range form {
		if key, ok := bracketed(name, "meta"); ok {
			values := []any{}
			for _, line := range strings.Split(vals[0], "\n") {
				if line = strings.TrimSpace(line); line != "" {
					values = append(values, line)
				}
			}
			if upd.Meta == nil {
				upd.Meta = make(map[string][]any)
			}
			upd.Meta[key] = values
		}
		if tax, ok := bracketed(name, "terms"); ok {
			slugs := splitList(vals[0])
			if slugs == nil {
				slugs = []string{}
			}
			if upd.Terms == nil {
				upd.Terms = make(map[string][]string)
			}
			upd.Terms[tax] = slugs
		}
	}
	return upd
}

// bracketed extracts key from a form name of the form prefix[key].
func bracketed(name, prefix string) (string, bool) {
	if !strings.HasPrefix(name, prefix+"[") || !strings.HasSuffix(name, "]") {
		return "", false
	}
	key := name[len(prefix)+1 : len(name)-1]
	return key, key != ""
}

// handleEditSubmit handles POST /edit/{id}.
func (s *Server) handleEditSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: err.Error()})
		return
	}
	back := "/edit/" + strconv.FormatInt(id, 10)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: "invalid form", Back: back})
		return
	}

	req := s.request(r, hooks.ScreenPostEdit, hooks.ActionEditPost)
	req.Autosave = r.PostForm.Get("autosave") == "1"
	if _, err := s.content.SubmitEditScreen(r.Context(), req, id, r.PostForm.Get("_token"), editUpdate(r)); err != nil {
		s.renderError(w, r, err, back)
		return
	}
	s.Presence.Touch(presence.Heartbeat{PostID: id, Actor: req.Actor, Screen: string(req.Screen)})
	http.Redirect(w, r, back+"?updated=1", http.StatusSeeOther)
}

// handleRevisionScreen handles GET /revisions/{id}.
func (s *Server) handleRevisionScreen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: err.Error()})
		return
	}
	screen, err := s.viewScreen(r.Context(), s.request(r, hooks.ScreenRevision, hooks.ActionView), id)
	if err != nil {
		s.renderError(w, r, err, "")
		return
	}
	s.renderPage(w, http.StatusOK, "revision", revisionPage{
		Title:  "Revision of " + strconv.Quote(screen.Post.Title),
		Screen: screen,
		Token:  s.content.FormToken(content.RestoreAction(id)),
	})
}

// handleDiffScreen handles GET /revisions/diff?left=&right=.
func (s *Server) handleDiffScreen(w http.ResponseWriter, r *http.Request) {
	left, right, err := diffIDs(r)
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: err.Error()})
		return
	}
	screen, err := s.diffScreen(r.Context(), s.request(r, hooks.ScreenRevision, hooks.ActionDiff), left, right)
	if err != nil {
		s.renderError(w, r, err, "")
		return
	}
	s.renderPage(w, http.StatusOK, "revision", revisionPage{
		Title:  "Compare revisions of " + strconv.Quote(screen.Post.Title),
		Screen: screen,
	})
}

// handleRestoreSubmit handles POST /revisions/{id}/restore.
func (s *Server) handleRestoreSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: err.Error()})
		return
	}
	back := "/revisions/" + strconv.FormatInt(id, 10)
	if err := r.ParseForm(); err != nil {
		s.renderPage(w, http.StatusBadRequest, "error", errorPage{Title: "Bad Request", Message: "invalid form", Back: back})
		return
	}
	post, err := s.content.SubmitRestore(r.Context(), s.request(r, hooks.ScreenRevision, hooks.ActionRestore), id, r.PostForm.Get("_token"))
	if err != nil {
		s.renderError(w, r, err, back)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/edit/%d?restored=%d", post.ID, id), http.StatusSeeOther)
}
