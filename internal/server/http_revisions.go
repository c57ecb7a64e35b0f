package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/display"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
)

// screenResponse is the JSON form of a rendered revision screen.
type screenResponse struct {
	Post      *model.Post `json:"post"`
	Revision  *model.Post `json:"revision,omitempty"`
	Left      *model.Post `json:"left,omitempty"`
	Right     *model.Post `json:"right,omitempty"`
	Rows      []hooks.Row `json:"rows"`
	Identical bool        `json:"identical"`
}

func newScreenResponse(screen *hooks.RevisionScreen) screenResponse {
	rows := screen.Rows
	if rows == nil {
		rows = []hooks.Row{}
	}
	return screenResponse{
		Post:      screen.Post,
		Revision:  screen.Revision,
		Left:      screen.Left,
		Right:     screen.Right,
		Rows:      rows,
		Identical: screen.Identical,
	}
}

// viewScreen renders the revision screen for a single revision.
func (s *Server) viewScreen(ctx context.Context, req hooks.Request, revisionID int64) (*hooks.RevisionScreen, error) {
	rev, err := s.content.Load(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	postID := rev.IsRevision()
	if postID == 0 {
		return nil, fmt.Errorf("post %d: %w", revisionID, content.ErrNotRevision)
	}
	post, err := s.content.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	req.Action = hooks.ActionView
	req.PostID = postID
	screen := &hooks.RevisionScreen{
		Action:   hooks.ActionView,
		Post:     post,
		Revision: rev,
		Request:  req,
	}
	display.Screen(hooks.WithRequest(ctx, req), s.bus, screen, s.logger)
	return screen, nil
}

// diffScreen renders the comparison of two versions of the same post.
// Either side may be the live post itself.
func (s *Server) diffScreen(ctx context.Context, req hooks.Request, leftID, rightID int64) (*hooks.RevisionScreen, error) {
	left, err := s.content.GetPost(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := s.content.GetPost(ctx, rightID)
	if err != nil {
		return nil, err
	}
	postID := ownerOf(left)
	if ownerOf(right) != postID {
		return nil, fmt.Errorf("posts %d and %d are not versions of one post: %w", leftID, rightID, content.ErrNotRevision)
	}
	post := left
	if post.ID != postID {
		if post, err = s.content.GetPost(ctx, postID); err != nil {
			return nil, err
		}
	}

	req.Action = hooks.ActionDiff
	req.PostID = postID
	screen := &hooks.RevisionScreen{
		Action:  hooks.ActionDiff,
		Post:    post,
		Left:    left,
		Right:   right,
		Request: req,
	}
	display.Screen(hooks.WithRequest(ctx, req), s.bus, screen, s.logger)
	return screen, nil
}

// ownerOf returns the id of the live post p belongs to.
func ownerOf(p *model.Post) int64 {
	if parent := p.IsRevision(); parent != 0 {
		return parent
	}
	return p.ID
}

// diffIDs parses the left and right query parameters of a diff request.
func diffIDs(r *http.Request) (int64, int64, error) {
	q := r.URL.Query()
	left, err := queryInt(q.Get("left"))
	if err != nil || left == 0 {
		return 0, 0, fmt.Errorf("invalid left %q", q.Get("left"))
	}
	right, err := queryInt(q.Get("right"))
	if err != nil || right == 0 {
		return 0, 0, fmt.Errorf("invalid right %q", q.Get("right"))
	}
	return left, right, nil
}

// handleListRevisions handles GET /v1/posts/{id}/revisions.
func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	revs, err := s.content.ListRevisions(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if revs == nil {
		revs = []*model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

// handleGetRevision handles GET /v1/revisions/{id}: the revision with its
// meta and terms, plus the rows of its revision screen.
func (s *Server) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	screen, err := s.viewScreen(r.Context(), s.request(r, hooks.ScreenRevision, hooks.ActionView), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScreenResponse(screen))
}

// handleDiffRevisions handles GET /v1/revisions/diff?left=&right=.
func (s *Server) handleDiffRevisions(w http.ResponseWriter, r *http.Request) {
	left, right, err := diffIDs(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	screen, err := s.diffScreen(r.Context(), s.request(r, hooks.ScreenRevision, hooks.ActionDiff), left, right)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newScreenResponse(screen))
}

// handleRestoreRevision handles POST /v1/posts/{id}/revisions/{rev}/restore.
func (s *Server) handleRestoreRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	revID, err := pathID(r, "rev")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := s.content.RestoreRevision(r.Context(), s.request(r, hooks.ScreenAPI, hooks.ActionRestore), id, revID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}
