package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/presence"
)

// typeResponse is a content type together with its tracked fields.
type typeResponse struct {
	model.ContentType
	Fields []model.TrackedField `json:"fields"`
}

// handleListTypes handles GET /v1/types.
func (s *Server) handleListTypes(w http.ResponseWriter, _ *http.Request) {
	types := s.content.Catalog().Types()
	out := make([]typeResponse, 0, len(types))
	for _, ct := range types {
		out = append(out, typeResponse{ContentType: ct, Fields: s.fields.Tracked(ct.Name)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": out})
}

// handleListFields handles GET /v1/types/{type}/fields.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	name := model.PostType(r.PathValue("type"))
	if _, ok := s.content.Catalog().ContentType(name); !ok {
		writeError(w, http.StatusNotFound, "unknown content type "+strconv.Quote(string(name)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": s.fields.Tracked(name)})
}

// createPostRequest is the JSON body for POST /v1/posts.
type createPostRequest struct {
	Type    string              `json:"type" validate:"required"`
	Status  string              `json:"status,omitempty" validate:"post_status"`
	Name    string              `json:"name,omitempty" validate:"max=200"`
	Title   string              `json:"title"`
	Content string              `json:"content"`
	Excerpt string              `json:"excerpt"`
	Author  string              `json:"author,omitempty"`
	Meta    map[string][]any    `json:"meta,omitempty" validate:"dive,keys,required,endkeys,required"`
	Terms   map[string][]string `json:"terms,omitempty" validate:"dive,keys,required,endkeys,dive,required"`
}

// handleCreatePost handles POST /v1/posts.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	post, err := s.content.CreatePost(r.Context(), s.request(r, hooks.ScreenAPI, hooks.ActionUpdate), content.PostInput{
		Type:    model.PostType(req.Type),
		Status:  model.Status(req.Status),
		Name:    req.Name,
		Title:   req.Title,
		Content: req.Content,
		Excerpt: req.Excerpt,
		Author:  req.Author,
		Meta:    req.Meta,
		Terms:   req.Terms,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// handleListPosts handles GET /v1/posts. Revisions are only listed when
// asked for by type or parent_id.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.PostFilter

	for _, t := range splitList(q.Get("type")) {
		filter.Type = append(filter.Type, model.PostType(t))
	}
	for _, st := range splitList(q.Get("status")) {
		filter.Status = append(filter.Status, model.Status(st))
	}
	filter.Search = q.Get("search")
	filter.Sort = q.Get("sort")

	var err error
	if filter.ParentID, err = queryInt(q.Get("parent_id")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid parent_id")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	filter.Limit, filter.Offset = int(limit), int(offset)

	if len(filter.Type) == 0 && filter.ParentID == 0 {
		for _, ct := range s.content.Catalog().Types() {
			filter.Type = append(filter.Type, ct.Name)
		}
	}

	posts, total, err := s.content.ListPosts(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "total": total})
}

// handleGetPost handles GET /v1/posts/{id}.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	post, err := s.content.Load(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// updatePostRequest is the JSON body for PATCH /v1/posts/{id}.
type updatePostRequest struct {
	Name    *string             `json:"name,omitempty" validate:"omitempty,max=200"`
	Title   *string             `json:"title,omitempty"`
	Content *string             `json:"content,omitempty"`
	Excerpt *string             `json:"excerpt,omitempty"`
	Status  *string             `json:"status,omitempty" validate:"omitempty,post_status"`
	Meta    map[string][]any    `json:"meta,omitempty" validate:"dive,keys,required,endkeys,required"`
	Terms   map[string][]string `json:"terms,omitempty" validate:"dive,keys,required,endkeys,dive,required"`
}

func (req updatePostRequest) update() content.PostUpdate {
	upd := content.PostUpdate{
		Name:    req.Name,
		Title:   req.Title,
		Content: req.Content,
		Excerpt: req.Excerpt,
		Meta:    req.Meta,
		Terms:   req.Terms,
	}
	if req.Status != nil {
		st := model.Status(*req.Status)
		upd.Status = &st
	}
	return upd
}

// handleUpdatePost handles PATCH /v1/posts/{id}. This is the programmatic
// update path: tracked meta and terms are versioned before the write.
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updatePostRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	upd := req.update()
	if upd.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	post, err := s.content.UpdatePost(r.Context(), s.request(r, hooks.ScreenAPI, hooks.ActionUpdate), id, upd)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleDeletePost handles DELETE /v1/posts/{id}.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.content.DeletePost(r.Context(), s.request(r, hooks.ScreenAPI, ""), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetEvents handles GET /v1/posts/{id}/events.
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evts, err := s.content.Store().GetEvents(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleGetLock handles GET /v1/posts/{id}/lock.
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locks": s.Presence.Roster(id)})
}

// handleTouchLock handles POST /v1/posts/{id}/lock, a heartbeat from an
// editor. The response names the other actor holding the post, if any.
func (s *Server) handleTouchLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.content.GetPost(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	req := s.request(r, hooks.ScreenAPI, "")
	holder := s.Presence.Touch(presence.Heartbeat{PostID: id, Actor: req.Actor, Screen: string(req.Screen)})
	writeJSON(w, http.StatusOK, map[string]any{"locked": holder != "", "holder": holder})
}

// handleReleaseLock handles DELETE /v1/posts/{id}/lock.
func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Presence.Release(id, s.request(r, hooks.ScreenAPI, "").Actor)
	w.WriteHeader(http.StatusNoContent)
}

// splitList splits a comma-separated query value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// queryInt parses an optional non-negative integer query value.
func queryInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
