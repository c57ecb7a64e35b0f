// Package content is the content host: it owns posts, their meta and terms,
// the revision-save primitive and the lifecycle hooks other components
// attach to.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/store"
)

// SaveRevisionListener is the name of the host's own PreUpdate listener that
// snapshots a post before it is written.
const SaveRevisionListener = "core.save_revision"

var (
	ErrUnknownContentType = errors.New("unknown content type")
	ErrInvalidToken       = errors.New("invalid or expired form token")
	ErrRevisionReadOnly   = errors.New("revisions cannot be edited")
	ErrNotRevision        = errors.New("not a revision of this post")
	ErrInvalidTaxonomy    = errors.New("taxonomy not associated with content type")
)

// PostInput holds the fields of a new post.
type PostInput struct {
	Type    model.PostType
	Status  model.Status
	Name    string
	Title   string
	Content string
	Excerpt string
	Author  string
	Meta    map[string][]any
	Terms   map[string][]string // taxonomy -> slugs
}

// PostUpdate holds a partial update. Nil fields are left alone. Each key in
// Meta replaces all values of that key; an empty list deletes it. Each
// taxonomy in Terms replaces the post's assignments in it.
type PostUpdate struct {
	Name    *string
	Title   *string
	Content *string
	Excerpt *string
	Status  *model.Status
	Meta    map[string][]any
	Terms   map[string][]string
}

// IsEmpty reports whether the update changes nothing.
func (u PostUpdate) IsEmpty() bool {
	return u.Name == nil && u.Title == nil && u.Content == nil && u.Excerpt == nil &&
		u.Status == nil && len(u.Meta) == 0 && len(u.Terms) == 0
}

// Changes returns the changed fields keyed by name, for event payloads.
func (u PostUpdate) Changes() map[string]any {
	changes := make(map[string]any)
	if u.Name != nil {
		changes["name"] = *u.Name
	}
	if u.Title != nil {
		changes["title"] = *u.Title
	}
	if u.Content != nil {
		changes["content"] = *u.Content
	}
	if u.Excerpt != nil {
		changes["excerpt"] = *u.Excerpt
	}
	if u.Status != nil {
		changes["status"] = string(*u.Status)
	}
	if len(u.Meta) > 0 {
		changes["meta"] = u.Meta
	}
	if len(u.Terms) > 0 {
		changes["terms"] = u.Terms
	}
	return changes
}

// Service implements the content host operations on top of a store.
type Service struct {
	store    store.Store
	catalog  *Catalog
	bus      *hooks.Bus
	recorder *events.Recorder
	secret   []byte
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRecorder sets where post events are recorded and published.
func WithRecorder(r *events.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithFormSecret sets the key form tokens are signed with.
func WithFormSecret(secret []byte) Option {
	return func(s *Service) { s.secret = secret }
}

// WithClock overrides the time source used for form tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service and registers the host's revision-save
// listener on the bus.
func NewService(st store.Store, catalog *Catalog, bus *hooks.Bus, opts ...Option) *Service {
	s := &Service{
		store:   st,
		catalog: catalog,
		bus:     bus,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	bus.PreUpdate.Add(SaveRevisionListener, hooks.DefaultPriority, s.saveRevisionOnUpdate)
	return s
}

// Store returns the underlying store.
func (s *Service) Store() store.Store { return s.store }

// Catalog returns the content type catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Bus returns the lifecycle hooks.
func (s *Service) Bus() *hooks.Bus { return s.bus }

func (s *Service) saveRevisionOnUpdate(ctx context.Context, ev hooks.PreUpdateEvent) error {
	id, err := s.SaveRevision(ctx, ev.PostID)
	if err != nil {
		return err
	}
	if id != 0 {
		s.recorder.Emit(ctx, events.TopicRevisionCreated, ev.PostID, ev.Request.Actor,
			events.RevisionCreated{PostID: ev.PostID, RevisionID: id})
	}
	return nil
}

// SaveRevision snapshots the current core fields of a post as a new
// revision and returns its id. It returns 0 without error when the post is
// missing or itself a revision, when its type does not support revisions,
// or when the request in ctx is an autosave.
func (s *Service) SaveRevision(ctx context.Context, postID int64) (int64, error) {
	req, _ := hooks.RequestFrom(ctx)
	if req.Autosave {
		return 0, nil
	}
	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading post %d: %w", postID, err)
	}
	if post.IsRevision() != 0 {
		return 0, nil
	}
	ct, ok := s.catalog.ContentType(post.Type)
	if !ok || !ct.Revisions {
		return 0, nil
	}

	author := req.Actor
	if author == "" {
		author = post.Author
	}
	rev := &model.Post{
		Type:     model.TypeRevision,
		Status:   model.StatusInherit,
		Name:     strconv.FormatInt(postID, 10) + "-revision",
		Title:    post.Title,
		Content:  post.Content,
		Excerpt:  post.Excerpt,
		ParentID: postID,
		Author:   author,
	}
	if err := s.store.CreatePost(ctx, rev); err != nil {
		return 0, fmt.Errorf("saving revision of post %d: %w", postID, err)
	}
	s.logger.Debug("saved revision", "post_id", postID, "revision_id", rev.ID)
	return rev.ID, nil
}

// CreatePost validates and stores a new post with its meta and terms.
func (s *Service) CreatePost(ctx context.Context, req hooks.Request, in PostInput) (*model.Post, error) {
	ct, ok := s.catalog.ContentType(in.Type)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownContentType, in.Type)
	}
	if err := checkTaxonomies(ct, in.Terms); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = model.StatusDraft
	}
	author := in.Author
	if author == "" {
		author = req.Actor
	}
	post := &model.Post{
		Type:    in.Type,
		Status:  status,
		Name:    in.Name,
		Title:   in.Title,
		Content: in.Content,
		Excerpt: in.Excerpt,
		Author:  author,
	}
	if err := model.ValidatePost(post); err != nil {
		return nil, err
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("creating post: %w", err)
	}
	if err := s.writeMetaAndTerms(ctx, post.ID, in.Meta, in.Terms); err != nil {
		return nil, err
	}

	loaded, err := s.Load(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	s.recorder.Emit(ctx, events.TopicPostCreated, post.ID, req.Actor, events.PostCreated{Post: loaded})
	return loaded, nil
}

// GetPost returns a post without its meta and terms.
func (s *Service) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	return s.store.GetPost(ctx, id)
}

// Load returns a post with its meta and terms populated.
func (s *Service) Load(ctx context.Context, id int64) (*model.Post, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Meta, err = s.Meta(ctx, id); err != nil {
		return nil, err
	}
	if post.Terms, err = s.Terms(ctx, id); err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts returns posts matching the filter and the total match count.
func (s *Service) ListPosts(ctx context.Context, filter model.PostFilter) ([]*model.Post, int, error) {
	return s.store.ListPosts(ctx, filter)
}

// UpdatePost applies upd to a post. The PreUpdate hook runs first, while the
// stored post still holds its previous state.
func (s *Service) UpdatePost(ctx context.Context, req hooks.Request, postID int64, upd PostUpdate) (*model.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.IsRevision() != 0 {
		return nil, fmt.Errorf("post %d: %w", postID, ErrRevisionReadOnly)
	}
	if len(upd.Terms) > 0 {
		ct, ok := s.catalog.ContentType(post.Type)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownContentType, post.Type)
		}
		if err := checkTaxonomies(ct, upd.Terms); err != nil {
			return nil, err
		}
	}

	if upd.Name != nil {
		post.Name = *upd.Name
	}
	if upd.Title != nil {
		post.Title = *upd.Title
	}
	if upd.Content != nil {
		post.Content = *upd.Content
	}
	if upd.Excerpt != nil {
		post.Excerpt = *upd.Excerpt
	}
	if upd.Status != nil {
		post.Status = *upd.Status
	}
	if err := model.ValidatePost(post); err != nil {
		return nil, err
	}

	req.PostID = postID
	ctx = hooks.WithRequest(ctx, req)
	if err := s.bus.PreUpdate.Do(ctx, hooks.PreUpdateEvent{PostID: postID, Request: req}); err != nil {
		s.logger.Warn("pre-update listener failed", "post_id", postID, "err", err)
	}

	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("updating post %d: %w", postID, err)
	}
	if err := s.writeMetaAndTerms(ctx, postID, upd.Meta, upd.Terms); err != nil {
		return nil, err
	}

	loaded, err := s.Load(ctx, postID)
	if err != nil {
		return nil, err
	}
	s.recorder.Emit(ctx, events.TopicPostUpdated, postID, req.Actor, events.PostUpdated{
		Post:    loaded,
		Changes: upd.Changes(),
		Screen:  string(req.Screen),
	})
	return loaded, nil
}

// SubmitEditScreen handles a save from the post edit form: the form token is
// checked, RefererChecked fires with the result, and on success the update
// is applied.
func (s *Service) SubmitEditScreen(ctx context.Context, req hooks.Request, postID int64, token string, upd PostUpdate) (*model.Post, error) {
	req.Screen = hooks.ScreenPostEdit
	req.Action = hooks.ActionEditPost
	req.PostID = postID

	action := EditAction(postID)
	ok := s.VerifyFormToken(action, token)
	ctx = hooks.WithRequest(ctx, req)
	if err := s.bus.RefererChecked.Do(ctx, hooks.RefererCheckedEvent{Action: action, OK: ok, Request: req}); err != nil {
		s.logger.Warn("referer-checked listener failed", "post_id", postID, "err", err)
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	return s.UpdatePost(ctx, req, postID, upd)
}

// DeletePost removes a post together with its revisions and meta.
func (s *Service) DeletePost(ctx context.Context, req hooks.Request, postID int64) error {
	if err := s.store.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.recorder.Emit(ctx, events.TopicPostDeleted, postID, req.Actor, events.PostDeleted{PostID: postID})
	return nil
}

// RestoreRevision copies a revision's core fields back onto its post and
// fires RevisionRestored. The post's current state is snapshotted by the
// update like any other.
func (s *Service) RestoreRevision(ctx context.Context, req hooks.Request, postID, revisionID int64) (*model.Post, error) {
	rev, err := s.store.GetPost(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	if rev.IsRevision() == 0 || rev.ParentID != postID {
		return nil, fmt.Errorf("revision %d of post %d: %w", revisionID, postID, ErrNotRevision)
	}
	if req.Screen == "" {
		req.Screen = hooks.ScreenRevision
	}
	req.Action = hooks.ActionRestore

	title, content, excerpt := rev.Title, rev.Content, rev.Excerpt
	if _, err := s.UpdatePost(ctx, req, postID, PostUpdate{
		Title:   &title,
		Content: &content,
		Excerpt: &excerpt,
	}); err != nil {
		return nil, err
	}

	req.PostID = postID
	ctx = hooks.WithRequest(ctx, req)
	if err := s.bus.RevisionRestored.Do(ctx, hooks.RevisionRestoredEvent{
		PostID:     postID,
		RevisionID: revisionID,
		Request:    req,
	}); err != nil {
		s.logger.Warn("revision-restored listener failed", "post_id", postID, "revision_id", revisionID, "err", err)
	}
	return s.Load(ctx, postID)
}

// SubmitRestore handles the restore form of the revision screen. The form
// token is checked and RefererChecked fires before the revision is restored.
func (s *Service) SubmitRestore(ctx context.Context, req hooks.Request, revisionID int64, token string) (*model.Post, error) {
	rev, err := s.store.GetPost(ctx, revisionID)
	if err != nil {
		return nil, err
	}
	postID := rev.IsRevision()
	if postID == 0 {
		return nil, fmt.Errorf("post %d: %w", revisionID, ErrNotRevision)
	}
	req.Screen = hooks.ScreenRevision
	req.Action = hooks.ActionRestore
	req.PostID = postID

	action := RestoreAction(revisionID)
	ok := s.VerifyFormToken(action, token)
	if err := s.bus.RefererChecked.Do(hooks.WithRequest(ctx, req), hooks.RefererCheckedEvent{Action: action, OK: ok, Request: req}); err != nil {
		s.logger.Warn("referer-checked listener failed", "post_id", postID, "err", err)
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	return s.RestoreRevision(ctx, req, postID, revisionID)
}

// ListRevisions returns the revisions of a post, newest first.
func (s *Service) ListRevisions(ctx context.Context, postID int64) ([]*model.Post, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	revs, _, err := s.store.ListPosts(ctx, model.PostFilter{
		Type:     []model.PostType{model.TypeRevision},
		ParentID: postID,
		Sort:     "-created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("listing revisions of post %d: %w", postID, err)
	}
	return revs, nil
}

// Meta returns every meta value of a post grouped by key.
func (s *Service) Meta(ctx context.Context, postID int64) (map[string][]any, error) {
	entries, err := s.store.GetMeta(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading meta of post %d: %w", postID, err)
	}
	return model.GroupMeta(entries), nil
}

// Terms returns the terms of a post grouped by taxonomy. Revisions are read
// with the taxonomies of their parent's type.
func (s *Service) Terms(ctx context.Context, postID int64) (map[string][]*model.Term, error) {
	ct, err := s.TypeOf(ctx, postID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*model.Term)
	if ct == nil || len(ct.Taxonomies) == 0 {
		return out, nil
	}
	terms, err := s.store.GetObjectTerms(ctx, postID, ct.Taxonomies)
	if err != nil {
		return nil, fmt.Errorf("loading terms of post %d: %w", postID, err)
	}
	for _, t := range terms {
		out[t.Taxonomy] = append(out[t.Taxonomy], t)
	}
	return out, nil
}

// TypeOf returns the content type of a post, resolving revisions to their
// parent's type. It returns nil when the type is not in the catalog.
func (s *Service) TypeOf(ctx context.Context, postID int64) (*model.ContentType, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if parent := post.IsRevision(); parent != 0 {
		if post, err = s.store.GetPost(ctx, parent); err != nil {
			return nil, fmt.Errorf("loading parent of revision %d: %w", postID, err)
		}
	}
	ct, ok := s.catalog.ContentType(post.Type)
	if !ok {
		return nil, nil
	}
	return ct, nil
}

func (s *Service) writeMetaAndTerms(ctx context.Context, postID int64, meta map[string][]any, terms map[string][]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.store.DeleteMeta(ctx, postID, key); err != nil {
			return fmt.Errorf("clearing meta %q of post %d: %w", key, postID, err)
		}
		for _, v := range meta[key] {
			stored, err := model.MaybeSerialize(v)
			if err != nil {
				return err
			}
			if _, err := s.store.AddMeta(ctx, postID, key, stored); err != nil {
				return fmt.Errorf("adding meta %q to post %d: %w", key, postID, err)
			}
		}
	}

	taxonomies := make([]string, 0, len(terms))
	for tax := range terms {
		taxonomies = append(taxonomies, tax)
	}
	sort.Strings(taxonomies)
	for _, tax := range taxonomies {
		if err := s.store.SetObjectTerms(ctx, postID, tax, terms[tax]); err != nil {
			return fmt.Errorf("setting %s terms of post %d: %w", tax, postID, err)
		}
	}
	return nil
}

func checkTaxonomies(ct *model.ContentType, terms map[string][]string) error {
	for tax := range terms {
		if !ct.HasTaxonomy(tax) {
			return fmt.Errorf("%w: %q is not a taxonomy of %q", ErrInvalidTaxonomy, tax, ct.Name)
		}
	}
	return nil
}
