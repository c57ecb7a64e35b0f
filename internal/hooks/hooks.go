// Package hooks provides the lifecycle extension points of the content host.
// Components register named, prioritized listeners against typed actions and
// filters instead of relying on ambient request state.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"sync"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// Screen identifies the surface a request came from.
type Screen string

const (
	ScreenPostEdit Screen = "post-edit"
	ScreenRevision Screen = "revision"
	ScreenAPI      Screen = "api"
)

// Action names carried on a Request.
const (
	ActionEditPost = "editpost"
	ActionDiff     = "diff"
	ActionView     = "view"
	ActionRestore  = "restore"
	ActionUpdate   = "update"
)

// Default listener priority. Lower priorities run first.
const DefaultPriority = 10

// Request is the typed request context handed to every listener.
type Request struct {
	Screen    Screen `json:"screen"`
	Action    string `json:"action,omitempty"`
	Autosave  bool   `json:"autosave,omitempty"`
	PostID    int64  `json:"post_id,omitempty"`
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// IsPostEditScreen reports whether the request is a submit of the post edit form.
func (r Request) IsPostEditScreen() bool {
	return r.Screen == ScreenPostEdit && r.Action == ActionEditPost
}

// PreUpdateEvent fires before a post's fields are written.
type PreUpdateEvent struct {
	PostID  int64
	Request Request
}

// RefererCheckedEvent fires after the edit form token has been checked.
type RefererCheckedEvent struct {
	Action  string
	OK      bool
	Request Request
}

// RevisionRestoredEvent fires after a revision's core fields were copied
// back onto its parent.
type RevisionRestoredEvent struct {
	PostID     int64
	RevisionID int64
	Request    Request
}

// Row is one rendered line of the revision screen.
type Row struct {
	Field string        `json:"field"`
	Label string        `json:"label"`
	HTML  template.HTML `json:"html"`
}

// RevisionScreen describes the revision page being rendered. In view mode
// Revision is set; in diff mode Left and Right are. Filters that take over
// rendering append to Rows and set TakenOver.
type RevisionScreen struct {
	Action   string
	Post     *model.Post
	Revision *model.Post
	Left     *model.Post
	Right    *model.Post
	Request  Request

	Rows      []Row
	TakenOver bool
	Identical bool
}

// IsDiff reports whether the screen compares two revisions.
func (s *RevisionScreen) IsDiff() bool {
	return s.Action == ActionDiff
}

// ListenerFunc handles a lifecycle event.
type ListenerFunc[E any] func(ctx context.Context, event E) error

// FilterFunc transforms a value, with access to the event payload.
type FilterFunc[V, E any] func(ctx context.Context, value V, event E) (V, error)

type entry[F any] struct {
	name     string
	priority int
	seq      int
	fn       F
}

// registry holds named, prioritized callbacks shared by Action and Filter.
type registry[F any] struct {
	mu      sync.RWMutex
	entries []entry[F]
	seq     int
}

func (r *registry[F]) add(name string, priority int, fn F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	for i := range r.entries {
		if r.entries[i].name == name {
			r.entries[i] = entry[F]{name: name, priority: priority, seq: r.seq, fn: fn}
			return
		}
	}
	r.entries = append(r.entries, entry[F]{name: name, priority: priority, seq: r.seq, fn: fn})
}

func (r *registry[F]) remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *registry[F]) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.name == name {
			return true
		}
	}
	return false
}

// snapshot returns the callbacks ordered by priority, then registration order.
func (r *registry[F]) snapshot() []entry[F] {
	r.mu.RLock()
	out := make([]entry[F], len(r.entries))
	copy(out, r.entries)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (r *registry[F]) names() []string {
	snap := r.snapshot()
	names := make([]string, len(snap))
	for i, e := range snap {
		names[i] = e.name
	}
	return names
}

// dispatch tracks listeners suppressed while one Do or Apply call runs.
type dispatch struct {
	mu      sync.Mutex
	skipped map[string]bool
}

type dispatchKey struct{}

// Skip suppresses the named listener for the rest of the current dispatch.
// It reports false when called outside a dispatch.
func Skip(ctx context.Context, name string) bool {
	d, ok := ctx.Value(dispatchKey{}).(*dispatch)
	if !ok {
		return false
	}
	d.mu.Lock()
	d.skipped[name] = true
	d.mu.Unlock()
	return true
}

func (d *dispatch) isSkipped(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.skipped[name]
}

func beginDispatch(ctx context.Context) (context.Context, *dispatch) {
	d := &dispatch{skipped: make(map[string]bool)}
	return context.WithValue(ctx, dispatchKey{}, d), d
}

// Action is an ordered set of listeners for one lifecycle point.
type Action[E any] struct {
	name string
	reg  registry[ListenerFunc[E]]
}

// NewAction returns an empty action with the given hook name.
func NewAction[E any](name string) *Action[E] {
	return &Action[E]{name: name}
}

// Name returns the hook name.
func (a *Action[E]) Name() string { return a.name }

// Add registers a listener. Registering an existing name replaces it.
func (a *Action[E]) Add(name string, priority int, fn ListenerFunc[E]) {
	a.reg.add(name, priority, fn)
}

// Remove unregisters a listener, reporting whether it was present.
// Listeners removed while a dispatch is running are not called by it.
func (a *Action[E]) Remove(name string) bool {
	return a.reg.remove(name)
}

// Has reports whether a listener with the given name is registered.
func (a *Action[E]) Has(name string) bool {
	return a.reg.has(name)
}

// Listeners returns the registered listener names in call order.
func (a *Action[E]) Listeners() []string {
	return a.reg.names()
}

// Do calls every listener in order. A failing listener does not stop the
// others; all errors are joined into the result.
func (a *Action[E]) Do(ctx context.Context, event E) error {
	ctx, d := beginDispatch(ctx)
	var errs []error
	for _, e := range a.reg.snapshot() {
		if d.isSkipped(e.name) || !a.reg.has(e.name) {
			continue
		}
		if err := e.fn(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", a.name, e.name, err))
		}
	}
	return errors.Join(errs...)
}

// Filter is an ordered chain of value transformers.
type Filter[V, E any] struct {
	name string
	reg  registry[FilterFunc[V, E]]
}

// NewFilter returns an empty filter with the given hook name.
func NewFilter[V, E any](name string) *Filter[V, E] {
	return &Filter[V, E]{name: name}
}

// Name returns the hook name.
func (f *Filter[V, E]) Name() string { return f.name }

// Add registers a filter function. Registering an existing name replaces it.
func (f *Filter[V, E]) Add(name string, priority int, fn FilterFunc[V, E]) {
	f.reg.add(name, priority, fn)
}

// Remove unregisters a filter function, reporting whether it was present.
func (f *Filter[V, E]) Remove(name string) bool {
	return f.reg.remove(name)
}

// Apply threads value through every filter function in order. A failing
// function leaves the value unchanged and the chain continues.
func (f *Filter[V, E]) Apply(ctx context.Context, value V, event E) (V, error) {
	ctx, d := beginDispatch(ctx)
	var errs []error
	for _, e := range f.reg.snapshot() {
		if d.isSkipped(e.name) || !f.reg.has(e.name) {
			continue
		}
		next, err := e.fn(ctx, value, event)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %s: %w", f.name, e.name, err))
			continue
		}
		value = next
	}
	return value, errors.Join(errs...)
}

// Hook names.
const (
	HookPreUpdate        = "pre_update"
	HookRefererChecked   = "referer_checked"
	HookRevisionRestored = "revision_restored"
	HookRevisionFields   = "revision_fields"
)

// Bus groups the host's lifecycle hooks.
type Bus struct {
	PreUpdate        *Action[PreUpdateEvent]
	RefererChecked   *Action[RefererCheckedEvent]
	RevisionRestored *Action[RevisionRestoredEvent]
	RevisionFields   *Filter[[]model.CoreField, *RevisionScreen]
}

// NewBus returns a bus with no listeners.
func NewBus() *Bus {
	return &Bus{
		PreUpdate:        NewAction[PreUpdateEvent](HookPreUpdate),
		RefererChecked:   NewAction[RefererCheckedEvent](HookRefererChecked),
		RevisionRestored: NewAction[RevisionRestoredEvent](HookRevisionRestored),
		RevisionFields:   NewFilter[[]model.CoreField, *RevisionScreen](HookRevisionFields),
	}
}

type requestKey struct{}

// WithRequest returns a context carrying the request, for host primitives
// called from listeners.
func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// RequestFrom returns the request carried by ctx, if any.
func RequestFrom(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey{}).(Request)
	return req, ok
}
