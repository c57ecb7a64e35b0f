// Package fields holds the registry of tracked fields: the meta keys and
// taxonomies whose values are versioned alongside a post's core fields.
//
// A Registry is built once during startup (from code or a fields file) and
// handed to every component that needs field lookups.
package fields

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// Registration errors. Register wraps one of these; the registry is left
// unchanged whenever an error is returned.
var (
	ErrUnknownContentType    = errors.New("unknown content type")
	ErrRevisionsUnsupported  = errors.New("content type does not support revisions")
	ErrTaxonomyNotAssociated = errors.New("taxonomy not associated with content type")
	ErrNoRenderer            = errors.New("no usable renderer")
	ErrUnknownKind           = errors.New("unknown field kind")
)

// TypeLookup resolves content types by name.
type TypeLookup interface {
	ContentType(name model.PostType) (*model.ContentType, bool)
}

// Field is a registration request.
type Field struct {
	ContentType model.PostType
	Kind        model.FieldKind
	Name        string
	Label       string
	// Renderer takes precedence over RendererName. When both are empty the
	// kind's default renderer is used.
	Renderer     Renderer
	RendererName string
}

// Descriptor is a registered tracked field.
type Descriptor struct {
	ContentType  model.PostType
	Kind         model.FieldKind
	Name         string
	Label        string
	Renderer     Renderer
	RendererName string
}

// Tracked returns the serializable form of the descriptor.
func (d *Descriptor) Tracked() model.TrackedField {
	return model.TrackedField{
		Name:        d.Name,
		Label:       d.Label,
		Kind:        d.Kind,
		ContentType: d.ContentType,
		Renderer:    d.RendererName,
	}
}

type kindFields struct {
	names []string
	desc  map[string]*Descriptor
}

type typeFields struct {
	kinds  []model.FieldKind
	byKind map[model.FieldKind]*kindFields
}

// Registry maps content type -> field kind -> field name -> descriptor,
// remembering registration order at each level.
type Registry struct {
	mu        sync.RWMutex
	types     TypeLookup
	kinds     map[model.FieldKind]*Kind
	renderers map[string]Renderer
	tracked   map[model.PostType]*typeFields
	observers []func(*Descriptor)
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used to report rejected registrations.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithObserver adds a callback run after every successful registration.
func WithObserver(fn func(*Descriptor)) Option {
	return func(r *Registry) { r.observers = append(r.observers, fn) }
}

// New returns a registry validating against types, with the built-in meta
// and taxonomy kinds and the named renderers installed.
func New(types TypeLookup, opts ...Option) *Registry {
	r := &Registry{
		types:     types,
		kinds:     make(map[model.FieldKind]*Kind),
		renderers: make(map[string]Renderer),
		tracked:   make(map[model.PostType]*typeFields),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	for name, fn := range builtinRenderers() {
		r.renderers[name] = fn
	}
	r.kinds[model.FieldKindMeta] = MetaKind()
	r.kinds[model.FieldKindTaxonomy] = TaxonomyKind()
	return r
}

// RegisterKind adds or replaces a field kind.
func (r *Registry) RegisterKind(k *Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.Name] = k
}

// Kind returns the registered kind with the given name.
func (r *Registry) Kind(name model.FieldKind) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// RegisterRenderer makes a renderer available by name to fields files.
func (r *Registry) RegisterRenderer(name string, fn Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[name] = fn
}

// Register validates f and records it. Registering the same content type,
// kind and name again replaces the descriptor but keeps its position.
func (r *Registry) Register(f Field) error {
	d, err := r.register(f)
	if err != nil {
		r.logger.Warn("tracked field rejected",
			"content_type", f.ContentType, "kind", f.Kind, "field", f.Name, "err", err)
		return err
	}
	for _, fn := range r.observers {
		fn(d)
	}
	return nil
}

func (r *Registry) register(f Field) (*Descriptor, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("register %s field: name is required", f.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kind, ok := r.kinds[f.Kind]
	if !ok {
		return nil, fmt.Errorf("register %q: %w %q", f.Name, ErrUnknownKind, f.Kind)
	}
	ct, ok := r.types.ContentType(f.ContentType)
	if !ok {
		return nil, fmt.Errorf("register %q: %w %q", f.Name, ErrUnknownContentType, f.ContentType)
	}
	if !ct.Revisions {
		return nil, fmt.Errorf("register %q: %w: %q", f.Name, ErrRevisionsUnsupported, f.ContentType)
	}
	if kind.Validate != nil {
		if err := kind.Validate(ct, f.Name); err != nil {
			return nil, fmt.Errorf("register %q: %w", f.Name, err)
		}
	}

	renderer, rendererName := f.Renderer, f.RendererName
	switch {
	case renderer != nil:
	case rendererName != "":
		named, ok := r.renderers[rendererName]
		if !ok {
			return nil, fmt.Errorf("register %q: %w: renderer %q is not registered", f.Name, ErrNoRenderer, rendererName)
		}
		renderer = named
	case kind.DefaultRenderer != nil:
		renderer, rendererName = kind.DefaultRenderer, kind.DefaultRendererName
	default:
		return nil, fmt.Errorf("register %q: %w: kind %q has no default", f.Name, ErrNoRenderer, f.Kind)
	}

	label := f.Label
	if label == "" {
		label = f.Name
	}
	d := &Descriptor{
		ContentType:  f.ContentType,
		Kind:         f.Kind,
		Name:         f.Name,
		Label:        label,
		Renderer:     renderer,
		RendererName: rendererName,
	}

	tf, ok := r.tracked[f.ContentType]
	if !ok {
		tf = &typeFields{byKind: make(map[model.FieldKind]*kindFields)}
		r.tracked[f.ContentType] = tf
	}
	kf, ok := tf.byKind[f.Kind]
	if !ok {
		kf = &kindFields{desc: make(map[string]*Descriptor)}
		tf.byKind[f.Kind] = kf
		tf.kinds = append(tf.kinds, f.Kind)
	}
	if _, exists := kf.desc[f.Name]; !exists {
		kf.names = append(kf.names, f.Name)
	}
	kf.desc[f.Name] = d
	return d, nil
}

// IsTracking reports whether any field is tracked for the content type. When
// kinds are given, only fields of those kinds count.
func (r *Registry) IsTracking(contentType model.PostType, kinds ...model.FieldKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tf, ok := r.tracked[contentType]
	if !ok {
		return false
	}
	if len(kinds) == 0 {
		return len(tf.kinds) > 0
	}
	for _, k := range kinds {
		if kf, ok := tf.byKind[k]; ok && len(kf.names) > 0 {
			return true
		}
	}
	return false
}

// Kinds returns the kinds with tracked fields for the content type, in the
// order they were first registered.
func (r *Registry) Kinds(contentType model.PostType) []model.FieldKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tf, ok := r.tracked[contentType]
	if !ok {
		return nil
	}
	out := make([]model.FieldKind, len(tf.kinds))
	copy(out, tf.kinds)
	return out
}

// FieldNames returns the tracked field names of one kind in registration order.
func (r *Registry) FieldNames(contentType model.PostType, kind model.FieldKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kf := r.kindFields(contentType, kind)
	if kf == nil {
		return nil
	}
	out := make([]string, len(kf.names))
	copy(out, kf.names)
	return out
}

// Descriptors returns the tracked fields of one kind keyed by name.
func (r *Registry) Descriptors(contentType model.PostType, kind model.FieldKind) map[string]*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kf := r.kindFields(contentType, kind)
	if kf == nil {
		return nil
	}
	out := make(map[string]*Descriptor, len(kf.desc))
	for name, d := range kf.desc {
		out[name] = d
	}
	return out
}

// Descriptor returns a single tracked field.
func (r *Registry) Descriptor(contentType model.PostType, kind model.FieldKind, name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kf := r.kindFields(contentType, kind)
	if kf == nil {
		return nil, false
	}
	d, ok := kf.desc[name]
	return d, ok
}

func (r *Registry) kindFields(contentType model.PostType, kind model.FieldKind) *kindFields {
	tf, ok := r.tracked[contentType]
	if !ok {
		return nil
	}
	return tf.byKind[kind]
}

// Ordered returns every tracked field of the content type grouped by kind,
// then by name, both in registration order.
func (r *Registry) Ordered(contentType model.PostType) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tf, ok := r.tracked[contentType]
	if !ok {
		return nil
	}
	var out []*Descriptor
	for _, k := range tf.kinds {
		kf := tf.byKind[k]
		for _, name := range kf.names {
			out = append(out, kf.desc[name])
		}
	}
	return out
}

// Tracked returns the serializable descriptors of the content type in
// display order.
func (r *Registry) Tracked(contentType model.PostType) []model.TrackedField {
	ordered := r.Ordered(contentType)
	out := make([]model.TrackedField, 0, len(ordered))
	for _, d := range ordered {
		out = append(out, d.Tracked())
	}
	return out
}

// ContentTypes returns the content types with at least one tracked field,
// sorted by name.
func (r *Registry) ContentTypes() []model.PostType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.PostType, 0, len(r.tracked))
	for ct := range r.tracked {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
