// Package revision versions tracked meta and taxonomy terms alongside the
// core fields of each revision, and restores them with the revision.
package revision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alfredjeanlab/metarev/internal/content"
	"github.com/alfredjeanlab/metarev/internal/events"
	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
)

// Listener names registered by Attach.
const (
	TriggerListener    = "metarev.version"
	EditScreenListener = "metarev.version_edit_screen"
	RestoreListener    = "metarev.restore"
)

// TriggerPriority runs the trigger ahead of the host's own revision save.
const TriggerPriority = 1

// Host is the part of the content host the versioner calls back into.
type Host interface {
	SaveRevision(ctx context.Context, postID int64) (int64, error)
	TypeOf(ctx context.Context, postID int64) (*model.ContentType, error)
}

// Store is the meta and term storage the versioner reads and writes.
type Store interface {
	GetMeta(ctx context.Context, postID int64) ([]*model.MetaEntry, error)
	AddMeta(ctx context.Context, postID int64, key, value string) (int64, error)
	DeleteMeta(ctx context.Context, postID int64, key string) error
	GetObjectTerms(ctx context.Context, postID int64, taxonomies []string) ([]*model.Term, error)
	SetObjectTerms(ctx context.Context, postID int64, taxonomy string, slugs []string) error
}

// Meta maps tracked meta keys to their values in storage order.
type Meta map[string][]any

// Keys returns the meta keys sorted by name.
func (m Meta) Keys() []string {
	return sortedKeys(m)
}

// Terms maps tracked taxonomies to the slugs of the assigned terms.
type Terms map[string][]string

// Taxonomies returns the taxonomies sorted by name.
func (t Terms) Taxonomies() []string {
	return sortedKeys(t)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Versioner copies tracked fields onto new revisions and back on restore.
type Versioner struct {
	host     Host
	store    Store
	fields   *fields.Registry
	recorder *events.Recorder
	logger   *slog.Logger
}

// Option configures a Versioner.
type Option func(*Versioner)

// WithLogger sets the versioner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Versioner) { v.logger = logger }
}

// WithRecorder sets where revision events are recorded and published.
func WithRecorder(r *events.Recorder) Option {
	return func(v *Versioner) { v.recorder = r }
}

// New returns a Versioner.
func New(host Host, st Store, reg *fields.Registry, opts ...Option) *Versioner {
	v := &Versioner{
		host:   host,
		store:  st,
		fields: reg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Attach registers the versioner's listeners on the bus.
func (v *Versioner) Attach(bus *hooks.Bus) {
	bus.PreUpdate.Add(TriggerListener, TriggerPriority, v.onPreUpdate)
	bus.RefererChecked.Add(EditScreenListener, hooks.DefaultPriority, v.onRefererChecked)
	bus.RevisionRestored.Add(RestoreListener, hooks.DefaultPriority, v.onRevisionRestored)
}

// onPreUpdate replaces the host's revision save for this update. Outside
// the edit screen the revision, with its tracked fields, is taken here.
func (v *Versioner) onPreUpdate(ctx context.Context, ev hooks.PreUpdateEvent) error {
	hooks.Skip(ctx, content.SaveRevisionListener)
	if ev.Request.IsPostEditScreen() {
		return nil
	}
	_, err := v.VersionPostMetaAndTerms(ctx, ev.PostID)
	return err
}

// onRefererChecked takes the revision for edit screen saves once the form
// token has been accepted.
func (v *Versioner) onRefererChecked(ctx context.Context, ev hooks.RefererCheckedEvent) error {
	req := ev.Request
	if req.Autosave || !ev.OK || !req.IsPostEditScreen() || req.PostID == 0 {
		return nil
	}
	if ev.Action != content.EditAction(req.PostID) {
		return nil
	}
	_, err := v.VersionPostMetaAndTerms(ctx, req.PostID)
	return err
}

func (v *Versioner) onRevisionRestored(ctx context.Context, ev hooks.RevisionRestoredEvent) error {
	return v.Restore(ctx, ev.PostID, ev.RevisionID, ev.Request.Actor)
}

// VersionPostMetaAndTerms gathers the tracked fields of a post, asks the host
// to save a revision, and copies the gathered values onto it. It returns the
// revision id, or 0 when the host saved no revision.
func (v *Versioner) VersionPostMetaAndTerms(ctx context.Context, postID int64) (int64, error) {
	meta, err := v.GatherTrackedMeta(ctx, postID)
	if err != nil {
		return 0, err
	}
	terms, err := v.GatherTrackedTerms(ctx, postID)
	if err != nil {
		return 0, err
	}

	revisionID, err := v.host.SaveRevision(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("saving revision of post %d: %w", postID, err)
	}
	if revisionID == 0 {
		return 0, nil
	}

	if err := v.CopyMeta(ctx, meta, revisionID); err != nil {
		return revisionID, err
	}
	if err := v.CopyTaxonomy(ctx, terms, revisionID); err != nil {
		return revisionID, err
	}

	req, _ := hooks.RequestFrom(ctx)
	v.logger.Debug("versioned tracked fields",
		"post_id", postID, "revision_id", revisionID, "meta_keys", len(meta), "taxonomies", len(terms))
	v.recorder.Emit(ctx, events.TopicRevisionCreated, postID, req.Actor, events.RevisionCreated{
		PostID:     postID,
		RevisionID: revisionID,
		MetaKeys:   meta.Keys(),
		Taxonomies: terms.Taxonomies(),
	})
	return revisionID, nil
}

// CopyMeta appends every value of every key onto the revision.
func (v *Versioner) CopyMeta(ctx context.Context, meta Meta, revisionID int64) error {
	for _, key := range meta.Keys() {
		if err := v.addValues(ctx, revisionID, key, meta[key]); err != nil {
			return err
		}
	}
	return nil
}

func (v *Versioner) addValues(ctx context.Context, postID int64, key string, values []any) error {
	for _, value := range values {
		stored, err := model.MaybeSerialize(value)
		if err != nil {
			return fmt.Errorf("meta %q: %w", key, err)
		}
		if _, err := v.store.AddMeta(ctx, postID, key, stored); err != nil {
			return fmt.Errorf("adding meta %q to post %d: %w", key, postID, err)
		}
	}
	return nil
}

// CopyTaxonomy replaces the revision's terms in each taxonomy.
func (v *Versioner) CopyTaxonomy(ctx context.Context, terms Terms, revisionID int64) error {
	for _, tax := range terms.Taxonomies() {
		if err := v.store.SetObjectTerms(ctx, revisionID, tax, terms[tax]); err != nil {
			return fmt.Errorf("setting %s terms of post %d: %w", tax, revisionID, err)
		}
	}
	return nil
}

// trackedType resolves the content type of a post or revision and reports
// whether it has tracked fields of kind.
func (v *Versioner) trackedType(ctx context.Context, postID int64, kind model.FieldKind) (model.PostType, bool, error) {
	ct, err := v.host.TypeOf(ctx, postID)
	if err != nil {
		return "", false, fmt.Errorf("resolving type of post %d: %w", postID, err)
	}
	if ct == nil || !v.fields.IsTracking(ct.Name, kind) {
		return "", false, nil
	}
	return ct.Name, true, nil
}

// GatherTrackedMeta returns the post's values of tracked meta keys,
// unserialized. Keys without values are absent.
func (v *Versioner) GatherTrackedMeta(ctx context.Context, postID int64) (Meta, error) {
	out := make(Meta)
	typ, ok, err := v.trackedType(ctx, postID, model.FieldKindMeta)
	if err != nil || !ok {
		return out, err
	}
	tracked := make(map[string]bool)
	for _, name := range v.fields.FieldNames(typ, model.FieldKindMeta) {
		tracked[name] = true
	}
	entries, err := v.store.GetMeta(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("loading meta of post %d: %w", postID, err)
	}
	for _, e := range entries {
		if tracked[e.Key] {
			out[e.Key] = append(out[e.Key], model.MaybeUnserialize(e.Value))
		}
	}
	return out, nil
}

// GatherTrackedTerms returns the slugs of the post's terms in tracked
// taxonomies. Taxonomies without terms are absent.
func (v *Versioner) GatherTrackedTerms(ctx context.Context, postID int64) (Terms, error) {
	out := make(Terms)
	typ, ok, err := v.trackedType(ctx, postID, model.FieldKindTaxonomy)
	if err != nil || !ok {
		return out, err
	}
	terms, err := v.store.GetObjectTerms(ctx, postID, v.fields.FieldNames(typ, model.FieldKindTaxonomy))
	if err != nil {
		return nil, fmt.Errorf("loading terms of post %d: %w", postID, err)
	}
	for _, t := range terms {
		out[t.Taxonomy] = append(out[t.Taxonomy], t.Slug)
	}
	return out, nil
}

// Restore copies the tracked fields of a revision back onto its post. Only
// the taxonomies and meta keys the revision recorded are replaced; anything
// it has no values for is left as it is on the post.
func (v *Versioner) Restore(ctx context.Context, postID, revisionID int64, actor string) error {
	ct, err := v.host.TypeOf(ctx, revisionID)
	if err != nil {
		return fmt.Errorf("resolving type of revision %d: %w", revisionID, err)
	}
	if ct == nil || !v.fields.IsTracking(ct.Name) {
		return nil
	}

	terms, err := v.GatherTrackedTerms(ctx, revisionID)
	if err != nil {
		return err
	}
	taxonomies := terms.Taxonomies()
	for _, tax := range taxonomies {
		if err := v.store.SetObjectTerms(ctx, postID, tax, terms[tax]); err != nil {
			return fmt.Errorf("restoring %s terms of post %d: %w", tax, postID, err)
		}
	}

	meta, err := v.GatherTrackedMeta(ctx, revisionID)
	if err != nil {
		return err
	}
	keys := meta.Keys()
	for _, key := range keys {
		if err := v.store.DeleteMeta(ctx, postID, key); err != nil {
			return fmt.Errorf("clearing meta %q of post %d: %w", key, postID, err)
		}
		if err := v.addValues(ctx, postID, key, meta[key]); err != nil {
			return err
		}
	}

	v.logger.Info("restored tracked fields", "post_id", postID, "revision_id", revisionID)
	v.recorder.Emit(ctx, events.TopicRevisionRestored, postID, actor, events.RevisionRestored{
		PostID:     postID,
		RevisionID: revisionID,
		MetaKeys:   keys,
		Taxonomies: taxonomies,
	})
	return nil
}
