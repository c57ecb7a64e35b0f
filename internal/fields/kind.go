package fields

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// Source is the read side of the store the accessors need.
type Source interface {
	GetMetaValues(ctx context.Context, postID int64, key string) ([]string, error)
	GetObjectTerms(ctx context.Context, postID int64, taxonomies []string) ([]*model.Term, error)
}

// Accessor reads the current value of a tracked field from a post.
type Accessor func(ctx context.Context, src Source, postID int64, name string) (any, error)

// Kind describes one storage family of tracked fields.
type Kind struct {
	Name                model.FieldKind
	Value               Accessor
	DefaultRenderer     Renderer
	DefaultRendererName string
	// Validate is an optional registration check for fields of this kind.
	Validate func(ct *model.ContentType, name string) error
}

// MetaKind returns the built-in meta kind.
func MetaKind() *Kind {
	return &Kind{
		Name:                model.FieldKindMeta,
		Value:               metaValue,
		DefaultRenderer:     RenderMeta,
		DefaultRendererName: "meta",
	}
}

// TaxonomyKind returns the built-in taxonomy kind.
func TaxonomyKind() *Kind {
	return &Kind{
		Name:                model.FieldKindTaxonomy,
		Value:               taxonomyValue,
		DefaultRenderer:     RenderTerms,
		DefaultRendererName: "terms",
		Validate: func(ct *model.ContentType, name string) error {
			if !ct.HasTaxonomy(name) {
				return fmt.Errorf("%w: %q is not a taxonomy of %q", ErrTaxonomyNotAssociated, name, ct.Name)
			}
			return nil
		},
	}
}

// metaValue returns the single stored value when there is exactly one, the
// full list when there are several, and "" when the key is absent.
func metaValue(ctx context.Context, src Source, postID int64, key string) (any, error) {
	raw, err := src.GetMetaValues(ctx, postID, key)
	if err != nil {
		return nil, fmt.Errorf("get meta %q: %w", key, err)
	}
	switch len(raw) {
	case 0:
		return "", nil
	case 1:
		return model.MaybeUnserialize(raw[0]), nil
	}
	values := make([]any, len(raw))
	for i, s := range raw {
		values[i] = model.MaybeUnserialize(s)
	}
	return values, nil
}

func taxonomyValue(ctx context.Context, src Source, postID int64, taxonomy string) (any, error) {
	terms, err := src.GetObjectTerms(ctx, postID, []string{taxonomy})
	if err != nil {
		return nil, fmt.Errorf("get %s terms: %w", taxonomy, err)
	}
	if terms == nil {
		terms = []*model.Term{}
	}
	return terms, nil
}

// Value reads the current value of a tracked field using its kind's accessor.
func (r *Registry) Value(ctx context.Context, src Source, postID int64, d *Descriptor) (any, error) {
	k, ok := r.Kind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, d.Kind)
	}
	return k.Value(ctx, src, postID, d.Name)
}
