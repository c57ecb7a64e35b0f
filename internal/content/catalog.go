package content

import (
	"sync"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// DefaultTypes returns the content types available when no fields file
// declares any.
func DefaultTypes() []model.ContentType {
	return []model.ContentType{
		{Name: "post", Label: "Posts", Revisions: true, Taxonomies: []string{"category", "post_tag"}},
		{Name: "page", Label: "Pages", Revisions: true},
	}
}

// Catalog is the set of registered content types.
type Catalog struct {
	mu    sync.RWMutex
	types map[model.PostType]*model.ContentType
	order []model.PostType
}

// NewCatalog returns a catalog holding the given types.
func NewCatalog(types ...model.ContentType) *Catalog {
	c := &Catalog{types: make(map[model.PostType]*model.ContentType)}
	for _, ct := range types {
		c.Add(ct)
	}
	return c
}

// Add registers or replaces a content type. The reserved revision type
// cannot be registered.
func (c *Catalog) Add(ct model.ContentType) bool {
	if ct.Name == "" || ct.Name == model.TypeRevision {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.types[ct.Name]; !ok {
		c.order = append(c.order, ct.Name)
	}
	stored := ct
	stored.Taxonomies = append([]string(nil), ct.Taxonomies...)
	c.types[ct.Name] = &stored
	return true
}

// ContentType returns a copy of the named content type.
func (c *Catalog) ContentType(name model.PostType) (*model.ContentType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.types[name]
	if !ok {
		return nil, false
	}
	out := *ct
	out.Taxonomies = append([]string(nil), ct.Taxonomies...)
	return &out, true
}

// Types returns every content type in registration order.
func (c *Catalog) Types() []model.ContentType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ContentType, 0, len(c.order))
	for _, name := range c.order {
		ct := *c.types[name]
		ct.Taxonomies = append([]string(nil), ct.Taxonomies...)
		out = append(out, ct)
	}
	return out
}
