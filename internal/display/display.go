// Package display renders the revision screen: core field rows from the
// host, and tracked field rows when the overlay takes the screen over.
package display

import (
	"context"
	"html"
	"html/template"
	"log/slog"

	"github.com/alfredjeanlab/metarev/internal/fields"
	"github.com/alfredjeanlab/metarev/internal/hooks"
	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/textdiff"
)

// ListenerName is the name of the overlay's RevisionFields filter.
const ListenerName = "metarev.revision_fields"

// Page is the rendered body of a revision screen.
type Page struct {
	Rows      []hooks.Row
	Identical bool
}

// TypeResolver resolves the content type of a post or revision.
type TypeResolver interface {
	TypeOf(ctx context.Context, postID int64) (*model.ContentType, error)
}

// Overlay takes over the revision screen for content types with tracked
// fields.
type Overlay struct {
	types  TypeResolver
	src    fields.Source
	fields *fields.Registry
	logger *slog.Logger
}

// New returns an Overlay.
func New(types TypeResolver, src fields.Source, reg *fields.Registry, logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{types: types, src: src, fields: reg, logger: logger}
}

// Attach registers the overlay on the bus.
func (o *Overlay) Attach(bus *hooks.Bus) {
	bus.RevisionFields.Add(ListenerName, hooks.DefaultPriority, o.filterFields)
}

func (o *Overlay) filterFields(ctx context.Context, core []model.CoreField, screen *hooks.RevisionScreen) ([]model.CoreField, error) {
	if screen.Request.Screen != hooks.ScreenRevision {
		return core, nil
	}
	if screen.Action != hooks.ActionDiff && screen.Action != hooks.ActionView {
		return core, nil
	}
	typ, err := o.screenType(ctx, screen)
	if err != nil {
		return core, err
	}
	if typ == "" || !o.fields.IsTracking(typ) {
		return core, nil
	}

	page := o.Render(ctx, screen, typ, core)
	screen.Rows = append(screen.Rows, page.Rows...)
	screen.Identical = page.Identical
	screen.TakenOver = true
	return []model.CoreField{}, nil
}

func (o *Overlay) screenType(ctx context.Context, screen *hooks.RevisionScreen) (model.PostType, error) {
	if screen.Post != nil {
		return screen.Post.Type, nil
	}
	var id int64
	switch {
	case screen.Revision != nil:
		id = screen.Revision.ID
	case screen.Right != nil:
		id = screen.Right.ID
	default:
		return "", nil
	}
	ct, err := o.types.TypeOf(ctx, id)
	if err != nil || ct == nil {
		return "", err
	}
	return ct.Name, nil
}

// Render builds the rows of a revision screen: the core fields first, then
// every tracked field of typ grouped by kind. Rows whose renderer returns
// nothing are left out.
func (o *Overlay) Render(ctx context.Context, screen *hooks.RevisionScreen, typ model.PostType, core []model.CoreField) *Page {
	page := &Page{Rows: CoreRows(screen, core)}
	page.Identical = screen.IsDiff() && len(page.Rows) == 0

	for _, d := range o.fields.Ordered(typ) {
		out, err := o.renderField(ctx, screen, d)
		if err != nil {
			o.logger.Warn("rendering tracked field failed",
				"field", d.Name, "kind", d.Kind, "err", err)
			continue
		}
		if out == "" {
			continue
		}
		page.Rows = append(page.Rows, hooks.Row{Field: string(d.Kind) + ":" + d.Name, Label: d.Label, HTML: out})
		page.Identical = false
	}
	return page
}

func (o *Overlay) renderField(ctx context.Context, screen *hooks.RevisionScreen, d *fields.Descriptor) (template.HTML, error) {
	if screen.IsDiff() {
		if screen.Left == nil || screen.Right == nil {
			return "", nil
		}
		left, err := o.fields.Value(ctx, o.src, screen.Left.ID, d)
		if err != nil {
			return "", err
		}
		right, err := o.fields.Value(ctx, o.src, screen.Right.ID, d)
		if err != nil {
			return "", err
		}
		return d.Renderer(left, right), nil
	}
	if screen.Revision == nil {
		return "", nil
	}
	v, err := o.fields.Value(ctx, o.src, screen.Revision.ID, d)
	if err != nil {
		return "", err
	}
	return d.Renderer(v), nil
}

// CoreRows renders the core fields of a revision screen: diff tables for
// changed fields in diff mode, escaped values in view mode.
func CoreRows(screen *hooks.RevisionScreen, core []model.CoreField) []hooks.Row {
	var rows []hooks.Row
	for _, f := range core {
		var out string
		if screen.IsDiff() {
			if screen.Left == nil || screen.Right == nil {
				continue
			}
			out = textdiff.HTML(screen.Left.CoreValue(f.Name), screen.Right.CoreValue(f.Name))
			if out == "" {
				continue
			}
		} else {
			if screen.Revision == nil {
				continue
			}
			out = html.EscapeString(screen.Revision.CoreValue(f.Name))
		}
		rows = append(rows, hooks.Row{Field: f.Name, Label: f.Label, HTML: template.HTML(out)})
	}
	return rows
}

// Screen runs the RevisionFields filter for a screen and, when no listener
// took it over, fills in the core rows the host renders itself.
func Screen(ctx context.Context, bus *hooks.Bus, screen *hooks.RevisionScreen, logger *slog.Logger) {
	core, err := bus.RevisionFields.Apply(ctx, model.CoreFields(), screen)
	if err != nil && logger != nil {
		logger.Warn("revision fields filter failed", "err", err)
	}
	if screen.TakenOver {
		return
	}
	screen.Rows = CoreRows(screen, core)
	screen.Identical = screen.IsDiff() && len(screen.Rows) == 0
}
