package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/store"
)

// queries implements every store.Store method that does not depend on
// whether db is a pool or a transaction.
type queries struct {
	db dbtx
}

const postColumns = `id, type, status, name, title, content, excerpt, parent_id, author, created_at, updated_at`

func (q queries) CreatePost(ctx context.Context, p *model.Post) error {
	return q.db.QueryRowContext(ctx, `
		INSERT INTO posts (type, status, name, title, content, excerpt, parent_id, author)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		string(p.Type), string(p.Status), nullString(p.Name), p.Title, p.Content, p.Excerpt,
		nullID(p.ParentID), nullString(p.Author),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (q queries) GetPost(ctx context.Context, id int64) (*model.Post, error) {
	var r postRow
	err := q.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.post(), nil
}

// args numbers positional parameters as they are added.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func (a *args) in(vals []string) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = a.add(v)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

func (q queries) ListPosts(ctx context.Context, f model.PostFilter) ([]*model.Post, int, error) {
	var (
		params args
		where  []string
	)
	if len(f.Type) > 0 {
		types := make([]string, len(f.Type))
		for i, t := range f.Type {
			types[i] = string(t)
		}
		where = append(where, "type IN "+params.in(types))
	}
	if len(f.Status) > 0 {
		statuses := make([]string, len(f.Status))
		for i, s := range f.Status {
			statuses[i] = string(s)
		}
		where = append(where, "status IN "+params.in(statuses))
	}
	if f.ParentID != 0 {
		where = append(where, "parent_id = "+params.add(f.ParentID))
	}
	if f.Search != "" {
		where = append(where, "title ILIKE '%' || "+params.add(f.Search)+" || '%'")
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) OVER() AS total_count, " + postColumns + " FROM posts")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + orderBy(f.Sort))
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + params.add(f.Limit))
	}
	if f.Offset > 0 {
		b.WriteString(" OFFSET " + params.add(f.Offset))
	}

	rows, err := q.db.QueryContext(ctx, b.String(), params...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var (
		posts []*model.Post
		total int
	)
	for rows.Next() {
		var r postRow
		if err := rows.Scan(append([]any{&total}, r.dest()...)...); err != nil {
			return nil, 0, fmt.Errorf("list posts: %w", err)
		}
		posts = append(posts, r.post())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

// UpdatePost writes the mutable columns. Type and parent never change.
func (q queries) UpdatePost(ctx context.Context, p *model.Post) error {
	err := q.db.QueryRowContext(ctx, `
		UPDATE posts
		SET status = $2, name = $3, title = $4, content = $5, excerpt = $6, author = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, string(p.Status), nullString(p.Name), p.Title, p.Content, p.Excerpt, nullString(p.Author),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("post %d: %w", p.ID, store.ErrNotFound)
	}
	return err
}

// DeletePost removes a post; its revisions, meta and term links cascade.
func (q queries) DeletePost(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("post %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func (q queries) AddMeta(ctx context.Context, postID int64, key, value string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO postmeta (post_id, meta_key, meta_value) VALUES ($1, $2, $3) RETURNING meta_id`,
		postID, key, value,
	).Scan(&id)
	return id, err
}

// GetMeta returns every meta row of a post in insertion order.
func (q queries) GetMeta(ctx context.Context, postID int64) ([]*model.MetaEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT meta_id, post_id, meta_key, meta_value FROM postmeta WHERE post_id = $1 ORDER BY meta_id`,
		postID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(e *model.MetaEntry) []any { return []any{&e.ID, &e.PostID, &e.Key, &e.Value} })
}

func (q queries) GetMetaValues(ctx context.Context, postID int64, key string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT meta_value FROM postmeta WHERE post_id = $1 AND meta_key = $2 ORDER BY meta_id`,
		postID, key)
	if err != nil {
		return nil, err
	}
	vals, err := collect(rows, func(v *string) []any { return []any{v} })
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = *v
	}
	return out, nil
}

func (q queries) DeleteMeta(ctx context.Context, postID int64, key string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM postmeta WHERE post_id = $1 AND meta_key = $2`, postID, key)
	return err
}

func (q queries) GetObjectTerms(ctx context.Context, postID int64, taxonomies []string) ([]*model.Term, error) {
	if len(taxonomies) == 0 {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.taxonomy, t.slug, t.name
		FROM terms t JOIN term_relationships r ON r.term_id = t.id
		WHERE r.post_id = $1 AND t.taxonomy = ANY($2)
		ORDER BY t.taxonomy, t.name`,
		postID, pq.Array(taxonomies))
	if err != nil {
		return nil, err
	}
	return collect(rows, func(t *model.Term) []any { return []any{&t.ID, &t.Taxonomy, &t.Slug, &t.Name} })
}

// SetObjectTerms replaces the post's terms in one taxonomy. Unknown slugs
// become new terms named after the slug. Callers wanting atomicity run it
// inside a transaction.
func (q queries) SetObjectTerms(ctx context.Context, postID int64, taxonomy string, slugs []string) error {
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM term_relationships
		WHERE post_id = $1 AND term_id IN (SELECT id FROM terms WHERE taxonomy = $2)`,
		postID, taxonomy); err != nil {
		return fmt.Errorf("clear %s terms of post %d: %w", taxonomy, postID, err)
	}
	for order, slug := range slugs {
		var termID int64
		if err := q.db.QueryRowContext(ctx, `
			INSERT INTO terms (taxonomy, slug, name) VALUES ($1, $2, $2)
			ON CONFLICT (taxonomy, slug) DO UPDATE SET slug = EXCLUDED.slug
			RETURNING id`,
			taxonomy, slug).Scan(&termID); err != nil {
			return fmt.Errorf("term %s/%s: %w", taxonomy, slug, err)
		}
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO term_relationships (post_id, term_id, term_order) VALUES ($1, $2, $3)
			ON CONFLICT (post_id, term_id) DO NOTHING`,
			postID, termID, order); err != nil {
			return fmt.Errorf("assign %s/%s to post %d: %w", taxonomy, slug, postID, err)
		}
	}
	return nil
}

func (q queries) RecordEvent(ctx context.Context, e *model.Event) error {
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	return q.db.QueryRowContext(ctx,
		`INSERT INTO events (topic, post_id, actor, payload) VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		e.Topic, e.PostID, nullString(e.Actor), payload,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetEvents returns a post's events oldest first.
func (q queries) GetEvents(ctx context.Context, postID int64) ([]*model.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, topic, post_id, actor, payload, created_at
		FROM events WHERE post_id = $1 ORDER BY created_at, id`,
		postID)
	if err != nil {
		return nil, err
	}
	var rs []*eventRow
	if rs, err = collect(rows, (*eventRow).dest); err != nil {
		return nil, err
	}
	out := make([]*model.Event, len(rs))
	for i, r := range rs {
		out[i] = r.event()
	}
	return out, nil
}

// sortColumns are the columns a caller may order posts by.
var sortColumns = map[string]bool{
	"id": true, "created_at": true, "updated_at": true,
	"title": true, "status": true, "type": true,
}

// orderBy turns "col" or "-col" into an ORDER BY clause. Unknown columns
// get the default, newest first with id breaking ties.
func orderBy(sort string) string {
	col, desc := strings.CutPrefix(sort, "-")
	if !sortColumns[col] {
		return "created_at DESC, id DESC"
	}
	if desc {
		return col + " DESC, id DESC"
	}
	return col + " ASC, id ASC"
}
