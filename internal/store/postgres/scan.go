package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// postRow receives the postColumns of one row. Nullable columns map to
// zero values on the post.
type postRow struct {
	p        model.Post
	name     sql.NullString
	parentID sql.NullInt64
	author   sql.NullString
}

func (r *postRow) dest() []any {
	return []any{
		&r.p.ID, &r.p.Type, &r.p.Status, &r.name, &r.p.Title, &r.p.Content, &r.p.Excerpt,
		&r.parentID, &r.author, &r.p.CreatedAt, &r.p.UpdatedAt,
	}
}

func (r *postRow) post() *model.Post {
	p := r.p
	p.Name = r.name.String
	p.ParentID = r.parentID.Int64
	p.Author = r.author.String
	return &p
}

type eventRow struct {
	e       model.Event
	actor   sql.NullString
	payload []byte
}

func (r *eventRow) dest() []any {
	return []any{&r.e.ID, &r.e.Topic, &r.e.PostID, &r.actor, &r.payload, &r.e.CreatedAt}
}

func (r *eventRow) event() *model.Event {
	e := r.e
	e.Actor = r.actor.String
	if len(r.payload) > 0 {
		e.Payload = json.RawMessage(r.payload)
	}
	return &e
}

// collect scans every row into a fresh T and closes rows.
func collect[T any](rows *sql.Rows, dest func(*T) []any) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v := new(T)
		if err := rows.Scan(dest(v)...); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// nullString stores "" as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullID stores a zero id as NULL.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
