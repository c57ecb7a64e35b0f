package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetaEntry is one stored meta row. A post may carry several entries with
// the same key; they are returned in insertion order.
type MetaEntry struct {
	ID     int64  `json:"id"`
	PostID int64  `json:"post_id"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// IsSerialized reports whether a stored meta value holds an encoded
// structure rather than a plain string.
func IsSerialized(s string) bool {
	b := bytes.TrimSpace([]byte(s))
	if len(b) < 2 {
		return false
	}
	switch b[0] {
	case '{', '[', '"':
		return json.Valid(b)
	}
	return false
}

// MaybeSerialize converts a meta value into its stored string form.
// Plain strings are stored verbatim unless they would be mistaken for an
// encoded value, in which case they are quoted. Everything else is JSON.
func MaybeSerialize(v any) (string, error) {
	if s, ok := v.(string); ok && !IsSerialized(s) {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize meta value: %w", err)
	}
	return string(data), nil
}

// MaybeUnserialize reverses MaybeSerialize. Values that are not encoded
// structures come back as the raw string.
func MaybeUnserialize(s string) any {
	if !IsSerialized(s) {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// GroupMeta groups entries by key, unserializing each value. Keys appear
// in the map in no particular order; values keep insertion order.
func GroupMeta(entries []*MetaEntry) map[string][]any {
	out := make(map[string][]any)
	for _, e := range entries {
		out[e.Key] = append(out[e.Key], MaybeUnserialize(e.Value))
	}
	return out
}
