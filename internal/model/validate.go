package model

import (
	"strings"
	"unicode/utf8"
)

// MaxTitleLength is the longest title, in runes, a post may carry.
const MaxTitleLength = 500

// FieldError is one rule a post failed.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every rule a post failed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, fe := range e.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field)
		b.WriteString(": ")
		b.WriteString(fe.Message)
	}
	return b.String()
}

// HasErrors reports whether any rule failed.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

// ValidatePost checks the rules every stored post obeys. Drafts may have
// an empty title. Only revisions use the inherit status, and a revision
// always names its parent.
func ValidatePost(p *Post) error {
	ve := &ValidationError{}
	if p.Type == "" {
		ve.add("type", "is required")
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLength {
		ve.add("title", "must be 500 characters or fewer")
	}
	switch {
	case !p.Status.IsValid():
		ve.add("status", "must be one of draft, publish, private, inherit")
	case p.Status == StatusInherit && p.Type != TypeRevision:
		ve.add("status", "inherit is reserved for revisions")
	}
	if p.Type == TypeRevision && p.ParentID == 0 {
		ve.add("parent_id", "is required for revisions")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}
