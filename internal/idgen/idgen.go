// Package idgen mints short random ids for requests and sync runs.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes of the id families.
const (
	RequestPrefix = "req-"
	ExportPrefix  = "exp-"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	size     = 12
)

// New returns prefix followed by 12 random alphanumerics.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// orPrefix falls back to the bare prefix if the random source fails.
func orPrefix(prefix string) string {
	id, err := New(prefix)
	if err != nil {
		return prefix
	}
	return id
}

// RequestID names one HTTP request in logs and the X-Request-ID header.
func RequestID() string { return orPrefix(RequestPrefix) }

// ExportID names one sync run.
func ExportID() string { return orPrefix(ExportPrefix) }
