package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseID parses a post or revision id argument.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// parseMeta turns repeated key=value flags into meta values. A key given
// several times keeps every value in order; "key=" alone clears the key.
func parseMeta(pairs []string) (map[string][]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string][]any)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid meta %q (want key=value)", pair)
		}
		if _, seen := meta[key]; !seen {
			meta[key] = []any{}
		}
		if value != "" {
			meta[key] = append(meta[key], value)
		}
	}
	return meta, nil
}

// parseTerms turns taxonomy=slug,slug flags into term assignments.
// "taxonomy=" alone removes every term of the taxonomy.
func parseTerms(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	terms := make(map[string][]string)
	for _, pair := range pairs {
		tax, slugs, ok := strings.Cut(pair, "=")
		tax = strings.TrimSpace(tax)
		if !ok || tax == "" {
			return nil, fmt.Errorf("invalid terms %q (want taxonomy=slug,slug)", pair)
		}
		if _, seen := terms[tax]; !seen {
			terms[tax] = []string{}
		}
		for _, slug := range strings.Split(slugs, ",") {
			if slug = strings.TrimSpace(slug); slug != "" {
				terms[tax] = append(terms[tax], slug)
			}
		}
	}
	return terms, nil
}
