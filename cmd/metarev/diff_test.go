package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alfredjeanlab/metarev/internal/model"
)

func TestDiffSections(t *testing.T) {
	tracked := []model.TrackedField{
		{Name: "color", Label: "Color", Kind: model.FieldKindMeta, ContentType: "post"},
		{Name: "category", Label: "Categories", Kind: model.FieldKindTaxonomy, ContentType: "post"},
		{Name: "mood", Kind: model.FieldKindMeta, ContentType: "post"},
	}
	left := &model.Post{
		ID: 9, Type: model.TypeRevision, ParentID: 7, Title: "Hello", Content: "same",
		Meta:  map[string][]any{"color": {"red"}, "mood": {"calm"}},
		Terms: map[string][]*model.Term{"category": {{Taxonomy: "category", Slug: "news", Name: "News"}}},
	}
	right := &model.Post{
		ID: 7, Type: "post", Title: "Hello again", Content: "same",
		Meta:  map[string][]any{"color": {"blue", "green"}, "mood": {"calm"}},
		Terms: map[string][]*model.Term{"category": {{Taxonomy: "category", Slug: "news", Name: "News"}}},
	}

	sections, err := diffSections(left, right, tracked, 3)
	if err != nil {
		t.Fatalf("diffSections() error = %v", err)
	}
	var labels []string
	for _, s := range sections {
		labels = append(labels, s.Label)
	}
	if strings.Join(labels, ",") != "Title,Color" {
		t.Fatalf("labels = %v, want [Title Color]", labels)
	}
	color := sections[1].Diff
	for _, want := range []string{"--- #9", "+++ #7", "-red", "+blue", "+green"} {
		if !strings.Contains(color, want) {
			t.Errorf("color diff missing %q:\n%s", want, color)
		}
	}
}

func TestDiffSections_Identical(t *testing.T) {
	p := &model.Post{ID: 7, Type: "post", Title: "Hello", Meta: map[string][]any{"color": {"red"}}}
	sections, err := diffSections(p, p, []model.TrackedField{{Name: "color", Kind: model.FieldKindMeta}}, 3)
	if err != nil {
		t.Fatalf("diffSections() error = %v", err)
	}
	if len(sections) != 0 {
		t.Fatalf("expected no sections, got %+v", sections)
	}

	var buf bytes.Buffer
	printDiffSections(&buf, sections)
	if !strings.Contains(buf.String(), "identical") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestOwnerID(t *testing.T) {
	if got := ownerID(&model.Post{ID: 9, Type: model.TypeRevision, ParentID: 7}); got != 7 {
		t.Errorf("ownerID(revision) = %d, want 7", got)
	}
	if got := ownerID(&model.Post{ID: 7, Type: "post"}); got != 7 {
		t.Errorf("ownerID(post) = %d, want 7", got)
	}
}
