package fields

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/metarev/internal/model"
)

// File is the on-disk declaration of content types and tracked fields.
//
//	[[types]]
//	name = "post"
//	revisions = true
//	taxonomies = ["category", "post_tag"]
//
//	[[fields]]
//	content_type = "post"
//	kind = "meta"
//	name = "color"
//	label = "Color"
type File struct {
	Types  []model.ContentType `toml:"types" yaml:"types" validate:"dive"`
	Fields []FieldSpec         `toml:"fields" yaml:"fields" validate:"dive"`
}

// FieldSpec is one tracked field entry of a fields file.
type FieldSpec struct {
	ContentType model.PostType  `toml:"content_type" yaml:"content_type" validate:"required"`
	Kind        model.FieldKind `toml:"kind" yaml:"kind" validate:"required"`
	Name        string          `toml:"name" yaml:"name" validate:"required"`
	Label       string          `toml:"label" yaml:"label"`
	Renderer    string          `toml:"renderer" yaml:"renderer"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads a fields file, choosing the format by extension: .yaml and
// .yml are YAML, everything else is TOML.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fields file: %w", err)
	}
	format := "toml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	f, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a fields file in the given format ("toml" or "yaml").
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch format {
	case "toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported fields file format %q", format)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid fields file: %w", err)
	}
	for _, ct := range f.Types {
		if ct.Name == "" {
			return nil, errors.New("invalid fields file: content type without name")
		}
	}
	return &f, nil
}

// Apply registers every field of the file. Rejected fields do not stop the
// others; their errors are joined into the result.
func (f *File) Apply(r *Registry) error {
	var errs []error
	for _, s := range f.Fields {
		if err := r.Register(Field{
			ContentType:  s.ContentType,
			Kind:         s.Kind,
			Name:         s.Name,
			Label:        s.Label,
			RendererName: s.Renderer,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
