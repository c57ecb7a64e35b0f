package fields

import (
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/alfredjeanlab/metarev/internal/model"
	"github.com/alfredjeanlab/metarev/internal/textdiff"
)

// Renderer turns one value (view) or two values (left, right diff) of a
// tracked field into HTML. An empty result means there is nothing to show.
type Renderer func(values ...any) template.HTML

var dumper = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// Printable formats a value for display: strings, numbers and booleans as
// they are, anything else as a structure dump.
func Printable(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case float32, float64:
		return fmt.Sprint(x)
	case json.Number:
		return x.String()
	}
	return strings.TrimRight(dumper.Sdump(v), "\n")
}

// Format applies format to every value and returns the escaped text of a
// single value or the diff table of two.
func Format(format func(any) string, values ...any) template.HTML {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return template.HTML(html.EscapeString(format(values[0])))
	}
	return template.HTML(textdiff.HTML(format(values[0]), format(values[1])))
}

// RenderMeta is the default renderer of meta fields.
func RenderMeta(values ...any) template.HTML {
	return Format(Printable, values...)
}

// RenderTerms is the default renderer of taxonomy fields.
func RenderTerms(values ...any) template.HTML {
	return Format(termList, values...)
}

func termList(v any) string {
	switch x := v.(type) {
	case []*model.Term:
		return strings.Join(model.TermNames(x), ", ")
	case []string:
		return strings.Join(x, ", ")
	}
	return Printable(v)
}

// RenderText renders values with fmt's default formatting.
func RenderText(values ...any) template.HTML {
	return Format(func(v any) string {
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}, values...)
}

// RenderJSON renders values as indented JSON.
func RenderJSON(values ...any) template.HTML {
	return Format(func(v any) string {
		if s, ok := v.(string); ok && s == "" {
			return ""
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return Printable(v)
		}
		return string(data)
	}, values...)
}

// RenderList renders list values one item per line.
func RenderList(values ...any) template.HTML {
	return Format(func(v any) string {
		items, ok := v.([]any)
		if !ok {
			return Printable(v)
		}
		lines := make([]string, len(items))
		for i, item := range items {
			lines[i] = Printable(item)
		}
		return strings.Join(lines, "\n")
	}, values...)
}

func builtinRenderers() map[string]Renderer {
	return map[string]Renderer{
		"meta":  RenderMeta,
		"text":  RenderText,
		"terms": RenderTerms,
		"json":  RenderJSON,
		"list":  RenderList,
	}
}
