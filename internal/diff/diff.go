// Package diff computes field-level differences between two entities.
package diff

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/record"
)

// DefaultExcludePattern hides coordinate fields from comparisons.
const DefaultExcludePattern = `(?i)lat|lng|latitude|longitude`

// Default is the engine used when no custom exclusion is configured.
var Default = &Engine{Exclude: regexp.MustCompile(DefaultExcludePattern)}

// Change is one differing attribute. Left and Right are display strings.
type Change struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Result is the ordered list of differing attributes.
type Result []Change

// Fields returns the names of the differing attributes.
func (r Result) Fields() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Field
	}
	return out
}

// Limit returns at most n changes. n <= 0 returns r unchanged.
func (r Result) Limit(n int) Result {
	if n <= 0 || n >= len(r) {
		return r
	}
	return r[:n]
}

// Engine diffs entities, skipping attribute names matched by Exclude.
type Engine struct {
	Exclude *regexp.Regexp
}

// New builds an engine whose exclusion is pattern. An empty pattern excludes
// nothing.
func New(pattern string) (*Engine, error) {
	if pattern == "" {
		return &Engine{}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "diff: compile exclude pattern %q", pattern)
	}
	return &Engine{Exclude: re}, nil
}

// Diff compares two entities attribute by attribute. Either side being nil
// yields an empty result.
func (e *Engine) Diff(a, b *entity.Entity) Result {
	if a == nil || b == nil {
		return Result{}
	}
	left := fieldMap(a.Fields())
	right := fieldMap(b.Fields())
	names := union(fieldNames(a.Fields()), fieldNames(b.Fields()))
	return e.compare(names, left, right)
}

// DiffRaw compares two raw records key by key. Keys of a come first, then
// keys only b has, each in lexical order.
func (e *Engine) DiffRaw(a, b record.Raw) Result {
	if a == nil || b == nil {
		return Result{}
	}
	names := union(record.Keys(a), record.Keys(b))
	return e.compare(names, a, b)
}

func (e *Engine) compare(names []string, left, right map[string]any) Result {
	out := Result{}
	for _, name := range names {
		if e.excluded(name) {
			continue
		}
		l, r := Format(left[name]), Format(right[name])
		if l != r {
			out = append(out, Change{Field: name, Left: l, Right: r})
		}
	}
	return out
}

func (e *Engine) excluded(name string) bool {
	return e != nil && e.Exclude != nil && e.Exclude.MatchString(name)
}

// Format renders a field value for comparison and display.
func Format(v any) string {
	return record.Format(v)
}

// Humanize turns a field name into a header label: "capacity_mw" becomes
// "Capacity Mw".
func Humanize(field string) string {
	words := strings.FieldsFunc(field, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

func fieldMap(fs []entity.Field) map[string]any {
	m := make(map[string]any, len(fs))
	for _, f := range fs {
		m[f.Name] = f.Value
	}
	return m
}

func fieldNames(fs []entity.Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// union concatenates a and the names of b not already in a, keeping
// first-seen order.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
