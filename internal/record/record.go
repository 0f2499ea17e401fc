// Package record models raw directory records and resolves fields across
// inconsistent header variants.
package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Raw is a schema-less record as delivered by a source. Keys are whatever the
// export used ("Company", "region/location (de)", "e-mail", ...). Values are
// scalars, slices, or nested maps as produced by a JSON/CSV/SQL decoder.
type Raw map[string]any

// FromAny converts a decoded value into a Raw. It returns nil when v is not a
// string-keyed mapping.
func FromAny(v any) Raw {
	switch m := v.(type) {
	case Raw:
		return m
	case map[string]any:
		return Raw(m)
	case map[string]string:
		out := make(Raw, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	default:
		return nil
	}
}

// NormalizeKey lower-cases s and drops every character that is not an ASCII
// letter or digit, so "E-Mail", "e_mail" and "email" collide.
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Keys returns the record's keys in lexical order.
func Keys(r Raw) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// index maps normalized keys to original keys. When two keys normalize to the
// same value the lexically last one wins.
func index(r Raw) map[string]string {
	idx := make(map[string]string, len(r))
	for _, k := range Keys(r) {
		idx[NormalizeKey(k)] = k
	}
	return idx
}

// Resolve returns the value of the first candidate field present in r,
// comparing normalized forms of both the candidates and the record keys.
// The boolean is false when no candidate matches or r is nil.
func Resolve(r Raw, candidates ...string) (any, bool) {
	if len(r) == 0 {
		return nil, false
	}
	idx := index(r)
	for _, c := range candidates {
		if k, ok := idx[NormalizeKey(c)]; ok {
			return r[k], true
		}
	}
	return nil, false
}

// ResolveFirstValue returns the first candidate whose value is present and
// renders non-blank. The value keeps its decoded type.
func ResolveFirstValue(r Raw, candidates ...string) (any, bool) {
	return ResolveFirstFunc(r, func(v any) bool {
		return strings.TrimSpace(Format(v)) != ""
	}, candidates...)
}

// ResolveFirstFunc returns the first candidate value that keep accepts. The
// key index is built once per call.
func ResolveFirstFunc(r Raw, keep func(any) bool, candidates ...string) (any, bool) {
	if len(r) == 0 {
		return nil, false
	}
	idx := index(r)
	for _, c := range candidates {
		k, ok := idx[NormalizeKey(c)]
		if !ok {
			continue
		}
		if v := r[k]; v != nil && keep(v) {
			return v, true
		}
	}
	return nil, false
}

// String renders a scalar value the way a JavaScript template would: integral
// floats without a decimal point, nil as "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
