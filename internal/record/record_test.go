package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "email", NormalizeKey("E-Mail"))
	assert.Equal(t, "regionlocationde", NormalizeKey("region/location (de)"))
	assert.Equal(t, "capacitymw", NormalizeKey("Capacity_MW"))
	assert.Equal(t, "", NormalizeKey("  -- "))
}

func TestResolve_PriorityOrder(t *testing.T) {
	r := Raw{"name": "Second", "Company": "First"}
	v, ok := Resolve(r, "company", "name")
	assert.True(t, ok)
	assert.Equal(t, "First", v)
}

func TestResolve_IgnoresCaseAndPunctuation(t *testing.T) {
	r := Raw{"Region/Location (DE)": "Bayern"}
	v, ok := Resolve(r, "region", "region/location (de)")
	assert.True(t, ok)
	assert.Equal(t, "Bayern", v)
}

func TestResolve_NoMatch(t *testing.T) {
	v, ok := Resolve(Raw{"foo": 1, "bar": 2}, "lat", "latitude")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestResolve_NilRecord(t *testing.T) {
	v, ok := Resolve(nil, "name")
	assert.False(t, ok)
	assert.Nil(t, v)

	v, ok = Resolve(FromAny("not a map"), "name")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestResolve_DuplicateNormalizedKeysDeterministic(t *testing.T) {
	r := Raw{"E-mail": "a@x.com", "email": "b@x.com"}
	for range 20 {
		v, ok := Resolve(r, "email")
		assert.True(t, ok)
		// "email" sorts after "E-mail", so it is the last write.
		assert.Equal(t, "b@x.com", v)
	}
}

func TestResolve_PresentButNull(t *testing.T) {
	v, ok := Resolve(Raw{"name": nil}, "name")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = ResolveFirstValue(Raw{"name": nil}, "name")
	assert.False(t, ok)
}

func TestResolveFirstValue_SkipsBlank(t *testing.T) {
	r := Raw{"company": "  ", "name": "Acme"}
	v, ok := ResolveFirstValue(r, "company", "name")
	assert.True(t, ok)
	assert.Equal(t, "Acme", v)

	_, ok = ResolveFirstValue(r, "organisation")
	assert.False(t, ok)
	_, ok = ResolveFirstValue(nil, "name")
	assert.False(t, ok)
}

func TestResolveFirstValue_KeepsType(t *testing.T) {
	r := Raw{"Capacity (MW)": "", "capacity_mw": 52.5}
	v, ok := ResolveFirstValue(r, "capacity (mw)", "capacity_mw")
	assert.True(t, ok)
	assert.Equal(t, 52.5, v)
}

func TestResolveFirstFunc(t *testing.T) {
	r := Raw{"projects": []any{}, "references": []any{"a", "b"}}
	nonEmpty := func(v any) bool {
		l, ok := v.([]any)
		return ok && len(l) > 0
	}
	v, ok := ResolveFirstFunc(r, nonEmpty, "projects", "references")
	assert.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, v)

	_, ok = ResolveFirstFunc(r, nonEmpty, "projects")
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "52.52", String(52.52))
	assert.Equal(t, "50", String(float64(50)))
	assert.Equal(t, "7", String(7))
	assert.Equal(t, "true", String(true))
	assert.Equal(t, "x", String("x"))
}

func TestFromAny(t *testing.T) {
	assert.Nil(t, FromAny(nil))
	assert.Nil(t, FromAny(42))
	assert.Nil(t, FromAny([]any{"a"}))
	assert.Equal(t, Raw{"a": 1}, FromAny(map[string]any{"a": 1}))
	assert.Equal(t, Raw{"a": "b"}, FromAny(map[string]string{"a": "b"}))
}

func TestKeys_Sorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Keys(Raw{"c": 1, "a": 2, "b": 3}))
}
