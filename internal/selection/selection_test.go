package selection

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/record"
)

func TestToggle_Involution(t *testing.T) {
	s := New()
	assert.True(t, s.Toggle("Acme Solar"))
	assert.Equal(t, []string{"acme solar"}, s.Keys())

	assert.False(t, s.Toggle("ACME-solar"))
	assert.Empty(t, s.Keys())
}

func TestToggle_EmptyKeyIsNoop(t *testing.T) {
	s := New()
	s.Toggle("Acme")

	assert.False(t, s.Toggle(""))
	assert.False(t, s.Toggle("  --  "))
	assert.False(t, s.Toggle(record.Raw{"foo": "bar"}))
	assert.False(t, s.Toggle(42))
	assert.False(t, s.Toggle((*entity.Entity)(nil)))
	assert.Equal(t, []string{"acme"}, s.Keys())
}

func TestToggle_InputKinds(t *testing.T) {
	e := entity.Canonicalize(record.Raw{"name": "Entity Co"})
	s := New()
	s.Toggle(e)
	s.Toggle(&entity.Entity{Name: "Pointer Co"})
	s.Toggle(record.Raw{"Company": "Raw Co"})
	s.Toggle(map[string]any{"organisation": "Map Co"})

	assert.Equal(t, []string{"entity co", "pointer co", "raw co", "map co"}, s.Keys())
	assert.True(t, s.Contains("map-co"))
	assert.False(t, s.Contains("other"))
}

func TestToggle_RawRecordUsesSchema(t *testing.T) {
	raw := record.Raw{"Manufacturer": "Volta Motors", "country": "DE"}
	d := entity.NewDirectory([]record.Raw{raw}, entity.EVManufacturer)

	s := NewForSchema(entity.EVManufacturer)
	assert.True(t, s.Toggle(raw))
	assert.Equal(t, []string{"volta motors"}, s.Keys())
	require.Len(t, s.Resolve(d.Entities()), 1)

	assert.False(t, New().Toggle(record.Raw{"Manufacturer": "Volta Motors"}))
	assert.Equal(t, "volta motors", KeyOf(entity.EVManufacturer, map[string]any{"brand": "Volta Motors"}))
}

func TestNewForSchema_EmptyFallsBackToDefault(t *testing.T) {
	s := NewForSchema(entity.Schema{})
	assert.True(t, s.Toggle(record.Raw{"Company": "Acme"}))
}

func TestAddRemove(t *testing.T) {
	s := New()
	s.Add("A")
	s.Add("a")
	s.Add("")
	s.Add("B")
	assert.Equal(t, 2, s.Len())

	s.Remove("A")
	assert.Equal(t, []string{"b"}, s.Keys())

	s.Remove("missing")
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
}

func TestKeys_ReturnsCopy(t *testing.T) {
	s := New()
	s.Add("A")
	keys := s.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"a"}, s.Keys())
}

func TestResolve_KeepsMissingKeys(t *testing.T) {
	s := New()
	s.Add("B Corp")
	s.Add("Gone Ltd")
	s.Add("A Corp")

	entities := []entity.Entity{
		{Name: "A Corp", Region: "first"},
		{Name: "B Corp"},
		{Name: "a corp", Region: "second"},
	}
	got := s.Resolve(entities)
	require.Len(t, got, 2)
	assert.Equal(t, "B Corp", got[0].Name)
	assert.Equal(t, "first", got[1].Region)
	assert.Equal(t, 3, s.Len(), "missing keys stay selected")

	got = s.Resolve(append(entities, entity.Entity{Name: "Gone Ltd"}))
	assert.Len(t, got, 3)
}

func TestPair(t *testing.T) {
	entities := []entity.Entity{{Name: "A"}, {Name: "B"}, {Name: "C"}}

	s := New()
	s.Add("C")
	_, _, ok := s.Pair(entities)
	assert.False(t, ok)

	s.Add("Missing")
	s.Add("A")
	a, b, ok := s.Pair(entities)
	require.True(t, ok)
	assert.Equal(t, "C", a.Name)
	assert.Equal(t, "A", b.Name)
}

func TestSet_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(string(rune('a' + i%26)))
			_ = s.Keys()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, s.Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := r.Create()
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)
	assert.False(t, s.Set.Toggle(record.Raw{"brand": "Volta"}))

	ev := NewRegistryForSchema(entity.EVManufacturer).Create()
	assert.True(t, ev.Set.Toggle(record.Raw{"brand": "Volta"}))

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Get("nope")
	assert.False(t, ok)

	assert.True(t, r.Drop(s.ID))
	assert.False(t, r.Drop(s.ID))
	assert.Zero(t, r.Len())
}

func TestRegistry_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry()
	r.nowFunc = func() time.Time { return now }

	stale := r.Create()
	now = now.Add(time.Hour)
	fresh := r.Create()

	assert.Equal(t, 1, r.Sweep(30*time.Minute))
	_, ok := r.Get(stale.ID)
	assert.False(t, ok)
	_, ok = r.Get(fresh.ID)
	assert.True(t, ok)
}
