package entity

import (
	"strings"

	"github.com/sells-group/compare-engine/internal/geo"
	"github.com/sells-group/compare-engine/internal/identity"
	"github.com/sells-group/compare-engine/internal/record"
)

// LookupStatus reports the outcome of resolving an external identity.
type LookupStatus string

const (
	// StatusFound means an entity matched.
	StatusFound LookupStatus = "found"
	// StatusNotFound means data is loaded but nothing matched.
	StatusNotFound LookupStatus = "not_found"
	// StatusLoading means no data has arrived yet.
	StatusLoading LookupStatus = "loading"
)

// Directory is an immutable, canonicalized snapshot of one record collection.
// A nil *Directory behaves as "still loading".
type Directory struct {
	schema   Schema
	entities []Entity
	byKey    map[string]int
}

// NewDirectory canonicalizes raws with schema. Records that are nil are
// skipped; records without a usable name are kept but never indexed.
func NewDirectory(raws []record.Raw, schema Schema) *Directory {
	d := &Directory{
		schema:   schema,
		entities: make([]Entity, 0, len(raws)),
		byKey:    make(map[string]int, len(raws)),
	}
	for _, r := range raws {
		if r == nil {
			continue
		}
		e := schema.Canonicalize(r)
		d.entities = append(d.entities, e)
		key := e.Key()
		if key == "" {
			continue
		}
		if _, dup := d.byKey[key]; !dup {
			d.byKey[key] = len(d.entities) - 1
		}
	}
	return d
}

// Schema returns the schema the directory was built with.
func (d *Directory) Schema() Schema {
	if d == nil {
		return SolarDeveloper
	}
	return d.schema
}

// Len returns the number of entities.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entities)
}

// Entities returns a copy of all entities in source order.
func (d *Directory) Entities() []Entity {
	if d == nil {
		return nil
	}
	return append([]Entity(nil), d.entities...)
}

// Lookup resolves an external name (e.g. a URL parameter) by normalized
// equality. The first entity with the key wins.
func (d *Directory) Lookup(name string) (Entity, LookupStatus) {
	if d == nil {
		return Entity{}, StatusLoading
	}
	key := identity.Key(name)
	if key == "" {
		return Entity{}, StatusNotFound
	}
	i, ok := d.byKey[key]
	if !ok {
		return Entity{}, StatusNotFound
	}
	return d.entities[i], StatusFound
}

// Mappable returns entities with a valid coordinate.
func (d *Directory) Mappable() []Entity {
	if d == nil {
		return nil
	}
	out := make([]Entity, 0, len(d.entities))
	for _, e := range d.entities {
		if e.Location.Valid {
			out = append(out, e)
		}
	}
	return out
}

// Viewport computes the map viewport over the directory's mappable entities.
func (d *Directory) Viewport(cfg geo.ViewportConfig) geo.Viewport {
	return ViewportOf(d.Entities(), cfg)
}

// ViewportOf computes the viewport for an arbitrary entity list.
func ViewportOf(es []Entity, cfg geo.ViewportConfig) geo.Viewport {
	cs := make([]geo.Coordinate, 0, len(es))
	for _, e := range es {
		cs = append(cs, e.Location)
	}
	return geo.Bounds(cs, cfg)
}

// Filter narrows a listing the way the map filter bar does. Zero values
// disable a criterion.
type Filter struct {
	Classification string   `json:"classification,omitempty"`
	Region         string   `json:"region,omitempty"`
	Services       string   `json:"services,omitempty"`
	MinMW          *float64 `json:"min_mw,omitempty"`
	MaxMW          *float64 `json:"max_mw,omitempty"`
}

// Match reports whether e passes f. Classification and region compare
// case-insensitively; services is a substring test. Entities without a
// numeric capacity count as 0 MW.
func (f Filter) Match(e Entity) bool {
	if f.Classification != "" && !strings.EqualFold(strings.TrimSpace(f.Classification), e.Classification) {
		return false
	}
	if f.Region != "" && !strings.EqualFold(strings.TrimSpace(f.Region), e.Region) {
		return false
	}
	if f.Services != "" && !strings.Contains(strings.ToLower(e.Services), strings.ToLower(f.Services)) {
		return false
	}
	if f.MinMW != nil || f.MaxMW != nil {
		mw, _ := e.Capacity()
		if f.MinMW != nil && mw < *f.MinMW {
			return false
		}
		if f.MaxMW != nil && mw > *f.MaxMW {
			return false
		}
	}
	return true
}

// Filter returns the entities matching f, in source order.
func (d *Directory) Filter(f Filter) []Entity {
	if d == nil {
		return nil
	}
	out := make([]Entity, 0, len(d.entities))
	for _, e := range d.entities {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
