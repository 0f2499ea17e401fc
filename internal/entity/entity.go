// Package entity canonicalizes raw directory records into fixed-shape entities
// and indexes them by identity for lookup, filtering and mapping.
package entity

import (
	"strings"

	"github.com/sells-group/compare-engine/internal/geo"
	"github.com/sells-group/compare-engine/internal/identity"
	"github.com/sells-group/compare-engine/internal/record"
)

// Attribute names a canonical entity attribute.
type Attribute string

// Canonical attributes, in display order.
const (
	AttrName            Attribute = "name"
	AttrClassification  Attribute = "classification"
	AttrRegion          Attribute = "region"
	AttrSummary         Attribute = "summary"
	AttrCapacityMW      Attribute = "capacity_mw"
	AttrFinancingOption Attribute = "financing_option"
	AttrContactEmail    Attribute = "contact_email"
	AttrServices        Attribute = "services"
	AttrFounded         Attribute = "founded"
	AttrDescription     Attribute = "description"
	AttrWebsite         Attribute = "website"
	AttrProjects        Attribute = "projects"
	AttrProjectCount    Attribute = "project_count"
)

// Attributes lists every resolvable attribute in priority-table order.
var Attributes = []Attribute{
	AttrName, AttrClassification, AttrRegion, AttrSummary, AttrCapacityMW,
	AttrFinancingOption, AttrContactEmail, AttrServices, AttrFounded,
	AttrDescription, AttrWebsite, AttrProjects, AttrProjectCount,
}

// Entity is the canonical form of one directory record. Every string attribute
// is "" when the source had no matching field.
type Entity struct {
	Name            string         `json:"name"`
	Location        geo.Coordinate `json:"location"`
	Classification  string         `json:"classification"`
	Region          string         `json:"region"`
	Summary         string         `json:"summary"`
	CapacityMW      any            `json:"capacity_mw"`
	FinancingOption string         `json:"financing_option"`
	ContactEmail    string         `json:"contact_email"`
	Services        string         `json:"services"`
	Founded         string         `json:"founded"`
	Description     string         `json:"description"`
	Website         string         `json:"website"`
	ProjectCount    int            `json:"project_count"`

	// Raw is the originating record. It is shared, never modified.
	Raw record.Raw `json:"raw,omitempty"`
}

// Key returns the entity's identity key; "" means the entity can never be
// matched or selected.
func (e Entity) Key() string {
	return identity.Key(e.Name)
}

// Capacity returns CapacityMW as a number when it parses as one.
func (e Entity) Capacity() (float64, bool) {
	return geo.ParseNumber(e.CapacityMW)
}

// Field is one named attribute value of an entity.
type Field struct {
	Name  string
	Value any
}

// Fields returns the entity's attributes in a fixed order. Latitude and
// longitude are included (nil when invalid) so consumers decide whether to
// hide them.
func (e Entity) Fields() []Field {
	var lat, lng any
	if e.Location.Valid {
		lat, lng = e.Location.Lat, e.Location.Lng
	}
	capacity := e.CapacityMW
	if capacity == nil {
		capacity = ""
	}
	return []Field{
		{"name", e.Name},
		{"latitude", lat},
		{"longitude", lng},
		{"classification", e.Classification},
		{"region", e.Region},
		{"summary", e.Summary},
		{"capacity_mw", capacity},
		{"financing_option", e.FinancingOption},
		{"contact_email", e.ContactEmail},
		{"services", e.Services},
		{"founded", e.Founded},
		{"description", e.Description},
		{"website", e.Website},
		{"project_count", e.ProjectCount},
	}
}

// Canonicalize converts r using the default (solar developer) schema.
func Canonicalize(r record.Raw) Entity {
	return SolarDeveloper.Canonicalize(r)
}

// Canonicalize converts one raw record into an Entity. It does not modify r
// and is safe for concurrent use.
func (s Schema) Canonicalize(r record.Raw) Entity {
	e := Entity{
		Name:            s.text(r, AttrName),
		Location:        geo.Extract(r),
		Classification:  s.text(r, AttrClassification),
		Region:          s.text(r, AttrRegion),
		Summary:         s.text(r, AttrSummary),
		CapacityMW:      s.value(r, AttrCapacityMW),
		FinancingOption: s.text(r, AttrFinancingOption),
		ContactEmail:    s.text(r, AttrContactEmail),
		Services:        s.text(r, AttrServices),
		Founded:         s.text(r, AttrFounded),
		Description:     s.text(r, AttrDescription),
		Website:         s.text(r, AttrWebsite),
		ProjectCount:    s.projectCount(r),
		Raw:             r,
	}
	return e
}

// value returns the first non-blank value for attr, keeping its original type
// so numeric capacities stay numeric. Absent values become "".
func (s Schema) value(r record.Raw, attr Attribute) any {
	if v, ok := record.ResolveFirstValue(r, s.Fields[attr]...); ok {
		return v
	}
	return ""
}

// text is value rendered as a trimmed string.
func (s Schema) text(r record.Raw, attr Attribute) string {
	return strings.TrimSpace(record.Format(s.value(r, attr)))
}

// projectCount counts listed reference projects, falling back to a numeric
// project-count column.
func (s Schema) projectCount(r record.Raw) int {
	if v, ok := record.ResolveFirstFunc(r, nonEmptyList, s.Fields[AttrProjects]...); ok {
		switch t := v.(type) {
		case []any:
			return len(t)
		case []string:
			return len(t)
		default:
			return 1
		}
	}
	if n, ok := geo.ParseNumber(s.value(r, AttrProjectCount)); ok && n > 0 {
		return int(n)
	}
	return 0
}

func nonEmptyList(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case record.Raw:
		return len(t) > 0
	}
	return false
}
