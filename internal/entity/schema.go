package entity

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Schema maps each canonical attribute to the source columns that may carry
// it, in priority order. Domains (solar developers, EV manufacturers) differ
// only in these synonym lists.
type Schema struct {
	Type        string                 `yaml:"type" json:"type"`
	Label       string                 `yaml:"label" json:"label"`
	Description string                 `yaml:"description" json:"description"`
	Fields      map[Attribute][]string `yaml:"fields" json:"fields"`
}

// SolarDeveloper is the default schema. The name list of a built-in schema is
// fixed: override files cannot replace it, so an entity's name is only ever
// taken from these columns.
var SolarDeveloper = Schema{
	Type:        "solar_developer",
	Label:       "Solar developers",
	Description: "Compare solar developers",
	Fields: map[Attribute][]string{
		AttrName:            {"company", "name", "organisation", "organization"},
		AttrClassification:  {"project_type", "projecttype", "classification", "services", "offer"},
		AttrRegion:          {"region", "region/location (de)", "location", "state"},
		AttrSummary:         {"referenceprojects", "reference_projects", "deal_summary", "notes"},
		AttrCapacityMW:      {"capacity_mw", "capacity", "project_size_range", "size_mw"},
		AttrFinancingOption: {"financing_option", "financing", "finance"},
		AttrContactEmail:    {"contact_email", "email", "e-mail"},
		AttrServices:        {"services", "offer"},
		AttrFounded:         {"founded", "founding_year", "year_founded"},
		AttrDescription:     {"description", "about", "tagline"},
		AttrWebsite:         {"website", "url", "homepage"},
		AttrProjects:        {"reference_projects", "ref_projects", "projects"},
		AttrProjectCount:    {"project_count"},
	},
}

// EVManufacturer covers electric-vehicle manufacturer exports.
var EVManufacturer = Schema{
	Type:        "ev_manufacturer",
	Label:       "EV manufacturers",
	Description: "Compare EV manufacturers",
	Fields: map[Attribute][]string{
		AttrName:            {"company", "manufacturer", "brand", "name", "organisation", "organization"},
		AttrClassification:  {"vehicle_type", "segment", "classification", "category"},
		AttrRegion:          {"region", "country", "headquarters", "location", "state"},
		AttrSummary:         {"models", "lineup", "notes", "deal_summary"},
		AttrCapacityMW:      {"battery_capacity_kwh", "capacity", "production_capacity"},
		AttrFinancingOption: {"financing_option", "financing", "leasing"},
		AttrContactEmail:    {"contact_email", "email", "e-mail"},
		AttrServices:        {"services", "charging_network", "offer"},
		AttrFounded:         {"founded", "founding_year", "year_founded"},
		AttrDescription:     {"description", "about", "tagline"},
		AttrWebsite:         {"website", "url", "homepage"},
		AttrProjects:        {"models", "vehicles"},
		AttrProjectCount:    {"model_count", "project_count"},
	},
}

// Schemas is a registry of schemas keyed by type.
type Schemas map[string]Schema

func isBuiltin(typ string) bool {
	return typ == SolarDeveloper.Type || typ == EVManufacturer.Type
}

// BuiltinSchemas returns a fresh registry holding the built-in domains.
func BuiltinSchemas() Schemas {
	return Schemas{
		SolarDeveloper.Type: SolarDeveloper.clone(),
		EVManufacturer.Type: EVManufacturer.clone(),
	}
}

// Get returns the schema for typ.
func (s Schemas) Get(typ string) (Schema, bool) {
	sc, ok := s[typ]
	return sc, ok
}

// List returns all schemas ordered by type.
func (s Schemas) List() []Schema {
	out := make([]Schema, 0, len(s))
	for _, sc := range s {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (s Schema) clone() Schema {
	c := s
	c.Fields = make(map[Attribute][]string, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = append([]string(nil), v...)
	}
	return c
}

// schemaFile is the on-disk layout: either a single schema or a list.
type schemaFile struct {
	Schema  `yaml:",inline"`
	Schemas []Schema `yaml:"schemas"`
}

// LoadSchemas reads schema overrides from path (a YAML file or a directory of
// *.yaml files) on top of the built-ins. A schema whose type already exists
// replaces only the attributes it lists. Overrides of a built-in schema may
// not list name, and a new schema type must.
func LoadSchemas(path string) (Schemas, error) {
	reg := BuiltinSchemas()
	if path == "" {
		return reg, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "entity: stat schema path %s", path)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.yaml"))
		if err != nil {
			return nil, eris.Wrap(err, "entity: glob schema dir")
		}
		more, _ := filepath.Glob(filepath.Join(path, "*.yml"))
		files = append(files, more...)
		sort.Strings(files)
	}

	for _, f := range files {
		if err := reg.loadFile(f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (s Schemas) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "entity: read schema %s", path)
	}

	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return eris.Wrapf(err, "entity: parse schema %s", path)
	}

	list := sf.Schemas
	if sf.Type != "" {
		list = append(list, sf.Schema)
	}
	for _, sc := range list {
		if sc.Type == "" {
			return eris.Errorf("entity: schema in %s has no type", path)
		}
		if err := s.merge(sc); err != nil {
			return eris.Wrapf(err, "entity: schema in %s", path)
		}
	}
	return nil
}

func (s Schemas) merge(sc Schema) error {
	_, overridesName := sc.Fields[AttrName]
	if overridesName && isBuiltin(sc.Type) {
		return eris.Errorf("%s: the name list of a built-in schema is fixed", sc.Type)
	}
	base, ok := s[sc.Type]
	if !ok {
		if len(sc.Fields[AttrName]) == 0 {
			return eris.Errorf("%s: a new schema needs a name list", sc.Type)
		}
		base = Schema{Type: sc.Type, Fields: map[Attribute][]string{}}
	} else {
		base = base.clone()
	}
	if sc.Label != "" {
		base.Label = sc.Label
	}
	if sc.Description != "" {
		base.Description = sc.Description
	}
	for attr, names := range sc.Fields {
		base.Fields[attr] = append([]string(nil), names...)
	}
	s[sc.Type] = base
	return nil
}
