package geopackage

import (
	"encoding/json"
	"maps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/gpkgload/mapslicehelp"
)

// FieldType is the semantic type of a column.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeReal     FieldType = "real"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeBlob     FieldType = "blob"
	FieldTypeGeometry FieldType = "geometry"
)

// Field describes one declared column.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`
}

// Schema metadata keys
const (
	MetadataGeometryColumn = "geometryColumn"
	MetadataGeometryType   = "geometryType"
	MetadataCRS            = "crs"
)

type Schema struct {
	Fields   []Field           `json:"fields"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Row is one record of a feature table. Its JSON form is the GeoJSON Feature.
type Row struct {
	// ID is the primary key value. It is not part of the properties and not emitted.
	ID         interface{}
	Properties geojson.Properties
	geometry   orb.Geometry
}

func NewRow(id interface{}, geometry orb.Geometry, properties geojson.Properties) *Row {
	if properties == nil {
		properties = geojson.Properties{}
	}
	return &Row{ID: id, Properties: properties, geometry: geometry}
}

func (r *Row) Geometry() orb.Geometry {
	return r.geometry
}

func (r *Row) UpdateGeometry(geometry orb.Geometry) {
	r.geometry = geometry
}

// Feature returns the GeoJSON view of the row: the geometry promoted out of the properties.
func (r *Row) Feature() *geojson.Feature {
	return &geojson.Feature{
		Type:       "Feature",
		Geometry:   r.geometry,
		Properties: maps.Clone(r.Properties),
	}
}

func (r *Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Feature())
}

type Table struct {
	Schema Schema `json:"schema"`
	Data   []*Row `json:"data"`
}

type NamedTable struct {
	Name  string `json:"name"`
	Table Table  `json:"table"`
}

// Tables is the table collection output shape.
type Tables struct {
	Tables []NamedTable `json:"tables"`
}

// Table returns the table with the given name.
func (t *Tables) Table(name string) (*Table, bool) {
	for i := range t.Tables {
		if t.Tables[i].Name == name {
			return &t.Tables[i].Table, true
		}
	}
	return nil, false
}

// FeatureMapping is the geojson output shape: table name to features, in table order.
// It marshals to a JSON object with the keys in that order.
type FeatureMapping struct {
	*orderedmap.OrderedMap[string, []*geojson.Feature]
}

func NewFeatureMapping() *FeatureMapping {
	return &FeatureMapping{orderedmap.New[string, []*geojson.Feature]()}
}

// Names returns the table names in order.
func (m *FeatureMapping) Names() []string {
	return mapslicehelp.OrderedMapKeys(m.OrderedMap)
}

// Count returns the number of features over all tables.
func (m *FeatureMapping) Count() int {
	var n int
	for _, features := range mapslicehelp.OrderedMapValues(m.OrderedMap) {
		n += len(features)
	}
	return n
}

// Features returns the features of a table, nil if the table is unknown.
func (m *FeatureMapping) Features(name string) []*geojson.Feature {
	features, _ := m.Get(name)
	return features
}

// Result is the outcome of Load, exactly one of Tables and Features is set, as selected by Format.
type Result struct {
	Format   Format
	Tables   *Tables
	Features *FeatureMapping
}

// MarshalJSON emits the selected shape only.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Format == FormatGeoJSON {
		return json.Marshal(r.Features)
	}
	return json.Marshal(r.Tables)
}
