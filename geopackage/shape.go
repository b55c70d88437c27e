package geopackage

import (
	"github.com/paulmach/orb/geojson"
)

// extractedTable is a feature table with all its rows read, in extractor order
type extractedTable struct {
	info TableInfo
	rows []*Row
}

func shapeTables(tables []extractedTable) *Tables {
	result := &Tables{Tables: make([]NamedTable, 0, len(tables))}
	for _, t := range tables {
		result.Tables = append(result.Tables, NamedTable{
			Name:  t.info.Name,
			Table: Table{Schema: t.info.Schema(), Data: t.rows},
		})
	}
	return result
}

func shapeFeatures(tables []extractedTable) *FeatureMapping {
	result := NewFeatureMapping()
	for _, t := range tables {
		features := make([]*geojson.Feature, len(t.rows))
		for i, row := range t.rows {
			features[i] = row.Feature()
		}
		result.Set(t.info.Name, features)
	}
	return result
}

func shape(format Format, tables []extractedTable) *Result {
	if format == FormatGeoJSON {
		return &Result{Format: FormatGeoJSON, Features: shapeFeatures(tables)}
	}
	return &Result{Format: FormatTable, Tables: shapeTables(tables)}
}
