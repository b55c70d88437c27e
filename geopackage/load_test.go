package geopackage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/gpkgload/crs"
	"github.com/pdok/gpkgload/geomhelp"
	"github.com/pdok/gpkgload/gpkgtest"
)

const riversName = "FEATURESriversds"

type fixtureTable struct {
	table    gpkgtest.Table
	features []gpkgtest.Feature
}

func writeGeoPackage(t *testing.T, tables ...fixtureTable) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.gpkg")
	target, err := gpkgtest.Create(path)
	require.NoError(t, err)
	defer target.Close()
	for _, ft := range tables {
		require.NoError(t, target.CreateTable(ft.table))
		require.NoError(t, target.WriteFeatures(ft.table, ft.features))
	}
	return path
}

func writeRivers(t *testing.T, features ...gpkgtest.Feature) string {
	t.Helper()
	return writeGeoPackage(t, fixtureTable{table: gpkgtest.Rivers(riversName, gpkgtest.WebMercator), features: features})
}

// referenceFeatures reads the features of a FeatureCollection in testdata
func referenceFeatures(t *testing.T, name string) []json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	var collection struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &collection))
	return collection.Features
}

func TestLoad_Table(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())

	result, err := Load(context.Background(), path, NewConfig())
	require.NoError(t, err)
	require.Equal(t, FormatTable, result.Format)
	require.Nil(t, result.Features)
	require.Len(t, result.Tables.Tables, 1)
	require.Equal(t, riversName, result.Tables.Tables[0].Name)

	table, ok := result.Tables.Table(riversName)
	require.True(t, ok)
	require.Len(t, table.Data, 1)
	assert.Equal(t, []Field{
		{Name: "fid", Type: FieldTypeInteger, Nullable: false},
		{Name: "geom", Type: FieldTypeGeometry, Nullable: true},
		{Name: "NAME", Type: FieldTypeText, Nullable: true},
		{Name: "LENGTH_KM", Type: FieldTypeReal, Nullable: true},
		{Name: "NAVIGABLE", Type: FieldTypeBoolean, Nullable: true},
	}, table.Schema.Fields)
	assert.Equal(t, map[string]string{
		MetadataGeometryColumn: "geom",
		MetadataGeometryType:   "LINESTRING",
		MetadataCRS:            "EPSG:3857",
	}, table.Schema.Metadata)

	row := table.Data[0]
	assert.EqualValues(t, 1, row.ID)
	assert.NotContains(t, row.Properties, "fid")
	assert.NotContains(t, row.Properties, "geom")

	got, err := json.Marshal(row)
	require.NoError(t, err)
	require.JSONEq(t, string(referenceFeatures(t, "rivers_small.geojson")[0]), string(got))

	_, ok = result.Tables.Table("missing")
	assert.False(t, ok)
}

func TestLoad_GeoJSON(t *testing.T) {
	path := writeGeoPackage(t,
		fixtureTable{table: gpkgtest.Rivers(riversName, gpkgtest.WebMercator), features: []gpkgtest.Feature{gpkgtest.Hudson(), gpkgtest.Danube()}},
		fixtureTable{table: gpkgtest.Rivers("canals", gpkgtest.WebMercator)},
		fixtureTable{table: gpkgtest.Rivers("brooks", gpkgtest.WebMercator), features: []gpkgtest.Feature{gpkgtest.Hudson()}},
	)
	cfg := NewConfig()
	cfg.GIS.Format = FormatGeoJSON

	result, err := Load(context.Background(), path, cfg)
	require.NoError(t, err)
	require.Nil(t, result.Tables)
	require.Equal(t, []string{riversName, "canals", "brooks"}, result.Features.Names())

	rivers := result.Features.Features(riversName)
	require.Len(t, rivers, 2)
	got, err := json.Marshal(rivers[0])
	require.NoError(t, err)
	require.JSONEq(t, string(referenceFeatures(t, "rivers_small.geojson")[0]), string(got))
	assert.Nil(t, rivers[1].Geometry)
	assert.Equal(t, "Danube", rivers[1].Properties["NAME"])
	assert.Equal(t, false, rivers[1].Properties["NAVIGABLE"])

	assert.Empty(t, result.Features.Features("canals"))
	assert.Len(t, result.Features.Features("brooks"), 1)
	assert.Nil(t, result.Features.Features("missing"))
	assert.Equal(t, 3, result.Features.Count())

	// keys keep the table order
	marshalled, err := json.Marshal(result)
	require.NoError(t, err)
	s := string(marshalled)
	assert.Less(t, strings.Index(s, `"`+riversName+`"`), strings.Index(s, `"canals"`))
	assert.Less(t, strings.Index(s, `"canals"`), strings.Index(s, `"brooks"`))
}

func TestLoadTablesAndFeatures(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Danube())
	cfg := NewConfig()
	cfg.GIS.Format = FormatGeoJSON

	tables, err := LoadTables(context.Background(), path, cfg)
	require.NoError(t, err)
	features, err := LoadFeatures(context.Background(), path, NewConfig())
	require.NoError(t, err)

	// both shapes are built from the same rows
	table, ok := tables.Table(riversName)
	require.True(t, ok)
	require.Len(t, features.Features(riversName), len(table.Data))
	for i, row := range table.Data {
		fromRow, err := json.Marshal(row)
		require.NoError(t, err)
		fromFeature, err := json.Marshal(features.Features(riversName)[i])
		require.NoError(t, err)
		assert.JSONEq(t, string(fromRow), string(fromFeature))
	}
}

func TestLoad_Idempotent(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Danube())
	for _, format := range []Format{FormatTable, FormatGeoJSON} {
		t.Run(string(format), func(t *testing.T) {
			cfg := NewConfig()
			cfg.GIS.Format = format
			first, err := Load(context.Background(), path, cfg)
			require.NoError(t, err)
			second, err := Load(context.Background(), path, cfg)
			require.NoError(t, err)

			firstJSON, err := json.Marshal(first)
			require.NoError(t, err)
			secondJSON, err := json.Marshal(second)
			require.NoError(t, err)
			require.Equal(t, string(firstJSON), string(secondJSON))
		})
	}
}

func TestLoad_Reproject(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Danube())
	cfg, err := ParseConfig([]byte(`{"gis": {"format": "geojson", "reproject": true, "_targetCrs": "EPSG:4326"}}`))
	require.NoError(t, err)

	features, err := LoadFeatures(context.Background(), path, cfg)
	require.NoError(t, err)
	rivers := features.Features(riversName)
	require.Len(t, rivers, 2)

	hudson, ok := rivers[0].Geometry.(orb.LineString)
	require.True(t, ok)
	require.Len(t, hudson, 3)
	assert.InDelta(t, -74.0, hudson[0][0], 0.01)
	assert.InDelta(t, 40.714, hudson[0][1], 0.01)
	assert.True(t, geomhelp.WithinBounds(hudson, geomhelp.WGS84Bounds))
	assert.Nil(t, rivers[1].Geometry)

	// properties are untouched
	assert.Equal(t, "Hudson", rivers[0].Properties["NAME"])
	assert.Equal(t, 507.5, rivers[0].Properties["LENGTH_KM"])
}

func TestLoad_ReprojectWGS84Alias(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())
	cfg := NewConfig()
	cfg.GIS.Reproject = true
	cfg.GIS.TargetCRS = "WGS84"

	tables, err := LoadTables(context.Background(), path, cfg)
	require.NoError(t, err)
	table, ok := tables.Table(riversName)
	require.True(t, ok)
	hudson, ok := table.Data[0].Geometry().(orb.LineString)
	require.True(t, ok)
	for _, p := range hudson {
		assert.True(t, geomhelp.WGS84Bounds.Contains(p), p)
	}
	assert.InDelta(t, -74.0, hudson[0][0], 0.01)
	assert.InDelta(t, 40.714, hudson[0][1], 0.01)
}

func TestLoad_UnknownTargetCRS(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())
	cfg := NewConfig()
	cfg.GIS.Reproject = true
	cfg.GIS.TargetCRS = "Lambert-93"

	result, err := Load(context.Background(), path, cfg)
	assert.Nil(t, result)
	var reprojectionErr *ReprojectionError
	require.ErrorAs(t, err, &reprojectionErr)
	assert.Equal(t, "Lambert-93", reprojectionErr.Target)
	assert.ErrorIs(t, err, crs.ErrUnknownCRS)
}

func TestLoad_ZGeometry(t *testing.T) {
	path := writeRivers(t, gpkgtest.HudsonZ())

	for _, format := range []Format{FormatTable, FormatGeoJSON} {
		t.Run(string(format), func(t *testing.T) {
			cfg := NewConfig()
			cfg.GIS.Format = format
			result, err := Load(context.Background(), path, cfg)
			require.NoError(t, err)

			var got []byte
			if format == FormatGeoJSON {
				got, err = json.Marshal(result.Features.Features(riversName)[0])
			} else {
				table, _ := result.Tables.Table(riversName)
				got, err = json.Marshal(table.Data[0])
			}
			require.NoError(t, err)
			// heights are dropped, x and y are those of the 2D reference
			require.JSONEq(t, string(referenceFeatures(t, "rivers_small.geojson")[0]), string(got))
		})
	}
}

func TestLoad_EmptyGeometry(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Dry())

	result, err := Load(context.Background(), path, NewConfig())
	require.NoError(t, err)
	table, ok := result.Tables.Table(riversName)
	require.True(t, ok)
	require.Len(t, table.Data, 2)
	assert.Nil(t, table.Data[1].Geometry())
	assert.Equal(t, "Dry", table.Data[1].Properties["NAME"])

	_, err = json.Marshal(result)
	require.NoError(t, err)
}

func TestLoad_ReprojectToSourceCRS(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())
	cfg := NewConfig()
	cfg.GIS.Reproject = true
	cfg.GIS.TargetCRS = "urn:ogc:def:crs:EPSG::3857"

	tables, err := LoadTables(context.Background(), path, cfg)
	require.NoError(t, err)
	table, _ := tables.Table(riversName)
	got, err := json.Marshal(table.Data[0])
	require.NoError(t, err)
	require.JSONEq(t, string(referenceFeatures(t, "rivers_small.geojson")[0]), string(got))
}

func TestLoad_ReprojectionErrors(t *testing.T) {
	identity := func(p orb.Point) orb.Point { return p }
	scaled := func(p orb.Point) orb.Point { return orb.Point{p[0] / 1e6, p[1] / 1e6} }

	tests := []struct {
		name     string
		register orb.Projection
		wantErr  error
	}{
		{name: "no transform", wantErr: crs.ErrNoTransform},
		{name: "outside domain", register: identity, wantErr: ErrOutOfDomain},
		{name: "registered", register: scaled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeGeoPackage(t, fixtureTable{
				table:    gpkgtest.Rivers(riversName, gpkgtest.RDNew),
				features: []gpkgtest.Feature{gpkgtest.Hudson()},
			})
			cfg := NewConfig()
			cfg.GIS.Reproject = true
			if tt.register != nil {
				cfg.Registry = crs.NewDefaultRegistry()
				cfg.Registry.Register(crs.Identifier{Authority: "EPSG", Code: "28992"}, crs.WGS84, tt.register)
			}

			result, err := Load(context.Background(), path, cfg)
			if tt.wantErr == nil {
				require.NoError(t, err)
				table, _ := result.Tables.Table(riversName)
				assert.Equal(t, orb.Point{-8.237494, 4.970241}, table.Data[0].Geometry().(orb.LineString)[0])
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var reprojectionErr *ReprojectionError
			require.ErrorAs(t, err, &reprojectionErr)
			assert.Equal(t, riversName, reprojectionErr.Table)
			assert.Equal(t, "EPSG:28992", reprojectionErr.Source)
			assert.Equal(t, "EPSG:4326", reprojectionErr.Target)
			assert.Nil(t, result)
		})
	}
}

func TestLoad_DecodeError(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Garbled())

	result, err := Load(context.Background(), path, NewConfig())
	require.Error(t, err)
	assert.Nil(t, result)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, riversName, decodeErr.Table)
	assert.EqualValues(t, 3, decodeErr.FID)
}

func TestLoad_SchemaError(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO gpkg_contents(table_name, data_type, identifier, srs_id) VALUES('ghost', 'features', 'ghost', 3857);`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO gpkg_geometry_columns(table_name, column_name, geometry_type_name, srs_id, z, m) VALUES('ghost', 'geom', 'POINT', 3857, 0, 0);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Load(context.Background(), path, NewConfig())
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "ghost", schemaErr.Table)
}

func TestLoad_OpenErrors(t *testing.T) {
	plainSQLite := filepath.Join(t.TempDir(), "plain.sqlite")
	db, err := sql.Open("sqlite3", plainSQLite)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE things(a INTEGER);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	textFile := filepath.Join(t.TempDir(), "text.gpkg")
	require.NoError(t, os.WriteFile(textFile, []byte(strings.Repeat("not a GeoPackage ", 10)), 0o600))

	unknownDriver := NewConfig()
	unknownDriver.GeoPackage.Driver = "sql.js"

	tests := []struct {
		name    string
		source  string
		cfg     Config
		wantErr error
	}{
		{name: "plain sqlite", source: plainSQLite, cfg: NewConfig(), wantErr: ErrNotGeoPackage},
		{name: "text file", source: textFile, cfg: NewConfig(), wantErr: ErrNotGeoPackage},
		{name: "missing file", source: filepath.Join(t.TempDir(), "missing.gpkg"), cfg: NewConfig(), wantErr: os.ErrNotExist},
		{name: "unknown driver", source: writeRivers(t), cfg: unknownDriver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Load(context.Background(), tt.source, tt.cfg)
			assert.Nil(t, result)
			var openErr *OpenError
			require.ErrorAs(t, err, &openErr)
			assert.Equal(t, tt.source, openErr.Source)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson())
	cfg := NewConfig()
	cfg.GIS.Format = "csv"

	_, err := Load(context.Background(), path, cfg)
	require.Error(t, err)
	var openErr *OpenError
	assert.False(t, errors.As(err, &openErr))
	assert.Contains(t, err.Error(), "Format")
}

func TestLoadBytes(t *testing.T) {
	data, err := os.ReadFile(writeRivers(t, gpkgtest.Hudson()))
	require.NoError(t, err)
	cfg := NewConfig()
	cfg.GeoPackage.TempDir = t.TempDir()

	result, err := LoadBytes(context.Background(), data, cfg)
	require.NoError(t, err)
	table, ok := result.Tables.Table(riversName)
	require.True(t, ok)
	require.Len(t, table.Data, 1)

	// the spooled copy is gone
	entries, err := os.ReadDir(cfg.GeoPackage.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = LoadBytes(context.Background(), []byte("hello"), cfg)
	require.ErrorIs(t, err, ErrNotGeoPackage)
	entries, err = os.ReadDir(cfg.GeoPackage.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_URL(t *testing.T) {
	data, err := os.ReadFile(writeRivers(t, gpkgtest.Hudson()))
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rivers.gpkg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer server.Close()

	cfg := NewConfig()
	cfg.GeoPackage.TempDir = t.TempDir()
	result, err := Load(context.Background(), server.URL+"/rivers.gpkg", cfg)
	require.NoError(t, err)
	table, ok := result.Tables.Table(riversName)
	require.True(t, ok)
	require.Len(t, table.Data, 1)

	_, err = Load(context.Background(), server.URL+"/missing.gpkg", cfg)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, server.URL+"/missing.gpkg", openErr.Source)
	assert.Contains(t, err.Error(), "404")
}

func TestLoad_Cancelled(t *testing.T) {
	path := writeRivers(t, gpkgtest.Hudson(), gpkgtest.Danube())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Load(ctx, path, NewConfig())
	require.Error(t, err)
	assert.Nil(t, result)
}
