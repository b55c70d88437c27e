package gpkgtest

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	gogeom "github.com/twpayne/go-geom"
)

var (
	WebMercator = gpkg.SpatialReferenceSystem{
		Name:                   "WGS 84 / Pseudo-Mercator",
		ID:                     3857,
		Organization:           "EPSG",
		OrganizationCoordsysID: 3857,
		Definition:             `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`,
		Description:            "Popular Visualisation Pseudo-Mercator",
	}
	RDNew = gpkg.SpatialReferenceSystem{
		Name:                   "Amersfoort / RD New",
		ID:                     28992,
		Organization:           "EPSG",
		OrganizationCoordsysID: 28992,
		Definition:             `PROJCS["Amersfoort / RD New",GEOGCS["Amersfoort",DATUM["Amersfoort",SPHEROID["Bessel 1841",6377397.155,299.1528128]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Oblique_Stereographic"],UNIT["metre",1],AUTHORITY["EPSG","28992"]]`,
		Description:            "Netherlands",
	}
)

// Rivers is a LineString table in web mercator with a column of every property type.
func Rivers(name string, srs gpkg.SpatialReferenceSystem) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "fid", Type: "INTEGER", NotNull: true, PK: true},
			{Name: "geom", Type: "LINESTRING"},
			{Name: "NAME", Type: "TEXT"},
			{Name: "LENGTH_KM", Type: "REAL"},
			{Name: "NAVIGABLE", Type: "BOOLEAN"},
		},
		GeometryColumn: "geom",
		GeometryType:   "LINESTRING",
		SRS:            srs,
	}
}

// Hudson is the single feature of rivers_small
func Hudson() Feature {
	return Feature{
		Values: []interface{}{1, "Hudson", 507.5, true},
		Geometry: geom.LineString{
			{-8237494.0, 4970241.0},
			{-8236000.5, 4972000.25},
			{-8234500.75, 4975000.5},
		},
	}
}

// Danube has no geometry
func Danube() Feature {
	return Feature{Values: []interface{}{2, "Danube", 2850.0, false}}
}

// Garbled has a geometry blob that is not a GeoPackage binary geometry
func Garbled() Feature {
	return Feature{Values: []interface{}{3, "Garbled", 1.0, false}, RawGeometry: []byte("not a geometry")}
}

// HudsonZ is Hudson with heights, stored as a LineString Z
func HudsonZ() Feature {
	f := Hudson()
	f.Geometry = nil
	f.RawGeometry = mustBinary(3857, gogeom.NewLineStringFlat(gogeom.XYZ, []float64{
		-8237494.0, 4970241.0, 2.5,
		-8236000.5, 4972000.25, 3.0,
		-8234500.75, 4975000.5, 4.5,
	}), false)
	return f
}

// Dry has a geometry flagged empty, stored as POINT(NaN NaN)
func Dry() Feature {
	return Feature{
		Values:      []interface{}{4, "Dry", 0.0, false},
		RawGeometry: mustBinary(3857, gogeom.NewPointFlat(gogeom.XY, []float64{math.NaN(), math.NaN()}), true),
	}
}
