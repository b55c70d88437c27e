// Package crs resolves coordinate reference system identifiers, as found in
// option strings and in the gpkg_spatial_ref_sys table, and the projections
// between them.
package crs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-spatial/geom/encoding/gpkg"
)

var (
	ErrUnknownCRS   = errors.New("unknown coordinate reference system")
	ErrUndefinedCRS = errors.New("undefined coordinate reference system")
	ErrNoTransform  = errors.New("no transform between coordinate reference systems")
)

var (
	crsURIRegexURL = regexp.MustCompile("^https?://.+/def/crs/(?P<authority>[^/]+)/[^/]+/(?P<code>[^/]+)$")
	crsURIRegexURN = regexp.MustCompile("^urn:ogc:def:crs:(?P<authority>[^:]+):[^:]*:(?P<code>[^:]+)$")
	crsCURIERegex  = regexp.MustCompile(`^\[?(?P<authority>[A-Za-z][A-Za-z0-9_]*):(?P<code>[^:\]]+)]?$`)
)

var crsAliases = map[string]Identifier{"WGS84": WGS84, "WGS 84": WGS84, "CRS84": WGS84}

var crsEquivalents = map[Identifier]Identifier{
	{"OGC", "CRS84"}:   WGS84,
	{"CRS", "84"}:      WGS84,
	{"EPSG", "900913"}: WebMercator,
	{"EPSG", "102100"}: WebMercator,
	{"EPSG", "102113"}: WebMercator,
	{"ESRI", "102100"}: WebMercator,
	{"ESRI", "102113"}: WebMercator,
}

// WGS84 is longitude/latitude on the WGS 84 datum. GeoPackages store x as
// longitude for EPSG:4326, so no axis swapping happens.
var WGS84 = Identifier{Authority: "EPSG", Code: "4326"}

// WebMercator is the spherical pseudo-mercator used by web maps.
var WebMercator = Identifier{Authority: "EPSG", Code: "3857"}

// Identifier is an authority and code pair, e.g. EPSG:3857.
type Identifier struct {
	Authority string
	Code      string
}

func (id Identifier) String() string {
	return id.Authority + ":" + id.Code
}

// Parse resolves a CRS string. Accepted are aliases (WGS84, CRS84),
// CURIEs (EPSG:3857), OGC URNs and OGC http URIs.
func Parse(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}, fmt.Errorf("%w: empty identifier", ErrUnknownCRS)
	}
	if id, ok := crsAliases[strings.ToUpper(s)]; ok {
		return id, nil
	}

	parts := crsURIRegexURL.FindStringSubmatch(s)
	if parts == nil {
		parts = crsURIRegexURN.FindStringSubmatch(s)
	}
	if parts == nil {
		parts = crsCURIERegex.FindStringSubmatch(s)
	}
	if parts == nil {
		return Identifier{}, fmt.Errorf("%w: could not parse %q", ErrUnknownCRS, s)
	}
	return canonical(Identifier{Authority: strings.ToUpper(parts[1]), Code: strings.ToUpper(parts[2])}), nil
}

// FromSRS maps a row of gpkg_spatial_ref_sys to an identifier. The GeoPackage
// reserved srs_id 0 (undefined geographic) resolves to WGS84, srs_id -1
// (undefined cartesian) cannot be resolved.
func FromSRS(srs gpkg.SpatialReferenceSystem) (Identifier, error) {
	switch {
	case srs.ID == 0:
		return WGS84, nil
	case srs.ID == -1:
		return Identifier{}, fmt.Errorf("%w: srs_id -1 (%s)", ErrUndefinedCRS, srs.Name)
	case srs.Organization == "" || strings.EqualFold(srs.Organization, "NONE"):
		return Identifier{}, fmt.Errorf("%w: srs_id %d has no organization", ErrUnknownCRS, srs.ID)
	}
	return canonical(Identifier{
		Authority: strings.ToUpper(srs.Organization),
		Code:      strconv.Itoa(srs.OrganizationCoordsysID),
	}), nil
}

func canonical(id Identifier) Identifier {
	if eq, ok := crsEquivalents[id]; ok {
		return eq
	}
	return id
}
