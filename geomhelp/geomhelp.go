package geomhelp

import (
	"errors"
	"fmt"
	"math"

	"github.com/muesli/reflow/truncate"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/twpayne/go-geom"
)

var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// WGS84Bounds is the valid lon/lat domain.
var WGS84Bounds = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// ToOrb converts a decoded WKB geometry into its orb counterpart. Z and M
// ordinates are dropped. Empty geometries, including the POINT(NaN NaN)
// encoding of an empty point, become nil.
//
//nolint:cyclop
func ToOrb(g geom.T) (orb.Geometry, error) {
	switch g := g.(type) {
	case nil:
		return nil, nil
	case *geom.Point:
		c := g.FlatCoords()
		if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
			return nil, nil
		}
		return orb.Point{c[0], c[1]}, nil
	case *geom.MultiPoint:
		if len(g.FlatCoords()) == 0 {
			return nil, nil
		}
		return orb.MultiPoint(points(g.Coords())), nil
	case *geom.LineString:
		if len(g.FlatCoords()) == 0 {
			return nil, nil
		}
		return orb.LineString(points(g.Coords())), nil
	case *geom.MultiLineString:
		if len(g.FlatCoords()) == 0 {
			return nil, nil
		}
		return multiLineString(g.Coords()), nil
	case *geom.Polygon:
		if len(g.FlatCoords()) == 0 {
			return nil, nil
		}
		return polygon(g.Coords()), nil
	case *geom.MultiPolygon:
		if len(g.FlatCoords()) == 0 {
			return nil, nil
		}
		return multiPolygon(g.Coords()), nil
	case *geom.GeometryCollection:
		return collection(g.Geoms())
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// points keeps x and y of every coordinate, skipping empty ones
func points(coords []geom.Coord) []orb.Point {
	ps := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
			continue
		}
		ps = append(ps, orb.Point{c[0], c[1]})
	}
	return ps
}

func multiLineString(mls [][]geom.Coord) orb.MultiLineString {
	r := make(orb.MultiLineString, len(mls))
	for i := range mls {
		r[i] = points(mls[i])
	}
	return r
}

func polygon(p [][]geom.Coord) orb.Polygon {
	r := make(orb.Polygon, len(p))
	for i := range p {
		r[i] = points(p[i])
	}
	return r
}

func multiPolygon(mp [][][]geom.Coord) orb.MultiPolygon {
	r := make(orb.MultiPolygon, len(mp))
	for i := range mp {
		r[i] = polygon(mp[i])
	}
	return r
}

func collection(gs []geom.T) (orb.Geometry, error) {
	if len(gs) == 0 {
		return nil, nil
	}
	r := make(orb.Collection, 0, len(gs))
	for _, g := range gs {
		og, err := ToOrb(g)
		if err != nil {
			return nil, err
		}
		if og != nil {
			r = append(r, og)
		}
	}
	return r, nil
}

// EachPoint calls f for every coordinate of g, stopping when f returns false.
func EachPoint(g orb.Geometry, f func(orb.Point) bool) bool {
	switch g := g.(type) {
	case orb.Point:
		return f(g)
	case orb.MultiPoint:
		return eachPoint(g, f)
	case orb.LineString:
		return eachPoint(g, f)
	case orb.Ring:
		return eachPoint(g, f)
	case orb.MultiLineString:
		for _, ls := range g {
			if !eachPoint(ls, f) {
				return false
			}
		}
	case orb.Polygon:
		for _, r := range g {
			if !eachPoint(r, f) {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range g {
			if !EachPoint(p, f) {
				return false
			}
		}
	case orb.Collection:
		for _, c := range g {
			if !EachPoint(c, f) {
				return false
			}
		}
	case orb.Bound:
		return f(g.Min) && f(g.Max)
	}
	return true
}

func eachPoint(pts []orb.Point, f func(orb.Point) bool) bool {
	for _, p := range pts {
		if !f(p) {
			return false
		}
	}
	return true
}

// WithinBounds reports whether every coordinate of g lies inside b (inclusive).
func WithinBounds(g orb.Geometry, b orb.Bound) bool {
	return EachPoint(g, b.Contains)
}

// WktMustEncode returns the WKT of g, truncated to maxLen characters when maxLen > 0.
func WktMustEncode(g orb.Geometry, maxLen uint) string {
	if g == nil {
		return "EMPTY"
	}
	s := wkt.MarshalString(g)
	if maxLen == 0 {
		return s
	}
	return truncate.StringWithTail(s, maxLen, "...")
}
