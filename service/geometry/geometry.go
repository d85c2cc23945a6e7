// Package geometry bridges go-spatial geometries and the GEOS runtime used to
// validate areas of interest.
package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// GeosFromGeom converts a geom.Geometry to a geos.Geometry
func GeosFromGeom(g geom.Geometry) (*geos.Geometry, error) {
	wkt := geomwkt.MustEncode(g)
	geometry, err := geos.FromWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosFromGeom.FromWKT: %w", err)
	}
	return geometry, nil
}

// GeosFromGeoJSON converts a geojson geometry to a geos.Geometry
func GeosFromGeoJSON(g geojson.Geometry) (*geos.Geometry, error) {
	if g.Geometry == nil {
		return nil, fmt.Errorf("GeosFromGeoJSON: empty geometry")
	}
	return GeosFromGeom(g.Geometry)
}

// GeosToGeom converts a geos.Geometry to a geom.Geometry
func GeosToGeom(g *geos.Geometry) (geom.Geometry, error) {
	wkt, err := g.ToWKT()
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.ToWKT: %w", err)
	}
	geometry, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.DecodeString: %w", err)
	}
	return geometry, nil
}

// ValidateAOI returns an error if the geometry is not fit to bound a search
// (e.g. a self-intersecting polygon)
func ValidateAOI(g *geos.Geometry) error {
	valid, err := g.IsValid()
	if err != nil {
		return fmt.Errorf("ValidateAOI.IsValid: %w", err)
	}
	if !valid {
		return fmt.Errorf("ValidateAOI: invalid geometry (e.g. self-intersecting polygon)")
	}
	empty, err := g.IsEmpty()
	if err != nil {
		return fmt.Errorf("ValidateAOI.IsEmpty: %w", err)
	}
	if empty {
		return fmt.Errorf("ValidateAOI: empty geometry")
	}
	return nil
}

// ConvexHullWKT returns the WKT of the convex hull of the geometry.
// Catalogs bound the length of the geometry parameter, the hull is a safe upper bound.
func ConvexHullWKT(g *geos.Geometry) (string, error) {
	hull, err := g.ConvexHull()
	if err != nil {
		return "", fmt.Errorf("ConvexHullWKT.ConvexHull: %w", err)
	}
	wkt, err := hull.ToWKT()
	if err != nil {
		return "", fmt.Errorf("ConvexHullWKT.ToWKT: %w", err)
	}
	return wkt, nil
}
