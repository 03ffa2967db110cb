// Package geo provides the geographic primitives shared by the sampler, the
// HTTP API and the batch runner.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRID is the spatial reference of every Coordinate (WGS84 degrees).
const SRID = 4326

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = eris.New("geo: invalid coordinate")

// Coordinate is a (latitude, longitude) pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is finite and within the WGS84 range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return eris.Wrapf(ErrInvalidCoordinate, "non-finite value (%v, %v)", c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Wrapf(ErrInvalidCoordinate, "latitude %v outside [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return eris.Wrapf(ErrInvalidCoordinate, "longitude %v outside [-180, 180]", c.Lon)
	}
	return nil
}

// Point returns the coordinate as an XY point (x = lon, y = lat) tagged 4326.
func (c Coordinate) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}).SetSRID(SRID)
}

// FromCoord builds a Coordinate from an XY go-geom coordinate.
func FromCoord(xy geom.Coord) Coordinate {
	return Coordinate{Lat: xy.Y(), Lon: xy.X()}
}
