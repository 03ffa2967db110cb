// Package raster loads single-band rasters into immutable in-memory grids.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

var (
	ErrUnsupportedFormat = eris.New("raster: unsupported format")
	ErrMalformed         = eris.New("raster: malformed file")
	ErrEmpty             = eris.New("raster: empty grid")
	ErrSingular          = eris.New("raster: transform is not invertible")
)

// Affine is a GDAL-ordered geotransform:
//
//	x = a[0] + col*a[1] + row*a[2]
//	y = a[3] + col*a[4] + row*a[5]
type Affine [6]float64

// Apply maps fractional grid coordinates to native x/y.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a[0] + col*a[1] + row*a[2], a[3] + col*a[4] + row*a[5]
}

// Invert maps native x/y back to fractional (col, row).
func (a Affine) Invert(x, y float64) (col, row float64, err error) {
	det := a[1]*a[5] - a[2]*a[4]
	if det == 0 || math.IsNaN(det) {
		return 0, 0, ErrSingular
	}
	dx := x - a[0]
	dy := y - a[3]
	col = (a[5]*dx - a[2]*dy) / det
	row = (a[1]*dy - a[4]*dx) / det
	return col, row, nil
}

// NorthUp builds the transform of an unrotated grid whose top-left corner is
// (left, top).
func NorthUp(left, top, dx, dy float64) Affine {
	return Affine{left, dx, 0, top, 0, -dy}
}

// Grid is a read-only single-band raster. It is never mutated after load and
// may be shared between goroutines.
type Grid struct {
	Cols      int
	Rows      int
	Data      []float64 // row-major, top row first
	Transform Affine
	CRS       string   // proj4, WKT or EPSG alias; empty when unknown
	NoData    *float64 // declared sentinel, nil when none
}

// NewGrid validates dimensions and returns a Grid.
func NewGrid(cols, rows int, data []float64, tr Affine, crs string, nodata *float64) (*Grid, error) {
	if cols <= 0 || rows <= 0 {
		return nil, eris.Wrapf(ErrEmpty, "size %dx%d", cols, rows)
	}
	if len(data) != cols*rows {
		return nil, eris.Wrapf(ErrMalformed, "expected %d cells, got %d", cols*rows, len(data))
	}
	if _, _, err := tr.Invert(tr[0], tr[3]); err != nil {
		return nil, err
	}
	return &Grid{Cols: cols, Rows: rows, Data: data, Transform: tr, CRS: crs, NoData: nodata}, nil
}

// Contains reports whether (row, col) lies inside the grid.
func (g *Grid) Contains(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the raw value at (row, col). The caller checks Contains first.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// IsNoData reports whether v is the declared sentinel or NaN.
func (g *Grid) IsNoData(v float64) bool {
	if math.IsNaN(v) {
		return true
	}
	return g.NoData != nil && v == *g.NoData
}

// Index converts native x/y into the (row, col) of the containing cell. The
// result may lie outside the grid.
func (g *Grid) Index(x, y float64) (row, col int, err error) {
	fc, fr, err := g.Transform.Invert(x, y)
	if err != nil {
		return 0, 0, err
	}
	if math.IsNaN(fc) || math.IsNaN(fr) || math.IsInf(fc, 0) || math.IsInf(fr, 0) {
		return -1, -1, nil
	}
	return int(math.Floor(fr)), int(math.Floor(fc)), nil
}

// Bounds returns the envelope of the grid in its native CRS.
func (g *Grid) Bounds() *geom.Bounds {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{{0, 0}, {float64(g.Cols), 0}, {0, float64(g.Rows)}, {float64(g.Cols), float64(g.Rows)}} {
		x, y := g.Transform.Apply(corner[0], corner[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY)
}

// WithNoData returns a shallow copy of g whose sentinel is replaced.
func (g *Grid) WithNoData(v float64) *Grid {
	cp := *g
	cp.NoData = &v
	return &cp
}

// WithCRS returns a shallow copy of g tagged with crs.
func (g *Grid) WithCRS(crs string) *Grid {
	cp := *g
	cp.CRS = crs
	return &cp
}
