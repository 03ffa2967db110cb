// Package batch reads point files (CSV, XLSX, ESRI shapefile), assesses every
// point against a shared engine and writes the results as CSV or XLSX.
package batch

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cropsense/internal/geo"
)

var (
	// ErrUnsupportedFormat is returned for input or output files whose
	// extension has no reader or writer.
	ErrUnsupportedFormat = eris.New("batch: unsupported file format")
	// ErrMissingColumn is returned when a tabular input lacks a lat or lon column.
	ErrMissingColumn = eris.New("batch: missing coordinate column")
)

// Point is one input location.
type Point struct {
	// Row is the 1-based data row (or shapefile record) it came from.
	Row        int
	ID         string
	Coordinate geo.Coordinate
	// Err is set when the row's coordinate could not be parsed.
	Err error
}

// ReadOptions names the input columns. Matching is case-insensitive and
// falls back to common aliases (latitude, lng, longitude, x, y).
type ReadOptions struct {
	LatColumn string
	LonColumn string
	IDColumn  string
	// Sheet selects an XLSX sheet by name; the first sheet otherwise.
	Sheet string
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.LatColumn == "" {
		o.LatColumn = "lat"
	}
	if o.LonColumn == "" {
		o.LonColumn = "lon"
	}
	if o.IDColumn == "" {
		o.IDColumn = "id"
	}
	return o
}

var (
	latAliases = []string{"lat", "latitude", "y"}
	lonAliases = []string{"lon", "lng", "long", "longitude", "x"}
)

// ReadPoints reads every point from path, choosing the reader by extension.
func ReadPoints(ctx context.Context, path string, opts ReadOptions) ([]Point, error) {
	opts = opts.withDefaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return readCSVFile(ctx, path, opts)
	case ".xlsx":
		return readXLSX(path, opts)
	case ".shp":
		return readShapefile(path, opts)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "input %s", path)
	}
}

// columns locates the lat, lon and id columns in a header row. id is -1 when
// absent.
type columns struct {
	lat, lon, id int
}

func findColumns(header []string, opts ReadOptions) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	lookup := func(name string, aliases []string) int {
		if i, ok := idx[strings.ToLower(name)]; ok {
			return i
		}
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		lat: lookup(opts.LatColumn, latAliases),
		lon: lookup(opts.LonColumn, lonAliases),
		id:  lookup(opts.IDColumn, nil),
	}
	if cols.lat < 0 || cols.lon < 0 {
		return cols, eris.Wrapf(ErrMissingColumn, "want %q and %q in header %v", opts.LatColumn, opts.LonColumn, header)
	}
	return cols, nil
}

// point builds a Point from a tabular record. Parse failures are kept on the
// Point so the row still appears in the output.
func (c columns) point(rowNum int, record []string) Point {
	p := Point{Row: rowNum}
	if c.id >= 0 && c.id < len(record) {
		p.ID = strings.TrimSpace(record[c.id])
	}
	if p.ID == "" {
		p.ID = strconv.Itoa(rowNum)
	}

	lat, err := parseFloat(record, c.lat)
	if err != nil {
		p.Err = eris.Wrapf(geo.ErrInvalidCoordinate, "row %d lat: %v", rowNum, err)
		return p
	}
	lon, err := parseFloat(record, c.lon)
	if err != nil {
		p.Err = eris.Wrapf(geo.ErrInvalidCoordinate, "row %d lon: %v", rowNum, err)
		return p
	}
	p.Coordinate = geo.Coordinate{Lat: lat, Lon: lon}
	return p
}

func parseFloat(record []string, i int) (float64, error) {
	if i >= len(record) {
		return 0, eris.New("missing value")
	}
	s := strings.TrimSpace(record[i])
	if s == "" {
		return 0, eris.New("empty value")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
