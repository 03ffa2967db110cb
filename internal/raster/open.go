package raster

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// OpenFunc loads a raster file into a Grid.
type OpenFunc func(path string) (*Grid, error)

var (
	formatsMu sync.RWMutex
	formats   = map[string]OpenFunc{
		".asc": OpenASCII,
	}
)

// RegisterFormat adds a reader for a file extension (".tif").
func RegisterFormat(ext string, fn OpenFunc) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats[strings.ToLower(ext)] = fn
}

// Formats lists the registered extensions in sorted order.
func Formats() []string {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Options adjusts a grid after it is read.
type Options struct {
	// NoData overrides the sentinel declared by the file.
	NoData *float64
	// CRS overrides the file's CRS tag (e.g. when a .prj is missing).
	CRS string
}

// Open reads the raster at path using the reader registered for its
// extension. Missing or unreadable files are returned as errors so that
// startup can fail fast.
func Open(path string, opts Options) (*Grid, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "raster: stat %s", path)
	}

	ext := extOf(path)
	formatsMu.RLock()
	fn, ok := formats[ext]
	formatsMu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%q (supported: %s)", ext, strings.Join(Formats(), ", "))
	}

	g, err := fn(path)
	if err != nil {
		return nil, err
	}
	if opts.NoData != nil {
		g = g.WithNoData(*opts.NoData)
	}
	if opts.CRS != "" {
		g = g.WithCRS(opts.CRS)
	}

	zap.L().Debug("raster: opened",
		zap.String("path", path),
		zap.Int("cols", g.Cols),
		zap.Int("rows", g.Rows),
		zap.Bool("has_crs", g.CRS != ""),
		zap.Bool("has_nodata", g.NoData != nil),
	)
	return g, nil
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Description summarizes a grid for inspection output.
type Description struct {
	Path   string     `json:"path"`
	CRS    string     `json:"crs"`
	Cols   int        `json:"cols"`
	Rows   int        `json:"rows"`
	Bounds [4]float64 `json:"bounds"` // left, bottom, right, top
	NoData *float64   `json:"nodata,omitempty"`
}

// Describe reports CRS, size and native bounds of g.
func Describe(path string, g *Grid) Description {
	b := g.Bounds()
	return Description{
		Path:   path,
		CRS:    g.CRS,
		Cols:   g.Cols,
		Rows:   g.Rows,
		Bounds: [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)},
		NoData: g.NoData,
	}
}
