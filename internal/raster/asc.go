package raster

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ascHeader holds the keys of an ESRI ASCII grid header.
type ascHeader struct {
	cols, rows int
	x, y       float64
	centerX    bool
	centerY    bool
	dx, dy     float64
	nodata     *float64
	seen       map[string]bool
}

// ReadASCII parses an ESRI ASCII grid (AAIGrid). The CRS is left empty; use
// OpenASCII to pick up a sidecar .prj.
func ReadASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	h := ascHeader{seen: make(map[string]bool)}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if !isASCKey(key) {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, eris.Wrapf(ErrMalformed, "asc: header key %q has no value", key)
		}
		if err := h.set(key, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "asc: scan header")
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	n := h.cols * h.rows
	data := make([]float64, 0, n)
	if first != "" {
		v, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformed, "asc: cell 0: %v", err)
		}
		data = append(data, v)
	}
	for len(data) < n && sc.Scan() {
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformed, "asc: cell %d: %v", len(data), err)
		}
		data = append(data, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "asc: scan cells")
	}
	if len(data) != n {
		return nil, eris.Wrapf(ErrMalformed, "asc: expected %d cells, got %d", n, len(data))
	}

	left, bottom := h.x, h.y
	if h.centerX {
		left -= h.dx / 2
	}
	if h.centerY {
		bottom -= h.dy / 2
	}
	top := bottom + float64(h.rows)*h.dy

	return NewGrid(h.cols, h.rows, data, NorthUp(left, top, h.dx, h.dy), "", h.nodata)
}

func isASCKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter",
		"cellsize", "dx", "dy", "nodata_value":
		return true
	}
	return false
}

func (h *ascHeader) set(key, raw string) error {
	if h.seen[key] {
		return eris.Wrapf(ErrMalformed, "asc: duplicate header key %q", key)
	}
	h.seen[key] = true

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return eris.Wrapf(ErrMalformed, "asc: header %s=%q: %v", key, raw, err)
	}
	switch key {
	case "ncols":
		h.cols = int(v)
	case "nrows":
		h.rows = int(v)
	case "xllcorner":
		h.x = v
	case "xllcenter":
		h.x, h.centerX = v, true
	case "yllcorner":
		h.y = v
	case "yllcenter":
		h.y, h.centerY = v, true
	case "cellsize":
		h.dx, h.dy = v, v
	case "dx":
		h.dx = v
	case "dy":
		h.dy = v
	case "nodata_value":
		h.nodata = &v
	}
	return nil
}

func (h *ascHeader) validate() error {
	for _, req := range []string{"ncols", "nrows"} {
		if !h.seen[req] {
			return eris.Wrapf(ErrMalformed, "asc: missing %s", req)
		}
	}
	if !(h.seen["xllcorner"] || h.seen["xllcenter"]) || !(h.seen["yllcorner"] || h.seen["yllcenter"]) {
		return eris.Wrap(ErrMalformed, "asc: missing lower-left origin")
	}
	if h.seen["xllcorner"] && h.seen["xllcenter"] || h.seen["yllcorner"] && h.seen["yllcenter"] {
		return eris.Wrap(ErrMalformed, "asc: both corner and center origin given")
	}
	if !h.seen["cellsize"] && !(h.seen["dx"] && h.seen["dy"]) {
		return eris.Wrap(ErrMalformed, "asc: missing cellsize")
	}
	if h.cols <= 0 || h.rows <= 0 {
		return eris.Wrapf(ErrEmpty, "asc: size %dx%d", h.cols, h.rows)
	}
	if h.dx <= 0 || h.dy <= 0 {
		return eris.Wrapf(ErrMalformed, "asc: non-positive cell size %v x %v", h.dx, h.dy)
	}
	return nil
}

// OpenASCII reads an .asc file and its optional .prj sidecar.
func OpenASCII(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "asc: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	g, err := ReadASCII(f)
	if err != nil {
		return nil, eris.Wrapf(err, "asc: read %s", path)
	}

	crs, err := readSidecarPRJ(path)
	if err != nil {
		return nil, err
	}
	g.CRS = crs
	return g, nil
}

// readSidecarPRJ returns the contents of path's .prj sibling, or "" when absent.
func readSidecarPRJ(path string) (string, error) {
	prj := strings.TrimSuffix(path, extOf(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "asc: read %s", prj)
	}
	return strings.TrimSpace(string(data)), nil
}
