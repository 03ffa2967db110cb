// Package crs reprojects WGS84 coordinates into a raster's native
// coordinate reference system.
package crs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrProjection wraps every parse or transform failure.
var ErrProjection = eris.New("crs: projection failed")

// Well-known definitions.
const (
	WGS84       = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"
	WebMercator = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
)

const (
	degToRad = math.Pi / 180

	mercXR = 20037508.34 / 180
	mercYR = mercXR / degToRad
	mercTR = degToRad / 2
)

// Transform maps a lon/lat pair in degrees to native x/y.
type Transform func(lon, lat float64) (x, y float64, err error)

// Projector caches parsed transforms keyed by CRS definition. Safe for
// concurrent use.
type Projector struct {
	mu     sync.Mutex
	cache  map[string]Transform
	source *proj.SR
	log    *zap.Logger
}

// NewProjector creates a Projector whose source is WGS84 degrees.
func NewProjector() *Projector {
	return &Projector{
		cache: make(map[string]Transform),
		log:   zap.L().With(zap.String("component", "crs")),
	}
}

// Resolve expands EPSG aliases into proj4 strings. Other definitions (proj4
// or WKT) are returned trimmed.
func Resolve(def string) string {
	def = strings.TrimSpace(def)
	code, ok := epsgCode(def)
	if !ok {
		return def
	}
	switch {
	case code == 4326:
		return WGS84
	case code == 3857 || code == 900913:
		return WebMercator
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600)
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700)
	}
	return def
}

// epsgCode parses "EPSG:n" (any case) into n.
func epsgCode(def string) (int, bool) {
	upper := strings.ToUpper(def)
	if !strings.HasPrefix(upper, "EPSG:") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(def[5:]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsGeographic reports whether def is empty or a lon/lat CRS, in which case
// coordinates are used as-is. An empty definition is assumed to be degrees.
func (p *Projector) IsGeographic(def string) (bool, error) {
	def = Resolve(def)
	if def == "" {
		return true, nil
	}
	if isWebMercator(def) {
		return false, nil
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return false, eris.Wrapf(ErrProjection, "parse %q: %v", abbreviate(def), err)
	}
	return sr.Name == "longlat", nil
}

// Transform returns the cached transform from WGS84 degrees into def.
// Geographic and empty definitions yield the identity.
func (p *Projector) Transform(def string) (Transform, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.cache[def]; ok {
		return t, nil
	}
	t, err := p.build(def)
	if err != nil {
		return nil, err
	}
	p.cache[def] = t
	return t, nil
}

func (p *Projector) build(def string) (Transform, error) {
	resolved := Resolve(def)
	if resolved == "" {
		return identity, nil
	}
	if isWebMercator(resolved) {
		return toWebMercator, nil
	}
	if _, ok := epsgCode(resolved); ok {
		return nil, eris.Wrapf(ErrProjection, "unsupported EPSG code %q", resolved)
	}

	dst, err := proj.Parse(resolved)
	if err != nil {
		p.log.Warn("parse crs failed", zap.String("crs", abbreviate(resolved)), zap.Error(err))
		return nil, eris.Wrapf(ErrProjection, "parse %q: %v", abbreviate(resolved), err)
	}
	if dst.Name == "longlat" {
		return identity, nil
	}

	if p.source == nil {
		src, err := proj.Parse(WGS84)
		if err != nil {
			return nil, eris.Wrapf(ErrProjection, "parse wgs84: %v", err)
		}
		p.source = src
	}
	tr, err := p.source.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(ErrProjection, "new transform to %q: %v", abbreviate(resolved), err)
	}
	return func(lon, lat float64) (float64, float64, error) {
		x, y, err := tr(lon, lat)
		if err != nil {
			return 0, 0, eris.Wrapf(ErrProjection, "transform (%v, %v): %v", lon, lat, err)
		}
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return 0, 0, eris.Wrapf(ErrProjection, "transform (%v, %v) is not finite", lon, lat)
		}
		return x, y, nil
	}, nil
}

// Project is a convenience wrapper around Transform for a single point.
func (p *Projector) Project(def string, lon, lat float64) (float64, float64, error) {
	t, err := p.Transform(def)
	if err != nil {
		return 0, 0, err
	}
	return t(lon, lat)
}

func identity(lon, lat float64) (float64, float64, error) {
	return lon, lat, nil
}

func toWebMercator(lon, lat float64) (float64, float64, error) {
	if lat <= -90 || lat >= 90 {
		return 0, 0, eris.Wrapf(ErrProjection, "latitude %v has no mercator image", lat)
	}
	x, y := Convert4326To3857(lon, lat)
	return x, y, nil
}

func isWebMercator(def string) bool {
	return def == WebMercator
}

// Convert4326To3857 is the closed-form spherical mercator forward projection.
func Convert4326To3857(lon, lat float64) (x, y float64) {
	x = lon * mercXR
	y = math.Log(math.Tan((90+lat)*mercTR)) * mercYR
	return
}

// Convert3857To4326 inverts Convert4326To3857.
func Convert3857To4326(x, y float64) (lon, lat float64) {
	lon = x / mercXR
	lat = math.Atan(math.Exp(y/mercYR))/mercTR - 90
	return
}

func abbreviate(def string) string {
	if len(def) > 64 {
		return def[:64] + "..."
	}
	return def
}
