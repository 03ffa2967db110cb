// Package sample reads a single value from a raster at a geographic
// coordinate.
package sample

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/crs"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/raster"
)

// Status explains how a Reading was produced.
type Status string

const (
	StatusOK                Status = "ok"
	StatusNeighbor          Status = "neighbor"
	StatusOutOfBounds       Status = "out_of_bounds"
	StatusNoData            Status = "nodata"
	StatusProjectionFailure Status = "projection_failure"
	StatusReadError         Status = "read_error"
)

// Reading is either a present value or an explicit "no data".
type Reading struct {
	Value  float64 `json:"value"`
	Valid  bool    `json:"valid"`
	Status Status  `json:"status"`
}

// Of returns a valid reading.
func Of(v float64) Reading {
	return Reading{Value: v, Valid: true, Status: StatusOK}
}

// Missing returns a no-data reading with the given reason.
func Missing(s Status) Reading {
	return Reading{Status: s}
}

// Float returns the value as a pointer, nil when missing.
func (r Reading) Float() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// Layer is a named raster plus its per-layer sampling options.
type Layer struct {
	Name             string
	Path             string
	Grid             *raster.Grid
	NeighborFallback bool
}

// Observer is notified of every reading; used for metrics.
type Observer interface {
	ObserveSample(layer string, status Status)
}

// Sampler maps coordinates to raster values. It never returns an error:
// projection and read failures are logged and become no data.
type Sampler struct {
	proj     *crs.Projector
	observer Observer
	log      *zap.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithObserver reports every sample status to o.
func WithObserver(o Observer) Option {
	return func(s *Sampler) { s.observer = o }
}

// WithProjector shares a transform cache between samplers.
func WithProjector(p *crs.Projector) Option {
	return func(s *Sampler) { s.proj = p }
}

// New creates a Sampler.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		log: zap.L().With(zap.String("component", "sample")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.proj == nil {
		s.proj = crs.NewProjector()
	}
	return s
}

// Sample reads layer at c.
func (s *Sampler) Sample(layer Layer, c geo.Coordinate) (r Reading) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("sample panicked",
				zap.String("layer", layer.Name),
				zap.Float64("lat", c.Lat), zap.Float64("lon", c.Lon),
				zap.Any("panic", p),
			)
			r = Missing(StatusReadError)
		}
		if s.observer != nil {
			s.observer.ObserveSample(layer.Name, r.Status)
		}
	}()

	g := layer.Grid
	if g == nil {
		s.log.Warn("layer has no grid", zap.String("layer", layer.Name))
		return Missing(StatusReadError)
	}

	x, y, err := s.proj.Project(g.CRS, c.Lon, c.Lat)
	if err != nil {
		s.log.Debug("projection failed",
			zap.String("layer", layer.Name),
			zap.Float64("lat", c.Lat), zap.Float64("lon", c.Lon),
			zap.Error(err),
		)
		return Missing(StatusProjectionFailure)
	}

	row, col, err := g.Index(x, y)
	if err != nil {
		s.log.Warn("index failed", zap.String("layer", layer.Name), zap.Error(err))
		return Missing(StatusReadError)
	}
	if !g.Contains(row, col) {
		return Missing(StatusOutOfBounds)
	}

	if v := g.At(row, col); !g.IsNoData(v) {
		return Of(v)
	}
	if !layer.NeighborFallback {
		return Missing(StatusNoData)
	}
	return neighborMax(g, row, col)
}

// neighborMax returns the largest valid value in the 3x3 window around
// (row, col), clipped to the grid.
func neighborMax(g *raster.Grid, row, col int) Reading {
	best := math.Inf(-1)
	found := false
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r, c := row+dr, col+dc
			if !g.Contains(r, c) {
				continue
			}
			v := g.At(r, c)
			if g.IsNoData(v) {
				continue
			}
			if !found || v > best {
				best, found = v, true
			}
		}
	}
	if !found {
		return Missing(StatusNoData)
	}
	return Reading{Value: best, Valid: true, Status: StatusNeighbor}
}
