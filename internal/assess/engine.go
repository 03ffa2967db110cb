// Package assess combines the sampler and the agronomic rules into a single
// point assessment over a loaded set of rasters.
package assess

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cropsense/internal/agro"
	"github.com/sells-group/cropsense/internal/catalog"
	"github.com/sells-group/cropsense/internal/crs"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/observability"
	"github.com/sells-group/cropsense/internal/raster"
	"github.com/sells-group/cropsense/internal/sample"
)

// Options configures an Engine.
type Options struct {
	// NDVIScale is used when the catalog's NDVI layer declares no scale.
	NDVIScale  float64
	Thresholds agro.Thresholds
	Metrics    *observability.Metrics
	Clock      clockwork.Clock
	Projector  *crs.Projector
}

func (o Options) withDefaults() Options {
	if o.NDVIScale == 0 {
		o.NDVIScale = agro.DefaultNDVIScale
	}
	if o.Thresholds == (agro.Thresholds{}) {
		o.Thresholds = agro.DefaultThresholds()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Projector == nil {
		o.Projector = crs.NewProjector()
	}
	return o
}

// LayerInfo describes a loaded layer.
type LayerInfo struct {
	Name             string       `json:"name"`
	Role             catalog.Role `json:"role"`
	NeighborFallback bool         `json:"neighbor_fallback"`
	raster.Description
}

// Layers groups the sampling layers of an Engine by role.
type Layers struct {
	NDVI      sample.Layer
	NDVIScale float64
	SoilType  []sample.Layer
	SoilDepth []sample.Layer
}

// Engine evaluates coordinates against a fixed set of layers. It is
// read-only after construction and safe for concurrent use.
type Engine struct {
	layers     Layers
	info       []LayerInfo
	sampler    *sample.Sampler
	thresholds agro.Thresholds
	metrics    *observability.Metrics
	clock      clockwork.Clock
	log        *zap.Logger
}

// New builds an Engine from already opened layers.
func New(layers Layers, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if len(layers.SoilType) == 0 || len(layers.SoilDepth) == 0 {
		return nil, eris.Wrap(catalog.ErrInvalid, "assess: soil type and soil depth layers are required")
	}
	all := append([]sample.Layer{layers.NDVI}, layers.SoilType...)
	for _, l := range append(all, layers.SoilDepth...) {
		if l.Grid == nil {
			return nil, eris.Wrapf(catalog.ErrInvalid, "assess: layer %q has no grid", l.Name)
		}
		// An unusable CRS would turn every sample of the layer into no data.
		if _, err := opts.Projector.Transform(l.Grid.CRS); err != nil {
			return nil, eris.Wrapf(err, "assess: layer %q crs", l.Name)
		}
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if layers.NDVIScale == 0 {
		layers.NDVIScale = opts.NDVIScale
	}

	sopts := []sample.Option{sample.WithProjector(opts.Projector)}
	if opts.Metrics != nil {
		sopts = append(sopts, sample.WithObserver(opts.Metrics))
	}

	e := &Engine{
		layers:     layers,
		sampler:    sample.New(sopts...),
		thresholds: opts.Thresholds,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		log:        zap.L().With(zap.String("component", "assess")),
	}
	e.info = append(e.info, describe(catalog.RoleNDVI, layers.NDVI))
	for _, l := range layers.SoilType {
		e.info = append(e.info, describe(catalog.RoleSoilType, l))
	}
	for _, l := range layers.SoilDepth {
		e.info = append(e.info, describe(catalog.RoleSoilDepth, l))
	}
	if e.metrics != nil {
		e.metrics.LayersLoaded.Set(float64(len(e.info)))
	}
	return e, nil
}

func describe(role catalog.Role, l sample.Layer) LayerInfo {
	return LayerInfo{
		Name:             l.Name,
		Role:             role,
		NeighborFallback: l.NeighborFallback,
		Description:      raster.Describe(l.Path, l.Grid),
	}
}

// Load validates the catalog, opens every raster in parallel and builds an
// Engine. The first unreadable raster aborts the load.
func Load(ctx context.Context, cat *catalog.Catalog, opts Options) (*Engine, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "assess"))
	entries := cat.Entries()
	opened := make([]sample.Layer, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			grid, err := raster.Open(entry.Layer.Path, raster.Options{
				NoData: entry.Layer.NoData,
				CRS:    entry.Layer.CRS,
			})
			if err != nil {
				return eris.Wrapf(err, "assess: load %s layer %q", entry.Role, entry.Layer.Label)
			}
			opened[i] = sample.Layer{
				Name:             entry.Layer.Label,
				Path:             entry.Layer.Path,
				Grid:             grid,
				NeighborFallback: entry.Layer.NeighborFallback,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	layers := Layers{NDVIScale: cat.NDVI.Scale}
	for i, entry := range entries {
		switch entry.Role {
		case catalog.RoleNDVI:
			layers.NDVI = opened[i]
		case catalog.RoleSoilType:
			layers.SoilType = append(layers.SoilType, opened[i])
		case catalog.RoleSoilDepth:
			layers.SoilDepth = append(layers.SoilDepth, opened[i])
		}
	}

	e, err := New(layers, opts)
	if err != nil {
		return nil, err
	}
	log.Info("layers loaded",
		zap.Int("count", len(entries)),
		zap.Float64("ndvi_scale", e.layers.NDVIScale),
	)
	return e, nil
}

// Layers describes every loaded layer in catalog order.
func (e *Engine) Layers() []LayerInfo {
	out := make([]LayerInfo, len(e.info))
	copy(out, e.info)
	return out
}

// Evaluate samples every layer at c and classifies the point. The only error
// is an invalid coordinate (or a cancelled context); missing data is
// reported inside the Outcome.
func (e *Engine) Evaluate(ctx context.Context, c geo.Coordinate) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		e.countOutcome(observability.OutcomeInvalid)
		return nil, err
	}
	start := time.Now()

	raw := e.sampler.Sample(e.layers.NDVI, c)
	ndvi := agro.ScaleReading(raw, e.layers.NDVIScale)

	soilScores := e.scores(e.layers.SoilType, c)
	depthScores := e.scores(e.layers.SoilDepth, c)
	soil := agro.Dominant(soilScores)
	depth := agro.Dominant(depthScores)

	a := agro.Classify(ndvi, soil, e.thresholds)

	out := &Outcome{
		ID:             uuid.NewString(),
		SampledAt:      e.clock.Now().UTC(),
		Coordinate:     c,
		NDVI:           ndvi.Float(),
		SoilType:       soil,
		SoilDepth:      depth,
		GrowthStage:    a.GrowthStage,
		YieldPotential: a.YieldPotential,
		Diagnostics: Diagnostics{
			NDVIRaw:   raw,
			SoilType:  soilScores,
			SoilDepth: depthScores,
		},
	}

	if e.metrics != nil {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}
	if out.Classified() {
		e.countOutcome(observability.OutcomeClassified)
	} else {
		e.countOutcome(observability.OutcomeUnknown)
		e.log.Debug("point not classified",
			zap.Float64("lat", c.Lat), zap.Float64("lon", c.Lon),
			zap.String("ndvi_status", string(raw.Status)),
			zap.String("soil_type", soil),
		)
	}
	return out, nil
}

func (e *Engine) scores(layers []sample.Layer, c geo.Coordinate) []agro.ClassScore {
	out := make([]agro.ClassScore, len(layers))
	for i, l := range layers {
		out[i] = agro.ClassScore{Label: l.Name, Reading: e.sampler.Sample(l, c)}
	}
	return out
}

func (e *Engine) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.Evaluations.WithLabelValues(outcome).Inc()
	}
}

// Result pairs an input coordinate with its outcome or validation error.
type Result struct {
	Index   int
	Outcome *Outcome
	Err     error
}

// EvaluateMany evaluates coords with at most concurrency workers. Results
// keep input order. Per-point errors are carried in Result.Err; the returned
// error is only set when ctx is cancelled.
func (e *Engine) EvaluateMany(ctx context.Context, coords []geo.Coordinate, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(coords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range coords {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := e.Evaluate(gctx, c)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = Result{Index: i, Outcome: out, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "assess: evaluate many")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "assess: evaluate many")
	}
	return results, nil
}
