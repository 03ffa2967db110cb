package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/geo"
)

// ResultHeader is the column order of tabular output.
var ResultHeader = []string{
	"id", "lat", "lon", "ndvi",
	"soil_type", "soil_depth", "growth_stage", "yield_potential",
	"error",
}

// Evaluator assesses many coordinates; *assess.Engine satisfies it.
type Evaluator interface {
	EvaluateMany(ctx context.Context, coords []geo.Coordinate, concurrency int) ([]assess.Result, error)
}

// Row is one output record.
type Row struct {
	Point   Point
	Outcome *assess.Outcome
	Err     error
}

// Record renders the row in ResultHeader order.
func (r Row) Record() []string {
	rec := []string{
		r.Point.ID,
		strconv.FormatFloat(r.Point.Coordinate.Lat, 'f', -1, 64),
		strconv.FormatFloat(r.Point.Coordinate.Lon, 'f', -1, 64),
		"", "", "", "", "", "",
	}
	if r.Outcome != nil {
		rec[3] = r.Outcome.NDVIString()
		rec[4] = r.Outcome.SoilType
		rec[5] = r.Outcome.SoilDepth
		rec[6] = r.Outcome.GrowthStage
		rec[7] = r.Outcome.YieldPotential
	}
	if r.Err != nil {
		rec[8] = r.Err.Error()
	}
	return rec
}

// Summary counts a run's rows.
type Summary struct {
	Total      int `json:"total"`
	Classified int `json:"classified"`
	Unknown    int `json:"unknown"`
	Invalid    int `json:"invalid"`
}

// Run evaluates points with bounded concurrency. Rows keep input order;
// points that failed to parse or validate carry their error.
func Run(ctx context.Context, ev Evaluator, points []Point, concurrency int) ([]Row, Summary, error) {
	rows := make([]Row, len(points))
	var (
		coords []geo.Coordinate
		at     []int
	)
	for i, p := range points {
		rows[i] = Row{Point: p, Err: p.Err}
		if p.Err == nil {
			coords = append(coords, p.Coordinate)
			at = append(at, i)
		}
	}

	results, err := ev.EvaluateMany(ctx, coords, concurrency)
	if err != nil {
		return nil, Summary{}, eris.Wrap(err, "batch: run")
	}
	for _, res := range results {
		i := at[res.Index]
		rows[i].Outcome = res.Outcome
		rows[i].Err = res.Err
	}

	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch {
		case r.Err != nil:
			s.Invalid++
		case r.Outcome.Classified():
			s.Classified++
		default:
			s.Unknown++
		}
	}
	return rows, s, nil
}

// Outcomes returns the non-nil outcomes of rows, for history recording.
func Outcomes(rows []Row) []*assess.Outcome {
	out := make([]*assess.Outcome, 0, len(rows))
	for _, r := range rows {
		if r.Outcome != nil {
			out = append(out, r.Outcome)
		}
	}
	return out
}

type writerFunc func(io.Writer, []Row) error

func writerFor(path string) (writerFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV, nil
	case ".xlsx":
		return writeXLSX, nil
	case ".geojson", ".json":
		return writeGeoJSON, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "output %s", path)
	}
}

// WriteResults writes rows to path as CSV, XLSX or GeoJSON by extension.
func WriteResults(path string, rows []Row) (err error) {
	write, err := writerFor(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "batch: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "batch: close output")
		}
	}()
	return write(f, rows)
}

// Options configures Process.
type Options struct {
	Read        ReadOptions
	Concurrency int
}

// Process reads input, evaluates it and writes output, returning the rows
// and a summary.
func Process(ctx context.Context, ev Evaluator, input, output string, opts Options) ([]Row, Summary, error) {
	log := zap.L().With(zap.String("component", "batch"), zap.String("input", input))
	start := time.Now()

	if _, err := writerFor(output); err != nil {
		return nil, Summary{}, err
	}
	points, err := ReadPoints(ctx, input, opts.Read)
	if err != nil {
		return nil, Summary{}, err
	}
	log.Info("points loaded", zap.Int("count", len(points)))

	rows, summary, err := Run(ctx, ev, points, opts.Concurrency)
	if err != nil {
		return nil, Summary{}, err
	}
	if err := WriteResults(output, rows); err != nil {
		return nil, Summary{}, err
	}

	log.Info("batch complete",
		zap.String("output", output),
		zap.Int("total", summary.Total),
		zap.Int("classified", summary.Classified),
		zap.Int("unknown", summary.Unknown),
		zap.Int("invalid", summary.Invalid),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, summary, nil
}
