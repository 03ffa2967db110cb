// Package store persists assessment outcomes so recent clicks can be
// reviewed later.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cropsense/internal/assess"
)

// Driver names accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultListLimit is used when a caller passes a non-positive limit.
const DefaultListLimit = 50

// MaxListLimit caps a single history page.
const MaxListLimit = 1000

// ErrNotFound is returned by GetOutcome for an unknown id.
var ErrNotFound = eris.New("store: outcome not found")

// Store defines the persistence interface for outcome history.
type Store interface {
	SaveOutcome(ctx context.Context, o *assess.Outcome) error
	GetOutcome(ctx context.Context, id string) (*assess.Outcome, error)
	// ListOutcomes returns the most recent outcomes first.
	ListOutcomes(ctx context.Context, limit int) ([]assess.Outcome, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. It returns a nil Store when
// history is disabled.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverNone, "":
		return nil, nil
	case DriverSQLite:
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgres(ctx, dsn, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// row is the flattened column set shared by both backends.
type row struct {
	ID             string
	SampledAt      any
	Lat, Lon       float64
	NDVI           *float64
	SoilType       string
	SoilDepth      string
	GrowthStage    string
	YieldPotential string
	Diagnostics    []byte
}

func toRow(o *assess.Outcome) (row, error) {
	diag, err := json.Marshal(o.Diagnostics)
	if err != nil {
		return row{}, eris.Wrap(err, "store: marshal diagnostics")
	}
	return row{
		ID:             o.ID,
		SampledAt:      o.SampledAt.UTC(),
		Lat:            o.Coordinate.Lat,
		Lon:            o.Coordinate.Lon,
		NDVI:           o.NDVI,
		SoilType:       o.SoilType,
		SoilDepth:      o.SoilDepth,
		GrowthStage:    o.GrowthStage,
		YieldPotential: o.YieldPotential,
		Diagnostics:    diag,
	}, nil
}

func (r row) args() []any {
	return []any{r.ID, r.SampledAt, r.Lat, r.Lon, r.NDVI, r.SoilType, r.SoilDepth, r.GrowthStage, r.YieldPotential, r.Diagnostics}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanOutcome(s scannable) (*assess.Outcome, error) {
	var o assess.Outcome
	var diag []byte
	err := s.Scan(
		&o.ID, &o.SampledAt, &o.Coordinate.Lat, &o.Coordinate.Lon, &o.NDVI,
		&o.SoilType, &o.SoilDepth, &o.GrowthStage, &o.YieldPotential, &diag,
	)
	if err != nil {
		return nil, err
	}
	if len(diag) > 0 {
		if err := json.Unmarshal(diag, &o.Diagnostics); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal diagnostics")
		}
	}
	o.SampledAt = o.SampledAt.UTC()
	return &o, nil
}

const outcomeColumns = `id, sampled_at, lat, lon, ndvi, soil_type, soil_depth, growth_stage, yield_potential, diagnostics`
