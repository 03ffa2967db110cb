// Package agro turns sampled raster values into agronomic labels: scaled
// NDVI, dominant soil class, growth stage and yield potential.
package agro

import (
	"math"

	"github.com/sells-group/cropsense/internal/sample"
)

// Common NDVI encodings. A factor of 1 (or less) means the raster already
// stores floating point NDVI.
const (
	ScaleFloat       = 1.0
	ScalePercent     = 100.0
	ScaleMODIS       = 10000.0
	DefaultNDVIScale = ScaleMODIS
)

// ScaleNDVI normalizes a raw NDVI cell into [0, 1].
//
// factor is the integer encoding of the raster the value came from. Values
// already in [0, 1] are returned unchanged; values above 1 are divided by
// factor (when factor > 1). The result is clamped into [0, 1]. Callers pass
// only present values; missing data is handled by ScaleReading.
func ScaleNDVI(raw, factor float64) float64 {
	v := raw
	if v > 1 && factor > 1 {
		v /= factor
	}
	return Clamp01(v)
}

// ScaleReading applies ScaleNDVI to a present reading and passes missing
// readings through untouched.
func ScaleReading(r sample.Reading, factor float64) sample.Reading {
	if !r.Valid {
		return r
	}
	if math.IsNaN(r.Value) {
		return sample.Missing(sample.StatusNoData)
	}
	r.Value = ScaleNDVI(r.Value, factor)
	return r
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
