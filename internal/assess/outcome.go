package assess

import (
	"strconv"
	"time"

	"github.com/sells-group/cropsense/internal/agro"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/sample"
)

// Outcome is the assessment of one point. Any label may be agro.Unknown and
// NDVI is nil when the NDVI raster has no data there.
type Outcome struct {
	ID             string         `json:"id"`
	SampledAt      time.Time      `json:"sampled_at"`
	Coordinate     geo.Coordinate `json:"coordinate"`
	NDVI           *float64       `json:"ndvi"`
	SoilType       string         `json:"soil_type"`
	SoilDepth      string         `json:"soil_depth"`
	GrowthStage    string         `json:"growth_stage"`
	YieldPotential string         `json:"yield_potential"`
	Diagnostics    Diagnostics    `json:"diagnostics"`
}

// Diagnostics keeps the raw per-layer readings behind an Outcome.
type Diagnostics struct {
	NDVIRaw   sample.Reading    `json:"ndvi_raw"`
	SoilType  []agro.ClassScore `json:"soil_type,omitempty"`
	SoilDepth []agro.ClassScore `json:"soil_depth,omitempty"`
}

// Classified reports whether a growth stage could be determined.
func (o *Outcome) Classified() bool {
	return o.GrowthStage != agro.Unknown
}

// NDVIString formats NDVI for tabular output; empty when missing.
func (o *Outcome) NDVIString() string {
	if o.NDVI == nil {
		return ""
	}
	return strconv.FormatFloat(*o.NDVI, 'f', 4, 64)
}

// Properties returns the outcome as flat GeoJSON feature properties.
func (o *Outcome) Properties() map[string]any {
	props := map[string]any{
		"sampled_at":      o.SampledAt.Format(time.RFC3339),
		"soil_type":       o.SoilType,
		"soil_depth":      o.SoilDepth,
		"growth_stage":    o.GrowthStage,
		"yield_potential": o.YieldPotential,
		"ndvi":            nil,
	}
	if o.NDVI != nil {
		props["ndvi"] = *o.NDVI
	}
	return props
}

// Feature encodes the outcome as a GeoJSON Feature.
func (o *Outcome) Feature() ([]byte, error) {
	return geo.Feature(o.Coordinate, o.ID, o.Properties())
}
