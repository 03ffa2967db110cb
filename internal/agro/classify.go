package agro

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/cropsense/internal/sample"
)

// Growth stage labels.
const (
	StageEarly   = "Bare / Early sowing"
	StageActive  = "Active Growth"
	StageHealthy = "Healthy / Maturity"
)

// Yield potential labels.
const (
	YieldVeryLow    = "Very Low"
	YieldLow        = "Low"
	YieldLowMedium  = "Low to Medium"
	YieldMedium     = "Medium"
	YieldMediumHigh = "Medium to High"
	YieldHigh       = "High"
)

// Soil types with their own yield column. Every other type (Clayey, Clay
// Skeletal, ...) falls in the "other" column.
const (
	SoilSandy = "Sandy"
	SoilLoamy = "Loamy"
)

// Default NDVI thresholds. 0.2/0.5 is the policy choice; some datasets are
// calibrated for 0.3/0.6 and can override it through configuration.
const (
	DefaultEarlyMax  = 0.2
	DefaultActiveMax = 0.5
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = eris.New("agro: invalid NDVI thresholds")

// Thresholds are the upper bounds (exclusive) of the early and active stages.
type Thresholds struct {
	EarlyMax  float64 `yaml:"early_max" mapstructure:"early_max" json:"early_max"`
	ActiveMax float64 `yaml:"active_max" mapstructure:"active_max" json:"active_max"`
}

// DefaultThresholds returns the 0.2/0.5 policy.
func DefaultThresholds() Thresholds {
	return Thresholds{EarlyMax: DefaultEarlyMax, ActiveMax: DefaultActiveMax}
}

// Validate requires 0 <= EarlyMax < ActiveMax <= 1.
func (t Thresholds) Validate() error {
	if t.EarlyMax < 0 || t.ActiveMax > 1 || t.EarlyMax >= t.ActiveMax {
		return eris.Wrapf(ErrInvalidThresholds, "early_max=%v active_max=%v", t.EarlyMax, t.ActiveMax)
	}
	return nil
}

// Stage returns the growth stage for a scaled NDVI value.
// Rules:
//   - Bare / Early sowing: ndvi < EarlyMax
//   - Active Growth: EarlyMax <= ndvi < ActiveMax
//   - Healthy / Maturity: ndvi >= ActiveMax
func (t Thresholds) Stage(ndvi float64) string {
	switch {
	case ndvi < t.EarlyMax:
		return StageEarly
	case ndvi < t.ActiveMax:
		return StageActive
	default:
		return StageHealthy
	}
}

// yieldTable is indexed by stage, then soil column.
var yieldTable = map[string][3]string{
	//              Sandy           Loamy         Other
	StageEarly:   {YieldVeryLow, YieldLow, YieldLow},
	StageActive:  {YieldLowMedium, YieldMedium, YieldMediumHigh},
	StageHealthy: {YieldMedium, YieldHigh, YieldHigh},
}

// CanonicalSoil normalizes a soil label ("sandy", "CLAY SKELETAL") to title
// case. Empty labels become Unknown.
func CanonicalSoil(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" || strings.EqualFold(label, Unknown) {
		return Unknown
	}
	// Casers are stateful; one per call.
	return cases.Title(language.English).String(strings.ToLower(label))
}

func soilColumn(soil string) int {
	switch CanonicalSoil(soil) {
	case SoilSandy:
		return 0
	case SoilLoamy:
		return 1
	default:
		return 2
	}
}

// Yield returns the yield potential for a stage and soil type. Unknown stage
// or soil yields Unknown.
func Yield(stage, soil string) string {
	if stage == Unknown || CanonicalSoil(soil) == Unknown {
		return Unknown
	}
	row, ok := yieldTable[stage]
	if !ok {
		return Unknown
	}
	return row[soilColumn(soil)]
}

// Assessment is the pure classification of one (NDVI, soil) pair.
type Assessment struct {
	GrowthStage    string `json:"growth_stage"`
	YieldPotential string `json:"yield_potential"`
}

// Classify maps a scaled NDVI reading and a soil type to stage and yield.
// Missing NDVI or an Unknown soil type makes both labels Unknown.
func Classify(ndvi sample.Reading, soil string, t Thresholds) Assessment {
	if !ndvi.Valid || CanonicalSoil(soil) == Unknown {
		return Assessment{GrowthStage: Unknown, YieldPotential: Unknown}
	}
	stage := t.Stage(ndvi.Value)
	return Assessment{GrowthStage: stage, YieldPotential: Yield(stage, soil)}
}
