package agro

import (
	"sort"

	"github.com/sells-group/cropsense/internal/sample"
)

// Unknown is the label for any class that cannot be determined.
const Unknown = "Unknown"

// ClassScore is one categorical layer's reading at a point.
type ClassScore struct {
	Label   string         `json:"label"`
	Reading sample.Reading `json:"reading"`
}

// Dominant picks the best-supported class among scores.
//
// Rules:
//   - missing readings are ignored
//   - the highest score wins; it must be > 0, otherwise the result is Unknown
//   - equal highest scores are broken by lexicographic label order
//
// The result does not depend on the order of scores.
func Dominant(scores []ClassScore) string {
	valid := make([]ClassScore, 0, len(scores))
	for _, s := range scores {
		if s.Reading.Valid {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return Unknown
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Reading.Value != valid[j].Reading.Value {
			return valid[i].Reading.Value > valid[j].Reading.Value
		}
		return valid[i].Label < valid[j].Label
	})

	best := valid[0]
	if best.Reading.Value <= 0 {
		return Unknown
	}
	return best.Label
}
