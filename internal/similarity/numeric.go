package similarity

import (
	"strconv"

	"github.com/waoai/confidis/internal/model"
)

// NumericScalar compares answers as a single real number. MaxDistance
// normalizes the raw |x-y| gap into [0,1]; distances beyond MaxDistance
// clamp to 1 rather than growing unbounded.
type NumericScalar struct {
	MaxDistance float64
}

func (NumericScalar) IsValid(a model.Answer) bool {
	_, err := strconv.ParseFloat(a.Content, 64)
	return err == nil
}

func (n NumericScalar) Distance(a, b model.Answer) float64 {
	x, errA := strconv.ParseFloat(a.Content, 64)
	y, errB := strconv.ParseFloat(b.Content, 64)
	if errA != nil || errB != nil {
		return 1
	}
	diff := x - y
	if diff < 0 {
		diff = -diff
	}
	if n.MaxDistance <= 0 {
		return 1
	}
	return clamp(diff/n.MaxDistance, 0, 1)
}
