package similarity

import "github.com/waoai/confidis/internal/model"

// Exact treats answers as equal iff their content strings are byte-identical.
// Every answer is valid under this strategy.
type Exact struct{}

func (Exact) IsValid(model.Answer) bool { return true }

func (Exact) Distance(a, b model.Answer) float64 {
	if a.Content == b.Content {
		return 0
	}
	return 1
}
