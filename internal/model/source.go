package model

// Source is an agent that supplies answers. Quality is the engine's current
// estimate of the probability this source answers correctly; strength is
// the pseudo-count of evidence backing that estimate.
type Source struct {
	Name     string
	Quality  float64
	Strength float64
}
