// Package similarity implements the pluggable "equalifier" strategies that
// the belief graph uses to decide how close two answers are. A strategy is a
// capability held by value in internal/graph and swapped atomically by the
// Configure command; it never owns engine state.
package similarity

import "github.com/waoai/confidis/internal/model"

// Equalifier produces a normalized pairwise distance in [0,1] between two
// answers, and a validity predicate for a single answer. 0 means identical;
// 1 means maximally different. An answer failing IsValid is still compared —
// it typically ends up in a cluster of its own under the metric's rules.
type Equalifier interface {
	IsValid(a model.Answer) bool
	Distance(a, b model.Answer) float64
}

// clamp constrains v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
