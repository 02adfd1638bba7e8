package similarity

import (
	"math"
	"strconv"
	"strings"

	"github.com/waoai/confidis/internal/model"
)

// VecDiffFn selects the sub-algorithm NumericVector uses to fold a pair of
// equal-length float vectors down to a single raw distance before
// normalization by AllowedDifference.
type VecDiffFn string

const (
	DiffL1               VecDiffFn = "l1"
	DiffL2               VecDiffFn = "l2"
	DiffPercentNotEqual  VecDiffFn = "percent_not_equal"
	DiffIoU              VecDiffFn = "iou"
	iouMatchTolerance              = 1e-9
)

// ParseVecDiffFn validates and normalizes a diff_fn config value.
func ParseVecDiffFn(s string) (VecDiffFn, bool) {
	switch VecDiffFn(s) {
	case DiffL1, DiffL2, DiffPercentNotEqual, DiffIoU:
		return VecDiffFn(s), true
	default:
		return "", false
	}
}

// NumericVector compares answers as fixed-length comma-separated real
// vectors. VecLength fixes the expected dimensionality; AllowedDifference
// normalizes the raw per-algorithm distance into [0,1].
type NumericVector struct {
	AllowedDifference float64
	VecLength         int
	DiffFn            VecDiffFn
}

func splitVec(content string) ([]float64, bool) {
	parts := strings.Split(content, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (n NumericVector) IsValid(a model.Answer) bool {
	v, ok := splitVec(a.Content)
	if !ok {
		return false
	}
	return len(v) == n.VecLength
}

// Distance dispatches to the configured sub-algorithm. Mismatched lengths
// (including unparseable content) are maximally different: distance 1.
func (n NumericVector) Distance(a, b model.Answer) float64 {
	av, okA := splitVec(a.Content)
	bv, okB := splitVec(b.Content)
	if !okA || !okB || len(av) != len(bv) {
		return 1
	}
	if n.AllowedDifference <= 0 {
		return 1
	}

	var raw float64
	switch n.DiffFn {
	case DiffL1:
		raw = l1(av, bv)
	case DiffL2:
		raw = l2(av, bv)
	case DiffPercentNotEqual:
		raw = percentNotEqual(av, bv)
	case DiffIoU:
		raw = iouDistance(av, bv)
	default:
		return 1
	}
	return clamp(raw/n.AllowedDifference, 0, 1)
}

func l1(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func l2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func percentNotEqual(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var mismatches int
	for i := range a {
		if a[i] != b[i] {
			mismatches++
		}
	}
	return float64(mismatches) / float64(len(a))
}

// iouDistance treats each positional pair as a match ("intersection" member)
// when the two values agree within iouMatchTolerance, and otherwise as two
// distinct elements contributing to the union. This generalizes percent-not-
// equal-style positional comparison to a Jaccard-shaped distance for the
// fixed-length numeric vectors this equalifier handles (spec.md §4.1 leaves
// IoU's set semantics implementation-defined for this input shape).
func iouDistance(a, b []float64) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	var intersection int
	for i := range a {
		if math.Abs(a[i]-b[i]) <= iouMatchTolerance {
			intersection++
		}
	}
	union := 2*n - intersection
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}
