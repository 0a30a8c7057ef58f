// Package stats implements the statistical tests run against LSB planes and sample sequences.
// Every test is a pure function that returns a models.TestResult and degrades to a
// flagged fallback on trivial input instead of failing.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"MediaSteGo/pkg/models"
)

// BucketMode selects how the chi-square expectation is built
type BucketMode int

const (
	// UniqueBuckets expects an equal share for every value that actually occurs
	UniqueBuckets BucketMode = iota
	// BinaryBuckets always tests the two buckets 0 and 1 against n/2 each
	BinaryBuckets
)

// ChiPolicy decides which side of the chi-square test is suspicious
type ChiPolicy string

const (
	// RejectUniform treats a low p-value as suspicious: the plane departs from uniform
	RejectUniform ChiPolicy = "reject-uniform"
	// AcceptUniform treats a high p-value as suspicious: the plane is as uniform as
	// random embedded bits would make it
	AcceptUniform ChiPolicy = "accept-uniform"
)

// Significance maps a p-value onto the scale the band thresholds apply to,
// where smaller always means more suspicious.
func (p ChiPolicy) Significance(pValue float64) float64 {
	if p == AcceptUniform {
		return 1 - pValue
	}
	return pValue
}

// ChiSquare runs a goodness-of-fit test of the value counts against a uniform expectation.
// Value is the statistic, Pair the p-value. Fewer than two distinct values yields (0, 1.0)
// flagged degenerate.
func ChiSquare(values []uint8, mode BucketMode) models.TestResult {
	res := models.TestResult{Method: models.MethodChiSquare, Pair: 1.0}

	var counts [256]int
	for _, v := range values {
		counts[v]++
	}

	var observed []float64
	switch mode {
	case BinaryBuckets:
		observed = []float64{float64(counts[0]), float64(counts[1])}
		if counts[0] == 0 || counts[1] == 0 || counts[0]+counts[1] != len(values) {
			res.Degenerate = true
			return res
		}
	default:
		for _, c := range counts {
			if c > 0 {
				observed = append(observed, float64(c))
			}
		}
		if len(observed) < 2 {
			res.Degenerate = true
			return res
		}
	}

	expected := float64(len(values)) / float64(len(observed))
	var chi float64
	for _, o := range observed {
		d := o - expected
		chi += d * d / expected
	}

	dist := distuv.ChiSquared{K: float64(len(observed) - 1)}
	p := dist.Survival(chi)
	if math.IsNaN(p) {
		p = 1.0
	}

	res.Value = chi
	res.Pair = math.Min(math.Max(p, 0), 1)
	return res
}
