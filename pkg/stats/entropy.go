package stats

import (
	"math"

	"MediaSteGo/pkg/models"
)

// Entropy is the base-2 Shannon entropy of the value histogram.
// A bit-plane lands in [0, 1]. Empty or constant input yields 0 flagged degenerate.
func Entropy(values []uint8) models.TestResult {
	res := models.TestResult{Method: models.MethodEntropy}
	if len(values) == 0 {
		res.Degenerate = true
		return res
	}

	var counts [256]int
	for _, v := range values {
		counts[v]++
	}

	n := float64(len(values))
	distinct := 0
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		distinct++
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	if distinct < 2 {
		res.Degenerate = true
		return res
	}
	res.Value = h
	return res
}
