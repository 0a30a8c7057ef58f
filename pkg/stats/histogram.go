package stats

import (
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
)

// Histogram counts every gray level of the plane
func Histogram(gray *raster.Plane) [256]int {
	var hist [256]int
	for _, v := range gray.Pix {
		hist[v]++
	}
	return hist
}

// HistogramSlope counts slope direction changes across the 256-bin histogram:
// the sum of |sign(d[i+1]) - sign(d[i])| over the first differences d.
// Pair-of-values embedding tends to flatten adjacent bins into a sawtooth, raising the count.
func HistogramSlope(gray *raster.Plane) models.TestResult {
	res := models.TestResult{Method: models.MethodHistogram}
	if gray == nil || gray.Len() == 0 {
		res.Degenerate = true
		return res
	}

	hist := Histogram(gray)
	var signs [255]int
	for i := 0; i < 255; i++ {
		signs[i] = sign(hist[i+1] - hist[i])
	}

	changes := 0
	for i := 0; i < 254; i++ {
		d := signs[i+1] - signs[i]
		if d < 0 {
			d = -d
		}
		changes += d
	}

	res.Value = float64(changes)
	return res
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
