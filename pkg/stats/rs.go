package stats

import (
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
)

// RSVariant selects the block geometry and smoothness measure of the RS test
type RSVariant int

const (
	// RSDualMask uses 4x4 blocks, two complementary checkerboard masks and the sum
	// of absolute vertical differences as smoothness. Each block counts twice.
	RSDualMask RSVariant = iota
	// RSVariance uses 2x2 blocks, a single-pixel mask and the population variance
	RSVariance
)

// RSOptions bounds the work done on large planes
type RSOptions struct {
	// MaxPixels above which the plane is downscaled first, 0 disables
	MaxPixels int
	// Downscale is the edge length of the downscaled square
	Downscale int
}

// RS runs Regular-Singular analysis on a grayscale plane. A group is regular when
// flipping the masked LSBs makes it less smooth and singular when it makes it smoother.
// Value is the regular fraction, Pair the singular fraction. A plane smaller than
// one block yields (0, 0) flagged degenerate.
func RS(gray *raster.Plane, variant RSVariant, opts RSOptions) models.TestResult {
	res := models.TestResult{Method: models.MethodRS}
	if gray == nil || gray.Len() == 0 {
		res.Degenerate = true
		return res
	}

	if opts.MaxPixels > 0 && opts.Downscale > 0 && gray.Len() > opts.MaxPixels {
		gray = raster.Downscale(gray, opts.Downscale, opts.Downscale)
	}

	var regular, singular, total int
	switch variant {
	case RSVariance:
		regular, singular, total = rsVariance(gray)
	default:
		regular, singular, total = rsDualMask(gray)
	}

	if total == 0 {
		res.Degenerate = true
		return res
	}
	res.Value = float64(regular) / float64(total)
	res.Pair = float64(singular) / float64(total)
	return res
}

const dualBlock = 4

func rsDualMask(gray *raster.Plane) (regular, singular, total int) {
	var block [dualBlock][dualBlock]int
	for y := 0; y+dualBlock <= gray.Height; y += dualBlock {
		for x := 0; x+dualBlock <= gray.Width; x += dualBlock {
			for r := 0; r < dualBlock; r++ {
				for c := 0; c < dualBlock; c++ {
					block[r][c] = int(gray.At(x+c, y+r))
				}
			}

			base := verticalSmoothness(&block, -1)
			// mask one flips cells where (r+c) is odd, mask two where it is even
			for parity := 1; parity >= 0; parity-- {
				flipped := verticalSmoothness(&block, parity)
				switch {
				case flipped > base:
					regular++
				case flipped < base:
					singular++
				}
			}
			total += 2
		}
	}
	return regular, singular, total
}

// verticalSmoothness sums |b[r+1][c] - b[r][c]| after XOR-ing the LSB of every cell whose
// (r+c)%2 equals parity. A parity of -1 flips nothing.
func verticalSmoothness(b *[dualBlock][dualBlock]int, parity int) int {
	v := func(r, c int) int {
		if (r+c)%2 == parity {
			return b[r][c] ^ 1
		}
		return b[r][c]
	}
	sum := 0
	for r := 0; r < dualBlock-1; r++ {
		for c := 0; c < dualBlock; c++ {
			d := v(r+1, c) - v(r, c)
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}

func rsVariance(gray *raster.Plane) (regular, singular, total int) {
	for y := 0; y+2 <= gray.Height; y += 2 {
		for x := 0; x+2 <= gray.Width; x += 2 {
			a := int(gray.At(x, y))
			b := int(gray.At(x+1, y))
			c := int(gray.At(x, y+1))
			d := int(gray.At(x+1, y+1))

			orig := scaledVariance(a, b, c, d)
			flip := scaledVariance(a, b, c, d^1)
			switch {
			case flip > orig:
				regular++
			case flip < orig:
				singular++
			}
			total++
		}
	}
	return regular, singular, total
}

// scaledVariance is 16 times the population variance of four values, kept integral
func scaledVariance(a, b, c, d int) int {
	sum := a + b + c + d
	sq := a*a + b*b + c*c + d*d
	return 4*sq - sum*sum
}
