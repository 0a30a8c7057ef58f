package stats

import (
	"context"
	"fmt"

	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
)

// BatteryInput carries everything the tests may need. Gray is required for RS and the
// histogram slope; LSB defaults to the LSB plane of Gray when nil.
type BatteryInput struct {
	Gray    *raster.Plane
	LSB     []uint8
	Buckets BucketMode
	RS      RSVariant
	RSOpts  RSOptions
}

// RunBattery runs the selected tests in order. Each test is isolated: a panic is recorded
// as that test's Error and the remaining tests still run. A cancelled context marks the
// tests that did not start.
func RunBattery(ctx context.Context, in BatteryInput, tests ...models.Method) map[models.Method]models.TestResult {
	if len(tests) == 0 {
		tests = models.BatteryMethods
	}

	lsb := in.LSB
	if lsb == nil && in.Gray != nil {
		lsb = raster.LSBPlane(in.Gray).Pix
	}

	out := make(map[models.Method]models.TestResult, len(tests))
	for _, m := range tests {
		if err := ctx.Err(); err != nil {
			out[m] = models.TestResult{Method: m, Error: err.Error()}
			continue
		}

		switch m {
		case models.MethodChiSquare:
			out[m] = Isolate(m, func() models.TestResult { return ChiSquare(lsb, in.Buckets) })
		case models.MethodEntropy:
			out[m] = Isolate(m, func() models.TestResult { return Entropy(lsb) })
		case models.MethodRS:
			out[m] = Isolate(m, func() models.TestResult { return RS(in.Gray, in.RS, in.RSOpts) })
		case models.MethodHistogram:
			out[m] = Isolate(m, func() models.TestResult { return HistogramSlope(in.Gray) })
		default:
			out[m] = models.TestResult{Method: m, Error: fmt.Sprintf("%s is not a battery test", m)}
		}
	}
	return out
}

// Isolate runs one test and converts a panic into an errored result
func Isolate(m models.Method, fn func() models.TestResult) (res models.TestResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.TestResult{
				Method: m,
				Error:  fmt.Errorf("%w: %s: %v", models.ErrPartialAnalysis, m, r).Error(),
			}
		}
	}()
	return fn()
}
