// Package scoring fuses individual test results into a detection decision.
// Every policy ignores unusable results and returns a zero outcome when none remain.
package scoring

import (
	"fmt"
	"math"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/stats"
)

// Outcome is the decision of one policy
type Outcome struct {
	Detected   bool
	Confidence float64
	// Score is the indicator tally or band points, nil for policies without one
	Score    *int
	Fired    []models.Method
	Findings []models.Finding
}

// Apply copies the outcome onto a verdict
func (o Outcome) Apply(v *models.Verdict) {
	v.Detected = o.Detected
	v.Confidence = o.Confidence
	v.IndicatorScore = o.Score
	for _, m := range o.Fired {
		v.AddMethod(m.Label())
	}
	v.Findings = append(v.Findings, o.Findings...)
}

func (o *Outcome) fire(m models.Method, confidence float64, description, details string) {
	o.Fired = append(o.Fired, m)
	o.Findings = append(o.Findings, models.Finding{
		Description: description,
		Confidence:  confidence,
		Details:     details,
	})
}

func usable(results map[models.Method]models.TestResult, m models.Method) (models.TestResult, bool) {
	r, ok := results[m]
	if !ok || !r.Usable() {
		return models.TestResult{}, false
	}
	return r, true
}

func countUsable(results map[models.Method]models.TestResult) int {
	n := 0
	for _, r := range results {
		if r.Usable() {
			n++
		}
	}
	return n
}

// IndicatorCount counts binary indicators: chi-square significance, LSB entropy,
// RS gap and histogram slope changes. Enough indicators make a detection whose confidence
// grows by a fixed step per extra indicator.
func IndicatorCount(results map[models.Method]models.TestResult, policy stats.ChiPolicy, th config.Thresholds) Outcome {
	var out Outcome
	if countUsable(results) == 0 {
		return out
	}

	tally := 0
	if r, ok := usable(results, models.MethodChiSquare); ok {
		if sig := policy.Significance(r.PValue()); sig < th.ChiSignificance {
			tally++
			out.fire(models.MethodChiSquare, 0, "Chi-square test flags the LSB distribution",
				fmt.Sprintf("statistic=%.4f p=%.5f", r.Value, r.PValue()))
		}
	}
	if r, ok := usable(results, models.MethodEntropy); ok && r.Value > th.Entropy {
		tally++
		out.fire(models.MethodEntropy, 0, "High LSB plane entropy", fmt.Sprintf("entropy=%.4f", r.Value))
	}
	if r, ok := usable(results, models.MethodRS); ok && r.RSGap() < th.RSGap {
		tally++
		out.fire(models.MethodRS, 0, "Regular and singular groups are nearly balanced",
			fmt.Sprintf("regular=%.4f singular=%.4f", r.Regular(), r.Singular()))
	}
	if r, ok := usable(results, models.MethodHistogram); ok && r.Value > th.HistogramSlope {
		tally++
		out.fire(models.MethodHistogram, 0, "Irregular histogram slope", fmt.Sprintf("slope changes=%d", int(r.Value)))
	}

	out.Score = &tally
	if tally >= th.IndicatorFloor {
		out.Detected = true
		out.Confidence = math.Min(th.IndicatorBase+th.IndicatorStep*float64(tally-th.IndicatorFloor), th.IndicatorCeiling)
	}
	for i := range out.Findings {
		out.Findings[i].Confidence = out.Confidence
	}
	return out
}

// WeightedBands awards points and confidence increments per test from the first band the
// test falls into. Chi-square and RS bands fire below their threshold, entropy and
// histogram bands above it.
func WeightedBands(results map[models.Method]models.TestResult, policy stats.ChiPolicy, bands config.Bands, th config.Thresholds) Outcome {
	var out Outcome
	if countUsable(results) == 0 {
		return out
	}

	points := 0
	increments := 0.0
	apply := func(m models.Method, table []config.Band, fires func(config.Band) bool, description, details string) {
		for _, b := range table {
			if fires(b) {
				points += b.Points
				increments += b.Confidence
				out.fire(m, b.Confidence, description, details)
				return
			}
		}
	}

	if r, ok := usable(results, models.MethodChiSquare); ok {
		sig := policy.Significance(r.PValue())
		apply(models.MethodChiSquare, bands.ChiSquare,
			func(b config.Band) bool { return sig < b.Threshold },
			"Chi-square test flags the LSB distribution",
			fmt.Sprintf("statistic=%.4f p=%.5f", r.Value, r.PValue()))
	}
	if r, ok := usable(results, models.MethodEntropy); ok {
		apply(models.MethodEntropy, bands.Entropy,
			func(b config.Band) bool { return r.Value > b.Threshold },
			"High LSB plane entropy", fmt.Sprintf("entropy=%.4f", r.Value))
	}
	if r, ok := usable(results, models.MethodRS); ok {
		gap := r.RSGap()
		apply(models.MethodRS, bands.RS,
			func(b config.Band) bool { return gap < b.Threshold },
			"Regular and singular groups are nearly balanced",
			fmt.Sprintf("regular=%.4f singular=%.4f", r.Regular(), r.Singular()))
	}
	if r, ok := usable(results, models.MethodHistogram); ok {
		apply(models.MethodHistogram, bands.Histogram,
			func(b config.Band) bool { return r.Value > b.Threshold },
			"Irregular histogram slope", fmt.Sprintf("slope changes=%d", int(r.Value)))
	}

	out.Score = &points
	out.Detected = points >= th.WeightedCutoff
	if increments > 0 {
		out.Confidence = math.Min(th.WeightedBase+increments, 1.0)
	}
	return out
}

// AudioTwoTest scores the chi-square and entropy results of an audio LSB sequence.
// Both tests must agree: the strict, base and loose bands pair a chi significance
// cut-off with an entropy floor and give 0.9, 0.7 and 0.5. A sequence outside every
// band is not detected and keeps a residual 0.3.
func AudioTwoTest(results map[models.Method]models.TestResult, policy stats.ChiPolicy, th config.Thresholds) Outcome {
	var out Outcome

	chi, chiOK := usable(results, models.MethodChiSquare)
	ent, entOK := usable(results, models.MethodEntropy)
	if !chiOK && !entOK {
		return out
	}

	out.Confidence = 0.3
	if !chiOK || !entOK {
		return out
	}

	sig := policy.Significance(chi.PValue())
	bands := []struct {
		chi, entropy, confidence float64
	}{
		{th.ChiStrict, th.AudioStrict, 0.9},
		{th.ChiSignificance, th.AudioEntropy, 0.7},
		{th.ChiLoose, th.AudioLoose, 0.5},
	}
	for _, b := range bands {
		if sig < b.chi && ent.Value > b.entropy {
			out.Detected = true
			out.Confidence = b.confidence
			break
		}
	}
	if !out.Detected {
		return out
	}

	out.fire(models.MethodChiSquare, out.Confidence, "Chi-square test flags the sample LSBs",
		fmt.Sprintf("statistic=%.4f p=%.5f", chi.Value, chi.PValue()))
	out.fire(models.MethodEntropy, out.Confidence, "High sample LSB entropy", fmt.Sprintf("entropy=%.4f", ent.Value))
	return out
}

// FrameSuspicious reports whether a video frame crosses the chi-square or entropy threshold
func FrameSuspicious(results map[models.Method]models.TestResult, policy stats.ChiPolicy, th config.Thresholds) bool {
	if r, ok := usable(results, models.MethodChiSquare); ok && policy.Significance(r.PValue()) < th.ChiSignificance {
		return true
	}
	if r, ok := usable(results, models.MethodEntropy); ok && r.Value > th.FrameEntropy {
		return true
	}
	return false
}

// VideoRatio maps the fraction of suspicious frames onto a confidence through four
// piecewise-linear bands. Any suspicious frame is a detection.
func VideoRatio(ratio float64) (bool, float64) {
	switch {
	case ratio > 0.5:
		return true, math.Min(0.7+(ratio-0.5)*0.6, 1.0)
	case ratio > 0.3:
		return true, 0.5 + (ratio-0.3)*2.0
	case ratio > 0.1:
		return true, 0.3 + (ratio-0.1)*2.0
	default:
		return ratio > 0, math.Max(ratio*3.0, 0)
	}
}

// BlendAudio folds an audio track verdict into a video decision. A detected track forces
// detection and weighs the video confidence twice.
func BlendAudio(detected bool, confidence float64, audio *models.Verdict) (bool, float64) {
	if audio != nil && audio.Error == "" && audio.Detected {
		detected = true
		confidence = (confidence*2 + audio.Confidence) / 3
	}
	return detected, math.Min(confidence, 1.0)
}
