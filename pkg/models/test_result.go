package models

import (
	"fmt"
	"math"
	"strings"
)

// TestResult is the output of one statistical test.
//
//	chi_square:      Value = statistic, Pair = p-value
//	entropy:         Value = normalised Shannon entropy
//	rs_analysis:     Value = regular fraction, Pair = singular fraction
//	histogram_slope: Value = slope sign changes
type TestResult struct {
	Method     Method  `json:"method"`
	Value      float64 `json:"value"`
	Pair       float64 `json:"pair,omitempty"`
	Degenerate bool    `json:"degenerate,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Usable reports whether the result may contribute to a score
func (r TestResult) Usable() bool {
	return !r.Degenerate && r.Error == "" && !math.IsNaN(r.Value) && !math.IsNaN(r.Pair)
}

// Err classifies an unusable result: ErrDegenerateInput for a fallback value,
// ErrPartialAnalysis for a failed test, nil otherwise.
func (r TestResult) Err() error {
	switch {
	case r.Error != "":
		return fmt.Errorf("%w: %s", ErrPartialAnalysis, strings.TrimPrefix(r.Error, ErrPartialAnalysis.Error()+": "))
	case r.Degenerate:
		return ErrDegenerateInput
	}
	return nil
}

// PValue returns the chi-square p-value
func (r TestResult) PValue() float64 { return r.Pair }

// Regular returns the RS regular-group fraction
func (r TestResult) Regular() float64 { return r.Value }

// Singular returns the RS singular-group fraction
func (r TestResult) Singular() float64 { return r.Pair }

// RSGap is |regular - singular|
func (r TestResult) RSGap() float64 { return math.Abs(r.Value - r.Pair) }
