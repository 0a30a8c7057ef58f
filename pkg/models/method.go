package models

import (
	"fmt"
	"sort"
)

// Method names a detection method. The set is closed: ParseMethod rejects anything else.
type Method string

const (
	MethodChiSquare  Method = "chi_square"
	MethodEntropy    Method = "entropy"
	MethodRS         Method = "rs_analysis"
	MethodHistogram  Method = "histogram_slope"
	MethodLSB        Method = "lsb_analysis"
	MethodStegExpose Method = "stegexpose"
	MethodOpenStego  Method = "openstego"
)

var methodLabels = map[Method]string{
	MethodChiSquare:  "Chi-Square Test",
	MethodEntropy:    "Entropy Analysis",
	MethodRS:         "RS Analysis",
	MethodHistogram:  "Histogram Analysis",
	MethodLSB:        "LSB Analysis",
	MethodStegExpose: "StegExpose",
	MethodOpenStego:  "OpenStego",
}

// Label returns the human readable name used in detectionMethods
func (m Method) Label() string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return string(m)
}

// IsExternal reports whether the method is an external tool rather than part of the LSB battery
func (m Method) IsExternal() bool {
	return m == MethodStegExpose || m == MethodOpenStego
}

// ParseMethod validates a method name
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if _, ok := methodLabels[m]; !ok {
		return "", fmt.Errorf("unknown detection method %q", s)
	}
	return m, nil
}

// AllMethods returns every known method in a stable order
func AllMethods() []Method {
	out := make([]Method, 0, len(methodLabels))
	for m := range methodLabels {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BatteryMethods are the four statistical tests, in the order they run
var BatteryMethods = []Method{MethodChiSquare, MethodEntropy, MethodRS, MethodHistogram}
