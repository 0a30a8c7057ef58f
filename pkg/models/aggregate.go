package models

import "time"

// MethodResult is one method's contribution to an aggregate report
type MethodResult struct {
	Detected   bool           `json:"detected"`
	Confidence float64        `json:"confidence"`
	Raw        map[string]any `json:"raw,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Errored reports whether the method failed and must be left out of averaging
func (r MethodResult) Errored() bool {
	return r.Error != ""
}

// AggregateReport combines the LSB verdict with external detector results
type AggregateReport struct {
	Detected         bool                    `json:"hasSteganography"`
	Confidence       float64                 `json:"confidence"`
	Methods          []Method                `json:"detectionMethods"`
	DetailsByMethod  map[Method]MethodResult `json:"detailsByMethod"`
	LSB              *Verdict                `json:"lsbVerdict,omitempty"`
	ExternalsSkipped bool                    `json:"externalsSkipped,omitempty"`
	Error            string                  `json:"error,omitempty"`
	AnalysisTime     time.Time               `json:"analysisTime"`
}

// ResultFromVerdict converts a battery verdict into a method result
func ResultFromVerdict(v *Verdict) MethodResult {
	r := MethodResult{
		Detected:   v.Detected,
		Confidence: v.Confidence,
		Raw:        map[string]any{"mediaType": v.MediaType},
	}
	if v.Error != "" {
		r.Error = v.Error
	}
	for m, tr := range v.Details {
		r.Raw[string(m)] = tr
	}
	return r
}
