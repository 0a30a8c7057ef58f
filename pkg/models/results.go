package models

import (
	"time"
)

// MediaType is the coarse category a file is dispatched on
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaAudio   MediaType = "audio"
	MediaVideo   MediaType = "video"
	MediaUnknown MediaType = "unknown"
)

// Verdict is the structured result of analysing one file.
// When Error is set, Detected is false and Confidence is 0.
type Verdict struct {
	Detected       bool                  `json:"hasSteganography"`
	Confidence     float64               `json:"confidence"` // 0.0-1.0
	MediaType      MediaType             `json:"mediaType"`
	Filename       string                `json:"filename,omitempty"`
	Methods        []string              `json:"detectionMethods"`
	Details        map[Method]TestResult `json:"details,omitempty"`
	IndicatorScore *int                  `json:"indicatorScore,omitempty"`
	Findings       []Finding             `json:"findings,omitempty"`
	Notes          []string              `json:"notes,omitempty"`
	Video          *VideoDetails         `json:"video,omitempty"`
	Audio          *Verdict              `json:"audioSteganography,omitempty"`
	Error          string                `json:"error,omitempty"`

	AnalysisTime     time.Time     `json:"analysisTime"`
	AnalysisDuration time.Duration `json:"analysisDuration"`
}

// VideoDetails carries the frame sampling statistics of a video verdict
type VideoDetails struct {
	FramesAnalyzed   int      `json:"framesAnalyzed"`
	SuspiciousFrames int      `json:"suspiciousFrames"`
	SuspiciousRatio  float64  `json:"suspiciousRatio"`
	AvgChiSquareP    *float64 `json:"avgChiSquareP,omitempty"`
	AvgLSBEntropy    *float64 `json:"avgLsbEntropy,omitempty"`
}

// Finding represents a specific detection or discovery during analysis
type Finding struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"` // 0.0-1.0
	Details     string  `json:"details"`
}

// NewVerdict returns an empty, not-detected verdict for the given media type
func NewVerdict(mediaType MediaType) *Verdict {
	return &Verdict{
		MediaType:    mediaType,
		Methods:      []string{},
		Details:      make(map[Method]TestResult),
		AnalysisTime: time.Now(),
	}
}

// FailedVerdict is the universal safe fallback: nothing detected, zero confidence, reason recorded
func FailedVerdict(mediaType MediaType, err error) *Verdict {
	v := NewVerdict(mediaType)
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// AddFinding adds a finding to the verdict
func (v *Verdict) AddFinding(description string, confidence float64, details string) {
	v.Findings = append(v.Findings, Finding{
		Description: description,
		Confidence:  confidence,
		Details:     details,
	})
}

// AddMethod records a detection method label once
func (v *Verdict) AddMethod(label string) {
	for _, m := range v.Methods {
		if m == label {
			return
		}
	}
	v.Methods = append(v.Methods, label)
}

// Fail turns the verdict into the safe fallback while keeping any details already gathered
func (v *Verdict) Fail(err error) {
	v.Detected = false
	v.Confidence = 0
	v.IndicatorScore = nil
	if err != nil {
		v.Error = err.Error()
	}
}

// Finish stamps the analysis duration
func (v *Verdict) Finish() {
	v.AnalysisDuration = time.Since(v.AnalysisTime)
}

// GetStrongestFinding returns the finding with highest confidence
func (v *Verdict) GetStrongestFinding() (Finding, bool) {
	if len(v.Findings) == 0 {
		return Finding{}, false
	}

	best := v.Findings[0]
	for _, f := range v.Findings {
		if f.Confidence > best.Confidence {
			best = f
		}
	}

	return best, true
}
