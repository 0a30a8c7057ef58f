package security

import (
	"strings"

	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/models"
)

// ThreatLevel grades how dangerous a file looks
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
	ThreatUnknown  ThreatLevel = "unknown"
)

var threatRanks = map[ThreatLevel]int{
	ThreatUnknown:  -1,
	ThreatNone:     0,
	ThreatLow:      1,
	ThreatMedium:   2,
	ThreatHigh:     3,
	ThreatCritical: 4,
}

// Rank orders threat levels; unknown ranks below none
func (t ThreatLevel) Rank() int {
	if r, ok := threatRanks[t]; ok {
		return r
	}
	return -1
}

// atLeast returns the higher of two levels
func atLeast(current, floor ThreatLevel) ThreatLevel {
	if floor.Rank() > current.Rank() {
		return floor
	}
	return current
}

// SuspiciousCodecs are codec names associated with exploit delivery or payload hiding
var SuspiciousCodecs = []string{
	"MJLS", "Lagarith", "FFV1", "HuffYUV", "CamStudio", "LOCO", // video
	"Monkey's Audio", "TTA", "WavPack", "ALAC", // audio
	"Custom", "Modified", "Experimental", // general
}

func isSuspiciousCodec(name string) bool {
	upper := strings.ToUpper(name)
	for _, s := range SuspiciousCodecs {
		if strings.Contains(upper, strings.ToUpper(s)) {
			return true
		}
	}
	return false
}

// Warning and recommendation texts
const (
	WarnSuspiciousMetadata = "Suspicious metadata detected"
	WarnHiddenData         = "Potential hidden data detected"
	WarnSignatureMatch     = "Matched patterns associated with steganography techniques"
	WarnUncommonCodec      = "Uncommon codec detected"
	WarnAnalysisFailed     = "Analysis failed - treat file with caution"

	RecStripBeforeOpening = "Strip metadata before sharing or opening"
	RecAvoidOpening       = "Avoid opening this file - it may contain concealed malicious content"
	RecCodecCaution       = "Use caution when opening - uncommon codecs may contain exploits"
	RecSandbox            = "Sandbox media files before opening them in your main environment"
	RecStripMetadata      = "Strip metadata from media files before sharing"
	RecDisableAutoplay    = "Disable autoplay in media players for untrusted content"
	RecMonitorCodecs      = "Monitor and block uncommon codec usage which may hide malicious code"
	RecBehavioral         = "Use behavioral anomaly detection for unusual file interactions"
	RecDoNotOpen          = "Do not open this file as it could not be properly analyzed"
)

// Status is the overall security assessment of a file
type Status struct {
	IsSafe          bool        `json:"isSafe"`
	ThreatLevel     ThreatLevel `json:"threatLevel"`
	Warnings        []string    `json:"warnings"`
	Recommendations []string    `json:"recommendations"`
}

// SignatureScan is the YARA part of a report
type SignatureScan struct {
	Matches []external.SignatureMatch `json:"matches"`
	Error   string                    `json:"error,omitempty"`
}

// CodecInfo describes one stream's codec
type CodecInfo struct {
	CodecName     string `json:"codecName"`
	CodecType     string `json:"codecType"`
	CodecLongName string `json:"codecLongName,omitempty"`
	IsSuspicious  bool   `json:"isSuspicious"`
}

// CodecAnalysis lists the codecs of an audio or video file
type CodecAnalysis struct {
	UncommonCodecDetected bool        `json:"uncommonCodecDetected"`
	SuspiciousCodecs      []string    `json:"suspiciousCodecs"`
	Codecs                []CodecInfo `json:"codecs"`
	Error                 string      `json:"error,omitempty"`
}

// Analysis holds the individual checks behind a report
type Analysis struct {
	Steganography *models.Verdict `json:"steganography,omitempty"`
	Yara          *SignatureScan  `json:"yara,omitempty"`
	CodecAnalysis *CodecAnalysis  `json:"codecAnalysis,omitempty"`
}

// Report is the media security assessment of one file
type Report struct {
	FileName       string           `json:"fileName"`
	FileSize       int              `json:"fileSize"`
	FileType       models.MediaType `json:"fileType"`
	SecurityStatus Status           `json:"securityStatus"`
	Analysis       Analysis         `json:"analysis"`
	Metadata       *Metadata        `json:"metadata,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func (r *Report) warn(warning string, recommendations ...string) {
	r.SecurityStatus.IsSafe = false
	r.SecurityStatus.Warnings = append(r.SecurityStatus.Warnings, warning)
	r.SecurityStatus.Recommendations = append(r.SecurityStatus.Recommendations, recommendations...)
}

// recommendOnce adds a recommendation unless one mentioning the topic is already present
func (r *Report) recommendOnce(topic, recommendation string) {
	for _, existing := range r.SecurityStatus.Recommendations {
		if strings.Contains(strings.ToLower(existing), topic) {
			return
		}
	}
	r.SecurityStatus.Recommendations = append(r.SecurityStatus.Recommendations, recommendation)
}

// addGeneralRecommendations appends the standard advice for the file type
func (r *Report) addGeneralRecommendations() {
	r.recommendOnce("sandbox", RecSandbox)
	r.recommendOnce("metadata", RecStripMetadata)
	if r.FileType == models.MediaAudio || r.FileType == models.MediaVideo {
		r.recommendOnce("autoplay", RecDisableAutoplay)
		r.recommendOnce("codec", RecMonitorCodecs)
	}
	r.SecurityStatus.Recommendations = append(r.SecurityStatus.Recommendations, RecBehavioral)
}

// FailedReport is returned when the analysis itself could not complete
func FailedReport(fileName string, err error) *Report {
	r := &Report{
		FileName: fileName,
		SecurityStatus: Status{
			IsSafe:          false,
			ThreatLevel:     ThreatUnknown,
			Warnings:        []string{WarnAnalysisFailed},
			Recommendations: []string{RecDoNotOpen},
		},
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
