// Package security builds a media security report: metadata, codec and signature checks
// combined with the steganography verdict into a threat level and recommendations.
package security

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/models"
)

// highConfidence is the stego confidence above which the threat level is high
const highConfidence = 0.7

// StegoAnalyzer produces the steganography verdict; *analyzer.Dispatcher satisfies it
type StegoAnalyzer interface {
	Analyze(ctx context.Context, data []byte, filename string) *models.Verdict
}

// Service assembles security reports. The prober and scanner are optional.
type Service struct {
	stego   StegoAnalyzer
	prober  external.Prober
	scanner external.SignatureScanner
	log     zerolog.Logger
}

func NewService(stego StegoAnalyzer, prober external.Prober, scanner external.SignatureScanner) *Service {
	return &Service{
		stego:   stego,
		prober:  prober,
		scanner: scanner,
		log:     logging.With("security"),
	}
}

// Analyze produces the security report of one file. It never returns nil; failures give a
// report with an unknown threat level.
func (s *Service) Analyze(ctx context.Context, data []byte, filename string) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("file", filename).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("security analysis panicked")
			report = FailedReport(filename, fmt.Errorf("analysis panicked: %v", r))
		}
	}()

	ext := filehandler.Ext(filename)
	mt := filehandler.MediaTypeFor(filename)
	if mt == models.MediaUnknown {
		return FailedReport(filename, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext))
	}

	path, cleanup, err := filehandler.StageTemp(data, ext)
	defer cleanup()
	if err != nil {
		return FailedReport(filename, err)
	}

	report = &Report{
		FileName: filename,
		FileSize: len(data),
		FileType: mt,
		SecurityStatus: Status{
			IsSafe:          true,
			ThreatLevel:     ThreatNone,
			Warnings:        []string{},
			Recommendations: []string{},
		},
	}

	var probe *external.ProbeResult
	if mt == models.MediaImage {
		report.Metadata = imageMetadata(data, ext)
	} else {
		report.Metadata, probe = probeMetadata(ctx, s.prober, path, ext)
	}

	if s.stego != nil {
		report.Analysis.Steganography = s.stego.Analyze(ctx, data, filename)
	}
	if s.scanner != nil {
		report.Analysis.Yara = s.scan(ctx, path)
	}
	if mt != models.MediaImage {
		report.Analysis.CodecAnalysis = codecAnalysis(probe, report.Metadata.Error)
	}

	assess(report)

	s.log.Info().
		Str("file", filename).
		Str("media_type", string(mt)).
		Str("threat_level", string(report.SecurityStatus.ThreatLevel)).
		Int("warnings", len(report.SecurityStatus.Warnings)).
		Msg("security analysis finished")
	return report
}

func (s *Service) scan(ctx context.Context, path string) *SignatureScan {
	matches, err := s.scanner.Scan(ctx, path)
	if err != nil {
		s.log.Warn().Err(err).Msg("signature scan failed")
		return &SignatureScan{Matches: []external.SignatureMatch{}, Error: err.Error()}
	}
	if matches == nil {
		matches = []external.SignatureMatch{}
	}
	return &SignatureScan{Matches: matches}
}

// codecAnalysis flags the streams whose codec is in the suspicious list
func codecAnalysis(probe *external.ProbeResult, probeErr string) *CodecAnalysis {
	ca := &CodecAnalysis{
		SuspiciousCodecs: []string{},
		Codecs:           []CodecInfo{},
	}
	if probe == nil {
		ca.Error = probeErr
		if ca.Error == "" {
			ca.Error = models.ErrCollaboratorUnavailable.Error()
		}
		return ca
	}

	for _, st := range probe.Streams {
		info := CodecInfo{
			CodecName:     strings.ToUpper(st.CodecName),
			CodecType:     st.CodecType,
			CodecLongName: st.CodecLongName,
			IsSuspicious:  isSuspiciousCodec(st.CodecName),
		}
		if info.IsSuspicious {
			ca.UncommonCodecDetected = true
			ca.SuspiciousCodecs = append(ca.SuspiciousCodecs, info.CodecName)
		}
		ca.Codecs = append(ca.Codecs, info)
	}
	return ca
}

// assess applies the threat rules in order. A stego detection overrides the metadata level;
// the later rules only ever raise it.
func assess(r *Report) {
	status := &r.SecurityStatus

	if r.Metadata != nil && len(r.Metadata.SuspiciousFields) > 0 {
		status.ThreatLevel = ThreatLow
		r.warn(WarnSuspiciousMetadata, RecStripBeforeOpening)
	}

	if v := r.Analysis.Steganography; v != nil && v.Detected {
		status.ThreatLevel = ThreatMedium
		if v.Confidence > highConfidence {
			status.ThreatLevel = ThreatHigh
		}
		r.warn(WarnHiddenData, RecAvoidOpening)
	}

	if y := r.Analysis.Yara; y != nil && len(y.Matches) > 0 {
		if status.ThreatLevel == ThreatNone {
			status.ThreatLevel = ThreatMedium
		}
		r.warn(WarnSignatureMatch)
	}

	if c := r.Analysis.CodecAnalysis; c != nil && c.UncommonCodecDetected {
		status.ThreatLevel = atLeast(status.ThreatLevel, ThreatMedium)
		r.warn(WarnUncommonCodec, RecCodecCaution)
	}

	r.addGeneralRecommendations()
}
