package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	"MediaSteGo/pkg/analyzer"
	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
	"MediaSteGo/pkg/scoring"
	"MediaSteGo/pkg/stats"
)

// AudioAnalyzer tests the least significant bits of decoded audio samples.
// PCM WAV is decoded in process; every other container goes through the AudioDecoder.
type AudioAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg     *config.Config
	decoder external.AudioDecoder
}

// NewAudioAnalyzer creates an audio analyzer. decoder may be nil, in which case only WAV
// files can be analysed.
func NewAudioAnalyzer(cfg *config.Config, decoder external.AudioDecoder) *AudioAnalyzer {
	return &AudioAnalyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"Audio LSB Analyzer",
			"Runs chi-square and entropy tests on the LSBs of audio samples",
			models.MediaAudio,
			filehandler.SupportedExtensions(models.MediaAudio),
		),
		cfg:     cfg,
		decoder: decoder,
	}
}

func (a *AudioAnalyzer) Analyze(ctx context.Context, in analyzer.Input) *models.Verdict {
	samples, err := a.decode(ctx, in)
	if err != nil {
		v := models.FailedVerdict(models.MediaAudio, err)
		v.Filename = in.Filename
		return v
	}
	return a.AnalyzeSamples(ctx, samples, in.Filename)
}

// AnalyzeSamples scores interleaved integer samples with the two-test audio policy
func (a *AudioAnalyzer) AnalyzeSamples(ctx context.Context, samples []int, filename string) *models.Verdict {
	v := models.NewVerdict(models.MediaAudio)
	v.Filename = filename

	v.Details = stats.RunBattery(ctx, stats.BatteryInput{
		LSB:     raster.SampleLSB(samples),
		Buckets: stats.UniqueBuckets,
	}, models.MethodChiSquare, models.MethodEntropy)

	scoring.AudioTwoTest(v.Details, stats.ChiPolicy(a.cfg.ChiPolicy.Audio), a.cfg.Thresholds).Apply(v)

	if filehandler.IsLossy(filename) {
		v.Notes = append(v.Notes, "Lossy format; LSB steganography less likely.")
	}
	if err := ctx.Err(); err != nil {
		v.Fail(fmt.Errorf("%w: %v", models.ErrPartialAnalysis, err))
	}
	return v
}

// DecodeSamples returns the samples of a file, preferring the native WAV decoder
func (a *AudioAnalyzer) DecodeSamples(ctx context.Context, path string) ([]int, error) {
	return a.decode(ctx, analyzer.Input{Path: path, Filename: path})
}

func (a *AudioAnalyzer) decode(ctx context.Context, in analyzer.Input) ([]int, error) {
	if in.Ext() == ".wav" {
		data := in.Data
		if data == nil && in.Path != "" {
			var err error
			if data, err = filehandler.ReadFileBytes(in.Path); err != nil {
				return nil, err
			}
		}
		samples, err := DecodeWAV(data)
		if err == nil {
			return samples, nil
		}
		// compressed or float WAV: let ffmpeg try
		if a.decoder == nil || in.Path == "" {
			return nil, err
		}
	}

	if a.decoder == nil {
		return nil, fmt.Errorf("%w: no audio decoder for %s", models.ErrCollaboratorUnavailable, in.Ext())
	}
	if in.Path == "" {
		return nil, errors.New("audio input has no path to decode")
	}
	return a.decoder.DecodeSamples(ctx, in.Path)
}

// DecodeWAV decodes PCM WAV bytes into interleaved integer samples
func DecodeWAV(data []byte) ([]int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", models.ErrDecodeFailure)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecodeFailure, err)
	}
	return buf.Data, nil
}
