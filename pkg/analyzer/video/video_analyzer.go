package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"MediaSteGo/pkg/analyzer"
	audioanalyzer "MediaSteGo/pkg/analyzer/audio"
	imageanalyzer "MediaSteGo/pkg/analyzer/image"
	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
	"MediaSteGo/pkg/scoring"
	"MediaSteGo/pkg/stats"
)

// Method labels reported on every video verdict
var videoMethods = []string{"Frame LSB Analysis", models.MethodChiSquare.Label(), models.MethodEntropy.Label()}

// VideoAnalyzer samples frames, runs the image battery on each and scores the fraction of
// suspicious frames. The audio track, when present, is analysed with the audio path and
// blended into the result.
type VideoAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg    *config.Config
	frames external.FrameSource
	audio  external.AudioDecoder
	images *imageanalyzer.ImageAnalyzer
	tracks *audioanalyzer.AudioAnalyzer
	log    zerolog.Logger
}

// NewVideoAnalyzer creates a video analyzer. audio may be nil to skip the audio track.
func NewVideoAnalyzer(cfg *config.Config, frames external.FrameSource, audio external.AudioDecoder) *VideoAnalyzer {
	return &VideoAnalyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"Video Frame Analyzer",
			"Runs the image LSB battery on sampled frames and the audio LSB tests on the soundtrack",
			models.MediaVideo,
			filehandler.SupportedExtensions(models.MediaVideo),
		),
		cfg:    cfg,
		frames: frames,
		audio:  audio,
		images: imageanalyzer.NewImageAnalyzer(cfg),
		tracks: audioanalyzer.NewAudioAnalyzer(cfg, nil),
		log:    logging.With("video"),
	}
}

func (a *VideoAnalyzer) Analyze(ctx context.Context, in analyzer.Input) *models.Verdict {
	v := models.NewVerdict(models.MediaVideo)
	v.Filename = in.Filename

	if a.frames == nil {
		v.Fail(fmt.Errorf("%w: no frame source configured", models.ErrCollaboratorUnavailable))
		return v
	}

	policy := stats.ChiPolicy(a.cfg.ChiPolicy.Video)
	details := &models.VideoDetails{}
	var chiPs, entropies []float64

	err := a.frames.Frames(ctx, in.Path, a.cfg.Video.MaxFrames, func(index int, frame *raster.Raster) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		results := a.images.RunBattery(ctx, frame)
		details.FramesAnalyzed++
		if r := results[models.MethodChiSquare]; r.Usable() {
			chiPs = append(chiPs, r.PValue())
		}
		if r := results[models.MethodEntropy]; r.Usable() {
			entropies = append(entropies, r.Value)
		}

		if scoring.FrameSuspicious(results, policy, a.cfg.Thresholds) {
			details.SuspiciousFrames++
			v.AddFinding("Suspicious frame LSB plane", 0,
				fmt.Sprintf("frame=%d p=%.5f entropy=%.4f", index,
					results[models.MethodChiSquare].PValue(), results[models.MethodEntropy].Value))
		}
		return nil
	})
	v.Video = details

	switch {
	case err != nil:
		v.Fail(err)
		return v
	case details.FramesAnalyzed == 0:
		v.Fail(fmt.Errorf("%w: no frames could be extracted from video", models.ErrDecodeFailure))
		return v
	}

	if len(chiPs) > 0 {
		mean := stat.Mean(chiPs, nil)
		details.AvgChiSquareP = &mean
	}
	if len(entropies) > 0 {
		mean := stat.Mean(entropies, nil)
		details.AvgLSBEntropy = &mean
	}

	details.SuspiciousRatio = float64(details.SuspiciousFrames) / float64(details.FramesAnalyzed)
	detected, confidence := scoring.VideoRatio(details.SuspiciousRatio)
	for i := range v.Findings {
		v.Findings[i].Confidence = confidence
	}

	if a.cfg.Video.AnalyzeAudio {
		v.Audio = a.analyzeTrack(ctx, in)
	}
	detected, confidence = scoring.BlendAudio(detected, confidence, v.Audio)

	v.Detected = detected
	v.Confidence = confidence
	for _, label := range videoMethods {
		v.AddMethod(label)
	}
	if filehandler.IsLossy(in.Filename) {
		v.Notes = append(v.Notes, imageanalyzer.LossyNote)
	}
	return v
}

// analyzeTrack returns nil when the video has no decodable audio
func (a *VideoAnalyzer) analyzeTrack(ctx context.Context, in analyzer.Input) *models.Verdict {
	if a.audio == nil {
		return nil
	}

	samples, err := a.audio.DecodeSamples(ctx, in.Path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.log.Debug().Err(err).Str("file", in.Filename).Msg("no audio track analysed")
		}
		return nil
	}
	if len(samples) == 0 {
		return nil
	}

	return a.tracks.AnalyzeSamples(ctx, samples, in.Filename)
}
