package image

import (
	"context"
	"fmt"

	"MediaSteGo/pkg/analyzer"
	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
	"MediaSteGo/pkg/scoring"
	"MediaSteGo/pkg/stats"
)

/*
Summary of this file and these functions:
- ImageAnalyzer decodes a still image, runs the statistical battery on its grayscale and LSB planes and scores the results.
- The default scoring is the weighted-band policy; image.policy: indicator switches to indicator counting.
- AnalyzeLegacy runs the older variant: binary chi-square buckets, 2x2 variance RS and indicator counting.
- RunBattery is shared with the video analyzer, which runs it once per sampled frame.
- A file that cannot be decoded is analysed as a blank fallback raster and the decode error is recorded on the verdict.
*/

// LossyNote is attached to verdicts of lossy formats
const LossyNote = "Lossy format; LSB steganography less likely."

// ImageAnalyzer implements analysis for still images
type ImageAnalyzer struct {
	analyzer.BaseAnalyzer
	cfg *config.Config
}

// NewImageAnalyzer creates a new image analyzer
func NewImageAnalyzer(cfg *config.Config) *ImageAnalyzer {
	return &ImageAnalyzer{
		BaseAnalyzer: analyzer.NewBaseAnalyzer(
			"Image LSB Analyzer",
			"Runs chi-square, entropy, RS and histogram tests on the LSB plane of still images",
			models.MediaImage,
			filehandler.SupportedExtensions(models.MediaImage),
		),
		cfg: cfg,
	}
}

// Analyze performs analysis on an image file
func (a *ImageAnalyzer) Analyze(ctx context.Context, in analyzer.Input) *models.Verdict {
	data, err := imageBytes(in)
	if err != nil {
		return models.FailedVerdict(models.MediaImage, err)
	}

	img, decodeErr := raster.DecodeOrFallback(data)
	v := a.AnalyzeRaster(ctx, img, in.Filename)
	if decodeErr != nil {
		v.Fail(decodeErr)
		v.Notes = append(v.Notes, "Analysis failed with error")
	}
	return v
}

// AnalyzeRaster scores an already decoded image with the configured policy
func (a *ImageAnalyzer) AnalyzeRaster(ctx context.Context, img *raster.Raster, filename string) *models.Verdict {
	v := models.NewVerdict(models.MediaImage)
	v.Filename = filename

	results := a.RunBattery(ctx, img)
	v.Details = results

	policy := stats.ChiPolicy(a.cfg.ChiPolicy.Image)
	var outcome scoring.Outcome
	if a.cfg.Image.Policy == config.PolicyIndicator {
		outcome = scoring.IndicatorCount(results, policy, a.cfg.Thresholds)
	} else {
		outcome = scoring.WeightedBands(results, policy, a.cfg.Bands, a.cfg.Thresholds)
	}
	outcome.Apply(v)

	if filehandler.IsLossy(filename) {
		v.Notes = append(v.Notes, LossyNote)
	}
	if err := ctx.Err(); err != nil {
		v.Fail(fmt.Errorf("%w: %v", models.ErrPartialAnalysis, err))
	}
	return v
}

// RunBattery runs the four image tests on a raster with unique-value chi-square buckets
// and the dual-mask RS variant
func (a *ImageAnalyzer) RunBattery(ctx context.Context, img *raster.Raster) map[models.Method]models.TestResult {
	return stats.RunBattery(ctx, stats.BatteryInput{
		Gray:    img.Gray(),
		Buckets: stats.UniqueBuckets,
		RS:      stats.RSDualMask,
		RSOpts:  a.rsOptions(),
	})
}

// AnalyzeLegacy runs the legacy battery: binary chi-square, entropy, 2x2 variance RS and
// histogram slope, scored by indicator counting
func (a *ImageAnalyzer) AnalyzeLegacy(ctx context.Context, data []byte, filename string) *models.Verdict {
	img, decodeErr := raster.DecodeOrFallback(data)

	v := models.NewVerdict(models.MediaImage)
	v.Filename = filename
	v.Details = stats.RunBattery(ctx, stats.BatteryInput{
		Gray:    img.Gray(),
		Buckets: stats.BinaryBuckets,
		RS:      stats.RSVariance,
		RSOpts:  a.rsOptions(),
	})

	scoring.IndicatorCount(v.Details, stats.ChiPolicy(a.cfg.ChiPolicy.Legacy), a.cfg.Thresholds).Apply(v)

	if filehandler.IsLossy(filename) {
		v.Notes = append(v.Notes, LossyNote)
	}
	if decodeErr != nil {
		v.Fail(decodeErr)
		v.Notes = append(v.Notes, "Analysis failed with error")
	}
	v.Finish()
	return v
}

func (a *ImageAnalyzer) rsOptions() stats.RSOptions {
	return stats.RSOptions{
		MaxPixels: a.cfg.RS.MaxPixels,
		Downscale: a.cfg.RS.Downscale,
	}
}

func imageBytes(in analyzer.Input) ([]byte, error) {
	if in.Data != nil || in.Path == "" {
		return in.Data, nil
	}
	return filehandler.ReadFileBytes(in.Path)
}
