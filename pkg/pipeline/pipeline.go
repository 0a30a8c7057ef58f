// Package pipeline scans batches of files and URLs with a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/metrics"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/security"
)

// Result is the outcome of one batch entry. Exactly one of Verdict, Aggregate and Security
// is set by the task; Error is set when the entry could not be analysed at all.
type Result struct {
	Input      string                  `json:"input"`
	Path       string                  `json:"path,omitempty"`
	Verdict    *models.Verdict         `json:"verdict,omitempty"`
	Aggregate  *models.AggregateReport `json:"aggregate,omitempty"`
	Security   *security.Report        `json:"security,omitempty"`
	Reputation *external.Reputation    `json:"reputation,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// Detected reports whether the entry was flagged by whichever analysis ran
func (r *Result) Detected() bool {
	switch {
	case r.Verdict != nil:
		return r.Verdict.Detected
	case r.Aggregate != nil:
		return r.Aggregate.Detected
	case r.Security != nil:
		return !r.Security.SecurityStatus.IsSafe
	}
	return false
}

// Confidence returns the confidence of whichever analysis ran
func (r *Result) Confidence() float64 {
	switch {
	case r.Verdict != nil:
		return r.Verdict.Confidence
	case r.Aggregate != nil:
		return r.Aggregate.Confidence
	case r.Security != nil && r.Security.Analysis.Steganography != nil:
		return r.Security.Analysis.Steganography.Confidence
	}
	return 0
}

// Task analyses one local file and fills res
type Task func(ctx context.Context, path string, res *Result)

// Pipeline fans a batch out over a fixed number of workers
type Pipeline struct {
	cfg         config.PipelineConfig
	task        Task
	downloadDir string
	reputation  external.ReputationService
	log         zerolog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithDownloadDir sets where URL inputs are downloaded to
func WithDownloadDir(dir string) Option {
	return func(p *Pipeline) { p.downloadDir = dir }
}

// WithReputation looks every URL input up before downloading it
func WithReputation(svc external.ReputationService) Option {
	return func(p *Pipeline) { p.reputation = svc }
}

func New(cfg config.PipelineConfig, task Task, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		task:        task,
		downloadDir: "downloads",
		log:         logging.With("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run analyses every input, a local path or an http(s) URL, and returns the results in
// input order. Entries that fail carry their error; Run itself only fails when ctx is done.
func (p *Pipeline) Run(ctx context.Context, inputs []string) ([]Result, error) {
	results := make([]Result, len(inputs))

	var g errgroup.Group
	g.SetLimit(max(p.cfg.Workers, 1))

	start := time.Now()
	for i, input := range inputs {
		if ctx.Err() != nil {
			results[i] = Result{Input: input, Error: ctx.Err().Error()}
			continue
		}
		g.Go(func() error {
			results[i] = p.process(ctx, input)
			return nil
		})
	}
	_ = g.Wait()

	p.log.Info().
		Int("files", len(inputs)).
		Int("workers", p.cfg.Workers).
		Dur("duration", time.Since(start)).
		Msg("batch finished")

	return results, ctx.Err()
}

func (p *Pipeline) process(ctx context.Context, input string) (res Result) {
	res.Input = input
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	metrics.TrackInFlight(true)
	defer metrics.TrackInFlight(false)

	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.FileTimeout)
	defer cancel()

	path := input
	if filehandler.IsURL(input) {
		if p.reputation != nil {
			rep, err := p.reputation.Lookup(ctx, input)
			if err != nil {
				p.log.Warn().Err(err).Str("url", input).Msg("reputation lookup failed")
			}
			res.Reputation = rep
		}

		downloaded, err := filehandler.DownloadFile(ctx, input, p.downloadDir)
		if err != nil {
			res.Error = fmt.Sprintf("download failed: %v", err)
			return res
		}
		path = downloaded
	}
	res.Path = path

	p.task(ctx, path, &res)
	return res
}

// PathAnalyzer analyses a file on disk; *analyzer.Dispatcher satisfies it
type PathAnalyzer interface {
	AnalyzePath(ctx context.Context, path string) *models.Verdict
}

// AggregateRunner runs the multi-method analysis; *aggregate.Aggregator satisfies it
type AggregateRunner interface {
	Run(ctx context.Context, data []byte, filename string) *models.AggregateReport
}

// SecurityAnalyzer builds security reports; *security.Service satisfies it
type SecurityAnalyzer interface {
	Analyze(ctx context.Context, data []byte, filename string) *security.Report
}

// LegacyAnalyzer runs the indicator-counting image analysis
type LegacyAnalyzer interface {
	AnalyzeLegacy(ctx context.Context, data []byte, filename string) *models.Verdict
}

// VerdictTask runs the LSB battery through the dispatcher
func VerdictTask(a PathAnalyzer) Task {
	return func(ctx context.Context, path string, res *Result) {
		res.Verdict = a.AnalyzePath(ctx, path)
	}
}

// AggregateTask runs every applicable method and combines them
func AggregateTask(a AggregateRunner) Task {
	return withBytes(func(ctx context.Context, data []byte, name string, res *Result) {
		res.Aggregate = a.Run(ctx, data, name)
	})
}

// SecurityTask produces a security report
func SecurityTask(s SecurityAnalyzer) Task {
	return withBytes(func(ctx context.Context, data []byte, name string, res *Result) {
		res.Security = s.Analyze(ctx, data, name)
	})
}

// LegacyTask runs the legacy analysis on images. Other media fall back to the dispatcher.
func LegacyTask(l LegacyAnalyzer, fallback PathAnalyzer) Task {
	return func(ctx context.Context, path string, res *Result) {
		if filehandler.MediaTypeFor(path) != models.MediaImage {
			res.Verdict = fallback.AnalyzePath(ctx, path)
			return
		}
		withBytes(func(ctx context.Context, data []byte, name string, res *Result) {
			res.Verdict = l.AnalyzeLegacy(ctx, data, name)
		})(ctx, path, res)
	}
}

func withBytes(fn func(ctx context.Context, data []byte, name string, res *Result)) Task {
	return func(ctx context.Context, path string, res *Result) {
		data, err := filehandler.ReadFileBytes(path)
		if err != nil {
			res.Error = err.Error()
			return
		}
		fn(ctx, data, filepath.Base(path), res)
	}
}
