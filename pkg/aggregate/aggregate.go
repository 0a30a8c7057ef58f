// Package aggregate combines the built-in LSB verdict with external steganalysis tools
// into one report.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/metrics"
	"MediaSteGo/pkg/models"
)

// ExternalDetector is an out-of-process steganalysis method working on a file path
type ExternalDetector interface {
	Method() models.Method
	Detect(ctx context.Context, path string) (models.MethodResult, error)
}

// LSBAnalyzer produces the built-in verdict; *analyzer.Dispatcher satisfies it
type LSBAnalyzer interface {
	Analyze(ctx context.Context, data []byte, filename string) *models.Verdict
}

// Aggregator runs the LSB analysis and, when it is not conclusive, the external detectors
type Aggregator struct {
	cfg       *config.Config
	lsb       LSBAnalyzer
	detectors []ExternalDetector
	breakers  map[models.Method]*gobreaker.CircuitBreaker[models.MethodResult]
	weights   map[models.Method]float64
	log       zerolog.Logger
}

// New builds an aggregator. Each detector gets its own circuit breaker.
func New(cfg *config.Config, lsb LSBAnalyzer, detectors ...ExternalDetector) *Aggregator {
	a := &Aggregator{
		cfg:       cfg,
		lsb:       lsb,
		detectors: detectors,
		breakers:  make(map[models.Method]*gobreaker.CircuitBreaker[models.MethodResult], len(detectors)),
		weights:   cfg.MethodWeights(),
		log:       logging.With("aggregate"),
	}
	for _, d := range detectors {
		a.breakers[d.Method()] = newBreaker(d.Method(), cfg.Breaker)
	}
	return a
}

// Run analyses one file with every applicable method. It never returns an error; failed
// methods carry their error in the report and are left out of the confidence average.
func (a *Aggregator) Run(ctx context.Context, data []byte, filename string) *models.AggregateReport {
	report := &models.AggregateReport{
		Methods:         []models.Method{},
		DetailsByMethod: make(map[models.Method]models.MethodResult),
		AnalysisTime:    time.Now(),
	}

	lsb := a.lsb.Analyze(ctx, data, filename)
	report.LSB = lsb
	report.DetailsByMethod[models.MethodLSB] = models.ResultFromVerdict(lsb)

	if a.runExternals(lsb) {
		a.runDetectors(ctx, data, filename, report)
	} else {
		report.ExternalsSkipped = true
	}

	combine(report, a.weights)
	return report
}

// runExternals decides whether the LSB verdict leaves room for the external tools.
// They only understand still images.
func (a *Aggregator) runExternals(lsb *models.Verdict) bool {
	return a.cfg.Aggregate.Enabled &&
		len(a.detectors) > 0 &&
		lsb.MediaType == models.MediaImage &&
		lsb.Confidence < a.cfg.Aggregate.GoodEnough
}

func (a *Aggregator) runDetectors(ctx context.Context, data []byte, filename string, report *models.AggregateReport) {
	path, cleanup, err := filehandler.StageTemp(data, filehandler.Ext(filename))
	defer cleanup()
	if err != nil {
		for _, d := range a.detectors {
			report.DetailsByMethod[d.Method()] = models.MethodResult{Error: err.Error()}
		}
		return
	}

	for _, d := range a.detectors {
		report.DetailsByMethod[d.Method()] = a.detect(ctx, d, path)
	}
}

func (a *Aggregator) detect(ctx context.Context, d ExternalDetector, path string) models.MethodResult {
	m := d.Method()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Aggregate.Timeout)
	defer cancel()

	res, err := a.breakers[m].Execute(func() (models.MethodResult, error) {
		return d.Detect(ctx, path)
	})
	if err == nil {
		metrics.RecordExternalCall(string(m), "success")
		return res
	}

	result := "failure"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		result = "rejected"
		err = fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	metrics.RecordExternalCall(string(m), result)
	a.log.Warn().Err(err).Str("method", string(m)).Msg("external detector failed")

	return models.MethodResult{Error: err.Error()}
}

// combine ORs the detections and takes the weighted mean confidence of every method that
// did not error. With no usable method the report stays at (false, 0).
func combine(report *models.AggregateReport, weights map[models.Method]float64) {
	var sum, total float64
	for _, m := range models.AllMethods() {
		res, ok := report.DetailsByMethod[m]
		if !ok || res.Errored() {
			continue
		}
		w, ok := weights[m]
		if !ok {
			w = 1
		}
		sum += w * res.Confidence
		total += w
		if res.Detected {
			report.Detected = true
			report.Methods = append(report.Methods, m)
		}
	}

	if total > 0 {
		report.Confidence = sum / total
		return
	}
	if report.LSB != nil && report.LSB.Error != "" {
		report.Error = report.LSB.Error
	}
}
