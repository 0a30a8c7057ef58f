package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog"

	"MediaSteGo/pkg/filehandler"
	"MediaSteGo/pkg/logging"
	"MediaSteGo/pkg/metrics"
	"MediaSteGo/pkg/models"
)

// Dispatcher routes a file to the analyzer registered for its extension. It never returns
// an error: unsupported formats, staging failures and panics all become failed verdicts.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over a populated registry
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      logging.With("dispatcher"),
	}
}

// Registry returns the registry the dispatcher routes through
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Analyze inspects an in-memory file. The filename only supplies the extension.
func (d *Dispatcher) Analyze(ctx context.Context, data []byte, filename string) *models.Verdict {
	return d.dispatch(ctx, Input{Data: data, Filename: filename})
}

// AnalyzePath inspects a file on disk. Video files are handed over by path without being
// read into memory.
func (d *Dispatcher) AnalyzePath(ctx context.Context, path string) *models.Verdict {
	in := Input{Path: path, Filename: filepath.Base(path)}

	mt := filehandler.MediaTypeFor(path)
	switch mt {
	case models.MediaUnknown:
		// rejected by dispatch
	case models.MediaVideo:
		size, err := filehandler.GetFileSize(path)
		if err != nil {
			return d.finish(models.FailedVerdict(mt, err), in)
		}
		if size > filehandler.MaxFileSize {
			return d.finish(models.FailedVerdict(mt, fmt.Errorf("file too large (max 100MB)")), in)
		}
	default:
		data, err := filehandler.ReadFileBytes(path)
		if err != nil {
			return d.finish(models.FailedVerdict(mt, err), in)
		}
		in.Data = data
	}

	return d.dispatch(ctx, in)
}

func (d *Dispatcher) dispatch(ctx context.Context, in Input) (verdict *models.Verdict) {
	ext := in.Ext()
	mt := filehandler.MediaTypeFor(in.Filename)
	if mt == models.MediaUnknown {
		return d.finish(models.FailedVerdict(mt, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)), in)
	}

	a := d.registry.AnalyzerFor(ext)
	if a == nil {
		return d.finish(models.FailedVerdict(mt, fmt.Errorf("no analyzer registered for %s", ext)), in)
	}

	if in.Path == "" && a.MediaType() != models.MediaImage {
		path, cleanup, err := filehandler.StageTemp(in.Data, ext)
		defer cleanup()
		if err != nil {
			return d.finish(models.FailedVerdict(mt, err), in)
		}
		in.Path = path
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("file", in.Filename).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("analyzer panicked")
			verdict = d.finish(models.FailedVerdict(mt, fmt.Errorf("analysis panicked: %v", r)), in)
		}
	}()

	d.log.Debug().
		Str("file", in.Filename).
		Str("media_type", string(mt)).
		Str("analyzer", a.Name()).
		Msg("dispatching")

	verdict = a.Analyze(ctx, in)
	if verdict == nil {
		verdict = models.FailedVerdict(mt, fmt.Errorf("%s returned no verdict", a.Name()))
	}
	return d.finish(verdict, in)
}

func (d *Dispatcher) finish(v *models.Verdict, in Input) *models.Verdict {
	if v.Filename == "" {
		v.Filename = in.Filename
	}
	if v.Error != "" {
		v.Detected = false
		v.Confidence = 0
	}
	v.Finish()

	for m, r := range v.Details {
		if r.Error != "" {
			metrics.RecordTestFailure(string(m))
		}
	}
	metrics.RecordAnalysis(string(v.MediaType), v.Detected, v.Error != "", v.AnalysisDuration)

	event := d.log.Info()
	if v.Error != "" {
		event = d.log.Warn().Str("error", v.Error)
	}
	event.
		Str("file", v.Filename).
		Str("media_type", string(v.MediaType)).
		Bool("detected", v.Detected).
		Float64("confidence", v.Confidence).
		Dur("duration", v.AnalysisDuration).
		Msg("analysis finished")

	return v
}
