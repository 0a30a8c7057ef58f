package aggregate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/models"
)

type fakeLSB struct {
	verdict *models.Verdict
	calls   int
}

func (f *fakeLSB) Analyze(context.Context, []byte, string) *models.Verdict {
	f.calls++
	return f.verdict
}

type fakeDetector struct {
	method models.Method
	result models.MethodResult
	err    error
	block  bool
	calls  int
	paths  []string
}

func (f *fakeDetector) Method() models.Method { return f.method }

func (f *fakeDetector) Detect(ctx context.Context, path string) (models.MethodResult, error) {
	f.calls++
	f.paths = append(f.paths, path)
	if _, err := os.Stat(path); err != nil {
		return models.MethodResult{}, err
	}
	if f.block {
		<-ctx.Done()
		return models.MethodResult{}, ctx.Err()
	}
	return f.result, f.err
}

func verdict(mt models.MediaType, detected bool, confidence float64) *models.Verdict {
	v := models.NewVerdict(mt)
	v.Detected = detected
	v.Confidence = confidence
	return v
}

func TestConfidentLSBSkipsExternals(t *testing.T) {
	se := &fakeDetector{method: models.MethodStegExpose}
	agg := New(config.Default(), &fakeLSB{verdict: verdict(models.MediaImage, true, 0.9)}, se)

	report := agg.Run(context.Background(), []byte("png"), "a.png")
	assert.True(t, report.ExternalsSkipped)
	assert.Zero(t, se.calls)
	assert.True(t, report.Detected)
	assert.InDelta(t, 0.9, report.Confidence, 1e-9)
	assert.Equal(t, []models.Method{models.MethodLSB}, report.Methods)
	assert.NotNil(t, report.LSB)
}

func TestWeightedCombination(t *testing.T) {
	tests := []struct {
		name         string
		openStego    *fakeDetector
		wantConf     float64
		wantMethods  []models.Method
		wantErrorKey models.Method
	}{
		{
			name:        "all methods usable",
			openStego:   &fakeDetector{method: models.MethodOpenStego, result: models.MethodResult{}},
			wantConf:    (2*0.3 + 0.7 + 0) / 4,
			wantMethods: []models.Method{models.MethodStegExpose},
		},
		{
			name:         "errored method is excluded",
			openStego:    &fakeDetector{method: models.MethodOpenStego, err: errors.New("java missing")},
			wantConf:     (2*0.3 + 0.7) / 3,
			wantMethods:  []models.Method{models.MethodStegExpose},
			wantErrorKey: models.MethodOpenStego,
		},
		{
			name:        "detections are ORed",
			openStego:   &fakeDetector{method: models.MethodOpenStego, result: models.MethodResult{Detected: true, Confidence: 0.85}},
			wantConf:    (2*0.3 + 0.7 + 0.85) / 4,
			wantMethods: []models.Method{models.MethodOpenStego, models.MethodStegExpose},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := &fakeDetector{method: models.MethodStegExpose, result: models.MethodResult{Detected: true, Confidence: 0.7}}
			agg := New(config.Default(), &fakeLSB{verdict: verdict(models.MediaImage, false, 0.3)}, se, tt.openStego)

			report := agg.Run(context.Background(), []byte("png"), "a.png")
			assert.False(t, report.ExternalsSkipped)
			assert.True(t, report.Detected)
			assert.InDelta(t, tt.wantConf, report.Confidence, 1e-9)
			assert.Equal(t, tt.wantMethods, report.Methods)
			if tt.wantErrorKey != "" {
				assert.True(t, report.DetailsByMethod[tt.wantErrorKey].Errored())
			}

			// both detectors saw the same staged file, removed afterwards
			require.Len(t, se.paths, 1)
			assert.Equal(t, se.paths, tt.openStego.paths)
			assert.Equal(t, ".png", se.paths[0][len(se.paths[0])-4:])
			_, err := os.Stat(se.paths[0])
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestNothingUsableGivesZero(t *testing.T) {
	lsb := models.FailedVerdict(models.MediaImage, models.ErrDecodeFailure)
	se := &fakeDetector{method: models.MethodStegExpose, err: models.ErrCollaboratorUnavailable}
	agg := New(config.Default(), &fakeLSB{verdict: lsb}, se)

	report := agg.Run(context.Background(), []byte("x"), "a.png")
	assert.False(t, report.Detected)
	assert.Zero(t, report.Confidence)
	assert.Empty(t, report.Methods)
	assert.Equal(t, models.ErrDecodeFailure.Error(), report.Error)
}

func TestExternalsOnlyForImages(t *testing.T) {
	se := &fakeDetector{method: models.MethodStegExpose}
	agg := New(config.Default(), &fakeLSB{verdict: verdict(models.MediaAudio, false, 0.3)}, se)

	report := agg.Run(context.Background(), []byte("wav"), "a.wav")
	assert.True(t, report.ExternalsSkipped)
	assert.Zero(t, se.calls)
}

func TestAggregateDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Aggregate.Enabled = false
	se := &fakeDetector{method: models.MethodStegExpose}

	report := New(cfg, &fakeLSB{verdict: verdict(models.MediaImage, false, 0.1)}, se).Run(context.Background(), nil, "a.png")
	assert.True(t, report.ExternalsSkipped)
	assert.Zero(t, se.calls)
}

func TestDetectorTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Aggregate.Timeout = 20 * time.Millisecond
	slow := &fakeDetector{method: models.MethodStegExpose, block: true}

	report := New(cfg, &fakeLSB{verdict: verdict(models.MediaImage, false, 0.2)}, slow).Run(context.Background(), []byte("png"), "a.png")
	res := report.DetailsByMethod[models.MethodStegExpose]
	assert.True(t, res.Errored())
	assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
	assert.InDelta(t, 0.2, report.Confidence, 1e-9)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Breaker.FailureThreshold = 3
	cfg.Breaker.Timeout = time.Hour
	failing := &fakeDetector{method: models.MethodOpenStego, err: errors.New("boom")}
	agg := New(cfg, &fakeLSB{verdict: verdict(models.MediaImage, false, 0.1)}, failing)

	for i := 0; i < 3; i++ {
		res := agg.Run(context.Background(), []byte("png"), "a.png").DetailsByMethod[models.MethodOpenStego]
		assert.Equal(t, "boom", res.Error)
	}

	res := agg.Run(context.Background(), []byte("png"), "a.png").DetailsByMethod[models.MethodOpenStego]
	assert.Contains(t, res.Error, models.ErrCollaboratorUnavailable.Error())
	assert.Contains(t, res.Error, "circuit breaker is open")
	assert.Equal(t, 3, failing.calls)
}

func TestCombineUsesConfiguredWeights(t *testing.T) {
	report := &models.AggregateReport{
		DetailsByMethod: map[models.Method]models.MethodResult{
			models.MethodLSB:        {Confidence: 1},
			models.MethodStegExpose: {Confidence: 0},
		},
	}
	combine(report, map[models.Method]float64{models.MethodLSB: 3, models.MethodStegExpose: 1})
	assert.InDelta(t, 0.75, report.Confidence, 1e-9)
	assert.False(t, report.Detected)
}
