package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/security"
)

func pipelineConfig(workers int) config.PipelineConfig {
	return config.PipelineConfig{Workers: workers, FileTimeout: time.Second}
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(paths[i], []byte(n), 0o644))
	}
	return paths
}

type fakePathAnalyzer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakePathAnalyzer) AnalyzePath(_ context.Context, path string) *models.Verdict {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	v := models.NewVerdict(models.MediaImage)
	v.Filename = filepath.Base(path)
	v.Detected = filepath.Base(path) == "stego.png"
	return v
}

func TestRunKeepsInputOrder(t *testing.T) {
	paths := writeFiles(t, "a.png", "b.png", "stego.png", "d.png", "e.png")
	fake := &fakePathAnalyzer{}

	results, err := New(pipelineConfig(3), VerdictTask(fake)).Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, results, len(paths))
	for i, r := range results {
		assert.Equal(t, paths[i], r.Input)
		assert.Equal(t, paths[i], r.Path)
		require.NotNil(t, r.Verdict)
		assert.Equal(t, filepath.Base(paths[i]), r.Verdict.Filename)
	}
	assert.True(t, results[2].Detected())
	assert.False(t, results[0].Detected())
	assert.Len(t, fake.paths, len(paths))
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var running, peak atomic.Int32
	task := func(ctx context.Context, path string, res *Result) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
	}

	inputs := make([]string, 12)
	for i := range inputs {
		inputs[i] = "file.png"
	}
	_, err := New(pipelineConfig(2), task).Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestPerFileTimeout(t *testing.T) {
	task := func(ctx context.Context, path string, res *Result) {
		<-ctx.Done()
		res.Error = ctx.Err().Error()
	}
	cfg := config.PipelineConfig{Workers: 1, FileTimeout: 20 * time.Millisecond}

	results, err := New(cfg, task).Run(context.Background(), []string{"slow.mp4"})
	require.NoError(t, err)
	assert.Equal(t, context.DeadlineExceeded.Error(), results[0].Error)
	assert.GreaterOrEqual(t, results[0].Duration, 20*time.Millisecond)
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	task := func(context.Context, string, *Result) { called = true }

	results, err := New(pipelineConfig(2), task).Run(ctx, []string{"a.png", "b.png"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	for _, r := range results {
		assert.Equal(t, context.Canceled.Error(), r.Error)
	}
}

type fakeReputation struct {
	rep     *external.Reputation
	err     error
	mu      sync.Mutex
	targets []string
}

func (f *fakeReputation) Lookup(_ context.Context, target string) (*external.Reputation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	return f.rep, f.err
}

func TestURLInputsAreDownloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	rep := &fakeReputation{rep: &external.Reputation{Service: "urlhaus", IsMalicious: true, Confidence: 0.9}}
	fake := &fakePathAnalyzer{}
	dir := t.TempDir()
	p := New(pipelineConfig(2), VerdictTask(fake), WithDownloadDir(dir), WithReputation(rep))

	results, err := p.Run(context.Background(), []string{srv.URL + "/pics/cat.png", srv.URL + "/missing.png"})
	require.NoError(t, err)

	ok := results[0]
	assert.Empty(t, ok.Error)
	assert.Equal(t, filepath.Join(dir, "cat.png"), ok.Path)
	require.NotNil(t, ok.Reputation)
	assert.True(t, ok.Reputation.IsMalicious)
	data, err := os.ReadFile(ok.Path)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(data))

	bad := results[1]
	assert.Contains(t, bad.Error, "download failed")
	assert.Nil(t, bad.Verdict)
	assert.Len(t, rep.targets, 2)
}

func TestReputationFailureDoesNotStopDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	rep := &fakeReputation{err: errors.New("rate limited")}
	p := New(pipelineConfig(1), VerdictTask(&fakePathAnalyzer{}), WithDownloadDir(t.TempDir()), WithReputation(rep))
	results, err := p.Run(context.Background(), []string{srv.URL + "/a.png"})
	require.NoError(t, err)
	assert.Empty(t, results[0].Error)
	assert.Nil(t, results[0].Reputation)
	assert.NotNil(t, results[0].Verdict)
}

type fakeAggregate struct{ names []string }

func (f *fakeAggregate) Run(_ context.Context, data []byte, filename string) *models.AggregateReport {
	f.names = append(f.names, filename+":"+string(data))
	return &models.AggregateReport{Detected: true, Confidence: 0.5}
}

type fakeSecurity struct{}

func (fakeSecurity) Analyze(_ context.Context, _ []byte, filename string) *security.Report {
	return &security.Report{FileName: filename, SecurityStatus: security.Status{IsSafe: false, ThreatLevel: security.ThreatHigh}}
}

type fakeLegacy struct{ calls int }

func (f *fakeLegacy) AnalyzeLegacy(context.Context, []byte, string) *models.Verdict {
	f.calls++
	v := models.NewVerdict(models.MediaImage)
	v.Confidence = 0.6
	return v
}

func TestTasks(t *testing.T) {
	paths := writeFiles(t, "a.png", "b.wav")

	agg := &fakeAggregate{}
	res := Result{}
	AggregateTask(agg)(context.Background(), paths[0], &res)
	assert.Equal(t, []string{"a.png:a.png"}, agg.names)
	assert.True(t, res.Detected())
	assert.InDelta(t, 0.5, res.Confidence(), 1e-9)

	res = Result{}
	SecurityTask(fakeSecurity{})(context.Background(), paths[0], &res)
	require.NotNil(t, res.Security)
	assert.True(t, res.Detected())

	legacy := &fakeLegacy{}
	fallback := &fakePathAnalyzer{}
	res = Result{}
	LegacyTask(legacy, fallback)(context.Background(), paths[0], &res)
	assert.Equal(t, 1, legacy.calls)
	assert.InDelta(t, 0.6, res.Confidence(), 1e-9)

	res = Result{}
	LegacyTask(legacy, fallback)(context.Background(), paths[1], &res)
	assert.Equal(t, 1, legacy.calls)
	assert.Equal(t, []string{paths[1]}, fallback.paths)

	res = Result{}
	AggregateTask(agg)(context.Background(), filepath.Join(t.TempDir(), "gone.png"), &res)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Aggregate)
}
