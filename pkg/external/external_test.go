package external

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
)

// fakeRunner records invocations and replays canned output
type fakeRunner struct {
	calls [][]string
	out   Output
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Output, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.out, f.err
}

type fakeProber struct {
	res *ProbeResult
	err error
}

func (f fakeProber) Probe(context.Context, string) (*ProbeResult, error) { return f.res, f.err }

func touch(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	return p
}

func pngFrame(t *testing.T, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExecRunner(t *testing.T) {
	r := NewExecRunner(0)
	assert.Equal(t, DefaultTimeout, r.Timeout)

	_, err := r.Run(context.Background(), "definitely-not-a-binary-mediastego")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}

func TestExecRunnerTimeout(t *testing.T) {
	if _, err := os.Stat("/bin/sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := NewExecRunner(50 * time.Millisecond)
	_, err := r.Run(context.Background(), "/bin/sleep", "5")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}

func TestSampleIndices(t *testing.T) {
	tests := []struct {
		name       string
		total, max int
		want       []int
	}{
		{"fewer frames than max", 4, 10, []int{0, 1, 2, 3}},
		{"exact", 3, 3, []int{0, 1, 2}},
		{"linspace", 24, 10, []int{0, 2, 5, 7, 10, 12, 15, 17, 20, 23}},
		{"single", 100, 1, []int{0}},
		{"unknown", 0, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SampleIndices(tt.total, tt.max))
		})
	}
}

func TestFFprobe(t *testing.T) {
	out := `{
		"streams": [
			{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 640, "height": 480, "nb_frames": "240"},
			{"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 2}
		],
		"format": {"format_name": "mov,mp4,m4a", "duration": "10.0", "tags": {"comment": "hidden payload"}}
	}`
	runner := &fakeRunner{out: Output{Stdout: []byte(out)}}
	p := &FFprobe{Runner: runner}

	res, err := p.Probe(context.Background(), "/tmp/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "ffprobe", runner.calls[0][0])
	assert.Equal(t, "/tmp/a.mp4", runner.calls[0][len(runner.calls[0])-1])
	assert.Equal(t, 240, res.FrameCount())
	assert.True(t, res.HasStream("audio"))
	assert.Equal(t, 10.0, res.Format.DurationSeconds())
	assert.Equal(t, "hidden payload", res.Format.Tags["comment"])

	assert.NotContains(t, runner.calls[0], "-count_packets")

	_, err = (&FFprobe{Runner: &fakeRunner{err: errors.New("boom")}}).Probe(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}

func TestFFprobeCountsPackets(t *testing.T) {
	out := `{"streams": [{"codec_type": "video", "r_frame_rate": "25/1", "nb_read_packets": "1498"}], "format": {"duration": "60.0"}}`
	runner := &fakeRunner{out: Output{Stdout: []byte(out)}}
	p := &FFprobe{Runner: runner, CountFrames: true}

	res, err := p.Probe(context.Background(), "/tmp/a.mkv")
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0], "-count_packets")
	assert.Equal(t, 1498, res.FrameCount())
}

func TestProbeFrameCount(t *testing.T) {
	tests := []struct {
		name  string
		probe ProbeResult
		want  int
	}{
		{
			name:  "packet count wins",
			probe: ProbeResult{Streams: []ProbeStream{{CodecType: "video", NbReadPackets: "300", NbFrames: "240"}}},
			want:  300,
		},
		{
			name:  "stored frame count",
			probe: ProbeResult{Streams: []ProbeStream{{CodecType: "video", NbFrames: "240", RFrameRate: "25/1", Duration: "60"}}},
			want:  240,
		},
		{
			name: "container duration and frame rate",
			probe: ProbeResult{
				Format:  ProbeFormat{Duration: "60.000000"},
				Streams: []ProbeStream{{CodecType: "video", RFrameRate: "25/1"}},
			},
			want: 1500,
		},
		{
			name: "stream duration and average rate",
			probe: ProbeResult{
				Format:  ProbeFormat{Duration: "120"},
				Streams: []ProbeStream{{CodecType: "video", Duration: "10.020000", AvgFrameRate: "30000/1001", RFrameRate: "60/1"}},
			},
			want: 300,
		},
		{
			name: "undefined average rate falls back to r_frame_rate",
			probe: ProbeResult{
				Format:  ProbeFormat{Duration: "2"},
				Streams: []ProbeStream{{CodecType: "video", AvgFrameRate: "0/0", RFrameRate: "24/1"}},
			},
			want: 48,
		},
		{
			name: "video after audio stream",
			probe: ProbeResult{
				Format:  ProbeFormat{Duration: "4"},
				Streams: []ProbeStream{{CodecType: "audio", NbFrames: "999"}, {CodecType: "video", RFrameRate: "25"}},
			},
			want: 100,
		},
		{name: "no frame rate", probe: ProbeResult{Format: ProbeFormat{Duration: "60"}, Streams: []ProbeStream{{CodecType: "video"}}}, want: 0},
		{name: "no duration", probe: ProbeResult{Streams: []ProbeStream{{CodecType: "video", RFrameRate: "25/1"}}}, want: 0},
		{name: "garbage values", probe: ProbeResult{Format: ProbeFormat{Duration: "N/A"}, Streams: []ProbeStream{{CodecType: "video", RFrameRate: "x/y"}}}, want: 0},
		{name: "no video stream", probe: ProbeResult{Format: ProbeFormat{Duration: "60"}, Streams: []ProbeStream{{CodecType: "audio"}}}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.probe.FrameCount())
		})
	}
}

func TestFFmpegFramesSelectsSampledFrames(t *testing.T) {
	stream := append(pngFrame(t, 1), pngFrame(t, 2)...)
	runner := &fakeRunner{out: Output{Stdout: stream}}
	probe := &ProbeResult{Streams: []ProbeStream{{CodecType: "video", NbFrames: "24"}}}
	src := &FFmpegFrames{Runner: runner, Prober: fakeProber{res: probe}}

	var got []int
	err := src.Frames(context.Background(), "v.mp4", 2, func(index int, frame *raster.Raster) error {
		got = append(got, index)
		assert.Equal(t, 4, frame.Width)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 23}, got)

	args := strings.Join(runner.calls[0], " ")
	assert.Contains(t, args, `select='eq(n\,0)+eq(n\,23)'`)
	assert.Contains(t, args, "image2pipe")
}

func TestFFmpegFramesUnknownCount(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: pngFrame(t, 9)}}
	probe := &ProbeResult{Streams: []ProbeStream{{CodecType: "video"}}}
	src := &FFmpegFrames{Runner: runner, Prober: fakeProber{res: probe}}

	n := 0
	require.NoError(t, src.Frames(context.Background(), "v.webm", 10, func(int, *raster.Raster) error {
		n++
		return nil
	}))
	assert.Equal(t, 1, n)
	assert.Contains(t, strings.Join(runner.calls[0], " "), "-frames:v 10")
}

func TestFFmpegFramesSpreadsOverEstimatedCount(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: append(pngFrame(t, 1), pngFrame(t, 2)...)}}
	probe := &ProbeResult{
		Format:  ProbeFormat{Duration: "60.000000"},
		Streams: []ProbeStream{{CodecType: "video", RFrameRate: "25/1"}},
	}
	src := &FFmpegFrames{Runner: runner, Prober: fakeProber{res: probe}}

	var got []int
	require.NoError(t, src.Frames(context.Background(), "v.mkv", 10, func(index int, _ *raster.Raster) error {
		got = append(got, index)
		return nil
	}))
	assert.Equal(t, []int{0, 166}, got)

	args := strings.Join(runner.calls[0], " ")
	assert.Contains(t, args, `eq(n\,1499)`)
	assert.NotContains(t, args, "-frames:v")
}

func TestFFmpegFramesNoVideoStream(t *testing.T) {
	probe := &ProbeResult{Streams: []ProbeStream{{CodecType: "audio"}}}
	src := &FFmpegFrames{Runner: &fakeRunner{}, Prober: fakeProber{res: probe}}
	err := src.Frames(context.Background(), "v.mp4", 10, func(int, *raster.Raster) error { return nil })
	assert.ErrorIs(t, err, models.ErrDecodeFailure)
}

func TestDecodePNGStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := append(pngFrame(t, 1), pngFrame(t, 2)...)

	n := 0
	err := DecodePNGStream(ctx, stream, nil, func(int, *raster.Raster) error {
		n++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestFFmpegAudio(t *testing.T) {
	pcm := new(bytes.Buffer)
	for _, s := range []int16{0, 1, -1, 32767, -32768} {
		require.NoError(t, binary.Write(pcm, binary.LittleEndian, s))
	}
	runner := &fakeRunner{out: Output{Stdout: pcm.Bytes()}}
	dec := &FFmpegAudio{Runner: runner}

	samples, err := dec.DecodeSamples(context.Background(), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, -1, 32767, -32768}, samples)
	assert.Contains(t, strings.Join(runner.calls[0], " "), "-f s16le")
}

func TestParseStegExpose(t *testing.T) {
	res, err := ParseStegExpose("a.png,0.12,0.34,0.56,0.78\n")
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.InDelta(t, 0.78, res.Confidence, 1e-12)
	assert.Equal(t, 0.12, res.Raw["chi_square_score"])

	res, err = ParseStegExpose("header\na.png,0.1,0.1,0.1,0.99")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, res.Confidence, 1e-12)

	res, err = ParseStegExpose("a.png,0.1,0.1,0.1,0.2")
	require.NoError(t, err)
	assert.False(t, res.Detected)

	_, err = ParseStegExpose("garbage")
	assert.Error(t, err)
	_, err = ParseStegExpose("a.png,x,0.1,0.1,0.2")
	assert.Error(t, err)
}

func TestStegExposeDetect(t *testing.T) {
	jar := touch(t, "StegExpose.jar")
	runner := &fakeRunner{out: Output{Stdout: []byte("img.png,0.7,0.7,0.7,0.7")}}
	s := &StegExpose{JavaTool{Runner: runner, Jar: jar}}

	res, err := s.Detect(context.Background(), "img.png")
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, []string{"java", "-jar", jar, "img.png", "-all"}, runner.calls[0])

	missing := &StegExpose{JavaTool{Runner: runner, Jar: filepath.Join(t.TempDir(), "nope.jar")}}
	_, err = missing.Detect(context.Background(), "img.png")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
}

func TestOpenStegoDetect(t *testing.T) {
	jar := touch(t, "openstego.jar")

	runner := &fakeRunner{
		out: Output{Stderr: []byte("Extracted file: secret.txt")},
		err: &ExitError{Name: "java", ExitCode: 1},
	}
	o := &OpenStego{JavaTool{Runner: runner, Jar: jar}}
	res, err := o.Detect(context.Background(), "img.png")
	require.NoError(t, err, "non-zero exit still yields a result")
	assert.True(t, res.Detected)
	assert.Equal(t, OpenStegoConfidence, res.Confidence)

	res = ParseOpenStego("Error: no hidden data")
	assert.False(t, res.Detected)
	assert.Zero(t, res.Confidence)

	o = &OpenStego{JavaTool{Runner: &fakeRunner{err: models.ErrCollaboratorUnavailable}, Jar: jar}}
	_, err = o.Detect(context.Background(), "img.png")
	assert.Error(t, err)
}

func TestParseYaraOutput(t *testing.T) {
	out := `Stego_Appended_Zip [stego,archive] /tmp/a.png
0x1f4:$pk: 50 4B 03 04
0x2a0:$eocd: PK
Suspicious_Comment [] /tmp/a.png
`
	matches := ParseYaraOutput(out)
	require.Len(t, matches, 2)
	assert.Equal(t, "Stego_Appended_Zip", matches[0].Rule)
	assert.Equal(t, []string{"stego", "archive"}, matches[0].Tags)
	require.Len(t, matches[0].Strings, 2)
	assert.Equal(t, int64(0x1f4), matches[0].Strings[0].Offset)
	assert.Equal(t, "$pk", matches[0].Strings[0].Identifier)
	assert.Equal(t, "50 4B 03 04", matches[0].Strings[0].Data)
	assert.Empty(t, matches[1].Tags)

	assert.Empty(t, ParseYaraOutput(""))
}

func TestYaraCLIRequiresRules(t *testing.T) {
	y := &YaraCLI{Runner: &fakeRunner{}}
	_, err := y.Scan(context.Background(), "a.png")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)

	rules := touch(t, "media.yar")
	runner := &fakeRunner{out: Output{Stdout: []byte("Rule_A [] a.png\n")}}
	y = &YaraCLI{Runner: runner, Rules: rules}
	matches, err := y.Scan(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, []string{"yara", "-g", "-s", rules, "a.png"}, runner.calls[0])
}

func testURLhaus(srvURL string) *URLhaus {
	cfg := config.Default().Reputation
	cfg.URLhausURL = srvURL
	cfg.RatePerSecond = 1000
	u := NewURLhaus(cfg)
	u.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return u
}

func TestURLhausKnownURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/url/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "http://bad.example/x.exe", r.PostForm.Get("url"))
		_, _ = w.Write([]byte(`{"query_status":"ok","url_status":"online","threat":"malware_download","reporter":"abuse_ch"}`))
	}))
	defer srv.Close()

	rep, err := testURLhaus(srv.URL).Lookup(context.Background(), "http://bad.example/x.exe")
	require.NoError(t, err)
	assert.True(t, rep.IsMalicious)
	assert.Equal(t, 0.9, rep.Confidence)
	assert.Equal(t, "malware_download", rep.ThreatType)
	assert.Equal(t, "online", rep.Status)
}

func TestURLhausUnknownURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"query_status":"no_results"}`))
	}))
	defer srv.Close()

	rep, err := testURLhaus(srv.URL).Lookup(context.Background(), "https://fine.example/")
	require.NoError(t, err)
	assert.False(t, rep.IsMalicious)
	assert.Zero(t, rep.Confidence)
}

func TestURLhausRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"query_status":"no_results"}`))
	}))
	defer srv.Close()

	_, err := testURLhaus(srv.URL).Lookup(context.Background(), "https://a.example/")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestURLhausClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testURLhaus(srv.URL).Lookup(context.Background(), "https://a.example/")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
	assert.Equal(t, int32(1), hits.Load())
}

func TestURLhausGivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	u := testURLhaus(srv.URL)
	u.MaxRetries = 2
	_, err := u.Lookup(context.Background(), "https://a.example/")
	assert.ErrorIs(t, err, models.ErrCollaboratorUnavailable)
	assert.Equal(t, int32(3), hits.Load())
}
