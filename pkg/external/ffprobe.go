package external

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"MediaSteGo/pkg/models"
)

// ProbeResult is the subset of ffprobe's JSON output the analyzers use
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

type ProbeFormat struct {
	Filename       string            `json:"filename"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type ProbeStream struct {
	Index         int               `json:"index"`
	CodecName     string            `json:"codec_name"`
	CodecLongName string            `json:"codec_long_name"`
	CodecType     string            `json:"codec_type"`
	Width         int               `json:"width,omitempty"`
	Height        int               `json:"height,omitempty"`
	RFrameRate    string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate  string            `json:"avg_frame_rate,omitempty"`
	Duration      string            `json:"duration,omitempty"`
	SampleRate    string            `json:"sample_rate,omitempty"`
	Channels      int               `json:"channels,omitempty"`
	NbFrames      string            `json:"nb_frames,omitempty"`
	NbReadPackets string            `json:"nb_read_packets,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// DurationSeconds parses the container duration, 0 when unknown
func (f ProbeFormat) DurationSeconds() float64 {
	d, _ := strconv.ParseFloat(f.Duration, 64)
	return d
}

// FrameCount returns the best known frame count of the first video stream, 0 when unknown.
// Containers that store no count (Matroska, WebM, fragmented MP4) get an estimate of
// duration times frame rate.
func (p *ProbeResult) FrameCount() int {
	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		for _, v := range []string{s.NbReadPackets, s.NbFrames} {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}

		duration := parsePositive(s.Duration)
		if duration == 0 {
			duration = p.Format.DurationSeconds()
		}
		fps := parseRate(s.AvgFrameRate)
		if fps == 0 {
			fps = parseRate(s.RFrameRate)
		}
		if duration <= 0 || fps <= 0 {
			return 0
		}
		return int(math.Floor(duration * fps))
	}
	return 0
}

// parseRate parses an ffprobe rational such as "30000/1001". "0/0" and garbage give 0.
func parseRate(v string) float64 {
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		return parsePositive(v)
	}
	n, d := parsePositive(num), parsePositive(den)
	if n == 0 || d == 0 {
		return 0
	}
	return n / d
}

func parsePositive(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

// HasStream reports whether a stream of the codec type exists
func (p *ProbeResult) HasStream(codecType string) bool {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// Prober extracts container metadata
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// FFprobe implements Prober with the ffprobe binary
type FFprobe struct {
	Runner CommandRunner
	Binary string
	// CountFrames makes ffprobe demux the video stream to count packets. Slower but
	// works for containers that do not store a frame count.
	CountFrames bool
}

func (f *FFprobe) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams"}
	if f.CountFrames {
		args = append(args, "-count_packets")
	}
	args = append(args, path)

	out, err := f.Runner.Run(ctx, f.binary(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", models.ErrCollaboratorUnavailable, err)
	}

	var res ProbeResult
	if err := json.Unmarshal(out.Stdout, &res); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &res, nil
}

func (f *FFprobe) binary() string {
	if strings.TrimSpace(f.Binary) == "" {
		return "ffprobe"
	}
	return f.Binary
}
