package external

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"MediaSteGo/pkg/models"
	"MediaSteGo/pkg/raster"
)

// FrameFunc receives one decoded frame and its index in the source stream
type FrameFunc func(index int, frame *raster.Raster) error

// FrameSource yields at most max evenly spaced frames of a video, or every frame when the
// video is shorter. Returning an error from fn stops the iteration.
type FrameSource interface {
	Frames(ctx context.Context, path string, max int, fn FrameFunc) error
}

// AudioDecoder decodes the audio track of a file into interleaved integer samples
type AudioDecoder interface {
	DecodeSamples(ctx context.Context, path string) ([]int, error)
}

// SampleIndices spreads max indices evenly over [0, total-1] with truncation.
// When total does not exceed max every index is returned.
func SampleIndices(total, max int) []int {
	if total <= 0 || max <= 0 {
		return nil
	}
	if total <= max {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if max == 1 {
		return []int{0}
	}

	out := make([]int, max)
	step := float64(total-1) / float64(max-1)
	for i := range out {
		out[i] = int(float64(i) * step)
	}
	out[max-1] = total - 1
	return out
}

// FFmpegFrames extracts frames with ffmpeg as a PNG stream on stdout
type FFmpegFrames struct {
	Runner CommandRunner
	Binary string
	Prober Prober
}

func (f *FFmpegFrames) Frames(ctx context.Context, path string, max int, fn FrameFunc) error {
	total := 0
	if f.Prober != nil {
		probe, err := f.Prober.Probe(ctx, path)
		if err != nil {
			return err
		}
		if !probe.HasStream("video") {
			return fmt.Errorf("%w: no video stream", models.ErrDecodeFailure)
		}
		total = probe.FrameCount()
	}

	args := []string{"-v", "error", "-i", path, "-an"}
	indices := SampleIndices(total, max)
	if len(indices) > 0 && len(indices) < total {
		selectors := make([]string, len(indices))
		for i, idx := range indices {
			selectors[i] = `eq(n\,` + strconv.Itoa(idx) + `)`
		}
		args = append(args, "-vf", "select='"+strings.Join(selectors, "+")+"'", "-fps_mode", "passthrough")
	} else {
		// frame count unknown or small: take the leading frames
		indices = nil
		args = append(args, "-frames:v", strconv.Itoa(max))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "png", "pipe:1")

	out, err := f.Runner.Run(ctx, f.binary(), args...)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg frames: %v", models.ErrCollaboratorUnavailable, err)
	}

	return DecodePNGStream(ctx, out.Stdout, indices, fn)
}

func (f *FFmpegFrames) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

// DecodePNGStream decodes concatenated PNG images and hands them to fn in order.
// indices maps stream position to source frame index; nil means positional.
func DecodePNGStream(ctx context.Context, stream []byte, indices []int, fn FrameFunc) error {
	r := bytes.NewReader(stream)
	for i := 0; r.Len() > 0; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := png.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %v", models.ErrDecodeFailure, i, err)
		}
		index := i
		if i < len(indices) {
			index = indices[i]
		}
		if err := fn(index, raster.FromImage(img)); err != nil {
			return err
		}
	}
	return nil
}

// FFmpegAudio decodes any container's first audio stream to signed 16-bit PCM
type FFmpegAudio struct {
	Runner CommandRunner
	Binary string
}

func (f *FFmpegAudio) DecodeSamples(ctx context.Context, path string) ([]int, error) {
	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	out, err := f.Runner.Run(ctx, bin,
		"-v", "error", "-i", path, "-vn", "-map", "0:a:0",
		"-f", "s16le", "-acodec", "pcm_s16le", "pipe:1")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg audio: %v", models.ErrCollaboratorUnavailable, err)
	}
	return ParseS16LE(out.Stdout), nil
}

// ParseS16LE converts little-endian signed 16-bit PCM into samples. A trailing odd byte is ignored.
func ParseS16LE(pcm []byte) []int {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return samples
}
