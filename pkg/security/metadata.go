package security

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"MediaSteGo/pkg/external"
	"MediaSteGo/pkg/models"
)

// SuspiciousKeywords flag metadata values that talk about hidden content
var SuspiciousKeywords = []string{"secret", "hidden", "password", "stego", "confidential"}

// maxTagValue truncates long metadata values in the report
const maxTagValue = 100

// Metadata is what could be learnt about a file without analysing its payload
type Metadata struct {
	Format           string            `json:"format"`
	Width            int               `json:"width,omitempty"`
	Height           int               `json:"height,omitempty"`
	ImageFormat      string            `json:"imageFormat,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
	Container        *ContainerInfo    `json:"formatInfo,omitempty"`
	Streams          []StreamInfo      `json:"streams,omitempty"`
	AppendedDataSize int               `json:"appendedDataSize,omitempty"`
	SuspiciousFields []string          `json:"suspiciousFields"`
	Error            string            `json:"error,omitempty"`
}

// ContainerInfo summarises the ffprobe format section
type ContainerInfo struct {
	FormatName string  `json:"formatName"`
	Duration   float64 `json:"duration"`
	Size       string  `json:"size,omitempty"`
	BitRate    string  `json:"bitRate,omitempty"`
}

// StreamInfo summarises one ffprobe stream
type StreamInfo struct {
	CodecType     string `json:"codecType"`
	CodecName     string `json:"codecName"`
	CodecLongName string `json:"codecLongName,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	FrameRate     string `json:"frameRate,omitempty"`
	SampleRate    string `json:"sampleRate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
}

func newMetadata(ext string) *Metadata {
	return &Metadata{
		Format:           ext,
		Tags:             map[string]string{},
		SuspiciousFields: []string{},
	}
}

// addTag records a metadata value and flags it when it contains a suspicious keyword
func (m *Metadata) addTag(key, value string) {
	lower := strings.ToLower(value)
	for _, kw := range SuspiciousKeywords {
		if strings.Contains(lower, kw) {
			m.SuspiciousFields = append(m.SuspiciousFields, key)
			break
		}
	}
	if len(value) > maxTagValue {
		value = value[:maxTagValue] + "..."
	}
	m.Tags[key] = value
}

// imageMetadata reads dimensions and embedded text of an image
func imageMetadata(data []byte, ext string) *Metadata {
	m := newMetadata(ext)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		m.Error = fmt.Sprintf("%v: %v", models.ErrDecodeFailure, err)
	} else {
		m.Width, m.Height, m.ImageFormat = cfg.Width, cfg.Height, format
	}

	switch {
	case bytes.HasPrefix(data, pngSignature):
		texts, appended := pngText(data)
		for _, t := range texts {
			m.addTag(t.key, t.value)
		}
		m.AppendedDataSize = appended
	case bytes.HasPrefix(data, []byte{0xFF, markerSOI}):
		comments, appended := jpegComments(data)
		for i, c := range comments {
			m.addTag(fmt.Sprintf("Comment%d", i), c)
		}
		m.AppendedDataSize = appended
	}

	if m.AppendedDataSize > 0 {
		m.SuspiciousFields = append(m.SuspiciousFields, "appended data")
	}
	return m
}

// probeMetadata fills container information from ffprobe
func probeMetadata(ctx context.Context, prober external.Prober, path, ext string) (*Metadata, *external.ProbeResult) {
	m := newMetadata(ext)
	if prober == nil {
		m.Error = fmt.Sprintf("%v: no prober configured", models.ErrCollaboratorUnavailable)
		return m, nil
	}

	probe, err := prober.Probe(ctx, path)
	if err != nil {
		m.Error = err.Error()
		return m, nil
	}

	m.Container = &ContainerInfo{
		FormatName: probe.Format.FormatName,
		Duration:   probe.Format.DurationSeconds(),
		Size:       probe.Format.Size,
		BitRate:    probe.Format.BitRate,
	}

	keys := make([]string, 0, len(probe.Format.Tags))
	for k := range probe.Format.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.addTag(k, probe.Format.Tags[k])
	}

	for _, s := range probe.Streams {
		m.Streams = append(m.Streams, StreamInfo{
			CodecType:     s.CodecType,
			CodecName:     s.CodecName,
			CodecLongName: s.CodecLongName,
			Width:         s.Width,
			Height:        s.Height,
			FrameRate:     s.RFrameRate,
			SampleRate:    s.SampleRate,
			Channels:      s.Channels,
		})
		if s.CodecName != "" && isSuspiciousCodec(s.CodecName) {
			m.SuspiciousFields = append(m.SuspiciousFields, "codec: "+s.CodecName)
		}
	}
	return m, probe
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

type textEntry struct {
	key   string
	value string
}

// pngText walks the chunk list and returns the uncompressed tEXt and iTXt entries and the
// number of bytes after IEND
func pngText(data []byte) ([]textEntry, int) {
	var out []textEntry
	r := bytes.NewReader(data[len(pngSignature):])
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return out, 0
		}
		length := int(binary.BigEndian.Uint32(header[:4]))
		kind := string(header[4:])
		if length < 0 || length > r.Len() {
			return out, 0
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return out, 0
		}
		if _, err := r.Seek(4, io.SeekCurrent); err != nil { // crc
			return out, 0
		}

		switch kind {
		case "tEXt":
			if key, value, ok := bytes.Cut(body, []byte{0}); ok {
				out = append(out, textEntry{string(key), string(value)})
			}
		case "iTXt":
			// keyword 0 flag method lang 0 translated 0 text
			key, rest, ok := bytes.Cut(body, []byte{0})
			if !ok || len(rest) < 2 || rest[0] != 0 {
				continue
			}
			parts := bytes.SplitN(rest[2:], []byte{0}, 3)
			if len(parts) == 3 {
				out = append(out, textEntry{string(key), string(parts[2])})
			}
		case "IEND":
			return out, r.Len()
		}
	}
}

// JPEG markers
const (
	markerSOI = 0xD8 // Start Of Image
	markerSOS = 0xDA // Start Of Scan
	markerCOM = 0xFE // Comment
	markerEOI = 0xD9 // End Of Image
)

// jpegComments returns the COM segments of a JPEG and the number of bytes after EOI
func jpegComments(data []byte) ([]string, int) {
	var comments []string

	// segment reads the length-prefixed segment starting at i
	segment := func(i int) ([]byte, int, bool) {
		if i+2 > len(data) {
			return nil, 0, false
		}
		length := int(data[i])<<8 | int(data[i+1])
		if length < 2 || i+length > len(data) {
			return nil, 0, false
		}
		return data[i+2 : i+length], i + length, true
	}

	i := 2
	for i+1 < len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		i += 2

		switch {
		case marker == markerEOI:
			return comments, len(data) - i

		case marker == markerCOM:
			body, next, ok := segment(i)
			if !ok {
				return comments, 0
			}
			comments = append(comments, string(body))
			i = next

		case marker == markerSOS:
			_, next, ok := segment(i)
			if !ok {
				return comments, 0
			}
			// entropy coded data: stuffed 0xFF00 and restart markers are not segment boundaries
			i = next
			for i+1 < len(data) {
				if data[i] == 0xFF && data[i+1] != 0x00 && (data[i+1] < 0xD0 || data[i+1] > 0xD7) {
					break
				}
				i++
			}

		case marker == 0x00 || marker == 0xFF || (marker >= 0xD0 && marker <= 0xD7):
			// fill bytes and standalone markers
			if marker == 0xFF {
				i--
			}

		default:
			_, next, ok := segment(i)
			if !ok {
				return comments, 0
			}
			i = next
		}
	}
	return comments, 0
}
