// Package raster turns encoded media into the pixel and sample planes the
// statistical tests work on.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"MediaSteGo/pkg/models"
)

// FallbackSize is the edge length of the blank raster used when decoding fails
const FallbackSize = 50

// Raster is a decoded image: row-major, interleaved channels, 8 bits per sample.
// Channels is 1 (gray) or 3 (RGB).
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// Plane is a single-channel 2-D array. Gray planes hold 0-255, bit-planes hold 0 or 1.
type Plane struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRaster allocates a zeroed raster
func NewRaster(w, h, channels int) *Raster {
	return &Raster{Width: w, Height: h, Channels: channels, Pix: make([]uint8, w*h*channels)}
}

// NewPlane allocates a zeroed plane
func NewPlane(w, h int) *Plane {
	return &Plane{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// Valid reports whether the raster is non-empty and rectangular
func (r *Raster) Valid() bool {
	return r != nil && r.Width > 0 && r.Height > 0 &&
		(r.Channels == 1 || r.Channels == 3) &&
		len(r.Pix) == r.Width*r.Height*r.Channels
}

// At returns the value at column x, row y
func (p *Plane) At(x, y int) uint8 {
	return p.Pix[y*p.Width+x]
}

// Len is the number of samples in the plane
func (p *Plane) Len() int {
	return len(p.Pix)
}

// Decode parses PNG, JPEG, GIF, BMP, TIFF or WebP bytes into a 3-channel RGB raster.
// Alpha is dropped without compositing.
func Decode(data []byte) (*Raster, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", models.ErrDecodeFailure)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrDecodeFailure, err)
	}
	r := FromImage(img)
	if !r.Valid() {
		return nil, format, fmt.Errorf("%w: empty image", models.ErrDecodeFailure)
	}
	return r, format, nil
}

// DecodeOrFallback always returns a raster. When decoding fails the raster is a
// blank FallbackSize square and the decode error is returned alongside it.
func DecodeOrFallback(data []byte) (*Raster, error) {
	r, _, err := Decode(data)
	if err != nil {
		return NewRaster(FallbackSize, FallbackSize, 3), err
	}
	return r, nil
}

// FromImage copies any image.Image into an RGB raster
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	r := NewRaster(b.Dx(), b.Dy(), 3)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+r.Width]
			for x, v := range row {
				i := (y*r.Width + x) * 3
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = v, v, v
			}
		}
	case *image.NRGBA:
		for y := 0; y < r.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+r.Width*4]
			for x := 0; x < r.Width; x++ {
				i := (y*r.Width + x) * 3
				copy(r.Pix[i:i+3], row[x*4:x*4+3])
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				r.Pix[i], r.Pix[i+1], r.Pix[i+2] = c.R, c.G, c.B
				i += 3
			}
		}
	}
	return r
}

// Gray converts to luminance with the BT.601 weights 0.299 R + 0.587 G + 0.114 B
func (r *Raster) Gray() *Plane {
	p := NewPlane(r.Width, r.Height)
	if r.Channels == 1 {
		copy(p.Pix, r.Pix)
		return p
	}
	for i := range p.Pix {
		px := r.Pix[i*r.Channels : i*r.Channels+3]
		y := 0.299*float64(px[0]) + 0.587*float64(px[1]) + 0.114*float64(px[2])
		p.Pix[i] = uint8(math.Min(math.Round(y), 255))
	}
	return p
}

// LSBPlane returns v & 1 for every value of the plane
func LSBPlane(gray *Plane) *Plane {
	p := NewPlane(gray.Width, gray.Height)
	for i, v := range gray.Pix {
		p.Pix[i] = v & 1
	}
	return p
}

// SampleLSB returns the least significant bit of every audio sample.
// Two's complement means odd negative samples map to 1.
func SampleLSB(samples []int) []uint8 {
	out := make([]uint8, len(samples))
	for i, s := range samples {
		out[i] = uint8(s & 1)
	}
	return out
}

// Downscale resizes a plane with bilinear interpolation
func Downscale(p *Plane, w, h int) *Plane {
	src := p.Image()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &Plane{Width: w, Height: h, Pix: dst.Pix}
}

// Image wraps the plane as an image.Gray sharing the same pixels
func (p *Plane) Image() *image.Gray {
	return &image.Gray{Pix: p.Pix, Stride: p.Width, Rect: image.Rect(0, 0, p.Width, p.Height)}
}
