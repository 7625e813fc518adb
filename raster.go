package pagenorm

import (
	"bytes"
	"fmt"
	"math"

	"github.com/bmharper/cimg/v2"
)

// 8-bit raster with interleaved channels and stride = Width * Channels
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pixels   []byte
}

// Create a zeroed raster. Panics if any dimension is not positive.
func NewRaster(width, height, channels int) *Raster {
	if width <= 0 || height <= 0 || channels <= 0 {
		panic(fmt.Sprintf("invalid raster dimensions %vx%vx%v", width, height, channels))
	}
	return &Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pixels:   make([]byte, width*height*channels),
	}
}

func (r *Raster) Stride() int {
	return r.Width * r.Channels
}

func (r *Raster) At(x, y, ch int) byte {
	return r.Pixels[y*r.Stride()+x*r.Channels+ch]
}

func (r *Raster) Set(x, y, ch int, v byte) {
	r.Pixels[y*r.Stride()+x*r.Channels+ch] = v
}

func (r *Raster) Clone() *Raster {
	return &Raster{
		Width:    r.Width,
		Height:   r.Height,
		Channels: r.Channels,
		Pixels:   bytes.Clone(r.Pixels),
	}
}

// Returns true if both rasters have identical dimensions and samples
func (r *Raster) Equal(other *Raster) bool {
	return r.Width == other.Width && r.Height == other.Height && r.Channels == other.Channels &&
		bytes.Equal(r.Pixels, other.Pixels)
}

func (r *Raster) String() string {
	return fmt.Sprintf("%vx%vx%v", r.Width, r.Height, r.Channels)
}

// Column returns a copy of the samples of column x, top to bottom
func (r *Raster) Column(x int) []byte {
	col := make([]byte, 0, r.Height*r.Channels)
	for y := 0; y < r.Height; y++ {
		i := y*r.Stride() + x*r.Channels
		col = append(col, r.Pixels[i:i+r.Channels]...)
	}
	return col
}

// SelectColumns builds a new raster out of the given half-open column ranges, concatenated
// left to right in the order given. Empty ranges are skipped. The total width must be positive.
func (r *Raster) SelectColumns(ranges ...Segment) *Raster {
	width := 0
	for _, s := range ranges {
		width += s.Width()
	}
	dst := NewRaster(width, r.Height, r.Channels)
	for y := 0; y < r.Height; y++ {
		srcLine := r.Pixels[y*r.Stride() : (y+1)*r.Stride()]
		dstLine := dst.Pixels[y*dst.Stride() : (y+1)*dst.Stride()]
		n := 0
		for _, s := range ranges {
			n += copy(dstLine[n:], srcLine[s.Start*r.Channels:s.End*r.Channels])
		}
	}
	return dst
}

// Returns a 1-channel raster holding channel 0 of r
func (r *Raster) firstChannel() *Raster {
	dst := NewRaster(r.Width, r.Height, 1)
	for i := range dst.Pixels {
		dst.Pixels[i] = r.Pixels[i*r.Channels]
	}
	return dst
}

// Rotate 90 degrees clockwise
func (r *Raster) RotateCW90() *Raster {
	dst := NewRaster(r.Height, r.Width, r.Channels)
	c := r.Channels
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			// (x, y) -> (H-1-y, x)
			d := (x*dst.Width + (r.Height - 1 - y)) * c
			s := (y*r.Width + x) * c
			copy(dst.Pixels[d:d+c], r.Pixels[s:s+c])
		}
	}
	return dst
}

// Rotate 90 degrees counter-clockwise
func (r *Raster) RotateCCW90() *Raster {
	dst := NewRaster(r.Height, r.Width, r.Channels)
	c := r.Channels
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			// (x, y) -> (y, W-1-x)
			d := ((r.Width-1-x)*dst.Width + y) * c
			s := (y*r.Width + x) * c
			copy(dst.Pixels[d:d+c], r.Pixels[s:s+c])
		}
	}
	return dst
}

func (r *Raster) Rotate180() *Raster {
	dst := NewRaster(r.Width, r.Height, r.Channels)
	c := r.Channels
	n := r.Width * r.Height
	for i := 0; i < n; i++ {
		d := (n - 1 - i) * c
		copy(dst.Pixels[d:d+c], r.Pixels[i*c:(i+1)*c])
	}
	return dst
}

// RotateQuarter rotates by a multiple of 90 degrees, counter-clockwise positive.
// The canvas always holds the whole image, so width and height swap for odd quarter turns.
func (r *Raster) RotateQuarter(degreesCCW int) (*Raster, error) {
	if degreesCCW%90 != 0 {
		return nil, fmt.Errorf("rotation of %v degrees is not a multiple of 90", degreesCCW)
	}
	switch ((degreesCCW % 360) + 360) % 360 {
	case 90:
		return r.RotateCCW90(), nil
	case 180:
		return r.Rotate180(), nil
	case 270:
		return r.RotateCW90(), nil
	}
	return r, nil
}

// Wrap the raster's pixels in a cimg image without copying. Only gray and RGB are supported.
func (r *Raster) toCImg() (*cimg.Image, bool) {
	switch r.Channels {
	case 1:
		return cimg.WrapImage(r.Width, r.Height, cimg.PixelFormatGRAY, r.Pixels), true
	case 3:
		return cimg.WrapImage(r.Width, r.Height, cimg.PixelFormatRGB, r.Pixels), true
	}
	return nil, false
}

// Copy a cimg image into a raster, dropping any stride padding
func fromCImg(img *cimg.Image) *Raster {
	nchan := img.NChan()
	dst := NewRaster(img.Width, img.Height, nchan)
	for y := 0; y < img.Height; y++ {
		copy(dst.Pixels[y*dst.Stride():(y+1)*dst.Stride()], img.Pixels[y*img.Stride:y*img.Stride+dst.Stride()])
	}
	return dst
}

// Shrink returns a downsampled copy if width or height exceeds maxSize, otherwise r itself.
// Rasters that are neither gray nor RGB are never resized.
func (r *Raster) Shrink(maxSize int) *Raster {
	if maxSize <= 0 {
		return r
	}
	scaleX := float64(maxSize) / float64(r.Width)
	scaleY := float64(maxSize) / float64(r.Height)
	if scaleX >= 1 && scaleY >= 1 {
		return r
	}
	wrapped, ok := r.toCImg()
	if !ok {
		return r
	}
	scale := min(scaleX, scaleY)
	w := max(1, int(math.Round(float64(r.Width)*scale)))
	h := max(1, int(math.Round(float64(r.Height)*scale)))
	return fromCImg(cimg.ResizeNew(wrapped, w, h, nil))
}
