package pagenorm

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmharper/cimg/v2"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// An Encoder writes a raster to a file, replacing whatever is there
type Encoder interface {
	Encode(r *Raster, path string) error
}

// Codec is the full set of image primitives that the pipeline needs
type Codec interface {
	Encoder
	Rotator
	Decode(path string) (*Raster, error)
}

// FileCodec reads and writes JPEG, PNG, TIFF and BMP, choosing the format from the file extension.
// Decoded rasters are always 1 channel (gray) or 3 channels (RGB).
type FileCodec struct {
	JPEGQuality int // 1..100
}

// Create a new FileCodec with defaults
func NewFileCodec() *FileCodec {
	return &FileCodec{
		JPEGQuality: 95,
	}
}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatJPEG
	formatPNG
	formatTIFF
	formatBMP
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return formatJPEG
	case ".png":
		return formatPNG
	case ".tif", ".tiff":
		return formatTIFF
	case ".bmp":
		return formatBMP
	}
	return formatUnknown
}

func (c *FileCodec) Decode(path string) (*Raster, error) {
	switch formatOf(path) {
	case formatJPEG:
		r, err := decodeCImg(path)
		if err != nil {
			return nil, err
		}
		if r.Channels == 3 && isGrayJPEG(path) {
			// turbojpeg always decompresses to RGB
			r = r.firstChannel()
		}
		return r, nil
	case formatPNG:
		r, err := decodeCImg(path)
		if err != nil {
			// cimg only understands 8-bit gray and RGB(A) PNGs. Bilevel, paletted and
			// 16-bit scans go through image/png.
			return decodeStd(path, png.Decode)
		}
		return r, nil
	case formatTIFF:
		return decodeStd(path, tiff.Decode)
	case formatBMP:
		return decodeStd(path, bmp.Decode)
	}
	return nil, errors.Wrapf(ErrUnsupportedFormat, "%v", filepath.Ext(path))
}

func decodeCImg(path string) (*Raster, error) {
	img, err := cimg.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v", path)
	}
	if img.NChan() != 1 && img.Format != cimg.PixelFormatRGB {
		img = img.ToRGB()
	}
	return fromCImg(img), nil
}

// Reads only the JPEG header, to find out whether the file has a single gray component.
// Headers that image/jpeg can't parse (eg arithmetic coding) are treated as color.
func isGrayJPEG(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	return err == nil && cfg.ColorModel == color.GrayModel
}

func decodeStd(path string, decode func(io.Reader) (image.Image, error)) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %v", path)
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %v", path)
	}
	return FromImage(img), nil
}

func (c *FileCodec) Encode(r *Raster, path string) error {
	switch formatOf(path) {
	case formatJPEG:
		quality := c.JPEGQuality
		if quality <= 0 || quality > 100 {
			quality = 95
		}
		if r.Channels == 1 {
			// turbojpeg can't produce 4:4:4 output from a gray source
			return encodeStd(path, r, func(w io.Writer, img image.Image) error {
				return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
			})
		}
		img, ok := r.toCImg()
		if !ok {
			return errors.Errorf("cannot write %v-channel raster as JPEG", r.Channels)
		}
		return errors.Wrapf(img.WriteJPEG(path, cimg.MakeCompressParams(cimg.Sampling444, quality, 0), 0644), "failed to write %v", path)
	case formatPNG:
		return encodeStd(path, r, png.Encode)
	case formatTIFF:
		return encodeStd(path, r, func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		})
	case formatBMP:
		return encodeStd(path, r, bmp.Encode)
	}
	return errors.Wrapf(ErrUnsupportedFormat, "%v", filepath.Ext(path))
}

func encodeStd(path string, r *Raster, encode func(io.Writer, image.Image) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %v", path)
	}
	if err := encode(f, r.ToImage()); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %v", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %v", path)
}

// Rotate by a multiple of 90 degrees, counter-clockwise positive
func (c *FileCodec) Rotate(r *Raster, degreesCCW int) (*Raster, error) {
	return r.RotateQuarter(degreesCCW)
}

// ToImage returns a standard library view of the raster.
// Gray shares the raster's pixels; other channel counts are copied.
func (r *Raster) ToImage() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Channels {
	case 1:
		return &image.Gray{Pix: r.Pixels, Stride: r.Stride(), Rect: rect}
	case 4:
		return &image.NRGBA{Pix: r.Pixels, Stride: r.Stride(), Rect: rect}
	}
	dst := image.NewNRGBA(rect)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			i := dst.PixOffset(x, y)
			if r.Channels >= 3 {
				dst.Pix[i] = r.At(x, y, 0)
				dst.Pix[i+1] = r.At(x, y, 1)
				dst.Pix[i+2] = r.At(x, y, 2)
			} else {
				v := r.At(x, y, 0)
				dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2] = v, v, v
			}
			dst.Pix[i+3] = 255
		}
	}
	return dst
}

func isGrayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, a := c.RGBA()
		if r != g || g != b || a != 0xffff {
			return false
		}
	}
	return len(p) != 0
}

// FromImage converts any image into a gray or RGB raster
func FromImage(img image.Image) *Raster {
	b := img.Bounds()
	var gray bool
	switch m := img.ColorModel().(type) {
	case color.Palette:
		gray = isGrayPalette(m)
	default:
		gray = m == color.GrayModel || m == color.Gray16Model
	}
	if gray {
		dst := NewRaster(b.Dx(), b.Dy(), 1)
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				g := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				dst.Set(x, y, 0, g.Y)
			}
		}
		return dst
	}
	dst := NewRaster(b.Dx(), b.Dy(), 3)
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst.Set(x, y, 0, c.R)
			dst.Set(x, y, 1, c.G)
			dst.Set(x, y, 2, c.B)
		}
	}
	return dst
}
