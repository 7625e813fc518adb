package pagenorm

import (
	"bufio"
	"bytes"
	"context"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TesseractOSD asks the tesseract binary for orientation and script detection (--psm 0)
type TesseractOSD struct {
	Path          string        // tesseract executable. Empty means "tesseract" on PATH.
	TessdataDir   string        // Optional --tessdata-dir
	Timeout       time.Duration // Per call. Zero for no limit other than ctx.
	MinConfidence float64       // Reject results with orientation confidence below this. Zero to disable.
	TempDir       string        // Where the page is written for tesseract to read. Empty for os.TempDir().
}

// Create a new TesseractOSD with defaults
func NewTesseractOSD() *TesseractOSD {
	return &TesseractOSD{
		Path: "tesseract",
	}
}

// OSD is the parsed output of tesseract --psm 0
type OSD struct {
	Rotate     Angle
	Confidence float64 // Orientation confidence, or -1 if absent
	Script     string
}

func (t *TesseractOSD) Orientation(ctx context.Context, r *Raster) (Angle, error) {
	osd, err := t.Detect(ctx, r)
	if err != nil {
		return 0, err
	}
	return osd.Rotate, nil
}

// Detect runs tesseract on r and returns the full OSD report
func (t *TesseractOSD) Detect(ctx context.Context, r *Raster) (*OSD, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	f, err := os.CreateTemp(t.TempDir, "pagenorm-osd-*.png")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary page image")
	}
	tmp := f.Name()
	f.Close()
	defer os.Remove(tmp)
	if err := encodeStd(tmp, r, png.Encode); err != nil {
		return nil, err
	}

	exe := t.Path
	if exe == "" {
		exe = "tesseract"
	}
	args := []string{tmp, "stdout", "--psm", "0"}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "tesseract did not finish")
		}
		return nil, errors.Wrapf(err, "tesseract failed: %v", strings.TrimSpace(stderr.String()))
	}

	osd, err := ParseOSD(stdout.String())
	if err != nil {
		return nil, err
	}
	if t.MinConfidence > 0 && osd.Confidence >= 0 && osd.Confidence < t.MinConfidence {
		return nil, errors.Errorf("orientation confidence %.2f is below %.2f", osd.Confidence, t.MinConfidence)
	}
	return osd, nil
}

// ParseOSD reads the report that tesseract prints for --psm 0, eg
//
//	Page number: 0
//	Orientation in degrees: 270
//	Rotate: 90
//	Orientation confidence: 20.16
//	Script: Latin
//	Script confidence: 8.33
//
// The Rotate line is required.
func ParseOSD(text string) (*OSD, error) {
	osd := &OSD{Confidence: -1}
	haveRotate := false
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Rotate":
			degrees, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(ErrUnparseableAngle, "Rotate: %q", value)
			}
			if osd.Rotate, err = ParseAngle(degrees); err != nil {
				return nil, err
			}
			haveRotate = true
		case "Orientation confidence":
			if c, err := strconv.ParseFloat(value, 64); err == nil {
				osd.Confidence = c
			}
		case "Script":
			osd.Script = value
		}
	}
	if !haveRotate {
		return nil, errors.Wrap(ErrUnparseableAngle, "no Rotate line in OSD output")
	}
	return osd, nil
}
