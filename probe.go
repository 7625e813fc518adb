package pagenorm

import (
	"bytes"
	"context"
	"image/png"
	"slices"
	"unicode"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
)

// ProbeOracle finds the page orientation by running libtesseract OCR on all four quarter turns
// of the page, and picking the one that reads best. It is several times slower than
// TesseractOSD, but does not need the tesseract binary or the osd model.
type ProbeOracle struct {
	Language       string // Tesseract language, eg "eng"
	TessdataPrefix string // Empty to use TESSDATA_PREFIX or the library default
	MaxResolution  int    // If the page exceeds this size, shrink it before OCR. Zero to disable.
}

// Create a new ProbeOracle with defaults
func NewProbeOracle() *ProbeOracle {
	return &ProbeOracle{
		Language:      "eng",
		MaxResolution: 1000,
	}
}

var probeAngles = []Angle{Angle0, Angle90, Angle180, Angle270}

// Scores how well a raster reads when taken as upright. Higher is better, zero is unreadable.
type pageScorer func(r *Raster) (float64, error)

func (p *ProbeOracle) Orientation(ctx context.Context, r *Raster) (Angle, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if p.Language != "" {
		if err := client.SetLanguage(p.Language); err != nil {
			return 0, err
		}
	}
	if p.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(p.TessdataPrefix); err != nil {
			return 0, err
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return 0, err
	}
	return bestOrientation(ctx, r.Shrink(p.MaxResolution), func(upright *Raster) (float64, error) {
		return probeScore(client, upright)
	})
}

// bestOrientation applies each candidate correction to r, and returns the angle whose
// corrected raster scores highest. Ties go to the earlier candidate.
func bestOrientation(ctx context.Context, r *Raster, score pageScorer) (Angle, error) {
	bestScore := 0.0
	bestAngle := Angle0
	for _, angle := range probeAngles {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		upright, err := r.RotateQuarter(angle.CounterRotation())
		if err != nil {
			return 0, err
		}
		s, err := score(upright)
		if err != nil {
			return 0, errors.Wrapf(err, "OCR at %v degrees", angle)
		}
		if s > bestScore {
			bestScore = s
			bestAngle = angle
		}
	}
	if bestScore == 0 {
		return 0, errors.New("no readable text found at any orientation")
	}
	return bestAngle, nil
}

// Sum of word confidences, counting only words with at least two letters.
// Upside-down or sideways text yields few words, with low confidence.
func probeScore(client *gosseract.Client, r *Raster) (float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.ToImage()); err != nil {
		return 0, err
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return 0, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return 0, err
	}
	score := 0.0
	for _, box := range boxes {
		if countLetters(box.Word) >= 2 && box.Confidence > 0 {
			score += box.Confidence
		}
	}
	return score, nil
}

func countLetters(word string) int {
	n := 0
	for _, c := range word {
		if unicode.IsLetter(c) {
			n++
		}
	}
	return n
}

// TesseractInfo describes the local libtesseract installation
type TesseractInfo struct {
	Version    string
	Languages  []string
	HasOSD     bool // The osd model needed by TesseractOSD is installed
	HasEnglish bool
}

// CheckTesseract reports which tesseract models are available to the oracles
func CheckTesseract() (*TesseractInfo, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tesseract languages")
	}
	return &TesseractInfo{
		Version:    gosseract.Version(),
		Languages:  langs,
		HasOSD:     slices.Contains(langs, "osd"),
		HasEnglish: slices.Contains(langs, "eng"),
	}, nil
}
