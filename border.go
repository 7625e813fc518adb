package pagenorm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Half-open column range [Start, End)
type Segment struct {
	Start int
	End   int
}

func (s Segment) Width() int {
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("[%v,%v)", s.Start, s.End)
}

// Parameters to DetectBorder
type BorderParams struct {
	Threshold float64 // A column is dark if its mean brightness (0..255) is below this
	MinWidth  int     // Minimum number of adjacent dark columns that make up a border
}

// Create a new BorderParams with defaults
func NewBorderParams() BorderParams {
	return BorderParams{
		Threshold: 50,
		MinWidth:  5,
	}
}

func (p BorderParams) Validate() error {
	if p.MinWidth < 1 {
		return errors.Wrapf(ErrInvalidConfig, "minimum border width must be at least 1, got %v", p.MinWidth)
	}
	if p.Threshold <= 0 || p.Threshold > 256 {
		return errors.Wrapf(ErrInvalidConfig, "darkness threshold must be in (0, 256], got %v", p.Threshold)
	}
	return nil
}

// DarkSegments returns every maximal run of columns whose value is below threshold,
// ordered by start column.
func DarkSegments(profile ColumnProfile, threshold float64) []Segment {
	// Dark indices are produced in ascending order without duplicates, so a gap between
	// consecutive indices is the only thing that ends a run.
	dark := []int{}
	for x, v := range profile {
		if v < threshold {
			dark = append(dark, x)
		}
	}
	if len(dark) == 0 {
		return nil
	}

	segments := []Segment{}
	start := dark[0]
	for i := 1; i < len(dark); i++ {
		if dark[i] != dark[i-1]+1 {
			segments = append(segments, Segment{Start: start, End: dark[i-1] + 1})
			start = dark[i]
		}
	}
	segments = append(segments, Segment{Start: start, End: dark[len(dark)-1] + 1})
	return segments
}

// DetectBorder returns the leftmost dark segment that is at least params.MinWidth wide.
// The second return value is false if there is no such segment.
func DetectBorder(profile ColumnProfile, params BorderParams) (Segment, bool) {
	for _, s := range DarkSegments(profile, params.Threshold) {
		if s.Width() >= params.MinWidth {
			return s, true
		}
	}
	return Segment{}, false
}

// RelocateBorder looks for a thick dark band and, if one is found, rebuilds the raster from
// the columns after the band followed by the columns before it. The band itself is a scanner
// artifact and is discarded, so the output is narrower by the band's width.
// If no band is found, r is returned as-is and the bool is false.
func RelocateBorder(r *Raster, params BorderParams) (*Raster, Segment, bool, error) {
	seg, found := DetectBorder(Profile(r), params)
	if !found {
		return r, Segment{}, false, nil
	}
	if seg.Width() >= r.Width {
		return nil, seg, true, errors.Wrapf(ErrEmptyResult, "band %v covers all %v columns", seg, r.Width)
	}
	after := Segment{Start: seg.End, End: r.Width}
	before := Segment{Start: 0, End: seg.Start}
	return r.SelectColumns(after, before), seg, true, nil
}
