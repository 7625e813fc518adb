package pagenorm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Clockwise rotation, in degrees, that makes a page's text upright
type Angle int

const (
	Angle0   Angle = 0
	Angle90  Angle = 90
	Angle180 Angle = 180
	Angle270 Angle = 270
)

// ParseAngle accepts exactly 0, 90, 180 and 270
func ParseAngle(degrees int) (Angle, error) {
	switch Angle(degrees) {
	case Angle0, Angle90, Angle180, Angle270:
		return Angle(degrees), nil
	}
	return 0, errors.Wrapf(ErrUnparseableAngle, "got %v degrees", degrees)
}

// CounterRotation returns the rotation to apply, in degrees counter-clockwise.
//
//	0   -> 0
//	90  -> -90
//	180 -> 180
//	270 -> +90
func (a Angle) CounterRotation() int {
	switch a {
	case Angle90:
		return -90
	case Angle180:
		return 180
	case Angle270:
		return 90
	}
	return 0
}

// An Oracle reports how far a page must be turned clockwise for its text to be upright.
// Implementations may be slow (OCR), and should honor ctx cancellation.
type Oracle interface {
	Orientation(ctx context.Context, r *Raster) (Angle, error)
}

// A Rotator turns a raster by a multiple of 90 degrees (counter-clockwise positive),
// growing the canvas so that nothing is cropped.
type Rotator interface {
	Rotate(r *Raster, degreesCCW int) (*Raster, error)
}

// Corrector asks the Oracle for the page orientation, and undoes it
type Corrector struct {
	Oracle  Oracle
	Rotator Rotator
}

// Correct returns the upright raster and the angle the oracle reported.
// Oracle failures are returned wrapped in ErrOracle; there is no fallback to "already upright".
// Rotation failures are wrapped in ErrRotate.
func (c *Corrector) Correct(ctx context.Context, r *Raster) (*Raster, Angle, error) {
	if c.Oracle == nil {
		return nil, 0, errors.Wrap(ErrOracle, "no orientation oracle configured")
	}
	angle, err := c.Oracle.Orientation(ctx, r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrOracle, err)
	}
	// Guard against oracles that skip ParseAngle
	if _, err := ParseAngle(int(angle)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrOracle, err)
	}
	if angle == Angle0 {
		return r, angle, nil
	}
	rotated, err := c.Rotator.Rotate(r, angle.CounterRotation())
	if err != nil {
		return nil, angle, fmt.Errorf("%w: by %v degrees: %w", ErrRotate, angle.CounterRotation(), err)
	}
	return rotated, angle, nil
}
