package pagenorm

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when the input file is missing, unreadable, or not a raster.
	ErrDecode = errors.New("pagenorm: decode failed")

	// ErrOracle is returned when the orientation oracle fails or gives an unusable answer.
	ErrOracle = errors.New("pagenorm: orientation detection failed")

	// ErrRotate is returned when the page cannot be turned by the angle the oracle reported.
	ErrRotate = errors.New("pagenorm: rotation failed")

	// ErrEncode is returned when the result cannot be written back.
	ErrEncode = errors.New("pagenorm: encode failed")

	// ErrBorder is returned when border removal cannot produce a valid raster.
	ErrBorder = errors.New("pagenorm: border removal failed")

	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("pagenorm: invalid configuration")

	// ErrUnsupportedFormat is returned for file extensions the codec does not handle.
	ErrUnsupportedFormat = errors.New("pagenorm: unsupported image format")

	// ErrUnparseableAngle is returned when an orientation is not one of 0, 90, 180, 270.
	ErrUnparseableAngle = errors.New("pagenorm: unparseable orientation angle")

	// ErrEmptyResult is returned when removing a band would leave no columns.
	ErrEmptyResult = errors.New("pagenorm: border spans the whole image")
)

// Stage identifies a step of the pipeline
type Stage string

const (
	StageDecode   Stage = "decode"
	StageBorder   Stage = "border"
	StageRotation Stage = "rotation"
	StagePersist  Stage = "persist"
)

// The rotation stage has two sentinels, so its errors carry ErrOracle or ErrRotate themselves
var stageSentinel = map[Stage]error{
	StageDecode:  ErrDecode,
	StageBorder:  ErrBorder,
	StagePersist: ErrEncode,
}

// StageError records which pipeline stage failed, for which file
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDecode) etc. match on the failing stage
func (e *StageError) Is(target error) bool {
	return stageSentinel[e.Stage] == target
}

func newStageError(stage Stage, path string, err error) *StageError {
	return &StageError{Stage: stage, Path: path, Err: err}
}
