package pagenorm

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Config selects which stages of the pipeline run
type Config struct {
	PerformBorderRemoval bool
	PerformRotation      bool
	Border               BorderParams
}

// Create a new Config with both stages enabled and default border parameters
func DefaultConfig() Config {
	return Config{
		PerformBorderRemoval: true,
		PerformRotation:      true,
		Border:               NewBorderParams(),
	}
}

func (c Config) Validate() error {
	if c.PerformBorderRemoval {
		return c.Border.Validate()
	}
	return nil
}

// Pipeline removes a scanner border from a page image, turns it upright, and writes it
// back over the original file.
type Pipeline struct {
	Codec     Codec
	Oracle    Oracle
	Committer Committer
	Log       logrus.FieldLogger
}

// New creates a pipeline that overwrites files in place and logs to the logrus standard logger
func New(codec Codec, oracle Oracle) *Pipeline {
	return &Pipeline{
		Codec:     codec,
		Oracle:    oracle,
		Committer: InPlaceCommit{Encoder: codec},
		Log:       logrus.StandardLogger(),
	}
}

// Result describes what a successful Run did
type Result struct {
	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int
	Border       *Segment // Removed band, or nil
	Angle        *Angle   // Orientation reported by the oracle, or nil if rotation was skipped
	Stages       []Stage  // Stages that ran, in order
}

// Run processes the file at inputPath and overwrites it with the result.
// If any stage fails, nothing is written.
func (p *Pipeline) Run(ctx context.Context, inputPath string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("path", inputPath)

	raster, err := p.Codec.Decode(inputPath)
	if err != nil {
		return nil, newStageError(StageDecode, inputPath, err)
	}
	res := &Result{
		InputWidth:  raster.Width,
		InputHeight: raster.Height,
		Stages:      []Stage{StageDecode},
	}
	log.WithField("size", raster.String()).Debug("Decoded image")

	if cfg.PerformBorderRemoval {
		log.Info("Removing scanner border")
		moved, seg, found, err := RelocateBorder(raster, cfg.Border)
		if err != nil {
			return nil, newStageError(StageBorder, inputPath, err)
		}
		if found {
			log.WithFields(logrus.Fields{
				"start": seg.Start,
				"end":   seg.End,
				"width": seg.Width(),
			}).Info("Detected border, removed columns")
			res.Border = &seg
		} else {
			log.Info("No border detected")
		}
		raster = moved
		res.Stages = append(res.Stages, StageBorder)
	}

	if cfg.PerformRotation {
		log.Info("Detecting text orientation")
		corrector := Corrector{Oracle: p.Oracle, Rotator: p.Codec}
		upright, angle, err := corrector.Correct(ctx, raster)
		if err != nil {
			return nil, newStageError(StageRotation, inputPath, err)
		}
		log.WithFields(logrus.Fields{
			"angle":    int(angle),
			"rotation": angle.CounterRotation(),
		}).Info("Detected orientation")
		raster = upright
		res.Angle = &angle
		res.Stages = append(res.Stages, StageRotation)
	}

	committer := p.Committer
	if committer == nil {
		committer = InPlaceCommit{Encoder: p.Codec}
	}
	if err := committer.Commit(raster, inputPath); err != nil {
		return nil, newStageError(StagePersist, inputPath, err)
	}
	res.OutputWidth = raster.Width
	res.OutputHeight = raster.Height
	res.Stages = append(res.Stages, StagePersist)
	log.WithField("size", raster.String()).Info("Overwrote source file")
	return res, nil
}
