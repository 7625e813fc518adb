package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmharper/pagenorm"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

type options struct {
	Input         string
	Config        pagenorm.Config
	Oracle        string
	Tesseract     string
	Tessdata      string
	OracleTimeout time.Duration
	Atomic        bool
	JPEGQuality   int
	Verbose       bool
	Check         bool
}

func newCommand(run func(ctx context.Context, opt *options) error) *cli.Command {
	defaults := pagenorm.NewBorderParams()
	return &cli.Command{
		Name:      "pagenorm",
		Usage:     "Remove the scanner border from a page image and turn it upright. The file is overwritten.",
		ArgsUsage: "input_path",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-move",
				Usage: "Skip scanner border removal",
			},
			&cli.BoolFlag{
				Name:  "no-rotate",
				Usage: "Skip orientation detection and rotation",
			},
			&cli.FloatFlag{
				Name:  "threshold",
				Usage: "Columns with mean brightness (0..255) below this are dark",
				Value: defaults.Threshold,
			},
			&cli.IntFlag{
				Name:  "min-width",
				Usage: "Minimum number of adjacent dark columns that form a border",
				Value: defaults.MinWidth,
			},
			&cli.StringFlag{
				Name:    "oracle",
				Usage:   "Orientation detector: osd (tesseract binary) or probe (libtesseract OCR)",
				Value:   "osd",
				Sources: cli.EnvVars("PAGENORM_ORACLE"),
			},
			&cli.StringFlag{
				Name:    "tesseract",
				Usage:   "Path to the tesseract executable",
				Value:   "tesseract",
				Sources: cli.EnvVars("PAGENORM_TESSERACT"),
			},
			&cli.StringFlag{
				Name:    "tessdata",
				Usage:   "Tesseract model directory",
				Sources: cli.EnvVars("TESSDATA_PREFIX"),
			},
			&cli.DurationFlag{
				Name:    "oracle-timeout",
				Usage:   "Give up on orientation detection after this long (0 for no limit)",
				Sources: cli.EnvVars("PAGENORM_ORACLE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:  "atomic",
				Usage: "Write to a temporary file and rename it over the input",
			},
			&cli.IntFlag{
				Name:  "jpeg-quality",
				Usage: "JPEG quality when the input is a JPEG",
				Value: 95,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Debug logging",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Print the installed tesseract version and models, then exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opt := &options{
				Input: cmd.Args().First(),
				Config: pagenorm.Config{
					PerformBorderRemoval: !cmd.Bool("no-move"),
					PerformRotation:      !cmd.Bool("no-rotate"),
					Border: pagenorm.BorderParams{
						Threshold: cmd.Float("threshold"),
						MinWidth:  cmd.Int("min-width"),
					},
				},
				Oracle:        cmd.String("oracle"),
				Tesseract:     cmd.String("tesseract"),
				Tessdata:      cmd.String("tessdata"),
				OracleTimeout: cmd.Duration("oracle-timeout"),
				Atomic:        cmd.Bool("atomic"),
				JPEGQuality:   cmd.Int("jpeg-quality"),
				Verbose:       cmd.Bool("verbose"),
				Check:         cmd.Bool("check"),
			}
			if !opt.Check && (cmd.NArg() != 1 || opt.Input == "") {
				return errors.New("expected exactly one input_path argument")
			}
			return run(ctx, opt)
		},
	}
}

func newOracle(opt *options) (pagenorm.Oracle, error) {
	switch strings.ToLower(opt.Oracle) {
	case "osd":
		osd := pagenorm.NewTesseractOSD()
		osd.Path = opt.Tesseract
		osd.TessdataDir = opt.Tessdata
		osd.Timeout = opt.OracleTimeout
		return osd, nil
	case "probe":
		probe := pagenorm.NewProbeOracle()
		probe.TessdataPrefix = opt.Tessdata
		return &timeoutOracle{Oracle: probe, Timeout: opt.OracleTimeout}, nil
	}
	return nil, errors.Wrapf(pagenorm.ErrInvalidConfig, "unknown oracle %q", opt.Oracle)
}

// Bounds an oracle that does not have its own timeout
type timeoutOracle struct {
	pagenorm.Oracle
	Timeout time.Duration
}

func (t *timeoutOracle) Orientation(ctx context.Context, r *pagenorm.Raster) (pagenorm.Angle, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Oracle.Orientation(ctx, r)
}

func newPipeline(opt *options) (*pagenorm.Pipeline, error) {
	codec := pagenorm.NewFileCodec()
	codec.JPEGQuality = opt.JPEGQuality
	var oracle pagenorm.Oracle
	if opt.Config.PerformRotation {
		var err error
		if oracle, err = newOracle(opt); err != nil {
			return nil, err
		}
	}
	p := pagenorm.New(codec, oracle)
	if opt.Atomic {
		p.Committer = pagenorm.AtomicCommit{Encoder: codec}
	}
	return p, nil
}

func check() error {
	info, err := pagenorm.CheckTesseract()
	if err != nil {
		return err
	}
	fmt.Printf("tesseract %v\n", info.Version)
	fmt.Printf("languages: %v\n", strings.Join(info.Languages, " "))
	fmt.Printf("osd model: %v\n", info.HasOSD)
	return nil
}

func run(ctx context.Context, opt *options) error {
	if opt.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if opt.Check {
		return check()
	}
	p, err := newPipeline(opt)
	if err != nil {
		return err
	}
	res, err := p.Run(ctx, opt.Input, opt.Config)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"input":  fmt.Sprintf("%vx%v", res.InputWidth, res.InputHeight),
		"output": fmt.Sprintf("%vx%v", res.OutputWidth, res.OutputHeight),
	}).Infof("Processed image overwrote %v", opt.Input)
	return nil
}

func main() {
	// A missing .env is normal
	_ = godotenv.Load()

	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if err := newCommand(run).Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Error("pagenorm failed")
		os.Exit(1)
	}
}
