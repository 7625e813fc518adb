package pagenorm

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// In-memory codec, keyed by path
type memCodec struct {
	files   map[string]*Raster
	encodes int
}

func newMemCodec() *memCodec {
	return &memCodec{files: map[string]*Raster{}}
}

func (m *memCodec) Decode(path string) (*Raster, error) {
	r, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return r.Clone(), nil
}

func (m *memCodec) Encode(r *Raster, path string) error {
	m.encodes++
	m.files[path] = r.Clone()
	return nil
}

func (m *memCodec) Rotate(r *Raster, degreesCCW int) (*Raster, error) {
	return r.RotateQuarter(degreesCCW)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestPipeline(codec Codec, oracle Oracle) *Pipeline {
	p := New(codec, oracle)
	p.Log = quietLogger()
	return p
}

func TestPipelineRemovesBorder(t *testing.T) {
	codec := newMemCodec()
	src := makeBandedPage(40, 12, 3, 0, 6)
	codec.files["page.png"] = src

	cfg := DefaultConfig()
	cfg.PerformRotation = false
	res, err := newTestPipeline(codec, nil).Run(context.Background(), "page.png", cfg)
	require.NoError(t, err)

	out := codec.files["page.png"]
	require.Equal(t, 34, out.Width)
	require.Equal(t, 12, out.Height)
	require.Equal(t, 3, out.Channels)
	for x := 0; x < 6; x++ {
		require.Equal(t, src.Column(x+6), out.Column(x))
	}
	_, found := DetectBorder(Profile(out), NewBorderParams())
	require.False(t, found)

	require.Equal(t, &Segment{0, 6}, res.Border)
	require.Nil(t, res.Angle)
	require.Equal(t, []Stage{StageDecode, StageBorder, StagePersist}, res.Stages)
	require.Equal(t, 40, res.InputWidth)
	require.Equal(t, 34, res.OutputWidth)
}

func TestPipelineBothStages(t *testing.T) {
	codec := newMemCodec()
	// Marked upright page, scanned sideways
	upright := NewRaster(10, 20, 1)
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			upright.Set(x, y, 0, 120)
		}
	}
	upright.Set(0, 0, 0, 255)
	codec.files["scan.png"] = upright.RotateCCW90()

	oracle := &markerOracle{}
	res, err := newTestPipeline(codec, oracle).Run(context.Background(), "scan.png", DefaultConfig())
	require.NoError(t, err)
	require.Nil(t, res.Border)
	require.Equal(t, Angle90, *res.Angle)
	require.Equal(t, 1, oracle.calls)
	require.True(t, upright.Equal(codec.files["scan.png"]))
	require.Equal(t, []Stage{StageDecode, StageBorder, StageRotation, StagePersist}, res.Stages)
}

func TestPipelineNoStages(t *testing.T) {
	codec := newMemCodec()
	src := makeBandedPage(20, 5, 1, 0, 8)
	codec.files["a.png"] = src
	cfg := Config{}
	res, err := newTestPipeline(codec, nil).Run(context.Background(), "a.png", cfg)
	require.NoError(t, err)
	require.True(t, src.Equal(codec.files["a.png"]))
	require.Equal(t, 1, codec.encodes)
	require.Equal(t, []Stage{StageDecode, StagePersist}, res.Stages)
}

func TestPipelineOracleFailureWritesNothing(t *testing.T) {
	codec := newMemCodec()
	src := makeBandedPage(40, 12, 1, 0, 6)
	codec.files["page.png"] = src

	oracle := fixedOracle{err: errors.New("osd model missing")}
	_, err := newTestPipeline(codec, oracle).Run(context.Background(), "page.png", DefaultConfig())
	require.ErrorIs(t, err, ErrOracle)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageRotation, stageErr.Stage)
	require.Equal(t, "page.png", stageErr.Path)

	// Border removal already happened in memory, but is not persisted
	require.Equal(t, 0, codec.encodes)
	require.True(t, src.Equal(codec.files["page.png"]))
}

type noRotateCodec struct {
	*memCodec
}

func (noRotateCodec) Rotate(r *Raster, degreesCCW int) (*Raster, error) {
	return nil, errors.New("cannot allocate canvas")
}

func TestPipelineRotateFailure(t *testing.T) {
	mem := newMemCodec()
	src := makeRamp(8, 6, 1)
	mem.files["page.png"] = src
	cfg := DefaultConfig()
	cfg.PerformBorderRemoval = false
	_, err := newTestPipeline(noRotateCodec{mem}, fixedOracle{angle: Angle90}).Run(context.Background(), "page.png", cfg)
	require.ErrorIs(t, err, ErrRotate)
	require.NotErrorIs(t, err, ErrOracle)
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageRotation, stageErr.Stage)
	require.Equal(t, 0, mem.encodes)
	require.True(t, src.Equal(mem.files["page.png"]))
}

func TestPipelineDecodeFailure(t *testing.T) {
	codec := newMemCodec()
	_, err := newTestPipeline(codec, &markerOracle{}).Run(context.Background(), "missing.png", DefaultConfig())
	require.ErrorIs(t, err, ErrDecode)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, 0, codec.encodes)
}

func TestPipelineBorderFailure(t *testing.T) {
	codec := newMemCodec()
	codec.files["black.png"] = NewRaster(10, 10, 1)
	_, err := newTestPipeline(codec, &markerOracle{}).Run(context.Background(), "black.png", DefaultConfig())
	require.ErrorIs(t, err, ErrBorder)
	require.ErrorIs(t, err, ErrEmptyResult)
	require.Equal(t, 0, codec.encodes)
}

type failingCommitter struct{}

func (failingCommitter) Commit(r *Raster, path string) error {
	return errors.New("read-only file system")
}

func TestPipelineEncodeFailure(t *testing.T) {
	codec := newMemCodec()
	codec.files["page.png"] = makeRamp(8, 8, 1)
	p := newTestPipeline(codec, nil)
	p.Committer = failingCommitter{}
	cfg := DefaultConfig()
	cfg.PerformRotation = false
	_, err := p.Run(context.Background(), "page.png", cfg)
	require.ErrorIs(t, err, ErrEncode)
	require.Contains(t, err.Error(), "read-only")
}

func TestPipelineInvalidConfig(t *testing.T) {
	codec := newMemCodec()
	codec.files["page.png"] = makeRamp(8, 8, 1)
	cfg := DefaultConfig()
	cfg.Border.MinWidth = 0
	_, err := newTestPipeline(codec, nil).Run(context.Background(), "page.png", cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	// Border parameters don't matter if the border stage is off
	cfg.PerformBorderRemoval = false
	cfg.PerformRotation = false
	_, err = newTestPipeline(codec, nil).Run(context.Background(), "page.png", cfg)
	require.NoError(t, err)
}

func TestPipelineFiles(t *testing.T) {
	dir := t.TempDir()
	codec := NewFileCodec()
	src := makeBandedPage(50, 30, 3, 0, 6)
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, codec.Encode(src, path))

	p := newTestPipeline(codec, fixedOracle{angle: Angle180})
	p.Committer = AtomicCommit{Encoder: codec}
	res, err := p.Run(context.Background(), path, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 44, res.OutputWidth)

	out, err := codec.Decode(path)
	require.NoError(t, err)
	moved, _, _, err := RelocateBorder(src, NewBorderParams())
	require.NoError(t, err)
	require.True(t, moved.Rotate180().Equal(out))
	require.Equal(t, []string{"scan.png"}, listDir(t, dir))
}
