package pagenorm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// A Committer persists the final raster over path. It is the only step of the pipeline
// that touches the output file.
type Committer interface {
	Commit(r *Raster, path string) error
}

// InPlaceCommit encodes straight over the destination file.
// If encoding fails halfway, the file is left in whatever state the encoder reached.
type InPlaceCommit struct {
	Encoder Encoder
}

func (c InPlaceCommit) Commit(r *Raster, path string) error {
	return c.Encoder.Encode(r, path)
}

// AtomicCommit encodes to a temporary file in the same directory, and renames it over the
// destination. A failed commit leaves the destination untouched. The replacement keeps the
// permission bits of the file it replaces.
type AtomicCommit struct {
	Encoder Encoder
}

func (c AtomicCommit) Commit(r *Raster, path string) error {
	dir, base := filepath.Split(path)
	// Keep the extension, because the encoder picks the format from it
	tmp := filepath.Join(dir, fmt.Sprintf(".%v.%v.tmp%v", base, uuid.NewString(), filepath.Ext(path)))
	if err := c.Encoder.Encode(r, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if info, err := os.Stat(path); err == nil {
		if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
			os.Remove(tmp)
			return errors.Wrapf(err, "failed to set permissions of %v", tmp)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to replace %v", path)
	}
	return nil
}
