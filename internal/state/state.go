// Package state writes the last published reading to a well-known file for
// other processes on the device to inspect.
package state

import (
	"context"
	"os"
	"path/filepath"

	"codeberg.org/mutker/envirod/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// FileWriter overwrites Path with one document per write.
type FileWriter struct {
	Path string
}

func NewFileWriter(path string) *FileWriter {
	return &FileWriter{Path: path}
}

// WriteState replaces the file content with doc followed by a newline. The
// document is written to a temporary file and renamed into place so readers
// never see a partial write.
func (w *FileWriter) WriteState(ctx context.Context, doc []byte) error {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrPersist, err)
	}

	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return errFactory.WithData(errors.ErrPersist, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  dir,
			Error: err.Error(),
		})
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".*")
	if err != nil {
		return errFactory.Wrap(errors.ErrPersist, err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	data := make([]byte, 0, len(doc)+1)
	data = append(data, doc...)
	data = append(data, '\n')

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrPersist, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(errors.ErrPersist, err)
	}

	if err := os.Rename(tmpName, w.Path); err != nil {
		return errFactory.WithData(errors.ErrPersist, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "rename",
			Path:  w.Path,
			Error: err.Error(),
		})
	}
	committed = true

	return nil
}
