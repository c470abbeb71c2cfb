package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gerrors "github.com/go-faster/errors"
)

// FileStore keeps the checkpoint as plain text in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (string, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if gerrors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	id := strings.TrimSpace(string(b))
	return id, id != "", nil
}

// Save replaces the checkpoint file through a temp file and rename, so a crash
// leaves either the old or the new id on disk, never a torn write.
func (s *FileStore) Save(_ context.Context, id string) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return gerrors.Wrap(err, "create temp checkpoint")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(id); err != nil {
		_ = tmp.Close()
		cleanup()
		return gerrors.Wrap(err, "write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return gerrors.Wrap(err, "sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return gerrors.Wrap(err, "close checkpoint")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return gerrors.Wrap(err, "rename checkpoint")
	}
	return nil
}

// Probe fails when the checkpoint location cannot be written or read.
// It creates the parent directory when missing and never alters an existing
// checkpoint.
func (s *FileStore) Probe(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gerrors.Wrapf(err, "mkdir %s", dir)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return gerrors.Wrapf(err, "checkpoint directory %s is not writable", dir)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	if _, _, err := s.Load(ctx); err != nil {
		return gerrors.Wrapf(err, "checkpoint %s is not readable", s.path)
	}
	return nil
}
