// Package artifact keeps uploaded and produced documents on the local
// filesystem, one file per submission, named from the submission id.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned when a requested artifact is absent.
var ErrNotExist = errors.New("artifact does not exist")

// SafeJoin maps an arbitrary client-supplied name to a path inside base.
// Separators are replaced so the result cannot climb out of base. It does not
// make names unique.
func SafeJoin(base, name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return filepath.Join(base, name)
}

// UploadName is the artifact name of a submission's original document.
func UploadName(id string) string {
	return id + ".upload.pdf"
}

// OutputName is the artifact name of a submission's redacted document.
func OutputName(id string) string {
	return id + ".sanitized.pdf"
}

// FileStore writes raw uploads and processed outputs into two directories.
type FileStore struct {
	uploadsDir string
	outputsDir string
}

// NewFileStore creates both directories if needed.
func NewFileStore(uploadsDir, outputsDir string) (*FileStore, error) {
	dirs := []string{uploadsDir, outputsDir}
	for i, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		dirs[i] = abs
	}
	return &FileStore{uploadsDir: dirs[0], outputsDir: dirs[1]}, nil
}

// UploadRaw stores an uploaded document under name.
func (s *FileStore) UploadRaw(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := writeAtomic(SafeJoin(s.uploadsDir, name), r)
	if err != nil {
		return fmt.Errorf("store upload: %w", err)
	}
	return nil
}

// DownloadRaw returns the bytes of a previously stored upload.
func (s *FileStore) DownloadRaw(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(SafeJoin(s.uploadsDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read upload %s: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", name, err)
	}
	return data, nil
}

// DeleteRaw removes a stored upload if present.
func (s *FileStore) DeleteRaw(ctx context.Context, name string) error {
	err := os.Remove(SafeJoin(s.uploadsDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", name, err)
	}
	return nil
}

// UploadProcessed stores a produced document and returns its location, which
// is the absolute path of the file.
func (s *FileStore) UploadProcessed(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	path, err := writeAtomic(SafeJoin(s.outputsDir, name), r)
	if err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	return path, nil
}

// OpenProcessed opens a location previously returned by UploadProcessed.
func (s *FileStore) OpenProcessed(ctx context.Context, location string) (io.ReadCloser, error) {
	clean := filepath.Clean(location)
	if filepath.Dir(clean) != s.outputsDir {
		return nil, fmt.Errorf("open output %s: outside outputs directory: %w", location, ErrNotExist)
	}
	f, err := os.Open(clean)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open output %s: %w", location, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", location, err)
	}
	return f, nil
}

// writeAtomic copies r into a temp file beside path and renames it into place
// so readers never observe a partially written artifact.
func writeAtomic(path string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile is the file-path flavour of writeAtomic used by tools that run the
// engine outside of a store.
func WriteFile(path string, data []byte) error {
	_, err := writeAtomic(path, bytes.NewReader(data))
	return err
}
