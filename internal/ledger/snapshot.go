package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// XLSXContentType is the MIME type of a saved ledger.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SnapshotStore loads and saves the whole ledger workbook. The snapshot is the unit
// of consistency: Save always replaces the previous workbook entirely.
type SnapshotStore interface {
	// Load returns the current workbook bytes or ErrSnapshotNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the workbook and returns where it was written.
	Save(ctx context.Context, data []byte) (string, error)
}

// FileStore keeps the ledger in a local directory.
type FileStore struct {
	path string
}

func NewFileStore(dir, name string) (*FileStore, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, name)}, nil
}

func (s *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return data, nil
}

// Save writes to a temporary file in the same directory and renames it over the ledger,
// so a crash never leaves a half-written workbook behind.
func (s *FileStore) Save(_ context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.xlsx")
	if err != nil {
		return "", fmt.Errorf("create temp ledger: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return "", fmt.Errorf("replace ledger: %w", err)
	}
	return s.path, nil
}
