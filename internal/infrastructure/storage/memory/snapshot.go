package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"routeledger/internal/infrastructure/storage/codec"
)

// snapshotFile persists the committed dataset to a single file.
type snapshotFile struct {
	path  string
	codec *codec.Codec
}

func newSnapshotFile(path string) (*snapshotFile, error) {
	c, err := codec.New()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.Close()
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &snapshotFile{path: path, codec: c}, nil
}

func (f *snapshotFile) load() (*dataset, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return newDataset(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	d := &dataset{}
	if err := f.codec.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	d.fill()
	return d, nil
}

// save writes to a temp file and renames it over the snapshot, so a crash
// leaves either the previous or the new snapshot on disk.
func (f *snapshotFile) save(d *dataset) error {
	data, err := f.codec.Marshal(d)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *snapshotFile) close() {
	f.codec.Close()
}
