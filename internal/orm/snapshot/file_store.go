package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExtension = ".yaml"

// FileStore keeps one YAML file per snapshot in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// the first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory holding the snapshots
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+fileExtension)
}

// Save writes s through a temporary file so readers never see a partial snapshot
func (f *FileStore) Save(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encoding snapshot '%s': %w", s.Name, err)
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+s.Name+"-*")
	if err != nil {
		return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
	}
	if err := os.Rename(tmp.Name(), f.path(s.Name)); err != nil {
		return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
	}
	return nil
}

// Load reads the named snapshot
func (f *FileStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
		}
		return nil, fmt.Errorf("loading snapshot '%s': %w", name, err)
	}
	return Decode(data)
}

// Delete removes the named snapshot; deleting a missing snapshot is not an error
func (f *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting snapshot '%s': %w", name, err)
	}
	return nil
}

// List returns the stored snapshot names in order
func (f *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, fileExtension))
	}
	sort.Strings(names)
	return names, nil
}
