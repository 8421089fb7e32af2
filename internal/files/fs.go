package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FSStore хранит объекты в файловой системе afero.
type FSStore struct {
	fs afero.Fs
}

// NewFSStore хранит объекты в каталоге dir на диске.
func NewFSStore(dir string) (*FSStore, error) {
	if err := afero.NewOsFs().MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return NewFSStoreOn(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewFSStoreOn оборачивает готовую afero.Fs (например, afero.NewMemMapFs в тестах).
func NewFSStoreOn(fsys afero.Fs) *FSStore {
	return &FSStore{fs: fsys}
}

func (s *FSStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", key, err)
	}

	// пишем во временный файл и переименовываем, чтобы читатель не увидел половину
	tmp := path.Join(path.Dir(key), "."+uuid.NewString()+".part")
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, key); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

func (s *FSStore) Move(ctx context.Context, from, to string) error {
	from, err := cleanKey(from)
	if err != nil {
		return err
	}
	to, err = cleanKey(to)
	if err != nil {
		return err
	}
	if _, err := s.fs.Stat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", from, ErrNotFound)
		}
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(to), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", to, err)
	}
	if err := s.fs.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}
	// пустой каталог tmp/<uuid> больше не нужен
	if dir := path.Dir(from); dir != "." {
		if entries, err := afero.ReadDir(s.fs, dir); err == nil && len(entries) == 0 {
			_ = s.fs.Remove(dir)
		}
	}
	return nil
}

func (s *FSStore) Remove(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
