// internal/assets/filesystem.go
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	tempPrefix     = ".tmp-"
	maxNameRetries = 3
)

// FileStore keeps assets as files in a single upload directory.
type FileStore struct {
	dir   string
	log   zerolog.Logger
	namer *Namer
}

// NewFileStore creates the upload directory if needed and returns a store on it.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	o := buildOptions(opts)
	return &FileStore{
		dir:   dir,
		log:   o.logger.With().Str("component", "assets.fs").Logger(),
		namer: o.namer,
	}, nil
}

// Dir returns the upload directory.
func (s *FileStore) Dir() string { return s.dir }

// Store writes data under a freshly generated name. The payload is fully
// written and synced to a temp file before it becomes visible under its final
// name, and the final name is claimed with a hard link so an existing file is
// never overwritten.
func (s *FileStore) Store(ctx context.Context, data []byte, nameHint string) (Ref, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := s.writeTemp(data)
	if err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	defer os.Remove(tmp)

	for attempt := 0; attempt < maxNameRetries; attempt++ {
		ref := s.namer.Next(nameHint)
		err := os.Link(tmp, s.path(ref))
		if err == nil {
			s.log.Debug().Str("asset", ref.String()).Int("bytes", len(data)).Msg("asset stored")
			return ref, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish asset %s: %w", ref, err)
		}
		s.log.Warn().Str("asset", ref.String()).Msg("asset name taken, regenerating")
	}
	return "", fmt.Errorf("publish asset: no free name after %d attempts", maxNameRetries)
}

func (s *FileStore) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(name)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	ok = true
	return name, nil
}

// Delete removes the asset. A missing asset is not an error.
func (s *FileStore) Delete(ctx context.Context, ref Ref) error {
	if !ValidRef(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete asset %s: %w", ref, err)
	}
	return nil
}

// Fetch returns the stored payload.
func (s *FileStore) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if !ValidRef(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", ref, err)
	}
	return data, nil
}

// List returns every published asset. In-progress temp files and files whose
// names this store could not have generated (.gitkeep, README, ...) are skipped.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) || !ValidRef(Ref(e.Name())) {
			continue
		}
		fi, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat asset %s: %w", e.Name(), err)
		}
		infos = append(infos, Info{Ref: Ref(e.Name()), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return infos, nil
}

func (s *FileStore) path(ref Ref) string {
	return filepath.Join(s.dir, string(ref))
}
