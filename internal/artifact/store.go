package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/sync/errgroup"

	"github.com/starford/linkshot/internal/apperr"
	"github.com/starford/linkshot/internal/cachekey"
	"github.com/starford/linkshot/internal/models"
)

// File name suffixes of the two artifacts.
const (
	ImageSuffix    = ".thumbnail.jpg"
	MetadataSuffix = ".metadata.json"
)

// DefaultResourceBase is the URL prefix ResourcePath builds on.
const DefaultResourceBase = "/api/previews"

// Store reads and writes artifact pairs.
type Store struct {
	fs           billy.Filesystem
	dir          string
	resourceBase string
}

// Option configures a Store.
type Option func(*Store)

// WithResourceBase sets the URL prefix returned by ResourcePath.
func WithResourceBase(base string) Option {
	return func(s *Store) {
		if base != "" {
			s.resourceBase = strings.TrimRight(base, "/")
		}
	}
}

// New creates a Store keeping artifacts in dir on fs.
func New(fs billy.Filesystem, dir string, opts ...Option) *Store {
	s := &Store{fs: fs, dir: dir, resourceBase: DefaultResourceBase}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a Store on the local disk at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve dir: %w", err)
	}
	return New(osfs.New(filepath.Dir(abs)), filepath.Base(abs), opts...), nil
}

// Dir returns the cache directory relative to the store filesystem root.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureRoot creates the cache directory if it is missing.
func (s *Store) EnsureRoot(_ context.Context) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: artifact: mkdir %s: %w", apperr.ErrIO, s.dir, err)
	}
	return nil
}

// Check reports an error unless the cache directory exists as a directory.
func (s *Store) Check(_ context.Context) error {
	info, err := s.fs.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: artifact: stat %s: %w", apperr.ErrIO, s.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: artifact: %s is not a directory", apperr.ErrIO, s.dir)
	}
	return nil
}

func (s *Store) imagePath(key string) string    { return s.fs.Join(s.dir, key+ImageSuffix) }
func (s *Store) metadataPath(key string) string { return s.fs.Join(s.dir, key+MetadataSuffix) }

func validate(key string) error {
	if !cachekey.IsSafe(key) {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidKey, key)
	}
	return nil
}

// Exists checks both artifacts for key concurrently.
func (s *Store) Exists(ctx context.Context, key string) (imageExists, metadataExists bool, err error) {
	if err := validate(key); err != nil {
		return false, false, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var statErr error
		imageExists, statErr = s.exists(gctx, s.imagePath(key))
		return statErr
	})
	g.Go(func() error {
		var statErr error
		metadataExists, statErr = s.exists(gctx, s.metadataPath(key))
		return statErr
	})
	if err := g.Wait(); err != nil {
		return false, false, err
	}
	return imageExists, metadataExists, nil
}

func (s *Store) exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := s.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: artifact: stat %s: %w", apperr.ErrIO, path, err)
	}
}

// metadataRecord mirrors models.Metadata with a pointer title so a record
// without one is rejected.
type metadataRecord struct {
	Title      *string         `json:"title"`
	URL        string          `json:"url"`
	CapturedAt json.RawMessage `json:"captured_at"`
}

// ReadMetadata loads the metadata record for key.
func (s *Store) ReadMetadata(_ context.Context, key string) (*models.Metadata, error) {
	if err := validate(key); err != nil {
		return nil, err
	}
	data, err := s.read(s.metadataPath(key))
	if err != nil {
		return nil, err
	}
	var rec metadataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: artifact: metadata %s: %w", apperr.ErrCorruptData, key, err)
	}
	if rec.Title == nil {
		return nil, fmt.Errorf("%w: artifact: metadata %s: missing title", apperr.ErrCorruptData, key)
	}
	var meta models.Metadata
	meta.Title = *rec.Title
	meta.URL = rec.URL
	if len(rec.CapturedAt) > 0 && !bytes.Equal(rec.CapturedAt, []byte("null")) {
		// A bad timestamp does not invalidate the title.
		_ = json.Unmarshal(rec.CapturedAt, &meta.CapturedAt)
	}
	return &meta, nil
}

// ReadImage returns the stored JPEG bytes for key.
func (s *Store) ReadImage(_ context.Context, key string) ([]byte, error) {
	if err := validate(key); err != nil {
		return nil, err
	}
	return s.read(s.imagePath(key))
}

func (s *Store) read(path string) ([]byte, error) {
	data, err := util.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact: %s", apperr.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: artifact: read %s: %w", apperr.ErrIO, path, err)
	}
	return data, nil
}

// WriteMetadata overwrites the metadata record for key.
func (s *Store) WriteMetadata(_ context.Context, key string, meta models.Metadata) error {
	if err := validate(key); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("artifact: encode metadata: %w", err)
	}
	return s.write(s.metadataPath(key), data)
}

// WriteImage overwrites the thumbnail for key.
func (s *Store) WriteImage(_ context.Context, key string, jpeg []byte) error {
	if err := validate(key); err != nil {
		return err
	}
	return s.write(s.imagePath(key), jpeg)
}

// write replaces path atomically: temp file → close → rename.
func (s *Store) write(path string, content []byte) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: artifact: mkdir: %w", apperr.ErrIO, err)
	}
	tmp, err := s.fs.TempFile(s.dir, ".linkshot-tmp-")
	if err != nil {
		return fmt.Errorf("%w: artifact: create temp: %w", apperr.ErrIO, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("%w: artifact: write temp: %w", apperr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: artifact: close temp: %w", apperr.ErrIO, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: artifact: rename: %w", apperr.ErrIO, err)
	}
	success = true
	return nil
}

// DeleteArtifacts removes both files for key. Missing files are not an error.
func (s *Store) DeleteArtifacts(_ context.Context, key string) error {
	if err := validate(key); err != nil {
		return err
	}
	for _, p := range []string{s.imagePath(key), s.metadataPath(key)} {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: artifact: remove %s: %w", apperr.ErrIO, p, err)
		}
	}
	return nil
}

// Keys lists every key that has a thumbnail, sorted. Metadata files are not
// enumerated; a lone metadata file is not a known key. Stems that are not
// valid keys are left out, since no key operation can address them.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: artifact: list %s: %w", apperr.ErrIO, s.dir, err)
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ImageSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, ImageSuffix)
		if !cachekey.IsSafe(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ResourcePath returns the locator a host displays the thumbnail from.
func (s *Store) ResourcePath(key string) string {
	return s.resourceBase + "/" + key + "/thumbnail"
}
