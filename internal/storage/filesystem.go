package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore persists assets onto the local filesystem. It is intended for
// development environments where an object storage service is not available;
// a static file server is expected to expose basePath under publicBase.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	if publicBase == "" {
		publicBase = "/static"
	}
	return &FileStore{basePath: basePath, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

// ListUnder walks the tier directory and returns keys that start with prefix,
// in lexical order.
func (s *FileStore) ListUnder(ctx context.Context, root, prefix string) ([]string, error) {
	want := ObjectKey(root, prefix)
	var keys []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, want) {
			keys = append(keys, TrimRoot(root, rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk %q: %w", want, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListSubfolders reads one directory level.
func (s *FileStore) ListSubfolders(ctx context.Context, root, prefix string) ([]string, error) {
	dir, err := s.path(FolderPrefix(root, prefix))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Upload copies the local file into place.
func (s *FileStore) Upload(ctx context.Context, root, key, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := ObjectKey(root, key)
	dst, err := s.path(full)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("storage: copy %q: %w: %w", full, ErrUploadFailed, err)
	}
	return s.publicURL(full), nil
}

// Rename is atomic on a single filesystem.
func (s *FileStore) Rename(ctx context.Context, root, oldKey, newKey string) error {
	src, err := s.path(ObjectKey(root, oldKey))
	if err != nil {
		return err
	}
	dst, err := s.path(ObjectKey(root, newKey))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: rename %q: %w", ObjectKey(root, oldKey), ErrNotFound)
		}
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// ResolveURL stats the file.
func (s *FileStore) ResolveURL(ctx context.Context, root, key string) (string, error) {
	full := ObjectKey(root, key)
	p, err := s.path(full)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: stat %q: %w", full, ErrNotFound)
		}
		return "", fmt.Errorf("storage: stat: %w", err)
	}
	return s.publicURL(full), nil
}

// Delete removes the file.
func (s *FileStore) Delete(ctx context.Context, root, key string) error {
	full := ObjectKey(root, key)
	p, err := s.path(full)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %q: %w", full, ErrNotFound)
		}
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

// RelativeKey strips the public base from a URL produced by this store.
func (s *FileStore) RelativeKey(rawURL string) (string, bool) {
	return relativeFromBase(s.publicBase, rawURL)
}

func (s *FileStore) publicURL(full string) string {
	return s.publicBase + "/" + full
}

func (s *FileStore) path(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var _ Backend = (*FileStore)(nil)
