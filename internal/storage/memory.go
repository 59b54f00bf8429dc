package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage keeps objects in process memory. Listing is lexical. Rename
// is atomic under the store mutex. Used by tests and by STORAGE_BACKEND=memory
// for local experiments.
type MemoryStorage struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

// NewMemoryStorage returns an empty store whose URLs look like memory://bucket/key.
func NewMemoryStorage(bucket string) *MemoryStorage {
	if bucket == "" {
		bucket = "local"
	}
	return &MemoryStorage{bucket: bucket, objects: make(map[string][]byte)}
}

// Put seeds an object directly, bypassing the filesystem.
func (m *MemoryStorage) Put(root, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ObjectKey(root, key)] = append([]byte(nil), data...)
}

// Exists reports whether root+key is present.
func (m *MemoryStorage) Exists(root, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[ObjectKey(root, key)]
	return ok
}

// Keys returns every full object name in lexical order.
func (m *MemoryStorage) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// ListUnder returns keys under root/prefix, relative to root, in lexical order.
func (m *MemoryStorage) ListUnder(ctx context.Context, root, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := ObjectKey(root, prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, k := range m.sortedLocked() {
		if strings.HasPrefix(k, want) {
			keys = append(keys, TrimRoot(root, k))
		}
	}
	return keys, nil
}

// ListSubfolders returns the distinct first-level folder names below root/prefix.
func (m *MemoryStorage) ListSubfolders(ctx context.Context, root, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folder := FolderPrefix(root, prefix)
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, k := range m.sortedLocked() {
		if !strings.HasPrefix(k, folder) {
			continue
		}
		rest := strings.TrimPrefix(k, folder)
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		if name := rest[:i]; !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// Upload reads localPath into memory and stores it at root/key, replacing
// any previous object.
func (m *MemoryStorage) Upload(ctx context.Context, root, key, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %q: %w: %w", localPath, ErrUploadFailed, err)
	}
	full := ObjectKey(root, key)
	m.mu.Lock()
	m.objects[full] = data
	m.mu.Unlock()
	return m.publicURL(full), nil
}

// Rename moves root/oldKey to root/newKey. A missing source is ErrNotFound.
func (m *MemoryStorage) Rename(ctx context.Context, root, oldKey, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, dst := ObjectKey(root, oldKey), ObjectKey(root, newKey)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[src]
	if !ok {
		return fmt.Errorf("rename %q: %w", src, ErrNotFound)
	}
	delete(m.objects, src)
	m.objects[dst] = data
	return nil
}

// ResolveURL returns the memory:// URL of root/key if the object exists.
func (m *MemoryStorage) ResolveURL(ctx context.Context, root, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := ObjectKey(root, key)
	m.mu.Lock()
	_, ok := m.objects[full]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("stat %q: %w", full, ErrNotFound)
	}
	return m.publicURL(full), nil
}

// Delete removes root/key. A missing object is ErrNotFound.
func (m *MemoryStorage) Delete(ctx context.Context, root, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := ObjectKey(root, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[full]; !ok {
		return fmt.Errorf("delete %q: %w", full, ErrNotFound)
	}
	delete(m.objects, full)
	return nil
}

// RelativeKey strips the memory://<bucket>/ prefix from rawURL.
func (m *MemoryStorage) RelativeKey(rawURL string) (string, bool) {
	return relativeFromBase("memory://"+m.bucket, rawURL)
}

func (m *MemoryStorage) publicURL(full string) string {
	return "memory://" + m.bucket + "/" + full
}

func (m *MemoryStorage) sortedLocked() []string {
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Backend = (*MemoryStorage)(nil)
