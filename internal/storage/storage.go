// Package storage defines the object storage capability the provisioning
// pipeline depends on. Swap implementations by changing STORAGE_BACKEND: every
// adapter (MinIO, AWS S3, Google Cloud Storage, local filesystem, memory)
// satisfies the same Backend interface.
//
// Objects are addressed by a tier root (e.g. "CLIENT_IMAGES/") plus a key
// relative to that root (e.g. "123/coffee_shop_/img1.jpg"). Pass an empty root
// to address a key relative to the bucket itself.
package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"
)

// ErrNotFound is returned when the addressed object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrUploadFailed is returned when a local file could not be read or the
// backend rejected the write.
var ErrUploadFailed = errors.New("upload failed")

// Backend is the interface for listing, writing and moving stored assets.
type Backend interface {
	// ListUnder returns the keys (relative to root) of every object whose full
	// name starts with root+prefix, in backend-native order.
	ListUnder(ctx context.Context, root, prefix string) ([]string, error)
	// ListSubfolders returns the names of the immediate child folders of root+prefix.
	ListSubfolders(ctx context.Context, root, prefix string) ([]string, error)
	// Upload copies the local file to root+key, makes it publicly readable and
	// returns its public URL.
	Upload(ctx context.Context, root, key, localPath string) (string, error)
	// Rename moves root+oldKey to root+newKey. Backends without an atomic move
	// copy then delete the source.
	Rename(ctx context.Context, root, oldKey, newKey string) error
	// ResolveURL returns the public URL of root+key, or ErrNotFound.
	ResolveURL(ctx context.Context, root, key string) (string, error)
	// Delete removes root+key, or returns ErrNotFound.
	Delete(ctx context.Context, root, key string) error
	// RelativeKey strips the backend's public URL base from rawURL and returns
	// the bucket-relative object key. Inputs that are already keys are returned
	// unchanged with ok=true; URLs served from another origin give ok=false.
	RelativeKey(rawURL string) (key string, ok bool)
}

// ObjectKey joins a tier root and a relative key into a full object name.
func ObjectKey(root, key string) string {
	key = strings.TrimLeft(key, "/")
	root = strings.Trim(root, "/")
	if root == "" {
		return key
	}
	return root + "/" + key
}

// FolderPrefix returns the full object-name prefix for a folder, always ending
// in "/" unless both root and prefix are empty.
func FolderPrefix(root, prefix string) string {
	p := ObjectKey(root, prefix)
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// TrimRoot converts a full object name back to a key relative to root.
func TrimRoot(root, full string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return full
	}
	return strings.TrimPrefix(full, root+"/")
}

// ContentType guesses the MIME type of an image from its extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// childFolder extracts "b" from folderPrefix "a/" and a common prefix "a/b/".
func childFolder(folderPrefix, commonPrefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(commonPrefix, folderPrefix), "/")
}

// relativeFromBase strips base+"/" from rawURL. Values without a scheme are
// treated as keys.
func relativeFromBase(base, rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	base = strings.TrimRight(base, "/")
	if base != "" && strings.HasPrefix(rawURL, base+"/") {
		return strings.TrimPrefix(rawURL, base+"/"), true
	}
	if strings.Contains(rawURL, "://") {
		return "", false
	}
	return strings.TrimLeft(rawURL, "/"), rawURL != ""
}
