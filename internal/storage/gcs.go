package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// gcsBucket abstracts a GCS bucket handle for testability.
type gcsBucket interface {
	Objects(ctx context.Context, q *gcs.Query) gcsIterator
	Object(name string) gcsObject
}

// gcsIterator abstracts a GCS object iterator.
type gcsIterator interface {
	Next() (*gcs.ObjectAttrs, error)
}

// gcsObject abstracts a GCS object handle.
type gcsObject interface {
	NewWriter(ctx context.Context, contentType string) io.WriteCloser
	CopyFrom(ctx context.Context, src gcsObject) error
	MakePublic(ctx context.Context) error
	Delete(ctx context.Context) error
	Attrs(ctx context.Context) (*gcs.ObjectAttrs, error)
}

// realBucket wraps *gcs.BucketHandle to satisfy gcsBucket.
type realBucket struct{ bh *gcs.BucketHandle }

func (r *realBucket) Objects(ctx context.Context, q *gcs.Query) gcsIterator {
	return r.bh.Objects(ctx, q)
}

func (r *realBucket) Object(name string) gcsObject {
	return &realObject{r.bh.Object(name)}
}

// realObject wraps *gcs.ObjectHandle to satisfy gcsObject.
type realObject struct{ oh *gcs.ObjectHandle }

func (r *realObject) NewWriter(ctx context.Context, contentType string) io.WriteCloser {
	w := r.oh.NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (r *realObject) CopyFrom(ctx context.Context, src gcsObject) error {
	s, ok := src.(*realObject)
	if !ok {
		return fmt.Errorf("gcs: cannot copy from %T", src)
	}
	_, err := r.oh.CopierFrom(s.oh).Run(ctx)
	return err
}

func (r *realObject) MakePublic(ctx context.Context) error {
	return r.oh.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader)
}

func (r *realObject) Delete(ctx context.Context) error { return r.oh.Delete(ctx) }

func (r *realObject) Attrs(ctx context.Context) (*gcs.ObjectAttrs, error) {
	return r.oh.Attrs(ctx)
}

// GCSOptions configures a GCSStorage.
type GCSOptions struct {
	Bucket          string
	Project         string
	CredentialsFile string
	PublicBase      string // defaults to https://storage.googleapis.com/<bucket>
	PublicACL       bool   // grant allUsers READER on each uploaded object (fine-grained ACL buckets only)
}

// GCSStorage implements Backend on Google Cloud Storage.
type GCSStorage struct {
	client     *gcs.Client
	bucket     gcsBucket
	name       string
	publicBase string
	publicACL  bool
	log        zerolog.Logger
}

// NewGCSStorage creates a GCS client for the configured bucket.
func NewGCSStorage(ctx context.Context, opts GCSOptions, log zerolog.Logger) (*GCSStorage, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	if opts.Project != "" {
		clientOpts = append(clientOpts, option.WithQuotaProject(opts.Project))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	s := newGCSStorageWithBucket(&realBucket{client.Bucket(opts.Bucket)}, opts, log)
	s.client = client
	log.Info().Str("bucket", opts.Bucket).Str("project", opts.Project).Msg("storage: gcs client ready")
	return s, nil
}

func newGCSStorageWithBucket(bucket gcsBucket, opts GCSOptions, log zerolog.Logger) *GCSStorage {
	publicBase := opts.PublicBase
	if publicBase == "" {
		publicBase = "https://storage.googleapis.com/" + opts.Bucket
	}
	return &GCSStorage{
		bucket:     bucket,
		name:       opts.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		publicACL:  opts.PublicACL,
		log:        log,
	}
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// ListUnder iterates every object below root+prefix.
func (g *GCSStorage) ListUnder(ctx context.Context, root, prefix string) ([]string, error) {
	full := ObjectKey(root, prefix)
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: full})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", full, err)
		}
		keys = append(keys, TrimRoot(root, attrs.Name))
	}
	return keys, nil
}

// ListSubfolders queries with the "/" delimiter; synthetic directory entries
// come back with only Prefix set.
func (g *GCSStorage) ListSubfolders(ctx context.Context, root, prefix string) ([]string, error) {
	folder := FolderPrefix(root, prefix)
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: folder, Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list folders under %q: %w", folder, err)
		}
		if attrs.Prefix == "" {
			continue
		}
		if name := childFolder(folder, attrs.Prefix); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Upload writes the local file to root+key.
func (g *GCSStorage) Upload(ctx context.Context, root, key, localPath string) (string, error) {
	full := ObjectKey(root, key)
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %q: %w: %w", localPath, ErrUploadFailed, err)
	}
	defer f.Close()

	obj := g.bucket.Object(full)
	w := obj.NewWriter(ctx, ContentType(full))
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w: %w", full, ErrUploadFailed, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer for %q: %w: %w", full, ErrUploadFailed, err)
	}
	if g.publicACL {
		if err := obj.MakePublic(ctx); err != nil {
			return "", fmt.Errorf("make %q public: %w: %w", full, ErrUploadFailed, err)
		}
	}
	return g.publicURL(full), nil
}

// Rename copies then deletes the source, matching GCS's own ObjectHandle
// rename semantics.
func (g *GCSStorage) Rename(ctx context.Context, root, oldKey, newKey string) error {
	src := g.bucket.Object(ObjectKey(root, oldKey))
	dst := g.bucket.Object(ObjectKey(root, newKey))
	if err := dst.CopyFrom(ctx, src); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("copy %q: %w", ObjectKey(root, oldKey), ErrNotFound)
		}
		return fmt.Errorf("copy %q to %q: %w", ObjectKey(root, oldKey), ObjectKey(root, newKey), err)
	}
	if g.publicACL {
		if err := dst.MakePublic(ctx); err != nil {
			g.log.Warn().Err(err).Str("key", ObjectKey(root, newKey)).Msg("storage: failed to make renamed object public")
		}
	}
	if err := src.Delete(ctx); err != nil {
		return fmt.Errorf("delete renamed source %q: %w", ObjectKey(root, oldKey), err)
	}
	return nil
}

// ResolveURL reads the object attributes to confirm it exists.
func (g *GCSStorage) ResolveURL(ctx context.Context, root, key string) (string, error) {
	full := ObjectKey(root, key)
	if _, err := g.bucket.Object(full).Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("stat %q: %w", full, ErrNotFound)
		}
		return "", fmt.Errorf("stat %q: %w", full, err)
	}
	return g.publicURL(full), nil
}

// Delete removes root+key.
func (g *GCSStorage) Delete(ctx context.Context, root, key string) error {
	full := ObjectKey(root, key)
	if err := g.bucket.Object(full).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("delete %q: %w", full, ErrNotFound)
		}
		return fmt.Errorf("delete %q: %w", full, err)
	}
	return nil
}

// RelativeKey strips the public base from a URL produced by this backend.
func (g *GCSStorage) RelativeKey(rawURL string) (string, bool) {
	return relativeFromBase(g.publicBase, rawURL)
}

func (g *GCSStorage) publicURL(full string) string {
	return g.publicBase + "/" + full
}

var _ Backend = (*GCSStorage)(nil)
