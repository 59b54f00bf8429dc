package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioOptions configures a MinioStorage.
type MinioOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PublicBase string // browser-accessible base URL; defaults to the endpoint + bucket
	UseSSL     bool
}

// MinioStorage implements Backend using a MinIO (or any S3-compatible) server.
// To switch to another S3-compatible host change STORAGE_ENDPOINT and
// credentials; no code changes are needed.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	publicBase string
	log        zerolog.Logger
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists with a
// public-read policy, and returns a ready-to-use MinioStorage.
func NewMinioStorage(ctx context.Context, opts MinioOptions, log zerolog.Logger) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
		log.Info().Str("bucket", opts.Bucket).Msg("storage: created bucket")
	}

	if err := client.SetBucketPolicy(ctx, opts.Bucket, publicReadPolicy(opts.Bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	publicBase := opts.PublicBase
	if publicBase == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}

	return &MinioStorage{
		client:     client,
		bucket:     opts.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		log:        log,
	}, nil
}

// ListUnder lists every object below root+prefix recursively.
func (s *MinioStorage) ListUnder(ctx context.Context, root, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    ObjectKey(root, prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", ObjectKey(root, prefix), obj.Err)
		}
		keys = append(keys, TrimRoot(root, obj.Key))
	}
	return keys, nil
}

// ListSubfolders lists the common prefixes one level below root+prefix.
func (s *MinioStorage) ListSubfolders(ctx context.Context, root, prefix string) ([]string, error) {
	folder := FolderPrefix(root, prefix)
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    folder,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list folders under %q: %w", folder, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			if name := childFolder(folder, obj.Key); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Upload streams the local file to root+key.
func (s *MinioStorage) Upload(ctx context.Context, root, key, localPath string) (string, error) {
	full := ObjectKey(root, key)
	_, err := s.client.FPutObject(ctx, s.bucket, full, localPath, minio.PutObjectOptions{
		ContentType: ContentType(full),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w: %w", full, ErrUploadFailed, err)
	}
	return s.publicURL(full), nil
}

// Rename copies root+oldKey to root+newKey, then removes the source. The
// object is briefly visible under both names.
func (s *MinioStorage) Rename(ctx context.Context, root, oldKey, newKey string) error {
	src := ObjectKey(root, oldKey)
	dst := ObjectKey(root, newKey)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: s.bucket, Object: src},
	)
	if err != nil {
		if isMinioNotFound(err) {
			return fmt.Errorf("copy %q: %w", src, ErrNotFound)
		}
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, src, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove renamed source %q: %w", src, err)
	}
	return nil
}

// ResolveURL confirms root+key exists and returns its public URL.
func (s *MinioStorage) ResolveURL(ctx context.Context, root, key string) (string, error) {
	full := ObjectKey(root, key)
	if _, err := s.client.StatObject(ctx, s.bucket, full, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return "", fmt.Errorf("stat %q: %w", full, ErrNotFound)
		}
		return "", fmt.Errorf("stat %q: %w", full, err)
	}
	return s.publicURL(full), nil
}

// Delete removes root+key. RemoveObject succeeds on missing keys, so the
// object is stat'ed first.
func (s *MinioStorage) Delete(ctx context.Context, root, key string) error {
	full := ObjectKey(root, key)
	if _, err := s.client.StatObject(ctx, s.bucket, full, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return fmt.Errorf("delete %q: %w", full, ErrNotFound)
		}
		return fmt.Errorf("stat %q: %w", full, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, full, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", full, err)
	}
	return nil
}

// RelativeKey strips the public base from a URL produced by this backend.
func (s *MinioStorage) RelativeKey(rawURL string) (string, bool) {
	return relativeFromBase(s.publicBase, rawURL)
}

// publicURL returns the browser-accessible URL for the given object name.
// For local MinIO: "http://localhost:9000/gbp-images/AI_IMAGES/123/coffee/x.jpg"
func (s *MinioStorage) publicURL(full string) string {
	return s.publicBase + "/" + full
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}

var _ Backend = (*MinioStorage)(nil)
