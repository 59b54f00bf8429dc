package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// s3API is the subset of *s3.Client used by S3Storage. Keeping it as an
// interface enables stubbing in tests.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Options configures an S3Storage.
type S3Options struct {
	Bucket     string
	Region     string
	Endpoint   string // custom endpoint (LocalStack, R2); enables path-style addressing
	AccessKey  string // static credentials; the default AWS chain is used when empty
	SecretKey  string
	PublicBase string // defaults to https://<bucket>.s3.amazonaws.com
	PublicACL  bool   // upload and copy objects with the public-read canned ACL
}

// S3Storage implements Backend on AWS S3 through the AWS SDK v2.
type S3Storage struct {
	client     s3API
	bucket     string
	publicBase string
	publicACL  bool
	log        zerolog.Logger
}

// NewS3Storage loads the AWS configuration and builds an S3 client.
func NewS3Storage(ctx context.Context, opts S3Options, log zerolog.Logger) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	log.Info().Str("bucket", opts.Bucket).Str("region", opts.Region).Msg("storage: s3 client ready")
	return newS3StorageWithClient(s3.NewFromConfig(cfg, s3Opts...), opts, log), nil
}

func newS3StorageWithClient(client s3API, opts S3Options, log zerolog.Logger) *S3Storage {
	publicBase := opts.PublicBase
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.amazonaws.com", opts.Bucket)
	}
	return &S3Storage{
		client:     client,
		bucket:     opts.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		publicACL:  opts.PublicACL,
		log:        log,
	}
}

// ListUnder pages through ListObjectsV2 for root+prefix.
func (s *S3Storage) ListUnder(ctx context.Context, root, prefix string) ([]string, error) {
	full := ObjectKey(root, prefix)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})

	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", full, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, TrimRoot(root, aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}

// ListSubfolders uses the "/" delimiter to collect common prefixes.
func (s *S3Storage) ListSubfolders(ctx context.Context, root, prefix string) ([]string, error) {
	folder := FolderPrefix(root, prefix)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(folder),
		Delimiter: aws.String("/"),
	})

	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list folders under %q: %w", folder, err)
		}
		for _, cp := range page.CommonPrefixes {
			if name := childFolder(folder, aws.ToString(cp.Prefix)); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// Upload puts the local file under root+key.
func (s *S3Storage) Upload(ctx context.Context, root, key, localPath string) (string, error) {
	full := ObjectKey(root, key)
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %q: %w: %w", localPath, ErrUploadFailed, err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        f,
		ContentType: aws.String(ContentType(full)),
	}
	if s.publicACL {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %q: %w: %w", full, ErrUploadFailed, err)
	}
	return s.publicURL(full), nil
}

// Rename copies then deletes; S3 has no native move.
func (s *S3Storage) Rename(ctx context.Context, root, oldKey, newKey string) error {
	src := ObjectKey(root, oldKey)
	dst := ObjectKey(root, newKey)
	in := &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(copySource(s.bucket, src)),
		Key:        aws.String(dst),
	}
	if s.publicACL {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.client.CopyObject(ctx, in); err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("copy %q: %w", src, ErrNotFound)
		}
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(src),
	}); err != nil {
		return fmt.Errorf("delete renamed source %q: %w", src, err)
	}
	return nil
}

// ResolveURL heads the object to confirm it exists.
func (s *S3Storage) ResolveURL(ctx context.Context, root, key string) (string, error) {
	full := ObjectKey(root, key)
	if err := s.head(ctx, full); err != nil {
		return "", err
	}
	return s.publicURL(full), nil
}

// Delete heads then deletes; DeleteObject is silent on missing keys.
func (s *S3Storage) Delete(ctx context.Context, root, key string) error {
	full := ObjectKey(root, key)
	if err := s.head(ctx, full); err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	}); err != nil {
		return fmt.Errorf("delete object %q: %w", full, err)
	}
	return nil
}

// RelativeKey strips the public base from a URL produced by this backend.
func (s *S3Storage) RelativeKey(rawURL string) (string, bool) {
	return relativeFromBase(s.publicBase, rawURL)
}

func (s *S3Storage) head(ctx context.Context, full string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err == nil {
		return nil
	}
	if isS3NotFound(err) {
		return fmt.Errorf("head %q: %w", full, ErrNotFound)
	}
	return fmt.Errorf("head %q: %w", full, err)
}

func (s *S3Storage) publicURL(full string) string {
	return s.publicBase + "/" + full
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
func copySource(bucket, key string) string {
	return (&url.URL{Path: bucket + "/" + key}).EscapedPath()
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

var _ Backend = (*S3Storage)(nil)
