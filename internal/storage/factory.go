package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
)

// New builds the backend named by cfg.StorageBackend.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Backend, error) {
	log = log.With().Str("component", "storage").Str("backend", cfg.StorageBackend).Logger()

	switch cfg.StorageBackend {
	case config.BackendMinio:
		return NewMinioStorage(ctx, MinioOptions{
			Endpoint:   cfg.StorageEndpoint,
			AccessKey:  cfg.StorageAccessKey,
			SecretKey:  cfg.StorageSecretKey,
			Bucket:     cfg.StorageBucket,
			PublicBase: cfg.StoragePublicBase,
			UseSSL:     cfg.StorageUseSSL,
		}, log)
	case config.BackendS3:
		return NewS3Storage(ctx, S3Options{
			Bucket:     cfg.StorageBucket,
			Region:     cfg.StorageRegion,
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			PublicBase: cfg.StoragePublicBase,
			PublicACL:  cfg.StoragePublicACL,
		}, log)
	case config.BackendGCS:
		return NewGCSStorage(ctx, GCSOptions{
			Bucket:          cfg.StorageBucket,
			Project:         cfg.GCSProject,
			CredentialsFile: cfg.GCSCredentialsFile,
			PublicBase:      cfg.StoragePublicBase,
			PublicACL:       cfg.StoragePublicACL,
		}, log)
	case config.BackendFS:
		return NewFileStore(cfg.StorageLocalPath, cfg.StoragePublicBase)
	case config.BackendMemory:
		return NewMemoryStorage(cfg.StorageBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
