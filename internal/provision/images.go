package provision

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/keycodec"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/ledger"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/selector"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

// UploadFile is a client image already written to local disk.
type UploadFile struct {
	Name string // original file name, used for the extension
	Path string
}

// SaveRequest stores client images in the client tier.
type SaveRequest struct {
	OwnerID    string
	Topic      string
	Files      []UploadFile
	MarkAsUsed bool
}

// SaveImages uploads every file concurrently under
// <client root>/<owner>/<topic>/<uuid><ext>. The first failure cancels the
// remaining uploads. URLs are returned in input order.
func (s *Service) SaveImages(ctx context.Context, req SaveRequest) ([]string, error) {
	owner, topic := strings.TrimSpace(req.OwnerID), strings.TrimSpace(req.Topic)
	if owner == "" || topic == "" {
		return nil, fmt.Errorf("%w: ownerId and keyword are required", ErrInvalidRequest)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: at least one image file is required", ErrInvalidRequest)
	}
	ownerKey, topicKey := keycodec.Sanitize(owner), keycodec.Sanitize(topic)
	root := s.Selector.Root(selector.TierClientSubmitted)

	urls := make([]string, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadConcurrency)
	for i, f := range req.Files {
		g.Go(func() error {
			ext := strings.ToLower(path.Ext(f.Name))
			if ext == "" {
				ext = ".jpg"
			}
			name := uuid.NewString() + ext
			if req.MarkAsUsed {
				name = selector.MarkUsed(name, s.Selector.Marker())
			}
			ref := selector.AssetRef{Tier: selector.TierClientSubmitted, OwnerID: ownerKey, TopicKey: topicKey, FileName: name}

			url, err := s.Backend.Upload(gctx, root, ref.Key(), f.Path)
			if err != nil {
				return fmt.Errorf("save %q: %w", f.Name, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Info().Str("owner_id", ownerKey).Str("topic", topicKey).Int("count", len(urls)).Msg("saved client images")
	return urls, nil
}

// ListImages returns the public URLs of every image below folder in the
// client tier. folder may carry the client root prefix; each segment is
// sanitized.
func (s *Service) ListImages(ctx context.Context, folder string) ([]string, error) {
	root := s.Selector.Root(selector.TierClientSubmitted)
	clean := keycodec.SanitizePath(s.trimClientRoot(folder))
	if clean == "" {
		return nil, fmt.Errorf("%w: folder path is required", ErrInvalidRequest)
	}

	keys, err := s.Backend.ListUnder(ctx, root, clean+"/")
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	urls := []string{}
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		url, err := s.Backend.ResolveURL(ctx, root, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list images: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// DeleteImage removes one image given its public URL or bucket-relative key.
// Only objects under a tier root can be deleted.
func (s *Service) DeleteImage(ctx context.Context, ref string) (string, error) {
	key, err := s.objectKey(ref)
	if err != nil {
		return "", err
	}
	if err := s.Backend.Delete(ctx, "", key); err != nil {
		return "", fmt.Errorf("delete %q: %w", key, err)
	}
	s.log.Info().Str("key", key).Msg("image deleted")
	return key, nil
}

// DeleteImages deletes each ref independently. Failures are logged and
// skipped; the keys actually deleted are returned.
func (s *Service) DeleteImages(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: missing image paths", ErrInvalidRequest)
	}
	deleted := []string{}
	for _, ref := range refs {
		key, err := s.DeleteImage(ctx, ref)
		if err != nil {
			s.log.Warn().Err(err).Str("ref", ref).Msg("failed to delete image")
			continue
		}
		deleted = append(deleted, key)
	}
	return deleted, nil
}

// ListClaims returns the most recent provisioned assets of an owner.
func (s *Service) ListClaims(ctx context.Context, ownerID string, limit int) ([]ledger.Entry, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return nil, fmt.Errorf("%w: ownerId is required", ErrInvalidRequest)
	}
	if s.Ledger == nil {
		return []ledger.Entry{}, nil
	}
	return s.Ledger.ListByOwner(ctx, keycodec.Sanitize(owner), limit)
}

// ImageOwner returns the sanitized owner segment of an image reference
// accepted by DeleteImage.
func (s *Service) ImageOwner(ref string) (string, error) {
	key, err := s.objectKey(ref)
	if err != nil {
		return "", err
	}
	for _, tier := range []selector.Tier{selector.TierClientSubmitted, selector.TierAIGenerated} {
		root := storage.FolderPrefix(s.Selector.Root(tier), "")
		if rest, ok := strings.CutPrefix(key, root); ok {
			owner, _, _ := strings.Cut(rest, "/")
			return owner, nil
		}
	}
	return "", fmt.Errorf("%w: %q is outside the image folders", ErrInvalidRequest, key)
}

// FolderOwner returns the sanitized owner segment of a ListImages folder.
func (s *Service) FolderOwner(folder string) string {
	clean := keycodec.SanitizePath(s.trimClientRoot(folder))
	owner, _, _ := strings.Cut(clean, "/")
	return owner
}

func (s *Service) trimClientRoot(folder string) string {
	root := s.Selector.Root(selector.TierClientSubmitted)
	folder = strings.TrimSpace(folder)
	if len(folder) >= len(root) && strings.EqualFold(folder[:len(root)], root) {
		folder = folder[len(root):]
	}
	return folder
}

func (s *Service) objectKey(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: image path is required", ErrInvalidRequest)
	}
	key, ok := s.Backend.RelativeKey(ref)
	if !ok {
		return "", fmt.Errorf("%w: %q is not served by this storage", ErrInvalidRequest, ref)
	}
	for _, tier := range []selector.Tier{selector.TierClientSubmitted, selector.TierAIGenerated} {
		root := storage.FolderPrefix(s.Selector.Root(tier), "")
		if strings.HasPrefix(key, root) && len(key) > len(root) && !strings.Contains(key, "..") {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: %q is outside the image folders", ErrInvalidRequest, key)
}
