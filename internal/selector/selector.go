// Package selector finds unused assets in the storage tiers and claims them
// by renaming them to their used form.
package selector

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

// DefaultUsedMarker is inserted before the file extension of a claimed asset.
const DefaultUsedMarker = "_used"

// finishTimeout bounds the steps that run after the used-rename has landed.
// They are detached from the caller's context so a cancelled request cannot
// stop between the rename and its resolve or revert.
const finishTimeout = 10 * time.Second

// Tier identifies a storage root searched in fixed priority order.
type Tier int

const (
	TierClientSubmitted Tier = iota
	TierAIGenerated
)

func (t Tier) String() string {
	switch t {
	case TierClientSubmitted:
		return "client"
	case TierAIGenerated:
		return "ai"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// AssetRef points at one stored asset. OwnerID and TopicKey are always in
// sanitized form.
type AssetRef struct {
	Tier     Tier
	OwnerID  string
	TopicKey string
	FileName string
}

// Key returns the object key relative to the tier root.
func (a AssetRef) Key() string {
	return a.OwnerID + "/" + a.TopicKey + "/" + a.FileName
}

// Options configures a Selector.
type Options struct {
	ClientRoot string
	AIRoot     string
	UsedMarker string
}

// Selector implements the unused-asset search and the claim transition.
type Selector struct {
	backend storage.Backend
	roots   map[Tier]string
	marker  string
	log     zerolog.Logger
}

// New creates a Selector over backend.
func New(backend storage.Backend, opts Options, log zerolog.Logger) *Selector {
	marker := opts.UsedMarker
	if marker == "" {
		marker = DefaultUsedMarker
	}
	return &Selector{
		backend: backend,
		roots: map[Tier]string{
			TierClientSubmitted: opts.ClientRoot,
			TierAIGenerated:     opts.AIRoot,
		},
		marker: marker,
		log:    log.With().Str("component", "selector").Logger(),
	}
}

// Root returns the storage root of tier.
func (s *Selector) Root(tier Tier) string {
	return s.roots[tier]
}

// Marker returns the configured used marker.
func (s *Selector) Marker() string {
	return s.marker
}

// FindUnused returns the first asset under tier/owner/topic whose name does not
// carry the used marker, or nil when there is none. Candidates are taken in
// backend listing order.
func (s *Selector) FindUnused(ctx context.Context, tier Tier, ownerID, topicKey string) (*AssetRef, error) {
	folder := ownerID + "/" + topicKey + "/"
	keys, err := s.backend.ListUnder(ctx, s.Root(tier), folder)
	if err != nil {
		return nil, fmt.Errorf("list %s tier %q: %w", tier, folder, err)
	}

	for _, key := range keys {
		name := strings.TrimPrefix(key, folder)
		// folder placeholders and nested objects are not candidates
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if IsUsed(name, s.marker) {
			continue
		}
		return &AssetRef{Tier: tier, OwnerID: ownerID, TopicKey: topicKey, FileName: name}, nil
	}
	return nil, nil
}

// FindAnyUnusedAcrossTopics enumerates every topic folder below owner and
// returns the first unused asset found. The returned ref carries the
// discovered topic.
func (s *Selector) FindAnyUnusedAcrossTopics(ctx context.Context, tier Tier, ownerID string) (*AssetRef, error) {
	topics, err := s.backend.ListSubfolders(ctx, s.Root(tier), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s tier topics for %q: %w", tier, ownerID, err)
	}
	for _, topic := range topics {
		ref, err := s.FindUnused(ctx, tier, ownerID, topic)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return ref, nil
		}
	}
	return nil, nil
}

// Claim marks ref as used and returns the public URL of the renamed object.
//
// The source is resolved first so a vanished object fails with
// storage.ErrNotFound before anything is mutated. If the renamed object cannot
// be resolved the rename is reverted, so no asset is left marked used without
// a URL being handed back. Once the rename has landed, the remaining steps
// ignore cancellation of ctx.
func (s *Selector) Claim(ctx context.Context, ref AssetRef) (string, error) {
	root := s.Root(ref.Tier)
	oldKey := ref.Key()

	if _, err := s.backend.ResolveURL(ctx, root, oldKey); err != nil {
		return "", fmt.Errorf("claim %q: %w", oldKey, err)
	}

	used := ref
	used.FileName = MarkUsed(ref.FileName, s.marker)
	newKey := used.Key()
	if newKey == oldKey {
		return s.backend.ResolveURL(ctx, root, oldKey)
	}

	if err := s.backend.Rename(ctx, root, oldKey, newKey); err != nil {
		return "", fmt.Errorf("claim %q: %w", oldKey, err)
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	url, err := s.backend.ResolveURL(fctx, root, newKey)
	if err != nil {
		if rerr := s.backend.Rename(fctx, root, newKey, oldKey); rerr != nil {
			s.log.Error().Err(rerr).Str("key", newKey).Msg("failed to revert claim")
			return "", fmt.Errorf("claim %q: %w", oldKey, errors.Join(err, rerr))
		}
		return "", fmt.Errorf("claim %q: %w", oldKey, err)
	}

	s.log.Debug().Str("tier", ref.Tier.String()).Str("key", newKey).Msg("asset claimed")
	return url, nil
}

// MarkUsed inserts marker before the extension of name. Names that already
// carry the marker are returned unchanged.
func MarkUsed(name, marker string) string {
	if IsUsed(name, marker) {
		return name
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + marker + ext
}

// IsUsed reports whether name carries marker immediately before its extension.
func IsUsed(name, marker string) bool {
	base := path.Base(name)
	return strings.HasSuffix(strings.TrimSuffix(base, path.Ext(base)), marker)
}
