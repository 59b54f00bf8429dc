// Package provision serves marketing images for an owner and topic: it reuses
// an unused stored asset when one exists (client uploads first, then earlier
// AI output) and otherwise generates, uploads and records a new one.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/generator"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/keycodec"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/ledger"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/lock"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/metrics"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/prompt"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/selector"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

// recordTimeout bounds a ledger write.
const recordTimeout = 5 * time.Second

var (
	// ErrInvalidRequest is returned for missing or malformed request fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrGenerationFailed wraps every failure on the generate-and-upload path.
	ErrGenerationFailed = errors.New("image generation failed")
)

// Request is a provisioning request. Only OwnerID and Topic take part in
// storage keys; the remaining fields shape the generation prompt.
type Request struct {
	OwnerID           string `json:"ownerId" example:"12121151872725055808"`
	Topic             string `json:"topic" example:"Coffee Shop"`
	Count             int    `json:"count,omitempty" example:"1"`
	Size              string `json:"size,omitempty" example:"1024x1024"`
	Country           string `json:"country,omitempty" example:"USA"`
	CompanyName       string `json:"companyName,omitempty" example:"Tech Solutions Inc."`
	Style             string `json:"style,omitempty" example:"Technical and Professional"`
	Mood              string `json:"mood,omitempty" example:"Trustworthy, Reliable, Competent"`
	KeyElements       string `json:"keyElements,omitempty"`
	Lighting          string `json:"lighting,omitempty"`
	Perspective       string `json:"perspective,omitempty"`
	ColorPalette      string `json:"colorPalette,omitempty"`
	Texture           string `json:"texture,omitempty"`
	AdditionalContext string `json:"additionalContext,omitempty"`

	// KeepLocal leaves the generated temp file in place and returns its path
	// in Result.LocalPath. The caller must then call ReleaseLocal.
	KeepLocal bool `json:"-"`
}

// Result is the outcome of a provisioning request.
type Result struct {
	URL           string `json:"url"`
	Source        string `json:"source" example:"generated"`
	Key           string `json:"key"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
	CaptionPrompt string `json:"captionPrompt,omitempty"`
	LocalPath     string `json:"-"`
}

// Options pins behaviour that historically varied between deployments.
type Options struct {
	SearchMode          string // config.SearchScoped or config.SearchDiscover
	MarkGeneratedAsUsed bool
	UploadConcurrency   int
}

// Deps are the collaborators of a Service. Profiles and Enhancer are optional.
type Deps struct {
	Backend   storage.Backend
	Selector  *selector.Selector
	Generator generator.Generator
	Prompts   *prompt.Builder
	Profiles  prompt.ProfileSource
	Enhancer  prompt.Enhancer
	Locker    lock.Locker
	Ledger    ledger.Ledger
	Metrics   *metrics.Metrics
}

// Service implements provisioning and the image maintenance operations.
type Service struct {
	Deps
	opts Options
	log  zerolog.Logger
}

// NewService creates a Service.
func NewService(deps Deps, opts Options, log zerolog.Logger) *Service {
	if opts.SearchMode == "" {
		opts.SearchMode = config.SearchScoped
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 4
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Service{Deps: deps, opts: opts, log: log.With().Str("component", "provision").Logger()}
}

// Provision returns a servable image URL for req.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.provision(ctx, req)

	source := "error"
	if err == nil {
		source = res.Source
	}
	s.Metrics.ObserveProvision(source, time.Since(start))
	return res, err
}

func (s *Service) provision(ctx context.Context, req Request) (*Result, error) {
	owner, topic := strings.TrimSpace(req.OwnerID), strings.TrimSpace(req.Topic)
	if owner == "" || topic == "" {
		return nil, fmt.Errorf("%w: ownerId and topic are required", ErrInvalidRequest)
	}
	if req.Count < 0 {
		return nil, fmt.Errorf("%w: count must be at least 1", ErrInvalidRequest)
	}
	size, err := generator.ParseSize(req.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ownerKey, topicKey := keycodec.Sanitize(owner), keycodec.Sanitize(topic)
	log := s.log.With().Str("owner_id", ownerKey).Str("topic", topicKey).Logger()

	res, err := s.reuse(ctx, ownerKey, topicKey, log)
	if err != nil {
		return nil, err
	}
	if res != nil {
		log.Info().Str("source", res.Source).Str("key", res.Key).Msg("reused stored image")
		return res, nil
	}

	return s.generate(ctx, req, ownerKey, topicKey, size, log)
}

// reuse searches the tiers in priority order under the claim lock and claims
// the first unused asset. It returns nil when nothing can be reused.
func (s *Service) reuse(ctx context.Context, ownerKey, topicKey string, log zerolog.Logger) (*Result, error) {
	lockKey := lock.Key(ownerKey, topicKey)
	if s.opts.SearchMode == config.SearchDiscover {
		// any topic of the owner may be claimed
		lockKey = lock.Key(ownerKey, "*")
	}
	release, err := s.Locker.Acquire(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockKey, err)
	}
	defer release()

	for _, tier := range []selector.Tier{selector.TierClientSubmitted, selector.TierAIGenerated} {
		ref, err := s.find(ctx, tier, ownerKey, topicKey)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			continue
		}

		url, err := s.Selector.Claim(ctx, *ref)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.Metrics.ClaimConflicts.Inc()
			}
			return nil, err
		}

		source := ledger.SourceClient
		if tier == selector.TierAIGenerated {
			source = ledger.SourceAIReuse
		}
		used := *ref
		used.FileName = selector.MarkUsed(ref.FileName, s.Selector.Marker())
		res := &Result{URL: url, Source: source, Key: storage.ObjectKey(s.Selector.Root(tier), used.Key())}
		s.record(ctx, used, res, log)
		return res, nil
	}
	return nil, nil
}

func (s *Service) find(ctx context.Context, tier selector.Tier, ownerKey, topicKey string) (*selector.AssetRef, error) {
	ref, err := s.Selector.FindUnused(ctx, tier, ownerKey, topicKey)
	if err != nil || ref != nil || s.opts.SearchMode != config.SearchDiscover {
		return ref, err
	}
	return s.Selector.FindAnyUnusedAcrossTopics(ctx, tier, ownerKey)
}

// generate runs outside the claim lock. The temp file is released on every
// path unless the caller asked to keep it.
func (s *Service) generate(ctx context.Context, req Request, ownerKey, topicKey string, size generator.Size, log zerolog.Logger) (*Result, error) {
	text, caption, err := s.buildPrompt(ctx, req, log)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.Generator.Generate(ctx, generator.Request{
		Prompt:  text,
		Count:   max(req.Count, 1),
		Size:    size,
		OwnerID: ownerKey,
	})
	s.Metrics.ObserveGeneration(err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	keep := false
	defer func() {
		if keep {
			return
		}
		if err := s.Generator.Release(out.LocalPath); err != nil {
			log.Warn().Err(err).Str("path", out.LocalPath).Msg("failed to release temp image")
		}
	}()

	name := uuid.NewString() + ".jpg"
	if s.opts.MarkGeneratedAsUsed {
		name = selector.MarkUsed(name, s.Selector.Marker())
	}
	ref := selector.AssetRef{Tier: selector.TierAIGenerated, OwnerID: ownerKey, TopicKey: topicKey, FileName: name}
	root := s.Selector.Root(selector.TierAIGenerated)

	url, err := s.Backend.Upload(ctx, root, ref.Key(), out.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	res := &Result{
		URL:           url,
		Source:        ledger.SourceGenerated,
		Key:           storage.ObjectKey(root, ref.Key()),
		RevisedPrompt: out.RevisedPrompt,
		CaptionPrompt: caption,
	}
	if req.KeepLocal {
		keep = true
		res.LocalPath = out.LocalPath
	}
	s.record(ctx, ref, res, log)
	log.Info().Str("key", res.Key).Msg("generated new image")
	return res, nil
}

// buildPrompt renders the image prompt and, when an enhancer is configured,
// rewrites it and derives a caption prompt. Profile and enhancer failures only
// degrade the prompt.
func (s *Service) buildPrompt(ctx context.Context, req Request, log zerolog.Logger) (string, string, error) {
	var profile map[string]any
	if s.Profiles != nil {
		p, err := s.Profiles.Profile(ctx, strings.TrimSpace(req.OwnerID))
		if err != nil {
			log.Warn().Err(err).Msg("business profile unavailable")
		}
		profile = p
	}

	text, err := s.Prompts.Build(prompt.Input{
		BusinessType:      req.Topic,
		Country:           req.Country,
		CompanyName:       req.CompanyName,
		Style:             req.Style,
		Mood:              req.Mood,
		KeyElements:       req.KeyElements,
		Lighting:          req.Lighting,
		Perspective:       req.Perspective,
		ColorPalette:      req.ColorPalette,
		Texture:           req.Texture,
		AdditionalContext: req.AdditionalContext,
		Profile:           profile,
	})
	if err != nil {
		return "", "", fmt.Errorf("build prompt: %w", err)
	}

	if s.Enhancer == nil {
		return text, "", nil
	}
	enh, err := s.Enhancer.Enhance(ctx, text, req.Topic, profile)
	if err != nil {
		log.Warn().Err(err).Msg("prompt enhancement failed, using template prompt")
		return text, "", nil
	}
	if strings.TrimSpace(enh.ImagePrompt) != "" {
		text = enh.ImagePrompt
	}
	return text, enh.PostPrompt, nil
}

// record runs on a context detached from the request: the asset is already
// claimed or uploaded and must leave a trace even if the caller went away.
func (s *Service) record(ctx context.Context, ref selector.AssetRef, res *Result, log zerolog.Logger) {
	if s.Ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := s.Ledger.Record(ctx, ledger.Entry{
		OwnerID:   ref.OwnerID,
		TopicKey:  ref.TopicKey,
		Tier:      ref.Tier.String(),
		ObjectKey: res.Key,
		URL:       res.URL,
		Source:    res.Source,
		Prompt:    res.RevisedPrompt,
	})
	if err != nil {
		log.Error().Err(err).Str("key", res.Key).Msg("failed to record claim")
	}
}

// ReleaseLocal deletes a temp file returned through Result.LocalPath.
func (s *Service) ReleaseLocal(localPath string) error {
	return s.Generator.Release(localPath)
}
