package generator

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
)

// New builds the configured provider behind the admission-control wrapper.
func New(cfg *config.Config, log zerolog.Logger) (*Limited, error) {
	log = log.With().Str("component", "generator").Logger()

	dl, err := NewDownloader(DownloaderOptions{
		Dir:        cfg.DownloadDir,
		CropHeight: cfg.CropHeight,
		Timeout:    cfg.DownloadTimeout,
	})
	if err != nil {
		return nil, err
	}
	retry := RetryPolicy{MaxRetries: cfg.GeneratorMaxRetries}

	var g Generator
	switch cfg.GeneratorProvider {
	case "grok":
		g = NewGrokGenerator(GrokOptions{
			BaseURL: cfg.GeneratorBaseURL,
			APIKey:  cfg.GeneratorAPIKey,
			Model:   cfg.GeneratorModel,
			Timeout: cfg.GeneratorTimeout,
			Retry:   retry,
		}, dl, log)
	case "openai":
		g = NewOpenAIGenerator(OpenAIOptions{
			BaseURL: cfg.GeneratorBaseURL,
			APIKey:  cfg.GeneratorAPIKey,
			Model:   cfg.GeneratorModel,
			Timeout: cfg.GeneratorTimeout,
			Retry:   retry,
		}, dl, log)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.GeneratorProvider)
	}

	if cfg.GeneratorAPIKey == "" {
		log.Warn().Msg("GENERATOR_API_KEY is not set, generation requests will fail")
	}
	return NewLimited(g, cfg.GeneratorMaxInFlight, cfg.GeneratorRatePerMinute), nil
}
