// Package generator wraps external image-synthesis providers. A Generator
// submits a prompt, downloads the first returned image, crops the provider
// watermark band off the bottom and leaves the result in a local temp file
// that the caller must Release.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrGeneratorUnavailable is returned when no provider credential is configured.
	ErrGeneratorUnavailable = errors.New("image generator unavailable")
	// ErrProviderError is returned when the provider call or the image download fails.
	ErrProviderError = errors.New("image provider error")
	// ErrEmptyResult is returned when the provider answers without an image reference.
	ErrEmptyResult = errors.New("image provider returned no image")
)

// Size is the requested output size.
type Size string

const (
	SizeSmall  Size = "1024x1024"
	SizeMedium Size = "1792x1024"
	SizeLarge  Size = "1024x1792"
)

// ParseSize accepts SMALL/MEDIUM/LARGE (any case) or the pixel form. The empty
// string maps to SizeSmall.
func ParseSize(s string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "small", string(SizeSmall):
		return SizeSmall, nil
	case "medium", string(SizeMedium):
		return SizeMedium, nil
	case "large", string(SizeLarge):
		return SizeLarge, nil
	default:
		return "", fmt.Errorf("unknown image size %q", s)
	}
}

// Request describes one generation call.
type Request struct {
	Prompt  string
	Count   int
	Size    Size
	OwnerID string
}

// Output is the result of a successful generation.
type Output struct {
	RevisedPrompt string
	LocalPath     string
}

// Generator produces an image for a prompt and stores it locally.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Output, error)
	Release(localPath string) error
}

// StatusError is a non-success HTTP reply from a provider or image host.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: http %d", e.Provider, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrProviderError }

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func normalizeCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
