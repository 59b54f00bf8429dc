package generator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	defaultCropHeight   = 100
	defaultJPEGQuality  = 90
	maxDownloadBytes    = 32 << 20
	defaultDownloadTime = 30 * time.Second
)

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Dir        string
	CropHeight int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Downloader fetches provider images, crops the bottom band and writes them
// as JPEG files named <uuid>.jpg under Dir.
type Downloader struct {
	client     *http.Client
	dir        string
	cropHeight int
	timeout    time.Duration
}

// NewDownloader creates the download directory if needed.
func NewDownloader(opts DownloaderOptions) (*Downloader, error) {
	if opts.Dir == "" {
		return nil, errors.New("generator: download dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("generator: ensure download dir: %w", err)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTime
	}
	crop := opts.CropHeight
	if crop < 0 {
		crop = defaultCropHeight
	}
	return &Downloader{client: client, dir: opts.Dir, cropHeight: crop, timeout: timeout}, nil
}

// Dir returns the directory temp files are written to.
func (d *Downloader) Dir() string {
	return d.dir
}

// Fetch downloads imageURL, crops it and returns the local file path.
func (d *Downloader) Fetch(ctx context.Context, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: build download request: %w", ErrProviderError, err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: download image: %w", ErrProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Provider: "image host", StatusCode: resp.StatusCode}
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: read image: %w", ErrProviderError, err)
		}
		return "", backoff.Permanent(fmt.Errorf("%w: decode image: %w", ErrProviderError, err))
	}

	out := filepath.Join(d.dir, uuid.NewString()+".jpg")
	if err := writeJPEG(out, CropBottom(img, d.cropHeight)); err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: write image: %w", ErrProviderError, err))
	}
	return out, nil
}

// Release deletes a temp file produced by Fetch. A missing file is not an error.
func (d *Downloader) Release(localPath string) error {
	if localPath == "" {
		return nil
	}
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release %q: %w", localPath, err)
	}
	return nil
}

// CropBottom removes height pixels from the bottom edge of img. Images not
// taller than height are returned unchanged.
func CropBottom(img image.Image, height int) image.Image {
	b := img.Bounds()
	if height <= 0 || b.Dy() <= height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()-height))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: defaultJPEGQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
