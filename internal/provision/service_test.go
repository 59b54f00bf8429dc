package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/generator"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/ledger"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/metrics"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/prompt"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/selector"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

const (
	clientRoot = "CLIENT_IMAGES/"
	aiRoot     = "AI_IMAGES/"
)

// fakeGenerator writes a small temp file per call and counts calls and releases.
type fakeGenerator struct {
	dir      string
	err      error
	calls    atomic.Int32
	releases atomic.Int32

	mu      sync.Mutex
	prompts []string
	paths   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Output, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, err := os.CreateTemp(f.dir, "gen-*.jpg")
	if err != nil {
		return nil, err
	}
	_, _ = p.WriteString("jpeg")
	_ = p.Close()
	f.mu.Lock()
	f.paths = append(f.paths, p.Name())
	f.mu.Unlock()
	return &generator.Output{RevisedPrompt: "revised", LocalPath: p.Name()}, nil
}

func (f *fakeGenerator) Release(localPath string) error {
	f.releases.Add(1)
	err := os.Remove(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type fakeEnhancer struct{ err error }

func (e fakeEnhancer) Enhance(ctx context.Context, defaultPrompt, keyword string, business map[string]any) (*prompt.Enhanced, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &prompt.Enhanced{PostPrompt: "post about " + keyword, ImagePrompt: "enhanced " + keyword}, nil
}

type fixture struct {
	svc    *Service
	mem    *storage.MemoryStorage
	gen    *fakeGenerator
	ledger *ledger.Memory
	m      *metrics.Metrics
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mem := storage.NewMemoryStorage("t")
	gen := &fakeGenerator{dir: t.TempDir()}
	led := ledger.NewMemory(100)
	m := metrics.New()
	builder, err := prompt.NewBuilder("")
	require.NoError(t, err)

	svc := NewService(Deps{
		Backend:   mem,
		Selector:  selector.New(mem, selector.Options{ClientRoot: clientRoot, AIRoot: aiRoot}, zerolog.Nop()),
		Generator: gen,
		Prompts:   builder,
		Ledger:    led,
		Metrics:   m,
	}, opts, zerolog.Nop())
	return &fixture{svc: svc, mem: mem, gen: gen, ledger: led, m: m}
}

func coffeeRequest() Request {
	return Request{OwnerID: "123", Topic: "Coffee Shop!"}
}

func TestProvisionPrefersClientTier(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1.jpg", []byte("c"))
	f.mem.Put(aiRoot, "123/coffee_shop_/gen1.jpg", []byte("a"))

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)

	assert.Equal(t, ledger.SourceClient, res.Source)
	assert.Equal(t, "CLIENT_IMAGES/123/coffee_shop_/img1_used.jpg", res.Key)
	assert.Equal(t, "memory://t/CLIENT_IMAGES/123/coffee_shop_/img1_used.jpg", res.URL)
	assert.True(t, f.mem.Exists(clientRoot, "123/coffee_shop_/img1_used.jpg"))
	assert.False(t, f.mem.Exists(clientRoot, "123/coffee_shop_/img1.jpg"))
	assert.True(t, f.mem.Exists(aiRoot, "123/coffee_shop_/gen1.jpg"), "ai tier untouched")
	assert.Zero(t, f.gen.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Provisions.WithLabelValues(ledger.SourceClient)))
}

func TestProvisionFallsBackToAITier(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1_used.jpg", []byte("c"))
	f.mem.Put(aiRoot, "123/coffee_shop_/gen1.jpg", []byte("a"))

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)

	assert.Equal(t, ledger.SourceAIReuse, res.Source)
	assert.Equal(t, "AI_IMAGES/123/coffee_shop_/gen1_used.jpg", res.Key)
	assert.True(t, f.mem.Exists(aiRoot, "123/coffee_shop_/gen1_used.jpg"))
	assert.Zero(t, f.gen.calls.Load())
}

func TestProvisionGeneratesWhenNothingUnused(t *testing.T) {
	f := newFixture(t, Options{MarkGeneratedAsUsed: true})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1_used.jpg", []byte("c"))

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)

	assert.Equal(t, ledger.SourceGenerated, res.Source)
	assert.Equal(t, int32(1), f.gen.calls.Load())
	assert.True(t, strings.HasPrefix(res.URL, "memory://t/AI_IMAGES/123/coffee_shop_/"), res.URL)
	assert.True(t, strings.HasSuffix(res.Key, "_used.jpg"), res.Key)
	assert.Equal(t, "revised", res.RevisedPrompt)
	assert.Empty(t, res.LocalPath)

	// temp file released
	assert.Equal(t, int32(1), f.gen.releases.Load())
	for _, p := range f.gen.paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}

	entries, err := f.ledger.ListByOwner(context.Background(), "123", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.SourceGenerated, entries[0].Source)
	assert.Equal(t, res.Key, entries[0].ObjectKey)
}

func TestProvisionGeneratedUnusedIsReusedLater(t *testing.T) {
	f := newFixture(t, Options{MarkGeneratedAsUsed: false})

	first, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	require.Equal(t, ledger.SourceGenerated, first.Source)
	assert.False(t, strings.HasSuffix(first.Key, "_used.jpg"))

	second, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceAIReuse, second.Source)
	assert.Equal(t, selector.MarkUsed(first.Key, selector.DefaultUsedMarker), second.Key)
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestProvisionNeverReturnsSameAssetTwice(t *testing.T) {
	f := newFixture(t, Options{MarkGeneratedAsUsed: true})
	f.mem.Put(clientRoot, "123/coffee_shop_/a.jpg", []byte("c"))
	f.mem.Put(clientRoot, "123/coffee_shop_/b.jpg", []byte("c"))

	seen := map[string]bool{}
	for range 4 {
		res, err := f.svc.Provision(context.Background(), coffeeRequest())
		require.NoError(t, err)
		assert.False(t, seen[res.Key], res.Key)
		seen[res.Key] = true
	}
	assert.Equal(t, int32(2), f.gen.calls.Load())
}

func TestProvisionConcurrentSingleAsset(t *testing.T) {
	f := newFixture(t, Options{MarkGeneratedAsUsed: true})
	f.mem.Put(clientRoot, "123/coffee_shop_/only.jpg", []byte("c"))

	const n = 8
	results := make([]*Result, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Provision(context.Background(), coffeeRequest())
			if assert.NoError(t, err) {
				results[i] = res
			}
		}()
	}
	wg.Wait()

	clientClaims := 0
	for _, r := range results {
		require.NotNil(t, r)
		if r.Source == ledger.SourceClient {
			clientClaims++
		}
	}
	assert.Equal(t, 1, clientClaims)
	assert.Equal(t, int32(n-1), f.gen.calls.Load())
}

func TestProvisionDiscoverMode(t *testing.T) {
	f := newFixture(t, Options{SearchMode: config.SearchDiscover})
	f.mem.Put(clientRoot, "123/bakery_/bread.jpg", []byte("c"))

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceClient, res.Source)
	assert.Equal(t, "CLIENT_IMAGES/123/bakery_/bread_used.jpg", res.Key)
	assert.Zero(t, f.gen.calls.Load())
}

func TestProvisionScopedIgnoresOtherTopics(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/bakery_/bread.jpg", []byte("c"))

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceGenerated, res.Source)
	assert.True(t, f.mem.Exists(clientRoot, "123/bakery_/bread.jpg"))
}

func TestProvisionInvalidRequests(t *testing.T) {
	f := newFixture(t, Options{})
	cases := map[string]Request{
		"missing owner": {Topic: "Coffee"},
		"missing topic": {OwnerID: "123", Topic: "  "},
		"negative":      {OwnerID: "123", Topic: "Coffee", Count: -1},
		"bad size":      {OwnerID: "123", Topic: "Coffee", Size: "10x10"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Provision(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, f.gen.calls.Load())
}

func TestProvisionGenerationFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.gen.err = &generator.StatusError{Provider: "grok", StatusCode: 500, Message: "boom"}

	_, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, generator.ErrProviderError)
	assert.Empty(t, f.mem.Keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Provisions.WithLabelValues("error")))
}

func TestProvisionKeepLocal(t *testing.T) {
	f := newFixture(t, Options{})
	req := coffeeRequest()
	req.KeepLocal = true

	res, err := f.svc.Provision(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.LocalPath)
	_, err = os.Stat(res.LocalPath)
	require.NoError(t, err)
	assert.Zero(t, f.gen.releases.Load())

	require.NoError(t, f.svc.ReleaseLocal(res.LocalPath))
	_, err = os.Stat(res.LocalPath)
	assert.True(t, os.IsNotExist(err))
}

func TestProvisionUsesEnhancer(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.Enhancer = fakeEnhancer{}

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	assert.Equal(t, "post about Coffee Shop!", res.CaptionPrompt)
	require.Len(t, f.gen.prompts, 1)
	assert.Equal(t, "enhanced Coffee Shop!", f.gen.prompts[0])
}

func TestProvisionEnhancerFailureKeepsTemplate(t *testing.T) {
	f := newFixture(t, Options{})
	f.svc.Enhancer = fakeEnhancer{err: errors.New("down")}

	res, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)
	assert.Empty(t, res.CaptionPrompt)
	require.Len(t, f.gen.prompts, 1)
	assert.Contains(t, f.gen.prompts[0], "Business Type: Coffee Shop!")
}

func writeUpload(t *testing.T, name string) UploadFile {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
	return UploadFile{Name: name, Path: p}
}

func TestSaveAndListImages(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	urls, err := f.svc.SaveImages(ctx, SaveRequest{
		OwnerID: "123",
		Topic:   "Scooter Rental",
		Files:   []UploadFile{writeUpload(t, "a.PNG"), writeUpload(t, "b.jpg")},
	})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.True(t, strings.HasPrefix(urls[0], "memory://t/CLIENT_IMAGES/123/scooter_rental/"))
	assert.True(t, strings.HasSuffix(urls[0], ".png"))

	listed, err := f.svc.ListImages(ctx, "CLIENT_IMAGES/123/scooter rental")
	require.NoError(t, err)
	assert.ElementsMatch(t, urls, listed)

	// the saved images are now the first candidates
	res, err := f.svc.Provision(ctx, Request{OwnerID: "123", Topic: "scooter rental"})
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceClient, res.Source)
}

func TestSaveImagesMarkAsUsed(t *testing.T) {
	f := newFixture(t, Options{})
	urls, err := f.svc.SaveImages(context.Background(), SaveRequest{
		OwnerID:    "123",
		Topic:      "coffee",
		Files:      []UploadFile{writeUpload(t, "a.jpg")},
		MarkAsUsed: true,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(urls[0], "_used.jpg"))
}

func TestSaveImagesValidation(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.SaveImages(context.Background(), SaveRequest{OwnerID: "123", Topic: "coffee"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.SaveImages(context.Background(), SaveRequest{Topic: "coffee", Files: []UploadFile{writeUpload(t, "a.jpg")}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSaveImagesMissingFile(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.SaveImages(context.Background(), SaveRequest{
		OwnerID: "123",
		Topic:   "coffee",
		Files:   []UploadFile{{Name: "gone.jpg", Path: filepath.Join(t.TempDir(), "gone.jpg")}},
	})
	assert.ErrorIs(t, err, storage.ErrUploadFailed)
}

func TestListImagesRequiresFolder(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.ListImages(context.Background(), "CLIENT_IMAGES/")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDeleteImages(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_/a.jpg", []byte("c"))
	f.mem.Put(aiRoot, "123/coffee_/b.jpg", []byte("c"))
	f.mem.Put("OTHER/", "x.jpg", []byte("c"))

	deleted, err := f.svc.DeleteImages(context.Background(), []string{
		"memory://t/CLIENT_IMAGES/123/coffee_/a.jpg",
		"AI_IMAGES/123/coffee_/b.jpg",
		"OTHER/x.jpg",
		"AI_IMAGES/123/coffee_/missing.jpg",
		"https://elsewhere.example/CLIENT_IMAGES/1.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"CLIENT_IMAGES/123/coffee_/a.jpg", "AI_IMAGES/123/coffee_/b.jpg"}, deleted)
	assert.Equal(t, []string{"OTHER/x.jpg"}, f.mem.Keys())

	_, err = f.svc.DeleteImages(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDeleteImageErrors(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.DeleteImage(context.Background(), "CLIENT_IMAGES/123/none.jpg")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.svc.DeleteImage(context.Background(), "CLIENT_IMAGES/../secret")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.DeleteImage(context.Background(), "CLIENT_IMAGES/")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestListClaims(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1.jpg", []byte("c"))
	_, err := f.svc.Provision(context.Background(), coffeeRequest())
	require.NoError(t, err)

	entries, err := f.svc.ListClaims(context.Background(), " 123 ", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "client", entries[0].Tier)
	assert.Equal(t, "coffee_shop_", entries[0].TopicKey)

	_, err = f.svc.ListClaims(context.Background(), "", 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// cancelAfterRename cancels the request context as soon as a rename lands.
type cancelAfterRename struct {
	storage.Backend
	cancel context.CancelFunc
}

func (c cancelAfterRename) Rename(ctx context.Context, root, oldKey, newKey string) error {
	err := c.Backend.Rename(ctx, root, oldKey, newKey)
	c.cancel()
	return err
}

func TestProvisionClaimSurvivesCancelledRequest(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/coffee_shop_/img1.jpg", []byte("c"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	backend := cancelAfterRename{Backend: mem, cancel: cancel}

	builder, err := prompt.NewBuilder("")
	require.NoError(t, err)
	led := ledger.NewMemory(10)
	gen := &fakeGenerator{dir: t.TempDir()}
	svc := NewService(Deps{
		Backend:   backend,
		Selector:  selector.New(backend, selector.Options{ClientRoot: clientRoot, AIRoot: aiRoot}, zerolog.Nop()),
		Generator: gen,
		Prompts:   builder,
		Ledger:    led,
	}, Options{}, zerolog.Nop())

	res, err := svc.Provision(ctx, coffeeRequest())
	require.NoError(t, err)
	assert.Equal(t, "CLIENT_IMAGES/123/coffee_shop_/img1_used.jpg", res.Key)
	assert.True(t, mem.Exists(clientRoot, "123/coffee_shop_/img1_used.jpg"))
	assert.Zero(t, gen.calls.Load())

	entries, err := led.ListByOwner(context.Background(), "123", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.Key, entries[0].ObjectKey)
}

func TestRecordIgnoresCancelledContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref := selector.AssetRef{Tier: selector.TierAIGenerated, OwnerID: "123", TopicKey: "coffee_", FileName: "a.jpg"}
	f.svc.record(ctx, ref, &Result{URL: "u", Source: ledger.SourceGenerated, Key: "AI_IMAGES/123/coffee_/a.jpg"}, zerolog.Nop())

	entries, err := f.ledger.ListByOwner(context.Background(), "123", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
