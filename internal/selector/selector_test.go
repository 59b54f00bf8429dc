package selector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

const (
	clientRoot = "CLIENT_IMAGES/"
	aiRoot     = "AI_IMAGES/"
)

func newSelector(b storage.Backend) *Selector {
	return New(b, Options{ClientRoot: clientRoot, AIRoot: aiRoot}, zerolog.Nop())
}

func TestMarkUsed(t *testing.T) {
	cases := []struct{ in, want string }{
		{"img1.jpg", "img1_used.jpg"},
		{"img1_used.jpg", "img1_used.jpg"},
		{"photo.final.png", "photo.final_used.png"},
		{"noext", "noext_used"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MarkUsed(tc.in, DefaultUsedMarker), tc.in)
		assert.True(t, IsUsed(MarkUsed(tc.in, DefaultUsedMarker), DefaultUsedMarker))
	}
	assert.False(t, IsUsed("used.jpg", DefaultUsedMarker))
	assert.False(t, IsUsed("a_used_x.jpg", DefaultUsedMarker))
}

func TestFindUnusedSkipsUsed(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/coffee_shop_/a_used.jpg", []byte("x"))
	mem.Put(clientRoot, "123/coffee_shop_/b.jpg", []byte("x"))
	mem.Put(clientRoot, "123/coffee_shop_/nested/c.jpg", []byte("x"))
	s := newSelector(mem)

	ref, err := s.FindUnused(context.Background(), TierClientSubmitted, "123", "coffee_shop_")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "b.jpg", ref.FileName)
	assert.Equal(t, "123/coffee_shop_/b.jpg", ref.Key())
}

func TestFindUnusedNone(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(aiRoot, "123/coffee_shop_/a_used.jpg", []byte("x"))
	mem.Put(aiRoot, "123/coffee_shop_x/b.jpg", []byte("x"))
	s := newSelector(mem)

	ref, err := s.FindUnused(context.Background(), TierAIGenerated, "123", "coffee_shop_")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestClaimedAssetNeverReselected(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/tea/a.jpg", []byte("x"))
	mem.Put(clientRoot, "123/tea/b.jpg", []byte("x"))
	s := newSelector(mem)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ref, err := s.FindUnused(ctx, TierClientSubmitted, "123", "tea")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.False(t, seen[ref.FileName], "asset %s selected twice", ref.FileName)
		seen[ref.FileName] = true

		url, err := s.Claim(ctx, *ref)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(url, MarkUsed(ref.FileName, DefaultUsedMarker)))
	}

	ref, err := s.FindUnused(ctx, TierClientSubmitted, "123", "tea")
	require.NoError(t, err)
	assert.Nil(t, ref)
	assert.ElementsMatch(t, []string{"CLIENT_IMAGES/123/tea/a_used.jpg", "CLIENT_IMAGES/123/tea/b_used.jpg"}, mem.Keys())
}

func TestClaimMissingSourceDoesNotMutate(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	s := newSelector(mem)

	_, err := s.Claim(context.Background(), AssetRef{Tier: TierAIGenerated, OwnerID: "1", TopicKey: "t", FileName: "gone.jpg"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, mem.Keys())
}

// flakyResolve fails ResolveURL for keys carrying the used marker.
type flakyResolve struct {
	*storage.MemoryStorage
}

var errResolve = errors.New("resolve unavailable")

func (f flakyResolve) ResolveURL(ctx context.Context, root, key string) (string, error) {
	if IsUsed(key, DefaultUsedMarker) {
		return "", errResolve
	}
	return f.MemoryStorage.ResolveURL(ctx, root, key)
}

func TestClaimRevertsRenameWhenResolveFails(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/tea/a.jpg", []byte("x"))
	s := newSelector(flakyResolve{mem})

	_, err := s.Claim(context.Background(), AssetRef{Tier: TierClientSubmitted, OwnerID: "123", TopicKey: "tea", FileName: "a.jpg"})
	assert.ErrorIs(t, err, errResolve)
	assert.True(t, mem.Exists(clientRoot, "123/tea/a.jpg"))
	assert.False(t, mem.Exists(clientRoot, "123/tea/a_used.jpg"))
}

// cancelAfterRename cancels the caller's context as soon as a rename lands.
type cancelAfterRename struct {
	storage.Backend
	cancel context.CancelFunc
}

func (c cancelAfterRename) Rename(ctx context.Context, root, oldKey, newKey string) error {
	err := c.Backend.Rename(ctx, root, oldKey, newKey)
	c.cancel()
	return err
}

func TestClaimFinishesAfterCancellation(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/tea/a.jpg", []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSelector(cancelAfterRename{Backend: mem, cancel: cancel})

	url, err := s.Claim(ctx, AssetRef{Tier: TierClientSubmitted, OwnerID: "123", TopicKey: "tea", FileName: "a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "memory://t/CLIENT_IMAGES/123/tea/a_used.jpg", url)
	assert.Error(t, ctx.Err())
}

func TestClaimRevertsAfterCancellation(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(clientRoot, "123/tea/a.jpg", []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSelector(cancelAfterRename{Backend: flakyResolve{mem}, cancel: cancel})

	_, err := s.Claim(ctx, AssetRef{Tier: TierClientSubmitted, OwnerID: "123", TopicKey: "tea", FileName: "a.jpg"})
	assert.ErrorIs(t, err, errResolve)
	assert.True(t, mem.Exists(clientRoot, "123/tea/a.jpg"))
	assert.False(t, mem.Exists(clientRoot, "123/tea/a_used.jpg"))
}

func TestFindAnyUnusedAcrossTopics(t *testing.T) {
	mem := storage.NewMemoryStorage("t")
	mem.Put(aiRoot, "123/bakery/a_used.jpg", []byte("x"))
	mem.Put(aiRoot, "123/coffee/b.jpg", []byte("x"))
	mem.Put(aiRoot, "456/tea/c.jpg", []byte("x"))
	s := newSelector(mem)

	ref, err := s.FindAnyUnusedAcrossTopics(context.Background(), TierAIGenerated, "123")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "coffee", ref.TopicKey)
	assert.Equal(t, "b.jpg", ref.FileName)

	ref, err = s.FindAnyUnusedAcrossTopics(context.Background(), TierAIGenerated, "789")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "client", TierClientSubmitted.String())
	assert.Equal(t, "ai", TierAIGenerated.String())
}
