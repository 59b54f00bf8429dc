package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/generator"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/ledger"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	NewHandler(f.svc, zerolog.Nop()).Register(r)
	return r
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHandlerProvision(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1.jpg", []byte("c"))

	req := httptest.NewRequest(http.MethodPost, "/provision", strings.NewReader(`{"ownerId":"123","topic":"Coffee Shop!"}`))
	rec, env := do(t, newRouter(f), req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	var res Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, ledger.SourceClient, res.Source)
	assert.Equal(t, "memory://t/CLIENT_IMAGES/123/coffee_shop_/img1_used.jpg", res.URL)
}

func TestHandlerProvisionErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		genErr error
		want   int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"missing topic", `{"ownerId":"123"}`, nil, http.StatusBadRequest},
		{"generator unavailable", `{"ownerId":"123","topic":"x"}`, generator.ErrGeneratorUnavailable, http.StatusServiceUnavailable},
		{"provider failure", `{"ownerId":"123","topic":"x"}`, &generator.StatusError{Provider: "grok", StatusCode: 400}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.gen.err = tc.genErr
			req := httptest.NewRequest(http.MethodPost, "/provision", strings.NewReader(tc.body))
			rec, env := do(t, newRouter(f), req)
			assert.Equal(t, tc.want, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, ct := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("img"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerSaveAndListImages(t *testing.T) {
	f := newFixture(t, Options{})
	h := newRouter(f)

	req := multipartUpload(t,
		map[string]string{"companyId": "123", "keyword": "Scooter Rental"},
		map[string]string{"a.jpg": "image/jpeg", "b.png": "image/png"},
	)
	rec, env := do(t, h, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var saved urlsData
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Len(t, saved.URLs, 2)

	rec, env = do(t, h, httptest.NewRequest(http.MethodGet, "/images?folder=123/scooter%20rental", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed imagesData
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.ElementsMatch(t, saved.URLs, listed.Images)
}

func TestHandlerSaveImagesRejectsNonImage(t *testing.T) {
	f := newFixture(t, Options{})
	req := multipartUpload(t,
		map[string]string{"ownerId": "123", "keyword": "coffee"},
		map[string]string{"notes.txt": "text/plain"},
	)
	rec, _ := do(t, newRouter(f), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.mem.Keys())
}

func TestHandlerSaveImagesRequiresFiles(t *testing.T) {
	f := newFixture(t, Options{})
	req := multipartUpload(t, map[string]string{"ownerId": "123", "keyword": "coffee"}, nil)
	rec, _ := do(t, newRouter(f), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDeleteImages(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_/a.jpg", []byte("c"))
	f.mem.Put(clientRoot, "123/coffee_/b.jpg", []byte("c"))
	h := newRouter(f)

	rec, env := do(t, h, httptest.NewRequest(http.MethodDelete, "/images?path=CLIENT_IMAGES/123/coffee_/a.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var d deletedData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, []string{"CLIENT_IMAGES/123/coffee_/a.jpg"}, d.Deleted)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodDelete, "/images?path=CLIENT_IMAGES/123/coffee_/a.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"paths":["memory://t/CLIENT_IMAGES/123/coffee_/b.jpg","CLIENT_IMAGES/123/coffee_/gone.jpg"]}`
	rec, env = do(t, h, httptest.NewRequest(http.MethodDelete, "/images", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, []string{"CLIENT_IMAGES/123/coffee_/b.jpg"}, d.Deleted)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodDelete, "/images", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListClaims(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "123/coffee_shop_/img1.jpg", []byte("c"))
	_, err := f.svc.Provision(t.Context(), coffeeRequest())
	require.NoError(t, err)
	h := newRouter(f)

	rec, env := do(t, h, httptest.NewRequest(http.MethodGet, "/owners/123/claims?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.SourceClient, entries[0].Source)

	rec, _ = do(t, h, httptest.NewRequest(http.MethodGet, "/owners/123/claims?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerOwnerScope(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "456/coffee_/a.jpg", []byte("c"))
	h := newRouter(f)

	scoped := func(req *http.Request) *http.Request {
		ctx := context.WithValue(req.Context(), middleware.OwnersKey, []string{"123"})
		return req.WithContext(ctx)
	}

	rec, _ := do(t, h, scoped(httptest.NewRequest(http.MethodPost, "/provision", strings.NewReader(`{"ownerId":"456","topic":"coffee"}`))))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, scoped(httptest.NewRequest(http.MethodGet, "/images?folder=CLIENT_IMAGES/456/coffee", nil)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, scoped(httptest.NewRequest(http.MethodDelete, "/images?path=CLIENT_IMAGES/456/coffee_/a.jpg", nil)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, f.mem.Exists(clientRoot, "456/coffee_/a.jpg"))

	rec, _ = do(t, h, scoped(httptest.NewRequest(http.MethodGet, "/owners/456/claims", nil)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, scoped(httptest.NewRequest(http.MethodGet, "/owners/123/claims", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerNumericOwnerClaimCannotDelete(t *testing.T) {
	f := newFixture(t, Options{})
	f.mem.Put(clientRoot, "456/coffee_/a.jpg", []byte("c"))

	r := chi.NewRouter()
	r.Use(middleware.RequireAuth("secret"))
	NewHandler(f.svc, zerolog.Nop()).Register(r)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "dashboard",
		"owners": []any{123},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/images?path=CLIENT_IMAGES/456/coffee_/a.jpg", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec, _ := do(t, r, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, f.mem.Exists(clientRoot, "456/coffee_/a.jpg"))

	scoped, err := middleware.IssueToken("secret", "dashboard", []string{"123"}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodDelete, "/images?path=CLIENT_IMAGES/456/coffee_/a.jpg", nil)
	req.Header.Set("Authorization", "Bearer "+scoped)
	rec, _ = do(t, r, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, f.mem.Exists(clientRoot, "456/coffee_/a.jpg"))
}

func TestHandlerLogsSubjectOnFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.gen.err = &generator.StatusError{Provider: "grok", StatusCode: 500, Message: "boom"}

	var buf bytes.Buffer
	r := chi.NewRouter()
	NewHandler(f.svc, zerolog.New(&buf)).Register(r)

	req := httptest.NewRequest(http.MethodPost, "/provision", strings.NewReader(`{"ownerId":"123","topic":"coffee"}`))
	req = req.WithContext(context.WithValue(req.Context(), middleware.SubjectKey, "scheduler"))
	rec, _ := do(t, r, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, buf.String(), `"subject":"scheduler"`)
}
