package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/generator"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/keycodec"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/lock"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/middleware"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/response"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

const (
	maxUploadFiles  = 10
	maxUploadMemory = 32 << 20
)

// Handler holds HTTP handlers for the image endpoints.
type Handler struct {
	svc *Service
	log zerolog.Logger
}

// NewHandler creates a new provisioning Handler.
func NewHandler(svc *Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the handlers on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/provision", h.Provision)
	r.Route("/images", func(r chi.Router) {
		r.Post("/", h.SaveImages)
		r.Get("/", h.ListImages)
		r.Delete("/", h.DeleteImages)
	})
	r.Get("/owners/{ownerID}/claims", h.ListClaims)
}

type urlsData struct {
	URLs []string `json:"urls"`
}

type imagesData struct {
	Images []string `json:"images"`
}

type deleteImagesRequest struct {
	Paths []string `json:"paths" example:"CLIENT_IMAGES/123/coffee_shop_/img1.jpg"`
}

type deletedData struct {
	Deleted []string `json:"deleted"`
}

// Provision godoc
//
//	@Summary		Provision an image
//	@Description	Returns an unused stored image for the owner and topic, preferring client uploads over earlier AI output. When none is left a new image is generated, stored and returned.
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		Request	true	"Owner, topic and prompt fields"
//	@Success		200		{object}	response.Envelope{data=Result}
//	@Failure		400		{object}	response.Envelope
//	@Failure		403		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Failure		503		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/provision [post]
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if !ownerAllowed(r, req.OwnerID) {
		response.Forbidden(w, "token is not allowed to act for this owner")
		return
	}

	res, err := h.svc.Provision(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, res)
}

// SaveImages godoc
//
//	@Summary		Save client images
//	@Description	Stores up to 10 uploaded images in the client tier under the owner and keyword folder.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			ownerId		formData	string	true	"Owner (company) id"
//	@Param			keyword		formData	string	true	"Topic keyword"
//	@Param			markAsUsed	formData	bool	false	"Store the images already marked as used"
//	@Param			images		formData	file	true	"Image files"
//	@Success		201			{object}	response.Envelope{data=urlsData}
//	@Failure		400			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/images [post]
func (h *Handler) SaveImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	owner := r.FormValue("ownerId")
	if owner == "" {
		owner = r.FormValue("companyId")
	}
	if !ownerAllowed(r, owner) {
		response.Forbidden(w, "token is not allowed to act for this owner")
		return
	}
	markAsUsed, _ := strconv.ParseBool(r.FormValue("markAsUsed"))

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		response.BadRequest(w, "at least one image file is required")
		return
	}
	if len(headers) > maxUploadFiles {
		response.BadRequest(w, fmt.Sprintf("at most %d images per request", maxUploadFiles))
		return
	}

	files := make([]UploadFile, 0, len(headers))
	defer func() {
		for _, f := range files {
			_ = os.Remove(f.Path)
		}
	}()
	for _, fh := range headers {
		if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
			response.BadRequest(w, "only image files are allowed")
			return
		}
		p, err := spool(fh)
		if err != nil {
			h.log.Error().Err(err).Str("file", fh.Filename).Msg("failed to spool upload")
			response.InternalError(w)
			return
		}
		files = append(files, UploadFile{Name: fh.Filename, Path: p})
	}

	urls, err := h.svc.SaveImages(r.Context(), SaveRequest{
		OwnerID:    owner,
		Topic:      r.FormValue("keyword"),
		Files:      files,
		MarkAsUsed: markAsUsed,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Created(w, urlsData{URLs: urls})
}

// ListImages godoc
//
//	@Summary		List client images
//	@Description	Lists the public URLs of client images below a folder such as "123/scooter rental".
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			folder	query		string	true	"Relative folder path"
//	@Success		200		{object}	response.Envelope{data=imagesData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images [get]
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	if !ownerAllowed(r, h.svc.FolderOwner(folder)) {
		response.Forbidden(w, "token is not allowed to act for this owner")
		return
	}

	urls, err := h.svc.ListImages(r.Context(), folder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, imagesData{Images: urls})
}

// DeleteImages godoc
//
//	@Summary		Delete images
//	@Description	Deletes one image given by the path query parameter, or every image listed in the body. Bulk deletion is best effort and reports what was removed.
//	@Tags			images
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			path	query		string				false	"Public URL or bucket key of a single image"
//	@Param			request	body		deleteImagesRequest	false	"Images to delete"
//	@Success		200		{object}	response.Envelope{data=deletedData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/images [delete]
func (h *Handler) DeleteImages(w http.ResponseWriter, r *http.Request) {
	if single := r.URL.Query().Get("path"); single != "" {
		if !h.imageAllowed(w, r, single) {
			return
		}
		key, err := h.svc.DeleteImage(r.Context(), single)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		response.OK(w, deletedData{Deleted: []string{key}})
		return
	}

	var req deleteImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid request body")
		return
	}
	for _, p := range req.Paths {
		if !h.imageAllowed(w, r, p) {
			return
		}
	}
	deleted, err := h.svc.DeleteImages(r.Context(), req.Paths)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, deletedData{Deleted: deleted})
}

// ListClaims godoc
//
//	@Summary		List provisioned images
//	@Description	Returns the most recent images handed out for an owner, newest first.
//	@Tags			images
//	@Produce		json
//	@Security		BearerAuth
//	@Param			ownerID	path		string	true	"Owner id"
//	@Param			limit	query		int		false	"Maximum entries (default 50)"
//	@Success		200		{object}	response.Envelope{data=[]ledger.Entry}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/owners/{ownerID}/claims [get]
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	owner := chi.URLParam(r, "ownerID")
	if !ownerAllowed(r, owner) {
		response.Forbidden(w, "token is not allowed to act for this owner")
		return
	}

	entries, err := h.svc.ListClaims(r.Context(), owner, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, entries)
}

// imageAllowed checks the owner scope of an image reference. Malformed
// references are left to the service, which reports them per image.
func (h *Handler) imageAllowed(w http.ResponseWriter, r *http.Request, ref string) bool {
	owner, err := h.svc.ImageOwner(ref)
	if err != nil || ownerAllowed(r, owner) {
		return true
	}
	response.Forbidden(w, "token is not allowed to act for this owner")
	return false
}

// ownerAllowed reports whether the caller's token covers owner. Tokens
// without an owner scope, and requests without auth, cover every owner.
func ownerAllowed(r *http.Request, owner string) bool {
	scope := middleware.Owners(r.Context())
	if len(scope) == 0 {
		return true
	}
	want := keycodec.Sanitize(strings.TrimSpace(owner))
	for _, o := range scope {
		if keycodec.Sanitize(o) == want {
			return true
		}
	}
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		response.NotFound(w, "image not found")
	case errors.Is(err, generator.ErrGeneratorUnavailable):
		response.ServiceUnavailable(w, "image generation is not configured")
	case errors.Is(err, lock.ErrNotAcquired):
		response.ServiceUnavailable(w, "image provisioning is busy, retry later")
	case errors.Is(err, ErrGenerationFailed):
		h.log.Warn().Err(err).Str("path", r.URL.Path).Str("subject", middleware.Subject(r.Context())).Msg("generation failed")
		response.BadGateway(w, "image generation failed")
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Str("subject", middleware.Subject(r.Context())).Msg("request failed")
		response.InternalError(w)
	}
}

// spool copies an uploaded part to a temp file and returns its path.
func spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
