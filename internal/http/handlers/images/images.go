package images

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tieredmedia/images-service/internal/http/middleware"
	"github.com/tieredmedia/images-service/internal/services/derivatives"
	"github.com/tieredmedia/images-service/internal/services/tiers"
	"github.com/tieredmedia/images-service/internal/services/uploads"
	"github.com/tieredmedia/images-service/internal/services/visibility"
	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
	"github.com/tieredmedia/images-service/internal/utils/response"
)

type Uploader interface {
	Upload(ctx context.Context, userID, fileName, contentType string, image []byte, duration *int) (uploads.Result, error)
}

type Storage interface {
	GetUserByID(ctx context.Context, id string) (types.User, error)
	ListMediaByOwner(ctx context.Context, ownerID string) ([]media.Media, error)
}

type TierPolicy interface {
	CapabilitiesFor(ctx context.Context, user types.User) (types.Capabilities, error)
}

type Handlers struct {
	uploader      Uploader
	storage       Storage
	policy        TierPolicy
	urls          visibility.URLResolver
	baseURL       string
	maxUploadSize int64
}

// NewHandlers creates a new image handlers instance
func NewHandlers(uploader Uploader, storage Storage, policy TierPolicy, urls visibility.URLResolver, baseURL string, maxUploadSize int64) *Handlers {
	return &Handlers{
		uploader:      uploader,
		storage:       storage,
		policy:        policy,
		urls:          urls,
		baseURL:       baseURL,
		maxUploadSize: maxUploadSize,
	}
}

// Upload handles a tiered image upload
// @Summary Upload an image
// @Description Upload a jpg/png image; the response field set depends on the uploader's tier
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param expired_time formData int false "Expiring-link duration in seconds (300-30000)"
// @Success 201 {object} uploads.Result "Image uploaded"
// @Failure 400 {object} response.Response "Bad request"
// @Security BearerAuth
// @Router /upload [post]
func (h *Handlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Anonymous uploads fall through to the pipeline, which rejects
		// them with a 400-class unauthorized error.
		userID, _ := middleware.GetUserIDFromContext(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
		if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("invalid multipart body")))
			return
		}

		var (
			imageBytes  []byte
			fileName    string
			contentType string
		)
		file, header, err := r.FormFile("image")
		if err == nil {
			defer file.Close()
			imageBytes, err = io.ReadAll(file)
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("failed to read image")))
				return
			}
			fileName = header.Filename
			contentType = header.Header.Get("Content-Type")
		}

		var duration *int
		if v := r.FormValue("expired_time"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("expired_time must be an integer")))
				return
			}
			duration = &parsed
		}

		result, err := h.uploader.Upload(r.Context(), userID, fileName, contentType, imageBytes, duration)
		if err != nil {
			status := uploadErrorStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("Upload failed", slog.String("error", err.Error()))
				err = errors.New("failed to process upload")
			}
			response.WriteJSON(w, status, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusCreated, result)
	}
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, uploads.ErrUnauthorized),
		errors.Is(err, tiers.ErrNoTier),
		errors.Is(err, uploads.ErrMissingImage),
		errors.Is(err, uploads.ErrUnsupportedFormat),
		errors.Is(err, uploads.ErrMissingDuration),
		errors.Is(err, uploads.ErrInvalidDuration),
		errors.Is(err, derivatives.ErrInvalidImageFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// List returns the caller's media records projected for their tier
// @Summary List uploaded images
// @Description List the authenticated user's uploads; field visibility follows the viewer's tier
// @Tags images
// @Produce json
// @Success 200 {array} visibility.Projection "Media records"
// @Failure 403 {object} response.Response "Forbidden"
// @Security BearerAuth
// @Router /images [get]
func (h *Handlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		user, err := h.storage.GetUserByID(r.Context(), userID)
		if err != nil {
			response.WriteJSON(w, http.StatusForbidden, response.GeneralError(errors.New("user not found")))
			return
		}

		// Viewers without a tier still see the base projection.
		caps, err := h.policy.CapabilitiesFor(r.Context(), user)
		if err != nil && !errors.Is(err, tiers.ErrNoTier) {
			slog.Error("Failed to resolve viewer tier", slog.String("error", err.Error()), slog.String("user_id", userID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to resolve tier")))
			return
		}

		items, err := h.storage.ListMediaByOwner(r.Context(), userID)
		if err != nil {
			slog.Error("Failed to list media", slog.String("error", err.Error()), slog.String("user_id", userID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to list images")))
			return
		}

		projections := make([]visibility.Projection, 0, len(items))
		for _, m := range items {
			projections = append(projections, visibility.Project(m, caps, h.urls, h.baseURL))
		}

		response.WriteJSON(w, http.StatusOK, projections)
	}
}
