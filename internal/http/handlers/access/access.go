package access

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tieredmedia/images-service/internal/services/blob"
	"github.com/tieredmedia/images-service/internal/services/tokens"
	"github.com/tieredmedia/images-service/internal/types/media"
	"github.com/tieredmedia/images-service/internal/utils/response"
)

type TokenResolver interface {
	Resolve(ctx context.Context, value string) (media.Media, error)
}

type BlobOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, blob.ObjectInfo, error)
}

type Handlers struct {
	resolver TokenResolver
	blobs    BlobOpener
}

func NewHandlers(resolver TokenResolver, blobs BlobOpener) *Handlers {
	return &Handlers{
		resolver: resolver,
		blobs:    blobs,
	}
}

// Fetch streams the original file behind an expiring token
// @Summary Download a file via an expiring link
// @Description Anonymous download of an original image through a time-limited token
// @Tags access
// @Produce octet-stream
// @Param token path string true "Token value"
// @Success 200 {file} binary "File stream"
// @Failure 400 {object} map[string]string "Expired link or no file available"
// @Failure 404 {object} map[string]string "Unknown token"
// @Router /token/{token} [get]
func (h *Handlers) Fetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.PathValue("token")
		if value == "" {
			response.Detail(w, http.StatusNotFound, "Not found.")
			return
		}

		m, err := h.resolver.Resolve(r.Context(), value)
		if errors.Is(err, tokens.ErrTokenNotFound) {
			response.Detail(w, http.StatusNotFound, "Not found.")
			return
		}
		if errors.Is(err, tokens.ErrTokenExpired) {
			response.Detail(w, http.StatusBadRequest, "This link has expired.")
			return
		}
		if err != nil {
			slog.Error("Failed to resolve token", slog.String("error", err.Error()))
			response.Detail(w, http.StatusInternalServerError, "Failed to resolve link.")
			return
		}

		// Tiers without original retention produce media with derivatives
		// only; the link then has nothing to serve.
		if m.OriginalKey == "" {
			response.Detail(w, http.StatusBadRequest, "No file available.")
			return
		}

		obj, info, err := h.blobs.Open(r.Context(), m.OriginalKey)
		if err != nil {
			slog.Error("Failed to open original", slog.String("error", err.Error()), slog.String("media_id", m.ID))
			response.Detail(w, http.StatusInternalServerError, "Failed to read file.")
			return
		}
		defer obj.Close()

		contentType := info.ContentType
		if contentType == "" {
			contentType = m.ContentType
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", downloadName(m.FileName, contentType)))
		if info.Size > 0 {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size))
		}

		if _, err := io.Copy(w, obj); err != nil {
			slog.Error("Failed to stream file", slog.String("error", err.Error()), slog.String("media_id", m.ID))
		}
	}
}

// downloadName derives the attachment filename from the stored name and the
// extension matching the stored content type.
func downloadName(fileName, contentType string) string {
	base := fileName
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		base = "download"
	}

	ext := ".jpg"
	if contentType == "image/png" {
		ext = ".png"
	}

	return base + ext
}
