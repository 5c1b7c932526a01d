package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tieredmedia/images-service/internal/services/blob"
	"github.com/tieredmedia/images-service/internal/services/derivatives"
	"github.com/tieredmedia/images-service/internal/storage"
	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
)

var (
	ErrUnauthorized      = errors.New("cannot add data for anonymous user")
	ErrMissingImage      = errors.New("image data not provided")
	ErrUnsupportedFormat = errors.New("invalid image format, use jpg or png")
	ErrMissingDuration   = errors.New("expired_time is required for this tier")
	ErrInvalidDuration   = errors.New("expired_time must be between 300 and 30000 seconds")
)

const (
	MinDurationSeconds = 300
	MaxDurationSeconds = 30000
)

// acceptedFormats maps the accepted upload content types to the stored
// file extension.
var acceptedFormats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

type Storage interface {
	GetUserByID(ctx context.Context, id string) (types.User, error)
	CreateMedia(ctx context.Context, m media.Media) error
	DeleteMedia(ctx context.Context, id string) error
}

type TierPolicy interface {
	CapabilitiesFor(ctx context.Context, user types.User) (types.Capabilities, error)
}

type Generator interface {
	Generate(ctx context.Context, ownerID string, source []byte, caps types.Capabilities) (derivatives.Bundle, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, mediaID string, durationSeconds int) (media.Token, error)
}

type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service runs the upload pipeline: authorization, payload validation,
// capability lookup, derivative generation, optional original retention and
// token issuance, persistence, and capability-shaped response building.
type Service struct {
	storage Storage
	policy  TierPolicy
	derive  Generator
	tokens  TokenIssuer
	blobs   BlobStore
	baseURL string
}

func NewService(storage Storage, policy TierPolicy, derive Generator, tokens TokenIssuer, blobs BlobStore, baseURL string) *Service {
	return &Service{
		storage: storage,
		policy:  policy,
		derive:  derive,
		tokens:  tokens,
		blobs:   blobs,
		baseURL: baseURL,
	}
}

// Result is the upload response payload. The field set depends on the
// uploader's capabilities; absent features marshal to absent fields.
type Result struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	Image            string `json:"image,omitempty"`
	ThumbnailLink    string `json:"thumbnail_link,omitempty"`
	ThumbnailLink200 string `json:"thumbnail_link_200,omitempty"`
	ThumbnailLink400 string `json:"thumbnail_link_400,omitempty"`
	ExpiredLink      string `json:"expired_link,omitempty"`
	ExpiredTime      int    `json:"expired_time,omitempty"`
}

// Upload processes one submission. The pipeline is linear with no retries;
// the first failing step terminates the request.
func (s *Service) Upload(ctx context.Context, userID, fileName, contentType string, image []byte, duration *int) (Result, error) {
	// Authorization
	if userID == "" {
		return Result{}, ErrUnauthorized
	}
	user, err := s.storage.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, ErrUnauthorized
	}
	if err != nil {
		return Result{}, err
	}

	// Payload
	if len(image) == 0 {
		return Result{}, ErrMissingImage
	}
	ext, ok := acceptedFormats[contentType]
	if !ok {
		return Result{}, ErrUnsupportedFormat
	}

	// Capability lookup; a missing tier surfaces as tiers.ErrNoTier.
	caps, err := s.policy.CapabilitiesFor(ctx, user)
	if err != nil {
		return Result{}, err
	}

	bundle, err := s.derive.Generate(ctx, user.ID, image, caps)
	if err != nil {
		return Result{}, err
	}

	written := []string{bundle.SmallKey}
	if bundle.LargeKey != "" {
		written = append(written, bundle.LargeKey)
	}

	m := media.Media{
		ID:          uuid.NewString(),
		OwnerID:     user.ID,
		FileName:    fileName,
		ContentType: contentType,
		Thumb200Key: bundle.SmallKey,
		Thumb400Key: bundle.LargeKey,
		CreatedAt:   time.Now().UTC(),
	}

	var originalURL string
	if caps.OriginalPhoto {
		m.OriginalKey = blob.ObjectKey(user.ID, "originals", ext)
		originalURL, err = s.blobs.Put(ctx, m.OriginalKey, contentType, image)
		if err != nil {
			s.cleanupBlobs(ctx, written)
			return Result{}, fmt.Errorf("failed to store original: %w", err)
		}
		written = append(written, m.OriginalKey)
	}

	// An expiring-link tier must supply a duration; silence is an error,
	// not a skip.
	if caps.ExpiringLink {
		if duration == nil {
			s.cleanupBlobs(ctx, written)
			return Result{}, ErrMissingDuration
		}
		if *duration < MinDurationSeconds || *duration > MaxDurationSeconds {
			s.cleanupBlobs(ctx, written)
			return Result{}, ErrInvalidDuration
		}
		m.ExpiredTime = *duration
	}

	if err := s.storage.CreateMedia(ctx, m); err != nil {
		s.cleanupBlobs(ctx, written)
		return Result{}, err
	}

	result := Result{
		ID:    m.ID,
		Owner: m.OwnerID,
		Image: originalURL,
	}
	if bundle.LargeURL != "" {
		result.ThumbnailLink200 = bundle.SmallURL
		result.ThumbnailLink400 = bundle.LargeURL
	} else {
		result.ThumbnailLink = bundle.SmallURL
	}

	if caps.ExpiringLink {
		token, err := s.tokens.Issue(ctx, m.ID, m.ExpiredTime)
		if err != nil {
			if derr := s.storage.DeleteMedia(ctx, m.ID); derr != nil {
				slog.Error("failed to roll back media record", slog.String("media_id", m.ID), slog.String("error", derr.Error()))
			}
			s.cleanupBlobs(ctx, written)
			return Result{}, err
		}
		result.ExpiredLink = fmt.Sprintf("%s/token/%s", s.baseURL, token.Value)
		result.ExpiredTime = m.ExpiredTime
	}

	slog.Info("Media uploaded", slog.String("media_id", m.ID), slog.String("owner_id", m.OwnerID))

	return result, nil
}

// cleanupBlobs is best-effort compensation for blobs written before a later
// step failed.
func (s *Service) cleanupBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			slog.Error("failed to clean up blob", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}
