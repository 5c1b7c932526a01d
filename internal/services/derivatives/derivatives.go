package derivatives

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/tieredmedia/images-service/internal/services/blob"
	"github.com/tieredmedia/images-service/internal/types"
)

// ErrInvalidImageFormat is returned when the source bytes cannot be decoded.
var ErrInvalidImageFormat = errors.New("invalid image format")

const (
	// SmallEdge and LargeEdge cap the long edge of the two renditions.
	SmallEdge = 200
	LargeEdge = 400

	// Renditions are always encoded as JPEG so downstream consumers get a
	// predictable content type regardless of the upload format.
	renditionContentType = "image/jpeg"
	renditionExt         = ".jpg"
)

// BlobStore persists renditions as immutable objects.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Bundle holds the stored rendition keys and their retrieval URLs.
// Large fields are empty on the single-rendition path.
type Bundle struct {
	SmallKey string
	SmallURL string
	LargeKey string
	LargeURL string
}

type Generator struct {
	blobs BlobStore
}

func NewGenerator(blobs BlobStore) *Generator {
	return &Generator{blobs: blobs}
}

// Generate decodes source, normalizes orientation, and produces the
// renditions the capabilities call for: the small one always, the large one
// only for tiers with thumbnails. All renditions are encoded before any blob
// write, so a decode or encode failure persists nothing.
func (g *Generator) Generate(ctx context.Context, ownerID string, source []byte, caps types.Capabilities) (Bundle, error) {
	img, err := imaging.Decode(bytes.NewReader(source), imaging.AutoOrientation(true))
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidImageFormat, err)
	}

	small, err := encodeRendition(img, SmallEdge)
	if err != nil {
		return Bundle{}, err
	}

	var large []byte
	if caps.Thumbnails {
		large, err = encodeRendition(img, LargeEdge)
		if err != nil {
			return Bundle{}, err
		}
	}

	var bundle Bundle
	bundle.SmallKey = blob.ObjectKey(ownerID, "thumbnails", renditionExt)
	bundle.SmallURL, err = g.blobs.Put(ctx, bundle.SmallKey, renditionContentType, small)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to store small rendition: %w", err)
	}

	if large != nil {
		bundle.LargeKey = blob.ObjectKey(ownerID, "thumbnails", renditionExt)
		bundle.LargeURL, err = g.blobs.Put(ctx, bundle.LargeKey, renditionContentType, large)
		if err != nil {
			// Keep the bundle all-or-nothing.
			_ = g.blobs.Delete(ctx, bundle.SmallKey)
			return Bundle{}, fmt.Errorf("failed to store large rendition: %w", err)
		}
	}

	return bundle, nil
}

// encodeRendition fits img into a maxEdge square, preserving aspect ratio
// and never upscaling, then encodes it as JPEG.
func encodeRendition(img image.Image, maxEdge int) ([]byte, error) {
	resized := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("failed to encode rendition: %w", err)
	}

	return buf.Bytes(), nil
}
