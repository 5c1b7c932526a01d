package visibility

import (
	"fmt"

	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
)

// URLResolver maps a stored object key to its retrieval URL.
type URLResolver interface {
	URL(key string) string
}

// Projection is the per-record listing payload. Fields a viewer is not
// entitled to marshal to absent fields, replacing the old approach of
// popping entries out of a generic serializer.
type Projection struct {
	ID           string `json:"id"`
	Thumbnail200 string `json:"thumbnail_200,omitempty"`
	Thumbnail400 string `json:"thumbnail_400,omitempty"`
	Image        string `json:"image,omitempty"`
	Owner        string `json:"owner,omitempty"`
	ExpiredLink  string `json:"expired_link,omitempty"`
	ExpiredTime  int    `json:"expired_time,omitempty"`
}

// Project builds the listing view of one media record for a viewer with the
// given capabilities. Identifier, existing derivative links, and the
// expiring-link URL are always exposed; the original image link and owner
// only for viewers whose tier retains originals; the duration only when an
// expiring link exists. Token expiry is not checked here, only at
// resolution.
func Project(m media.Media, viewerCaps types.Capabilities, urls URLResolver, baseURL string) Projection {
	p := Projection{ID: m.ID}

	if m.Thumb200Key != "" {
		p.Thumbnail200 = urls.URL(m.Thumb200Key)
	}
	if m.Thumb400Key != "" {
		p.Thumbnail400 = urls.URL(m.Thumb400Key)
	}

	if m.TokenValue != "" {
		p.ExpiredLink = fmt.Sprintf("%s/token/%s", baseURL, m.TokenValue)
		p.ExpiredTime = m.ExpiredTime
	}

	if viewerCaps.OriginalPhoto {
		if m.OriginalKey != "" {
			p.Image = urls.URL(m.OriginalKey)
		}
		p.Owner = m.OwnerID
	}

	return p
}
