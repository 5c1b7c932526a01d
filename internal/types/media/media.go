package media

import "time"

// Media is one upload and its derived artifacts. OriginalKey is empty when
// the owner's tier did not retain the original; Thumb400Key is empty for
// single-rendition tiers. A Media row never has both an empty OriginalKey
// and no thumbnail keys.
type Media struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	OriginalKey string    `json:"original_key,omitempty"`
	Thumb200Key string    `json:"thumb_200_key,omitempty"`
	Thumb400Key string    `json:"thumb_400_key,omitempty"`
	// TokenValue is set when an expiring link was issued for this upload.
	TokenValue  string    `json:"-"`
	// ExpiredTime is the link duration in seconds, 0 when no expiring link.
	ExpiredTime int       `json:"expired_time,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Token grants anonymous, time-bounded access to one Media's original file.
// Expired tokens are retained so resolution can tell "expired" from
// "not found".
type Token struct {
	Value     string    `json:"value"`
	MediaID   string    `json:"media_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
