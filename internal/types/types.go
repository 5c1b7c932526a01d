package types

// Capabilities are the three independent feature axes a tier can grant.
// They are not ordered: a tier may grant any combination.
type Capabilities struct {
	Thumbnails    bool `json:"thumbnails"`
	OriginalPhoto bool `json:"original_photo"`
	ExpiringLink  bool `json:"expiring_link"`
}

type Tier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Capabilities
}

// Default tier names seeded on first initialization.
const (
	TierBasic      = "Basic"
	TierPremium    = "Premium"
	TierEnterprise = "Enterprise"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	// TierID is empty for users with no tier assigned; such users
	// cannot upload.
	TierID string `json:"tier_id,omitempty"`
}
