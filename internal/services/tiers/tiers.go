package tiers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/tieredmedia/images-service/internal/types"
)

// ErrNoTier is returned for users with no tier assigned.
var ErrNoTier = errors.New("user does not have a valid tier")

// Storage is the subset of the persistence layer the policy needs.
type Storage interface {
	GetTierByID(ctx context.Context, id string) (types.Tier, error)
}

// Service resolves tier capabilities. Tiers are read-mostly configuration,
// so lookups go through a short-lived Redis cache in front of Postgres.
type Service struct {
	storage Storage
	redis   *redis.Client
}

const (
	tierCacheKey      = "tier:%s" // tier:tierID
	tierCacheDuration = 5 * time.Minute
)

func NewService(storage Storage, redisClient *redis.Client) *Service {
	return &Service{
		storage: storage,
		redis:   redisClient,
	}
}

// CapabilitiesFor returns the capability flags of the user's tier.
// A user without a tier gets ErrNoTier, never a zero-value grant.
func (s *Service) CapabilitiesFor(ctx context.Context, user types.User) (types.Capabilities, error) {
	if user.TierID == "" {
		return types.Capabilities{}, ErrNoTier
	}

	tier, err := s.tierByID(ctx, user.TierID)
	if err != nil {
		return types.Capabilities{}, err
	}

	return tier.Capabilities, nil
}

func (s *Service) tierByID(ctx context.Context, id string) (types.Tier, error) {
	key := fmt.Sprintf(tierCacheKey, id)

	// Try cache first
	cached, err := s.redis.Get(ctx, key).Result()
	if err == nil {
		var tier types.Tier
		if err := json.Unmarshal([]byte(cached), &tier); err == nil {
			return tier, nil
		}
	}

	// Cache miss - fetch from database
	tier, err := s.storage.GetTierByID(ctx, id)
	if err != nil {
		return types.Tier{}, err
	}

	data, _ := json.Marshal(tier)
	s.redis.Set(ctx, key, data, tierCacheDuration)

	return tier, nil
}

// Invalidate drops a cached tier, for use after an admin edit.
func (s *Service) Invalidate(ctx context.Context, id string) {
	s.redis.Del(ctx, fmt.Sprintf(tierCacheKey, id))
}
