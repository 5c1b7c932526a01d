package tokens

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/tieredmedia/images-service/internal/storage"
	"github.com/tieredmedia/images-service/internal/types/media"
)

var (
	// ErrTokenNotFound means no token record matches the value.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired means the token exists but its expiration has passed.
	// The record is retained; expiry never degrades into "not found".
	ErrTokenExpired = errors.New("token expired")
)

const (
	tokenLength  = 32
	tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Storage is the subset of the persistence layer the ledger needs.
type Storage interface {
	CreateToken(ctx context.Context, t media.Token) error
	GetTokenByValue(ctx context.Context, value string) (media.Token, error)
	GetMediaByID(ctx context.Context, id string) (media.Media, error)
}

// Ledger issues and resolves expiring access tokens bound to media records.
type Ledger struct {
	storage Storage
	now     func() time.Time
}

func NewLedger(storage Storage) *Ledger {
	return &Ledger{
		storage: storage,
		now:     time.Now,
	}
}

// Issue creates a token for mediaID expiring durationSeconds from now.
// Collisions are left to the primary-key constraint; at 62^32 values they
// are outside the probability budget.
func (l *Ledger) Issue(ctx context.Context, mediaID string, durationSeconds int) (media.Token, error) {
	value, err := generateValue()
	if err != nil {
		return media.Token{}, fmt.Errorf("failed to generate token value: %w", err)
	}

	token := media.Token{
		Value:     value,
		MediaID:   mediaID,
		ExpiresAt: l.now().Add(time.Duration(durationSeconds) * time.Second),
	}

	if err := l.storage.CreateToken(ctx, token); err != nil {
		return media.Token{}, err
	}

	return token, nil
}

// Resolve maps a token value to its media record. The existence check comes
// before the expiry check, and expiry is judged against the resolution-time
// clock.
func (l *Ledger) Resolve(ctx context.Context, value string) (media.Media, error) {
	token, err := l.storage.GetTokenByValue(ctx, value)
	if errors.Is(err, storage.ErrNotFound) {
		return media.Media{}, ErrTokenNotFound
	}
	if err != nil {
		return media.Media{}, err
	}

	if token.ExpiresAt.Before(l.now()) {
		return media.Media{}, ErrTokenExpired
	}

	return l.storage.GetMediaByID(ctx, token.MediaID)
}

func generateValue() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = tokenCharset[int(b)%len(tokenCharset)]
	}

	return string(buf), nil
}
