package storage

import (
	"context"
	"errors"

	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type Storage interface {
	CreateUser(ctx context.Context, username, passwordHash string) (string, error)
	GetUserByID(ctx context.Context, id string) (types.User, error)
	GetUserByUsername(ctx context.Context, username string) (types.User, error)

	GetTierByID(ctx context.Context, id string) (types.Tier, error)

	CreateMedia(ctx context.Context, m media.Media) error
	GetMediaByID(ctx context.Context, id string) (media.Media, error)
	DeleteMedia(ctx context.Context, id string) error
	ListMediaByOwner(ctx context.Context, ownerID string) ([]media.Media, error)

	CreateToken(ctx context.Context, t media.Token) error
	GetTokenByValue(ctx context.Context, value string) (media.Token, error)
}
