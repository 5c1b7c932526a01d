package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/tieredmedia/images-service/internal/config"
	"github.com/tieredmedia/images-service/internal/storage"
	"github.com/tieredmedia/images-service/internal/types"
	"github.com/tieredmedia/images-service/internal/types/media"
)

type Postgres struct {
	Db *sql.DB
}

func NewPostgres(cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PGSQL.Host, cfg.PGSQL.Port, cfg.PGSQL.User, cfg.PGSQL.Password, cfg.PGSQL.DBName, cfg.PGSQL.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	pg := &Postgres{Db: db}
	if err := pg.CreateTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return pg, nil
}

func (p *Postgres) CreateTables() error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS tiers (
			id UUID PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			thumbnails BOOLEAN NOT NULL DEFAULT FALSE,
			original_photo BOOLEAN NOT NULL DEFAULT FALSE,
			expiring_link BOOLEAN NOT NULL DEFAULT FALSE
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(255) UNIQUE NOT NULL,
			password TEXT NOT NULL,
			tier_id UUID REFERENCES tiers(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS media (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			file_name VARCHAR(255) NOT NULL,
			content_type VARCHAR(100) NOT NULL,
			original_key VARCHAR(512),
			thumb_200_key VARCHAR(512),
			thumb_400_key VARCHAR(512),
			expired_time INTEGER CHECK (expired_time BETWEEN 300 AND 30000),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS tokens (
			value VARCHAR(32) PRIMARY KEY,
			media_id UUID UNIQUE NOT NULL REFERENCES media(id) ON DELETE CASCADE,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
	}

	for _, q := range queries {
		if _, err := p.Db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// Seed creates the three default tiers and an admin account if missing.
// It replaces the signal-driven bootstrap of earlier deployments and is
// safe to run on every start.
func (p *Postgres) Seed(ctx context.Context, adminUsername, adminPasswordHash string) error {
	var tierCount int
	if err := p.Db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiers`).Scan(&tierCount); err != nil {
		return err
	}

	if tierCount == 0 {
		defaults := []types.Tier{
			{Name: types.TierBasic},
			{Name: types.TierPremium, Capabilities: types.Capabilities{Thumbnails: true, OriginalPhoto: true}},
			{Name: types.TierEnterprise, Capabilities: types.Capabilities{Thumbnails: true, OriginalPhoto: true, ExpiringLink: true}},
		}
		for _, t := range defaults {
			_, err := p.Db.ExecContext(ctx, `
			INSERT INTO tiers (id, name, thumbnails, original_photo, expiring_link)
			VALUES ($1, $2, $3, $4, $5)
			`, uuid.NewString(), t.Name, t.Thumbnails, t.OriginalPhoto, t.ExpiringLink)
			if err != nil {
				return err
			}
		}
	}

	var userCount int
	if err := p.Db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&userCount); err != nil {
		return err
	}

	if userCount == 0 {
		_, err := p.Db.ExecContext(ctx, `
		INSERT INTO users (id, username, password)
		VALUES ($1, $2, $3)
		`, uuid.NewString(), adminUsername, adminPasswordHash)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash string) (string, error) {
	id := uuid.NewString()
	query := `
	INSERT INTO users (id, username, password)
	VALUES ($1, $2, $3)
	`

	if _, err := p.Db.ExecContext(ctx, query, id, username, passwordHash); err != nil {
		return "", err
	}

	return id, nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (types.User, error) {
	var u types.User
	var tierID sql.NullString
	query := `
	SELECT id, username, password, tier_id FROM users WHERE id = $1
	`

	err := p.Db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Password, &tierID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, storage.ErrNotFound
	}
	if err != nil {
		return types.User{}, err
	}

	u.TierID = tierID.String
	return u, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (types.User, error) {
	var u types.User
	var tierID sql.NullString
	query := `
	SELECT id, username, password, tier_id FROM users WHERE username = $1
	`

	err := p.Db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password, &tierID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, storage.ErrNotFound
	}
	if err != nil {
		return types.User{}, err
	}

	u.TierID = tierID.String
	return u, nil
}

func (p *Postgres) GetTierByID(ctx context.Context, id string) (types.Tier, error) {
	var t types.Tier
	query := `
	SELECT id, name, thumbnails, original_photo, expiring_link FROM tiers WHERE id = $1
	`

	err := p.Db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Thumbnails, &t.OriginalPhoto, &t.ExpiringLink)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Tier{}, storage.ErrNotFound
	}
	if err != nil {
		return types.Tier{}, err
	}

	return t, nil
}

func (p *Postgres) CreateMedia(ctx context.Context, m media.Media) error {
	query := `
	INSERT INTO media (id, owner_id, file_name, content_type, original_key, thumb_200_key, thumb_400_key, expired_time)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, 0))
	`

	_, err := p.Db.ExecContext(ctx, query,
		m.ID, m.OwnerID, m.FileName, m.ContentType,
		m.OriginalKey, m.Thumb200Key, m.Thumb400Key, m.ExpiredTime)
	return err
}

func (p *Postgres) GetMediaByID(ctx context.Context, id string) (media.Media, error) {
	query := `
	SELECT m.id, m.owner_id, m.file_name, m.content_type,
	       COALESCE(m.original_key, ''), COALESCE(m.thumb_200_key, ''), COALESCE(m.thumb_400_key, ''),
	       COALESCE(m.expired_time, 0), m.created_at, COALESCE(t.value, '')
	FROM media m
	LEFT JOIN tokens t ON t.media_id = m.id
	WHERE m.id = $1
	`

	var m media.Media
	err := p.Db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.OwnerID, &m.FileName, &m.ContentType,
		&m.OriginalKey, &m.Thumb200Key, &m.Thumb400Key,
		&m.ExpiredTime, &m.CreatedAt, &m.TokenValue)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Media{}, storage.ErrNotFound
	}
	if err != nil {
		return media.Media{}, err
	}

	return m, nil
}

func (p *Postgres) DeleteMedia(ctx context.Context, id string) error {
	_, err := p.Db.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	return err
}

func (p *Postgres) ListMediaByOwner(ctx context.Context, ownerID string) ([]media.Media, error) {
	query := `
	SELECT m.id, m.owner_id, m.file_name, m.content_type,
	       COALESCE(m.original_key, ''), COALESCE(m.thumb_200_key, ''), COALESCE(m.thumb_400_key, ''),
	       COALESCE(m.expired_time, 0), m.created_at, COALESCE(t.value, '')
	FROM media m
	LEFT JOIN tokens t ON t.media_id = m.id
	WHERE m.owner_id = $1
	ORDER BY m.created_at DESC
	`

	rows, err := p.Db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []media.Media
	for rows.Next() {
		var m media.Media
		err := rows.Scan(
			&m.ID, &m.OwnerID, &m.FileName, &m.ContentType,
			&m.OriginalKey, &m.Thumb200Key, &m.Thumb400Key,
			&m.ExpiredTime, &m.CreatedAt, &m.TokenValue)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}

	return items, rows.Err()
}

func (p *Postgres) CreateToken(ctx context.Context, t media.Token) error {
	query := `
	INSERT INTO tokens (value, media_id, expires_at)
	VALUES ($1, $2, $3)
	`

	_, err := p.Db.ExecContext(ctx, query, t.Value, t.MediaID, t.ExpiresAt)
	return err
}

func (p *Postgres) GetTokenByValue(ctx context.Context, value string) (media.Token, error) {
	query := `
	SELECT value, media_id, expires_at, created_at FROM tokens WHERE value = $1
	`

	var t media.Token
	err := p.Db.QueryRowContext(ctx, query, value).Scan(&t.Value, &t.MediaID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return media.Token{}, storage.ErrNotFound
	}
	if err != nil {
		return media.Token{}, err
	}

	return t, nil
}
