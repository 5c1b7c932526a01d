package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tieredmedia/images-service/internal/storage"
	"github.com/tieredmedia/images-service/internal/types/media"
)

type fakeStorage struct {
	tokens map[string]media.Token
	media  map[string]media.Media
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		tokens: make(map[string]media.Token),
		media:  make(map[string]media.Media),
	}
}

func (f *fakeStorage) CreateToken(ctx context.Context, t media.Token) error {
	f.tokens[t.Value] = t
	return nil
}

func (f *fakeStorage) GetTokenByValue(ctx context.Context, value string) (media.Token, error) {
	t, ok := f.tokens[value]
	if !ok {
		return media.Token{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStorage) GetMediaByID(ctx context.Context, id string) (media.Media, error) {
	m, ok := f.media[id]
	if !ok {
		return media.Media{}, storage.ErrNotFound
	}
	return m, nil
}

func newTestLedger(store *fakeStorage, now time.Time) *Ledger {
	l := NewLedger(store)
	l.now = func() time.Time { return now }
	return l
}

func TestIssue(t *testing.T) {
	store := newFakeStorage()
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger := newTestLedger(store, issuedAt)

	token, err := ledger.Issue(context.Background(), "media1", 3600)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if len(token.Value) != tokenLength {
		t.Errorf("token length = %d, want %d", len(token.Value), tokenLength)
	}
	for _, c := range token.Value {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			t.Fatalf("token contains non-alphanumeric character %q", c)
		}
	}

	want := issuedAt.Add(3600 * time.Second)
	if !token.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want issuedAt + duration = %v", token.ExpiresAt, want)
	}

	if _, ok := store.tokens[token.Value]; !ok {
		t.Error("token was not persisted")
	}
}

func TestIssue_ValuesAreUnique(t *testing.T) {
	store := newFakeStorage()
	ledger := NewLedger(store)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := ledger.Issue(context.Background(), "media1", 300)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[token.Value] {
			t.Fatalf("duplicate token value %s", token.Value)
		}
		seen[token.Value] = true
	}
}

func TestResolve_Valid(t *testing.T) {
	store := newFakeStorage()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger := newTestLedger(store, now)

	store.media["media1"] = media.Media{ID: "media1", OwnerID: "u1", OriginalKey: "users/u1/originals/x.jpg"}
	token, err := ledger.Issue(context.Background(), "media1", 300)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Just before expiry.
	ledger.now = func() time.Time { return now.Add(299 * time.Second) }
	m, err := ledger.Resolve(context.Background(), token.Value)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.ID != "media1" {
		t.Errorf("resolved media ID = %s, want media1", m.ID)
	}
}

func TestResolve_Expired(t *testing.T) {
	store := newFakeStorage()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ledger := newTestLedger(store, now)

	store.media["media1"] = media.Media{ID: "media1"}
	token, err := ledger.Issue(context.Background(), "media1", 300)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Strictly after expiry: Expired, never NotFound.
	ledger.now = func() time.Time { return now.Add(301 * time.Second) }
	_, err = ledger.Resolve(context.Background(), token.Value)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	// The record is retained: resolving again still says expired.
	_, err = ledger.Resolve(context.Background(), token.Value)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on repeat resolve, got %v", err)
	}
}

func TestResolve_Unknown(t *testing.T) {
	store := newFakeStorage()
	ledger := NewLedger(store)

	// Existing tokens must not affect the outcome for unknown values.
	if _, err := ledger.Issue(context.Background(), "media1", 300); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	_, err := ledger.Resolve(context.Background(), "nosuchtokenvalue")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
