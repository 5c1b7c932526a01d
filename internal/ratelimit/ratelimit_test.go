package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// setupTestRedis creates an in-memory Redis server for testing
func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	// Test connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Failed to connect to test Redis: %v", err)
	}

	cleanup := func() {
		redisClient.Close()
		mr.Close()
	}

	return redisClient, cleanup
}

func TestTokenBucket_Allow(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 5, 5)

	ctx := context.Background()
	userID := "test_user"
	action := "uploads"

	for i := 0; i < 5; i++ {
		allowed, err := bucket.Allow(ctx, userID, action)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}

	allowed, err := bucket.Allow(ctx, userID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("Expected request to be denied after limit reached")
	}

	remaining, err := bucket.GetRemaining(ctx, userID, action)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("Expected 0 remaining tokens, got %d", remaining)
	}
}

func TestTokenBucket_UsersAreIndependent(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 1, 1)
	ctx := context.Background()

	allowed, err := bucket.Allow(ctx, "user_a", "uploads")
	if err != nil || !allowed {
		t.Fatalf("user_a first request: allowed=%v err=%v", allowed, err)
	}
	allowed, err = bucket.Allow(ctx, "user_a", "uploads")
	if err != nil || allowed {
		t.Fatalf("user_a second request should be denied: allowed=%v err=%v", allowed, err)
	}

	// Another user still has a full bucket.
	allowed, err = bucket.Allow(ctx, "user_b", "uploads")
	if err != nil || !allowed {
		t.Fatalf("user_b first request: allowed=%v err=%v", allowed, err)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	bucket := NewTokenBucket(redisClient, 2, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, err := bucket.Allow(ctx, "user", "uploads"); err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, allowed, err)
		}
	}

	if err := bucket.Reset(ctx, "user", "uploads"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	allowed, err := bucket.Allow(ctx, "user", "uploads")
	if err != nil || !allowed {
		t.Fatalf("request after reset: allowed=%v err=%v", allowed, err)
	}
}
