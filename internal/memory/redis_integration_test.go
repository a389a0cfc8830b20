//go:build integration

package memory

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// openIntegrationRedis connects to KOPI_TEST_REDIS_URL (default
// redis://localhost:6379/15) and skips when no server answers.
func openIntegrationRedis(t *testing.T) *RedisStore {
	t.Helper()

	url := os.Getenv("KOPI_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := OpenRedisStore(ctx, url, time.Minute)
	if err != nil {
		t.Skipf("Redis not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := openIntegrationRedis(t)
	ctx := context.Background()
	id := uuid.New().String()
	t.Cleanup(func() { s.Delete(ctx, id) })

	if _, err := s.Get(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error = %v, want ErrSessionNotFound", err)
	}

	c := New(id)
	c.Append(RoleUser, "opening hours ss2")
	c.SetSlot(SlotLocation, "SS2")
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Len() != 1 || got.Turns()[0].Text != "opening hours ss2" {
		t.Errorf("turns = %+v", got.Turns())
	}
	if v, _ := got.Slot(SlotLocation); v != "SS2" {
		t.Errorf("location = %q, want SS2", v)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("after delete error = %v", err)
	}
}
