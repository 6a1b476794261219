package claim

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestStores returns two stores with different owners sharing one
// in-memory Redis, mimicking two bot replicas.
func newTestStores(t *testing.T, ttl time.Duration) (*Store, *Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, "replica-a", ttl), NewStore(client, "replica-b", ttl), mr
}

func TestClaim_FirstWins(t *testing.T) {
	a, b, _ := newTestStores(t, time.Minute)
	ctx := context.Background()

	ok, err := a.Claim(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if !ok {
		t.Fatal("expected first claim to succeed")
	}

	ok, err = b.Claim(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if ok {
		t.Error("expected second replica to lose the claim")
	}

	owner, err := b.Owner(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Owner() error: %v", err)
	}
	if owner != "replica-a" {
		t.Errorf("Owner() = %q, want %q", owner, "replica-a")
	}
}

func TestClaim_Reentrant(t *testing.T) {
	a, _, _ := newTestStores(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := a.Claim(ctx, "msg-2")
		if err != nil {
			t.Fatalf("Claim() #%d error: %v", i, err)
		}
		if !ok {
			t.Fatalf("Claim() #%d = false, want true for the same owner", i)
		}
	}
}

func TestClaim_TTL(t *testing.T) {
	a, b, mr := newTestStores(t, 30*time.Second)
	ctx := context.Background()

	if _, err := a.Claim(ctx, "msg-3"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if ttl := mr.TTL(Prefix + "msg-3"); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", ttl)
	}

	mr.FastForward(31 * time.Second)

	ok, err := b.Claim(ctx, "msg-3")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if !ok {
		t.Error("expected claim to be available after expiry")
	}
}

func TestRelease(t *testing.T) {
	a, b, _ := newTestStores(t, time.Minute)
	ctx := context.Background()

	if _, err := a.Claim(ctx, "msg-4"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if err := a.Release(ctx, "msg-4"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	owner, err := a.Owner(ctx, "msg-4")
	if err != nil {
		t.Fatalf("Owner() error: %v", err)
	}
	if owner != "" {
		t.Errorf("Owner() after release = %q, want empty", owner)
	}

	ok, _ := b.Claim(ctx, "msg-4")
	if !ok {
		t.Error("expected other replica to claim after release")
	}
}

func TestNewStore_DefaultTTL(t *testing.T) {
	s := NewStore(nil, "x", 0)
	if s.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", s.ttl, DefaultTTL)
	}
}

func TestClaim_RedisDown(t *testing.T) {
	a, _, mr := newTestStores(t, time.Minute)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := a.Claim(ctx, "msg-5"); err == nil {
		t.Error("expected error when Redis is unavailable")
	}
}
