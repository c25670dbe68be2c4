package lockstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

func TestMemoryLockerExclusive(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "cycle:tick-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire ok=%v err=%v", ok, err)
	}
	ok, _ = l.Acquire(ctx, "cycle:tick-1", time.Minute)
	if ok {
		t.Fatalf("second acquire ok=true want=false")
	}
	ok, _ = l.Acquire(ctx, "cycle:tick-2", time.Minute)
	if !ok {
		t.Fatalf("other key ok=false want=true")
	}
	if err := l.Release(ctx, "cycle:tick-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = l.Acquire(ctx, "cycle:tick-1", time.Minute)
	if !ok {
		t.Fatalf("acquire after release ok=false want=true")
	}
}

func TestMemoryLockerExpires(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if ok, _ := l.Acquire(context.Background(), "k", time.Minute); !ok {
		t.Fatalf("acquire ok=false")
	}
	now = now.Add(59 * time.Second)
	if ok, _ := l.Acquire(context.Background(), "k", time.Minute); ok {
		t.Fatalf("acquire before expiry ok=true")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := l.Acquire(context.Background(), "k", time.Minute); !ok {
		t.Fatalf("acquire after expiry ok=false")
	}
}

func TestMemoryLockerSingleWinner(t *testing.T) {
	l := NewMemoryLocker()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Acquire(context.Background(), "cycle:x", time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins=%d want=1", wins)
	}
}

func TestMemoryLockerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, err := NewMemoryLocker().Acquire(ctx, "k", time.Minute); ok || err == nil {
		t.Fatalf("ok=%v err=%v want=false,ctx error", ok, err)
	}
}

func TestNewBackendSelection(t *testing.T) {
	cases := []struct {
		cfg  config.LockConfig
		want string
	}{
		{config.LockConfig{}, "memory"},
		{config.LockConfig{Backend: "redis"}, "memory"},
		{config.LockConfig{Backend: "etcd"}, "memory"},
		{config.LockConfig{Backend: "Redis", RedisAddr: "127.0.0.1:6379"}, "redis"},
	}
	for _, tc := range cases {
		got := "memory"
		l := New(tc.cfg, nil)
		if r, ok := l.(*RedisLocker); ok {
			got = "redis"
			_ = r.Close()
		}
		if got != tc.want {
			t.Fatalf("cfg=%+v got=%s want=%s", tc.cfg, got, tc.want)
		}
	}
}

func TestRedisReleaseWithoutAcquireIsNoop(t *testing.T) {
	r := NewRedisLocker(&redis.Options{Addr: "127.0.0.1:1"})
	defer r.Close()
	if err := r.Release(context.Background(), "never-acquired"); err != nil {
		t.Fatalf("release err=%v", err)
	}
}
