package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 10,
		Burst:             5,
		Cooldown:          100 * time.Millisecond,
	})

	// Should allow up to burst count immediately
	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}

	if allowed != 5 {
		t.Errorf("expected 5 allowed from burst, got %d", allowed)
	}
}

func TestLimiter_Refill(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 100, // refills fast
		Burst:             2,
		Cooldown:          0,
	})

	// Drain the bucket
	for lim.Allow() {
	}

	// Wait for tokens to refill
	time.Sleep(50 * time.Millisecond)

	if !lim.Allow() {
		t.Error("expected token to be available after refill period")
	}
}

func TestLimiter_BurstCap(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 1000,
		Burst:             3,
		Cooldown:          0,
	})

	// Even after a long sleep, tokens should not exceed burst
	time.Sleep(100 * time.Millisecond)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}

	if allowed > 3 {
		t.Errorf("burst cap exceeded: got %d allowed, want <= 3", allowed)
	}
}

func TestLimiter_Wait_ContextCanceled(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 1,
		Burst:             1,
		Cooldown:          0,
	})

	// Drain the token
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := lim.Wait(ctx); err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestManager_PerKeyLimiters(t *testing.T) {
	mgr := NewManager(Config{
		RequestsPerSecond: 1000,
		Burst:             1,
		Cooldown:          0,
	})

	// Each key gets its own bucket
	if !mgr.GetLimiter("quotes").Allow() {
		t.Error("expected first request for quotes to be allowed")
	}
	if !mgr.GetLimiter("fx").Allow() {
		t.Error("expected first request for fx to be allowed")
	}
	if mgr.GetLimiter("quotes") != mgr.GetLimiter("quotes") {
		t.Error("expected same limiter instance per key")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	mgr := NewManager(Config{
		RequestsPerSecond: 1000,
		Burst:             100,
		Cooldown:          0,
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				mgr.GetLimiter("quotes").Allow()
			}
		}()
	}
	wg.Wait()
}
