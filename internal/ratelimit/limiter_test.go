package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func keyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`(10|192)\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: Requests within burst succeed
// =============================================================================

func testRateLimiter_RequestsWithinBurst(t *rapid.T) {
	config := Config{RPS: 0.001, Burst: rapid.IntRange(1, 50).Draw(t, "burst"), CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < config.Burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of burst %d should have been allowed", i+1, config.Burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request beyond burst %d should have been blocked", config.Burst)
	}
}

func TestRateLimiter_RequestsWithinBurst(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinBurst)
}

func FuzzRateLimiter_RequestsWithinBurst(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinBurst))
}

// =============================================================================
// Property: Different keys have independent limits
// =============================================================================

func testRateLimiter_KeyIndependence(t *rapid.T) {
	config := Config{RPS: 0.001, Burst: 3, CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	a := keyGenerator().Draw(t, "a")
	b := keyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	for i := 0; i < config.Burst; i++ {
		rl.Allow(a)
	}
	if rl.Allow(a) {
		t.Fatal("key a should be exhausted")
	}
	if !rl.Allow(b) {
		t.Fatal("key b must not be affected by key a")
	}
}

func TestRateLimiter_KeyIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeyIndependence)
}

// =============================================================================
// Property: Idle limiters get cleaned up, active ones stay
// =============================================================================

func testRateLimiter_IdleLimiterCleanup(t *rapid.T) {
	interval := time.Duration(rapid.IntRange(1, 3600).Draw(t, "intervalSecs")) * time.Second
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()
	rl.config.CleanupInterval = interval

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	idle := keyGenerator().Draw(t, "idle")
	active := keyGenerator().Filter(func(s string) bool { return s != idle }).Draw(t, "active")

	rl.GetLimiter(idle)
	now = now.Add(interval + time.Second)
	rl.GetLimiter(active)
	rl.Cleanup()

	if rl.Len() != 1 {
		t.Fatalf("expected only the active limiter to survive, have %d", rl.Len())
	}
	rl.mu.Lock()
	_, ok := rl.limiters[active]
	rl.mu.Unlock()
	if !ok {
		t.Fatal("active limiter was cleaned up")
	}
}

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rapid.Check(t, testRateLimiter_IdleLimiterCleanup)
}

// =============================================================================
// Property: GetLimiter is stable per key and safe for concurrent use
// =============================================================================

func TestRateLimiter_GetLimiterConsistency(t *testing.T) {
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()

	if rl.GetLimiter("k") != rl.GetLimiter("k") {
		t.Fatal("same key must return the same limiter")
	}
	if rl.GetLimiter("k") == rl.GetLimiter("j") {
		t.Fatal("different keys must not share a limiter")
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 100, CleanupInterval: time.Hour})
	defer rl.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if rl.Allow("shared") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 100 {
		t.Fatalf("allowed %d requests, want exactly the burst of 100", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultConfig)
	done := make(chan struct{})
	go func() {
		rl.Stop()
		rl.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestDefaultConfig_Sensible(t *testing.T) {
	if DefaultConfig.RPS <= 0 || DefaultConfig.Burst <= 0 || DefaultConfig.CleanupInterval <= 0 {
		t.Fatalf("invalid default config: %+v", DefaultConfig)
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	var rejected int
	reject := func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	}
	h := Middleware(rl, func(r *http.Request) string { return r.Header.Get("X-Client") }, reject)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/password/reset", nil)
		req.Header.Set("X-Client", "1.2.3.4")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
				t.Fatalf("429 headers missing: %v", rec.Header())
			}
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if rejected != 1 {
		t.Fatalf("reject called %d times, want 1", rejected)
	}

	// Requests without a key bypass limiting entirely.
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("keyless request limited: %d", rec.Code)
		}
	}
}

func TestMiddleware_DefaultRejectBody(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	h := Middleware(rl, func(*http.Request) string { return "k" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "too many requests") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
