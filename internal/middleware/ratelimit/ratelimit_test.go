package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	t.Cleanup(rl.Stop)
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("1.1.1.1"); !ok {
			t.Fatalf("request %d rejected within limit", i+1)
		}
	}
	ok, retry := rl.Allow("1.1.1.1")
	if ok {
		t.Fatal("fourth request allowed, want rejection")
	}
	if retry != time.Minute {
		t.Errorf("retry = %v, want full window", retry)
	}
	if ok, _ := rl.Allow("2.2.2.2"); !ok {
		t.Error("other clients must not share a window")
	}

	*now = now.Add(40 * time.Second)
	if _, retry := rl.Allow("1.1.1.1"); retry != 20*time.Second {
		t.Errorf("retry = %v, want remaining 20s", retry)
	}

	// a rejected burst does not extend the window
	*now = now.Add(21 * time.Second)
	if ok, _ := rl.Allow("1.1.1.1"); !ok {
		t.Error("request after window reset rejected")
	}

	if m := rl.GetMetrics(); m.Rejected != 2 || m.ClientCount != 2 {
		t.Errorf("metrics = %+v, want 2 rejected and 2 clients", m)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 10)
	rl.Allow("1.1.1.1")
	*now = now.Add(8 * time.Minute)
	rl.Allow("2.2.2.2")
	*now = now.Add(3 * time.Minute)

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "1.1.1.1" }, MutatingOnly, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method string
		status int
	}{
		{http.MethodPost, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodPut, http.StatusTooManyRequests},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/fees/S1/payments", nil))
		if rec.Code != tt.status {
			t.Errorf("request %d %s: status = %d, want %d", i, tt.method, rec.Code, tt.status)
		}
		if tt.status == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
		}
	}
}
