package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/entities", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsRequestUnderLimit(t *testing.T) {
	handler := NewRateLimiter(WithLimit(100, 200), WithTTL(5*time.Minute)).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(WithLimit(1, 1)).Middleware()(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, requestFrom("10.0.0.1:5000"))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: got status %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, requestFrom("10.0.0.1:5001"))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header")
	}
}

func TestRateLimitMiddleware_SeparateClients(t *testing.T) {
	handler := NewRateLimiter(WithLimit(1, 1)).Middleware()(okHandler())

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000", "10.0.0.3:5000"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(addr))
		if rr.Code != http.StatusOK {
			t.Errorf("client %s: got status %d, want %d", addr, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Unlimited(t *testing.T) {
	handler := NewRateLimiter(WithLimit(0, 0)).Middleware()(okHandler())

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want %d", i, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_ExpiredLimiterIsReplaced(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Millisecond))
	handler := rl.Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))

	time.Sleep(5 * time.Millisecond)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5000"))
	if rr.Code != http.StatusOK {
		t.Errorf("got status %d after ttl, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_ExpiredClientsAreSwept(t *testing.T) {
	rl := NewRateLimiter(WithLimit(100, 100), WithTTL(time.Millisecond))
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2000; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom(fmt.Sprintf("10.%d.%d.1:5000", i/256, i%256)))
	}

	time.Sleep(10 * time.Millisecond)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("192.168.0.1:5000"))
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rl.size(); got != 1 {
		t.Errorf("retained %d limiters after expiry, want 1", got)
	}
}

func TestRateLimitMiddleware_LiveClientsSurviveSweep(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Hour))
	handler := rl.Middleware()(okHandler())

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom(addr))
	}
	rl.sweep(time.Now())

	if got := rl.size(); got != 2 {
		t.Errorf("retained %d limiters, want 2", got)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestFrom("10.0.0.1:5001"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
}
