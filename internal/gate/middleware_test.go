package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ipgate/internal/domain"
)

type eventCapture struct {
	mu     sync.Mutex
	events []domain.RequestEvent
}

func (c *eventCapture) record(ctx context.Context, event *domain.RequestEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, *event)
	return nil
}

func (c *eventCapture) all() []domain.RequestEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.RequestEvent(nil), c.events...)
}

func staticLookup(blocked map[string]bool) LookupFunc {
	return func(ctx context.Context, ip string) (bool, error) {
		return blocked[ip], nil
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_BlockedClientGets403WithoutEvent(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(staticLookup(map[string]bool{"203.0.113.5": true}), time.Minute)
	g := NewGate(cache, WithRecorder(capture.record))

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.RemoteAddr = "203.0.113.5:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := rec.Body.String(); body != "IP address blocked\n" {
		t.Fatalf("body = %q, want bare block message", body)
	}
	if got := capture.all(); len(got) != 0 {
		t.Fatalf("recorded %d events for a rejected request, want 0", len(got))
	}
}

func TestMiddleware_AllowedClientIsRecorded(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(staticLookup(nil), time.Minute)
	g := NewGate(cache, WithRecorder(capture.record))

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.RemoteAddr = "198.51.100.7:44000"
	req.Header.Set("User-Agent", "curl/8.5")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	events := capture.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	event := events[0]
	if event.IP != "198.51.100.7" || event.Path != "/api/orders" || event.Method != "POST" {
		t.Fatalf("event = %+v, want request fields carried over", event)
	}
	if event.UserAgent != "curl/8.5" || event.StatusCode != 200 {
		t.Fatalf("event = %+v, want user agent and status recorded", event)
	}
}

func TestMiddleware_LoopbackBypassesBlocklistButIsStillRecorded(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(staticLookup(map[string]bool{"127.0.0.1": true}), time.Minute)
	g := NewGate(cache, WithRecorder(capture.record))

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "127.0.0.1:55000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want loopback to pass even when listed", rec.Code)
	}
	events := capture.all()
	if len(events) != 1 || events[0].IP != "127.0.0.1" {
		t.Fatalf("events = %+v, want the loopback request recorded", events)
	}
}

func TestMiddleware_ErrorResponsesAreNotRecorded(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(staticLookup(nil), time.Minute)
	g := NewGate(cache, WithRecorder(capture.record))

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.RemoteAddr = "198.51.100.7:44000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := capture.all(); len(got) != 0 {
		t.Fatalf("recorded %d events for a 404, want 0", len(got))
	}
}

func TestMiddleware_MalformedClientIPIsAllowed(t *testing.T) {
	capture := &eventCapture{}
	var lookups int
	cache := NewBlockCache(func(ctx context.Context, ip string) (bool, error) {
		lookups++
		return false, nil
	}, time.Minute)
	g := NewGate(cache, WithRecorder(capture.record))

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.RemoteAddr = "203.0.113.5:44000"
	req.Header.Set("X-Forwarded-For", "not-an-address")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want malformed address to pass", rec.Code)
	}
	if lookups != 0 {
		t.Fatalf("blocklist queried %d times for malformed address, want 0", lookups)
	}
	events := capture.all()
	if len(events) != 1 || events[0].IP != "not-an-address" {
		t.Fatalf("events = %+v, want event recorded with the raw value", events)
	}
}

func TestMiddleware_FailClosedByDefault(t *testing.T) {
	cache := NewBlockCache(func(ctx context.Context, ip string) (bool, error) {
		return false, errors.New("store down")
	}, time.Minute)
	g := NewGate(cache)

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.RemoteAddr = "198.51.100.7:44000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 when the store is unreachable", rec.Code)
	}
}

func TestMiddleware_FailOpenWhenConfigured(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(func(ctx context.Context, ip string) (bool, error) {
		return false, errors.New("store down")
	}, time.Minute)
	g := NewGate(cache, WithFailOpen(true), WithRecorder(capture.record))

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.RemoteAddr = "198.51.100.7:44000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want fail-open to let the request through", rec.Code)
	}
	if got := capture.all(); len(got) != 1 {
		t.Fatalf("recorded %d events, want the allowed request recorded", len(got))
	}
}

type staticEnricher struct {
	country, city string
}

func (e staticEnricher) Enrich(ctx context.Context, ip string) (string, string) {
	return e.country, e.city
}

func TestMiddleware_EnricherFillsLocation(t *testing.T) {
	capture := &eventCapture{}
	cache := NewBlockCache(staticLookup(nil), time.Minute)
	g := NewGate(cache,
		WithRecorder(capture.record),
		WithEnricher(staticEnricher{country: "Germany", city: "Berlin"}),
	)

	handler := g.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.RemoteAddr = "198.51.100.7:44000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	g.Flush()

	events := capture.all()
	if len(events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(events))
	}
	if events[0].Country != "Germany" || events[0].City != "Berlin" {
		t.Fatalf("event = %+v, want enriched location", events[0])
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"direct peer", "203.0.113.5:51234", "", "203.0.113.5"},
		{"single forwarded", "10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"leftmost of chain", "10.0.0.1:80", "198.51.100.7, 10.0.0.2, 10.0.0.1", "198.51.100.7"},
		{"forwarded with spaces", "10.0.0.1:80", "  198.51.100.7 , 10.0.0.2", "198.51.100.7"},
		{"remote without port", "203.0.113.5", "", "203.0.113.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
