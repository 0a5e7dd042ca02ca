package gate

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"ipgate/internal/database"
	"ipgate/internal/domain"

	"github.com/charmbracelet/log"
)

const (
	defaultLookupTimeout = 2 * time.Second
	defaultRecordTimeout = 5 * time.Second
)

// Enricher fills location fields for an event, off the request path.
type Enricher interface {
	Enrich(ctx context.Context, ip string) (country, city string)
}

// RecordFunc persists one request event.
type RecordFunc func(ctx context.Context, event *domain.RequestEvent) error

// Gate decides ALLOW or REJECT per request against the blocklist cache and
// records an event for allowed, non-error responses.
type Gate struct {
	cache         *BlockCache
	failOpen      bool
	lookupTimeout time.Duration
	recordTimeout time.Duration
	enricher      Enricher
	record        RecordFunc

	recordWG sync.WaitGroup
}

type Option func(*Gate)

// WithFailOpen selects the policy for store errors and timeouts on the
// blocked check. The default is fail-closed: an unreachable blocklist store
// rejects traffic rather than waving everything through.
func WithFailOpen(enabled bool) Option {
	return func(g *Gate) {
		g.failOpen = enabled
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.lookupTimeout = d
		}
	}
}

func WithRecordTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.recordTimeout = d
		}
	}
}

func WithEnricher(e Enricher) Option {
	return func(g *Gate) {
		g.enricher = e
	}
}

func WithRecorder(record RecordFunc) Option {
	return func(g *Gate) {
		if record != nil {
			g.record = record
		}
	}
}

func NewGate(cache *BlockCache, opts ...Option) *Gate {
	gate := &Gate{
		cache:         cache,
		lookupTimeout: defaultLookupTimeout,
		recordTimeout: defaultRecordTimeout,
		record:        database.InsertRequestEvent,
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate
}

// Middleware wraps next with the gate decision. Blocked clients receive a
// bare 403 with no reason string. Allowed requests are recorded after the
// downstream handler finishes, and only when it responded below 400; the
// event write runs asynchronously and its failure never fails the request.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		parsed := net.ParseIP(ip)
		loopback := ip == "localhost" || (parsed != nil && parsed.IsLoopback())

		if parsed == nil && !loopback {
			log.Warn("Allowing request with unparseable client IP", "value", ip, "remote", r.RemoteAddr)
		} else if !loopback {
			blocked, err := g.checkBlocked(r.Context(), ip)
			if err != nil {
				if g.failOpen {
					log.Error("Blocklist check failed, failing open", "ip", ip, "error", err)
				} else {
					log.Error("Blocklist check failed, failing closed", "ip", ip, "error", err)
					blocked = true
				}
			}
			if blocked {
				log.Warn("Blocked request from IP", "ip", ip)
				http.Error(w, "IP address blocked", http.StatusForbidden)
				return
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if recorder.status < 400 {
			g.recordEvent(ip, r, recorder.status)
		}
	})
}

func (g *Gate) checkBlocked(ctx context.Context, ip string) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, g.lookupTimeout)
	defer cancel()
	return g.cache.IsBlocked(lookupCtx, ip)
}

func (g *Gate) recordEvent(ip string, r *http.Request, status int) {
	event := &domain.RequestEvent{
		IP:         ip,
		Path:       r.URL.Path,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		StatusCode: status,
	}

	g.recordWG.Add(1)
	go func() {
		defer g.recordWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), g.recordTimeout)
		defer cancel()

		if g.enricher != nil {
			event.Country, event.City = g.enricher.Enrich(ctx, ip)
		}

		if err := g.record(ctx, event); err != nil {
			log.Error("Failed to record request event", "ip", ip, "path", event.Path, "error", err)
		}
	}()
}

// Flush waits for in-flight event writes. Called on shutdown and by tests.
func (g *Gate) Flush() {
	g.recordWG.Wait()
}

// ClientIP resolves the originating client address, preferring the leftmost
// X-Forwarded-For entry. Without a trusted proxy boundary stripping inbound
// values, that header is client-controlled and therefore spoofable; the
// fallback is the direct peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := forwarded
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			first = forwarded[:idx]
		}
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}
