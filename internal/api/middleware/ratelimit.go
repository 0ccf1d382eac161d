package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 2
	defaultGlobalRPS        = 100
	defaultDatasetRPS       = 50
	defaultMaxDatasets      = 10000
	cleanupInterval         = 5 * time.Minute
	idleTimeout             = 1 * time.Hour

	dataInPrefix = "/v2/data/in/"
)

type (
	// RateLimiter decides whether a request should be served. The datasetKey
	// is non-empty for event-ingestion requests and carries the target
	// dataset id, which gets its own token bucket on top of the global one.
	RateLimiter interface {
		Allow(datasetKey string) bool
	}

	// InMemoryRateLimiter is a token-bucket RateLimiter built on
	// golang.org/x/time/rate: one global limiter plus a lazily created
	// limiter per ingesting dataset. Idle dataset limiters are removed by a
	// background sweep so a churn of dataset ids cannot grow memory without
	// bound.
	InMemoryRateLimiter struct {
		global     *rate.Limiter
		perDataset map[string]*datasetLimiter
		mu         sync.RWMutex

		datasetRPS   int
		datasetBurst int
		maxDatasets  int

		sweepTicker *time.Ticker
		done        chan struct{}
	}

	datasetLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a rate limiter from config. Burst capacity
// defaults to twice the sustained rate when not overridden.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global:       rate.NewLimiter(rate.Limit(config.GlobalRPS), burstCapacity(config.GlobalRPS, config.GlobalBurst)),
		perDataset:   make(map[string]*datasetLimiter),
		datasetRPS:   config.DatasetRPS,
		datasetBurst: burstCapacity(config.DatasetRPS, config.DatasetBurst),
		maxDatasets:  config.MaxDatasets,
		done:         make(chan struct{}),
	}

	rl.sweepTicker = time.NewTicker(cleanupInterval)

	go rl.sweep()

	return rl
}

func burstCapacity(rps, override int) int {
	if override > 0 {
		return override
	}

	return rps * burstCapacityMultiplier
}

// Allow implements RateLimiter. The global bucket is checked first; event
// ingestion additionally draws from the target dataset's bucket so one noisy
// dataset cannot starve the rest of the API.
func (rl *InMemoryRateLimiter) Allow(datasetKey string) bool {
	if !rl.global.Allow() {
		return false
	}

	if datasetKey == "" {
		return true
	}

	dl := rl.datasetLimiter(datasetKey)

	dl.mu.Lock()
	dl.lastAccess = time.Now()
	dl.mu.Unlock()

	return dl.limiter.Allow()
}

func (rl *InMemoryRateLimiter) datasetLimiter(key string) *datasetLimiter {
	rl.mu.RLock()
	dl, ok := rl.perDataset[key]
	rl.mu.RUnlock()

	if ok {
		return dl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if dl, ok = rl.perDataset[key]; ok {
		return dl
	}

	dl = &datasetLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.datasetRPS), rl.datasetBurst),
		lastAccess: time.Now(),
	}

	rl.perDataset[key] = dl

	if count := len(rl.perDataset); count > rl.maxDatasets {
		slog.Warn("rate limiter tracking more datasets than expected",
			slog.Int("datasets", count),
			slog.Int("max_datasets", rl.maxDatasets),
		)
	}

	return dl
}

// Close stops the background sweep. Not part of the RateLimiter interface;
// callers that need cleanup use an io.Closer type assertion.
func (rl *InMemoryRateLimiter) Close() error {
	rl.sweepTicker.Stop()
	close(rl.done)

	return nil
}

func (rl *InMemoryRateLimiter) sweep() {
	for {
		select {
		case <-rl.sweepTicker.C:
			rl.removeIdle()
		case <-rl.done:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) removeIdle() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, dl := range rl.perDataset {
		dl.mu.Lock()
		lastAccess := dl.lastAccess
		dl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perDataset, key)
		}
	}
}

// RateLimit returns a middleware enforcing the limiter. Rejected requests get
// a 429 with an RFC 7807 body.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(datasetKeyFromPath(r.URL.Path)) {
				writeProblem(w, r, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after some time.",
					GetCorrelationID(r.Context()), logger)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// datasetKeyFromPath extracts the dataset id from an event-ingestion path,
// or "" for every other endpoint.
func datasetKeyFromPath(path string) string {
	i := strings.Index(path, dataInPrefix)
	if i < 0 {
		return ""
	}

	key := path[i+len(dataInPrefix):]

	if j := strings.IndexByte(key, '/'); j >= 0 {
		key = key[:j]
	}

	return key
}
