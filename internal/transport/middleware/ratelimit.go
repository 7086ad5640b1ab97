package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
)

type RateLimitConfig struct {
	Requests int64
	Period   time.Duration
	// Prefix namespaces the counters when they are kept in redis.
	Prefix string
}

// NewRateLimitStore keeps counters in redis when a client is given so that every API
// replica shares them, in memory otherwise.
func NewRateLimitStore(client redis.UniversalClient, prefix string, logger *slog.Logger) limiter.Store {
	if client == nil {
		return memory.NewStore()
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		logger.Warn("failed to create redis rate limit store, falling back to memory", "error", err)
		return memory.NewStore()
	}
	return store
}

// RateLimit caps requests per client IP and answers 429 with the standard error body.
func RateLimit(cfg RateLimitConfig, store limiter.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	instance := limiter.New(store, limiter.Rate{Period: cfg.Period, Limit: cfg.Requests})

	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("rate limit reached", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			base.HandleServiceError(w, internal.NewRateLimitedError())
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			base.HandleServiceError(w, internal.NewInternalError("rate limiter failed", err))
		}),
	)
	return mw.Handler
}
