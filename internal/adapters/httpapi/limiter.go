package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"broadcast-hub/internal/domain"
	httpinfra "broadcast-hub/internal/infra/http"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterPruneSize = 10000
)

type actorBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter ограничивает частоту запросов отдельно для каждого участника.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*actorBucket
	now     func() time.Time
}

// NewLimiter создаёт ограничитель: rps запросов в секунду с запасом burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = int(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*actorBucket),
		now:     time.Now,
	}
}

// Allow сообщает, можно ли обработать ещё один запрос участника.
func (l *Limiter) Allow(actorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	bucket, ok := l.buckets[actorID]
	if !ok {
		if len(l.buckets) >= limiterPruneSize {
			l.prune(now)
		}
		bucket = &actorBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[actorID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *Limiter) prune(now time.Time) {
	for id, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) > limiterIdleTTL {
			delete(l.buckets, id)
		}
	}
}

// Middleware отклоняет запросы сверх лимита с кодом 429. Должен стоять после AuthMiddleware.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := domain.ActorFromContext(r.Context())
		if ok && !l.Allow(actor.ID) {
			w.Header().Set("Retry-After", "1")
			httpinfra.WriteJSON(w, http.StatusTooManyRequests, httpinfra.ErrorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
