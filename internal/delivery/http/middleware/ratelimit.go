package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	h "eventbooking/internal/delivery/http/helpers"
)

const limiterIdleEviction = 10 * time.Minute

// userLimiters hands out one token-bucket limiter per user and evicts
// limiters that have been idle for a while.
type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (u *userLimiters) get(userID string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	for id, l := range u.limiters {
		if now.Sub(l.lastSeen) > limiterIdleEviction {
			delete(u.limiters, id)
		}
	}

	l, ok := u.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(u.limit, u.burst)}
		u.limiters[userID] = l
	}
	l.lastSeen = now
	return l.limiter
}

// RateLimitByUser returns a wrapper that limits how often one authenticated
// user may call the wrapped handler. It must run inside RequireAuth.
// Requests over the limit get 429.
func RateLimitByUser(perSecond float64, burst int) func(http.HandlerFunc) http.HandlerFunc {
	limiters := &userLimiters{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
				return
			}
			if !limiters.get(userID).Allow() {
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeTooManyRequests, "too many booking requests, slow down")
				return
			}
			next(w, r)
		}
	}
}
