package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "campusq/pkg/errors"
	httputil "campusq/pkg/http"
	"campusq/pkg/logger"
)

type KeyExtractor func(r *http.Request) string

// HolderRateLimiter is a sliding-window limiter keyed by caller identity.
type HolderRateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor KeyExtractor
	now       func() time.Time
	log       *logger.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewHolderRateLimiter(limit int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *HolderRateLimiter {
	if extractor == nil {
		extractor = HolderExtractor
	}
	limiter := &HolderRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		now:       time.Now,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *HolderRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *HolderRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow records a request for key and reports whether it fits the window.
// Anonymous requests are not limited here; they fail identity checks later.
func (rl *HolderRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	timestamps := rl.requests[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}
	rl.requests[key] = append(valid, now)
	return true
}

func HolderRateLimit(limiter *HolderRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.extractor(r)
			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestID(r.Context()),
					"holder_id", key,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", retryAfter(limiter.window))
				_ = httputil.WriteError(w, apperrors.New(
					apperrors.CodeRateLimited,
					"Rate limit exceeded",
					http.StatusTooManyRequests,
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func HolderExtractor(r *http.Request) string {
	return r.Header.Get(httputil.HeaderHolderID)
}

func retryAfter(window time.Duration) string {
	seconds := int(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
