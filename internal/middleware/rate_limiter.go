package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/model"
	"golang.org/x/time/rate"
)

// the visitor holds the rate limiter and last seen time for a specific IP address.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	// globalVisitors maps IP addresses to their limiter for global rate limiting.
	globalVisitors = make(map[string]*visitor) // key: ip
	// pathVisitors maps IP addresses and request paths to their limiter for per-path rate limiting.
	pathVisitors = make(map[string]map[string]*visitor) // key: ip -> path -> visitor
	muGlobal     sync.Mutex
	muPath       sync.Mutex
)

func newLimiter(perMinute float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perMinute/60.0), burst)
}

// getGlobalLimiter returns the rate limiter for the given IP address, creating one if it does not exist.
func getGlobalLimiter(ip string) *rate.Limiter {
	muGlobal.Lock()
	defer muGlobal.Unlock()
	v, exists := globalVisitors[ip]
	if !exists {
		limiter := newLimiter(config.GetGlobalRateLimiterConfig())
		globalVisitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// getPathLimiter returns the rate limiter for the given IP address and path, creating one if it does not exist.
func getPathLimiter(ip, path string) *rate.Limiter {
	muPath.Lock()
	defer muPath.Unlock()
	if _, ok := pathVisitors[ip]; !ok {
		pathVisitors[ip] = make(map[string]*visitor)
	}
	v, exists := pathVisitors[ip][path]
	if !exists {
		limiter := newLimiter(config.GetPathRateLimiterConfig())
		pathVisitors[ip][path] = &visitor{limiter, time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors drops entries not seen for longer than maxIdle.
func cleanupVisitors(maxIdle time.Duration) {
	muGlobal.Lock()
	for ip, v := range globalVisitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(globalVisitors, ip)
		}
	}
	muGlobal.Unlock()

	muPath.Lock()
	for ip, pathMap := range pathVisitors {
		for path, v := range pathMap {
			if time.Since(v.lastSeen) > maxIdle {
				delete(pathMap, path)
			}
		}
		if len(pathMap) == 0 {
			delete(pathVisitors, ip)
		}
	}
	muPath.Unlock()
}

// StartRateLimiterCleanup starts a background goroutine that evicts stale visitors every minute.
func StartRateLimiterCleanup() {
	maxIdle := config.GetRateLimiterCleanupTimeout()
	go func() {
		for {
			time.Sleep(time.Minute)
			cleanupVisitors(maxIdle)
		}
	}()
}

// ResetVisitors clears all visitor states for both global and per-path limiters. Used primarily for testing.
func ResetVisitors() {
	muGlobal.Lock()
	clear(globalVisitors)
	muGlobal.Unlock()
	muPath.Lock()
	clear(pathVisitors)
	muPath.Unlock()
}

// getIP extracts the client's IP address from the HTTP request, considering X-Forwarded-For headers.
func getIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // fallback
	}
	return ip
}

func tooManyRequests(w http.ResponseWriter, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse(errMsg, message))
}

// RateLimitMiddleware returns an HTTP middleware that enforces global and per-path rate limiting.
// Every page load costs one upstream weather call, so both limits apply per client IP.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIP(r)
		globalLimiter := getGlobalLimiter(ip)
		pathLimiter := getPathLimiter(ip, r.URL.Path)
		if !globalLimiter.Allow() {
			globalRate, _ := config.GetGlobalRateLimiterConfig()
			tooManyRequests(w,
				fmt.Sprintf("Rate limit exceeded: max %g requests per minute per user/IP", globalRate),
				"Too Many Requests (global limit)")
			return
		}
		if !pathLimiter.Allow() {
			pathRate, _ := config.GetPathRateLimiterConfig()
			tooManyRequests(w,
				fmt.Sprintf("Rate limit exceeded: max %g requests per minute per path per user/IP", pathRate),
				"Too Many Requests (per-path limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}
