package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/document"
	"github.com/fakhrymubarak/weather-widget/internal/handler"
	"github.com/fakhrymubarak/weather-widget/internal/metrics"
	"github.com/fakhrymubarak/weather-widget/internal/middleware"
	"github.com/fakhrymubarak/weather-widget/internal/redis"
	"github.com/fakhrymubarak/weather-widget/internal/repository"
	"github.com/fakhrymubarak/weather-widget/internal/service"
	redisv9 "github.com/redis/go-redis/v9"
)

// newRouter wires the page, health and metrics routes behind the middleware chain.
func newRouter(repo repository.WeatherRepository, rdb redisv9.Cmdable, m *metrics.Metrics) http.Handler {
	store := document.NewStore(rdb, config.GetPageTTL())
	fetcher := service.NewWeatherFetcher(repo, m)
	pages := handler.NewPageHandler(fetcher, store, rdb)

	mux := http.NewServeMux()
	mux.Handle("/", middleware.RateLimitMiddleware(http.HandlerFunc(pages.HandleIndex)))
	mux.Handle("/pages/{id}", middleware.RateLimitMiddleware(http.HandlerFunc(pages.HandlePage)))
	mux.HandleFunc("/health", pages.HandleHealth)
	mux.Handle("GET /metrics", m.Handler())

	return middleware.RequestID(m.HTTPMiddleware(mux))
}

func main() {
	logger := config.GetLogger()
	defer func() { _ = logger.Sync() }()

	if config.GetWeatherAPIKey() == "" {
		logger.Warnw("WEATHERAPI_API_KEY is not set; the weather widget will stay empty")
	}

	rdb := redis.GetClient()
	if err := redis.Ping(context.Background(), rdb); err != nil {
		logger.Warnw("Redis is not reachable yet", "addr", config.GetRedisAddr(), "error", err)
	}

	middleware.StartRateLimiterCleanup()

	srv := &http.Server{
		Addr:              ":" + config.GetServerPort(),
		Handler:           newRouter(repository.NewWeatherRepository(), rdb, metrics.New()),
		ReadHeaderTimeout: config.GetServerTimeoutDuration("read_header_timeout", 15*time.Second),
		ReadTimeout:       config.GetServerTimeoutDuration("read_timeout", 15*time.Second),
		WriteTimeout:      config.GetServerTimeoutDuration("write_timeout", 10*time.Second),
		IdleTimeout:       config.GetServerTimeoutDuration("idle_timeout", 30*time.Second),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("Weather widget server running", "port", config.GetServerPort())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatalw("server failed", "error", err)
	case sig := <-stop:
		logger.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
	_ = rdb.Close()
}
