package repository

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// loggingTransport logs every upstream call. The API key never reaches the log.
type loggingTransport struct {
	logger *zap.SugaredLogger
	next   http.RoundTripper
}

func newLoggingTransport(logger *zap.SugaredLogger, next http.RoundTripper) *loggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{logger: logger, next: next}
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		l.logger.Errorw("HTTP request failed",
			"method", req.Method,
			"url", redactURL(req.URL),
			"duration", duration,
			"error", err,
		)
		return nil, err
	}

	l.logger.Infow("HTTP request completed",
		"method", req.Method,
		"url", redactURL(req.URL),
		"status_code", resp.StatusCode,
		"duration", duration,
	)
	return resp, nil
}

func redactURL(u *url.URL) string {
	c := *u
	q := c.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		c.RawQuery = q.Encode()
	}
	return c.String()
}
