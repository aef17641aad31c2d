package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/metrics"
	"github.com/fakhrymubarak/weather-widget/internal/middleware"
	"github.com/fakhrymubarak/weather-widget/internal/repository"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type WeatherWidgetTestSuite struct {
	suite.Suite
	httpServer *httptest.Server
	upstream   *httptest.Server
	miniRedis  *miniredis.Miniredis
	rdb        *redisv9.Client

	mu             sync.Mutex
	upstreamStatus int
	upstreamBody   string
	upstreamCalls  int
}

func (s *WeatherWidgetTestSuite) setUpstream(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upstreamStatus, s.upstreamBody = status, body
}

func (s *WeatherWidgetTestSuite) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamCalls
}

func (s *WeatherWidgetTestSuite) SetupSuite() {
	s.miniRedis = miniredis.NewMiniRedis()
	require.NoError(s.T(), s.miniRedis.Start())

	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.upstreamCalls++
		if r.URL.Query().Get("key") != "test_api_key" || r.URL.Query().Get("q") != "auto:ip" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":2006,"message":"API key is invalid."}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.upstreamStatus)
		_, _ = w.Write([]byte(s.upstreamBody))
	}))

	os.Setenv("WEATHERAPI_API_KEY", "test_api_key")
	viper.Set("weatherapi.api_url", s.upstream.URL+"/v1/forecast.json")
	config.ReloadConfigForTest()

	s.rdb = redisv9.NewClient(&redisv9.Options{Addr: s.miniRedis.Addr()})
	router := newRouter(repository.NewWeatherRepository(), s.rdb, metrics.New())
	s.httpServer = httptest.NewServer(router)
}

func (s *WeatherWidgetTestSuite) TearDownSuite() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.upstream != nil {
		s.upstream.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.miniRedis != nil {
		s.miniRedis.Close()
	}
	os.Unsetenv("WEATHERAPI_API_KEY")
	viper.Set("weatherapi.api_url", "")
}

func (s *WeatherWidgetTestSuite) SetupTest() {
	middleware.ResetVisitors()
	s.setUpstream(http.StatusOK, `{"location":{"name":"Paris"},"current":{"temp_c":21}}`)
}

func TestWeatherWidgetTestSuite(t *testing.T) {
	suite.Run(t, new(WeatherWidgetTestSuite))
}

func (s *WeatherWidgetTestSuite) get(path string) (*http.Response, string) {
	resp, err := s.httpServer.Client().Get(s.httpServer.URL + path)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	return resp, string(body)
}

func (s *WeatherWidgetTestSuite) TestPageLoad() {
	tests := []struct {
		name       string
		status     int
		body       string
		wantSpan   string
		wantSpanNr int
	}{
		{
			name:       "Success - widget rendered",
			status:     http.StatusOK,
			body:       `{"location":{"name":"Paris","country":"France"},"current":{"temp_c":21,"temp_f":69.8}}`,
			wantSpan:   "<span>Location: Paris | temp: 21 °C</span>",
			wantSpanNr: 1,
		},
		{
			name:       "Success - non-2xx status with a complete JSON body",
			status:     http.StatusInternalServerError,
			body:       `{"location":{"name":"Berlin"},"current":{"temp_c":12.5}}`,
			wantSpan:   "<span>Location: Berlin | temp: 12.5 °C</span>",
			wantSpanNr: 1,
		},
		{
			name:       "Failed silently - invalid JSON",
			status:     http.StatusOK,
			body:       `<html>oops</html>`,
			wantSpanNr: 0,
		},
		{
			name:       "Failed silently - missing current.temp_c",
			status:     http.StatusOK,
			body:       `{"location":{"name":"Paris"},"current":{}}`,
			wantSpanNr: 0,
		},
		{
			name:       "Failed silently - provider error body",
			status:     http.StatusBadRequest,
			body:       `{"error":{"code":1006,"message":"No matching location found."}}`,
			wantSpanNr: 0,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			middleware.ResetVisitors()
			s.setUpstream(tt.status, tt.body)

			resp, body := s.get("/")

			assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
			assert.Contains(s.T(), body, `<div id="weather">`)
			assert.Equal(s.T(), tt.wantSpanNr, strings.Count(body, "<span>"))
			if tt.wantSpan != "" {
				assert.Contains(s.T(), body, tt.wantSpan)
			}
			assert.NotEmpty(s.T(), resp.Header.Get("X-Document-ID"))
			assert.NotEmpty(s.T(), resp.Header.Get("X-Request-ID"))
		})
	}
}

func (s *WeatherWidgetTestSuite) TestUpstreamUnreachable() {
	viper.Set("weatherapi.api_url", "http://127.0.0.1:1/v1/forecast.json")
	config.ReloadConfigForTest()
	defer func() {
		viper.Set("weatherapi.api_url", s.upstream.URL+"/v1/forecast.json")
		config.ReloadConfigForTest()
	}()

	router := newRouter(repository.NewWeatherRepository(), s.rdb, metrics.New())
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.NotContains(s.T(), string(body), "<span>")
}

func (s *WeatherWidgetTestSuite) TestStoredPageIsNotRefetched() {
	resp, _ := s.get("/")
	id := resp.Header.Get("X-Document-ID")
	require.NotEmpty(s.T(), id)
	before := s.calls()

	resp, body := s.get("/pages/" + id)
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(s.T(), body, "<span>Location: Paris | temp: 21 °C</span>")
	assert.Equal(s.T(), before, s.calls())

	resp, _ = s.get("/pages/00000000-0000-0000-0000-000000000000")
	assert.Equal(s.T(), http.StatusNotFound, resp.StatusCode)
}

func (s *WeatherWidgetTestSuite) TestRateLimitedPageLoad() {
	for i := 0; i < 2; i++ {
		resp, _ := s.get("/")
		require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	}
	before := s.calls()

	resp, body := s.get("/")
	assert.Equal(s.T(), http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(s.T(), body, "Rate limit exceeded")
	assert.Equal(s.T(), before, s.calls(), "a rejected page load must not reach the weather API")
}

func (s *WeatherWidgetTestSuite) TestHealthAndMetrics() {
	resp, body := s.get("/health")
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.JSONEq(s.T(), `{"status":"ok"}`, body)

	s.get("/")

	resp, body = s.get("/metrics")
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(s.T(), body, `weather_widget_renders_total{outcome="success"}`)
	assert.Contains(s.T(), body, `weather_widget_http_requests_total{method="GET",path="/",status_class="2xx"}`)
}

func TestServerPortDefault(t *testing.T) {
	// Test default port behavior
	port := config.GetServerPort()
	if port != "8080" {
		t.Errorf("Expected default port 8080, got %s", port)
	}
}
