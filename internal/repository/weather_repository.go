package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/model"
	"go.uber.org/zap"
)

// Custom error types
var (
	ErrAPIKeyMissing  = errors.New("API key missing")
	ErrExternalAPI    = errors.New("external API error")
	ErrDecodeResponse = errors.New("invalid weather response body")
)

// WeatherRepository defines the interface for weather data access
type WeatherRepository interface {
	GetCurrentWeather(ctx context.Context) (*model.WeatherResult, error)
}

// weatherRepository implements WeatherRepository against weatherapi.com
type weatherRepository struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	query      string
	logger     *zap.SugaredLogger
}

// NewWeatherRepository creates a new weather repository instance. The optional
// client's transport is wrapped with request logging.
func NewWeatherRepository(httpClient ...*http.Client) WeatherRepository {
	logger := config.GetLogger()
	client := &http.Client{Timeout: config.GetWeatherAPITimeout()}
	if len(httpClient) > 0 && httpClient[0] != nil {
		c := *httpClient[0]
		client = &c
	}
	client.Transport = newLoggingTransport(logger, client.Transport)

	return &weatherRepository{
		httpClient: client,
		apiURL:     config.GetWeatherAPIURL(),
		apiKey:     config.GetWeatherAPIKey(),
		query:      config.GetWeatherQuery(),
		logger:     logger,
	}
}

// GetCurrentWeather performs one GET and decodes whatever JSON comes back.
// The status code is recorded but not checked: a non-2xx answer with a JSON
// body decodes like any other.
func (r *weatherRepository) GetCurrentWeather(ctx context.Context) (*model.WeatherResult, error) {
	if r.apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	reqURL, err := r.buildURL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalAPI, err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			r.logger.Warnw("failed to close response body", "error", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}

	var result model.WeatherResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeResponse, err)
	}
	result.Raw = body
	result.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warnw("weather API answered with non-2xx status", "status_code", resp.StatusCode)
	}

	return &result, nil
}

func (r *weatherRepository) buildURL() (string, error) {
	u, err := url.Parse(r.apiURL)
	if err != nil {
		return "", fmt.Errorf("parse weather API url: %w", err)
	}
	q := u.Query()
	q.Set("key", r.apiKey)
	q.Set("q", r.query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
