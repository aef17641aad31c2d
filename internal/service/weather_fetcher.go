package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/document"
	"github.com/fakhrymubarak/weather-widget/internal/metrics"
	"github.com/fakhrymubarak/weather-widget/internal/model"
	"github.com/fakhrymubarak/weather-widget/internal/repository"
	"go.uber.org/zap"
)

// Document is the page the fetcher renders into.
type Document interface {
	GetElementByID(ctx context.Context, id string) (*document.Element, error)
}

// WeatherFetcherInterface defines the contract for the page-load weather widget.
type WeatherFetcherInterface interface {
	Run(ctx context.Context, doc Document)
}

type WeatherFetcher struct {
	WeatherRepo repository.WeatherRepository
	MountID     string
	Metrics     *metrics.Metrics
	Logger      *zap.SugaredLogger
}

// NewWeatherFetcher wires a fetcher with the configured mount id. A nil
// repository falls back to the weatherapi.com repository.
func NewWeatherFetcher(repo repository.WeatherRepository, m *metrics.Metrics) *WeatherFetcher {
	if repo == nil {
		repo = repository.NewWeatherRepository()
	}
	return &WeatherFetcher{
		WeatherRepo: repo,
		MountID:     config.GetMountID(),
		Metrics:     m,
		Logger:      config.GetLogger(),
	}
}

// Summary formats the one-line text shown in the mount element.
func Summary(name string, tempC float64) string {
	return fmt.Sprintf("Location: %s | temp: %s °C", name, strconv.FormatFloat(tempC, 'f', -1, 64))
}

// Run renders the current weather into doc. Every failure, panics included,
// is logged and swallowed; the page is left as it was.
func (f *WeatherFetcher) Run(ctx context.Context, doc Document) {
	defer func() {
		if r := recover(); r != nil {
			f.Logger.Errorw("weather widget panicked", "panic", r)
			f.Metrics.ObserveRender(metrics.OutcomePanic)
		}
	}()

	if err := f.Render(ctx, doc); err != nil {
		f.Logger.Errorw("weather widget failed", "error", err)
		f.Metrics.ObserveRender(outcomeOf(err))
		return
	}
	f.Metrics.ObserveRender(metrics.OutcomeSuccess)
}

// Render is the widget sequence without the catch-all: mount lookup, one
// upstream call, validation, then a span appended to the mount element.
func (f *WeatherFetcher) Render(ctx context.Context, doc Document) error {
	mount, err := doc.GetElementByID(ctx, f.MountID)
	if err != nil {
		return err
	}
	if n, err := mount.ChildCount(ctx); err == nil {
		f.Logger.Debugw("mount element located", "id", f.MountID, "children", n)
	}

	start := time.Now()
	result, err := f.WeatherRepo.GetCurrentWeather(ctx)
	f.Metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return err
	}
	if err := result.Validate(); err != nil {
		return err
	}

	span, err := mount.AppendChild(ctx, "span")
	if err != nil {
		return err
	}
	if err := span.SetText(ctx, Summary(*result.Location.Name, *result.Current.TempC)); err != nil {
		return err
	}

	f.Logger.Infow("weather response", "status_code", result.StatusCode, "response", string(result.Raw))
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, document.ErrElementNotFound):
		return metrics.OutcomeMountMissing
	case errors.Is(err, repository.ErrDecodeResponse), errors.Is(err, model.ErrMissingField):
		return metrics.OutcomeDecodeError
	case errors.Is(err, repository.ErrExternalAPI), errors.Is(err, repository.ErrAPIKeyMissing):
		return metrics.OutcomeFetchError
	default:
		return metrics.OutcomeRenderError
	}
}
