package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingField is returned when the upstream body lacks a field the summary needs.
var ErrMissingField = errors.New("missing field in weather response")

// WeatherResult is the subset of a weatherapi.com forecast response the widget reads.
// The provider gives no shape guarantee, so every level is optional.
type WeatherResult struct {
	Location *Location `json:"location"`
	Current  *Current  `json:"current"`

	Raw        json.RawMessage `json:"-"`
	StatusCode int             `json:"-"`
}

type Location struct {
	Name *string `json:"name"`
}

type Current struct {
	TempC *float64 `json:"temp_c"`
}

// Validate reports the first field that is absent or null.
func (w *WeatherResult) Validate() error {
	switch {
	case w == nil:
		return fmt.Errorf("%w: body", ErrMissingField)
	case w.Location == nil:
		return fmt.Errorf("%w: location", ErrMissingField)
	case w.Location.Name == nil:
		return fmt.Errorf("%w: location.name", ErrMissingField)
	case w.Current == nil:
		return fmt.Errorf("%w: current", ErrMissingField)
	case w.Current.TempC == nil:
		return fmt.Errorf("%w: current.temp_c", ErrMissingField)
	}
	return nil
}
