package mapstate

import (
	"context"
	"errors"

	"github.com/yu-fu/smokesearch/internal/models"
)

// ErrLocationUnavailable is returned when no location can be determined.
var ErrLocationUnavailable = errors.New("location unavailable")

// Locator provides the user's current location.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinates, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (models.Coordinates, error)

func (f LocatorFunc) Locate(ctx context.Context) (models.Coordinates, error) { return f(ctx) }

// Unavailable never has a location.
type Unavailable struct{}

func (Unavailable) Locate(context.Context) (models.Coordinates, error) {
	return models.Coordinates{}, ErrLocationUnavailable
}

// GeoSignal is the browser's geolocation result, reported alongside the
// map signals. The browser applies the same timeout before reporting.
type GeoSignal struct {
	OK    bool    `json:"ok"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Error string  `json:"error,omitempty"`
}

// SignalLocator serves the location the browser reported.
type SignalLocator struct {
	Geo GeoSignal
}

func (l SignalLocator) Locate(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	if !l.Geo.OK {
		if l.Geo.Error != "" {
			return models.Coordinates{}, errors.New(l.Geo.Error)
		}
		return models.Coordinates{}, ErrLocationUnavailable
	}
	c := models.Coordinates{Latitude: l.Geo.Lat, Longitude: l.Geo.Lng}
	if !c.Valid() {
		return models.Coordinates{}, ErrLocationUnavailable
	}
	return c, nil
}
