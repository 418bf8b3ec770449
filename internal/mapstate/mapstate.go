// Package mapstate is the add-a-smoking-area interaction on the map.
//
// The map is in one of three modes:
//
//	viewing --toggle--> placing --confirm--> confirming --submit/cancel--> viewing
//	                    placing --toggle/cancel--> viewing
//
// While placing, the candidate location is the viewport center: the user
// pans the map under a fixed center pin and confirms. Entering placing (and
// initialising the map) asks the browser for its location once; failures
// fall back to DefaultCenter and hide the current-location marker.
//
// The state lives in the browser as Datastar signals. Each request rebuilds
// a Machine from the signals, applies one event and sends the new signals
// back, so the server keeps no per-tab state.
package mapstate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/models"
)

// Map defaults.
const (
	DefaultZoom        = 17
	MinZoom            = 1
	MaxZoom            = 19
	MemoTooltipMinZoom = 17
	GeolocationTimeout = 10 * time.Second
)

// DefaultCenter is central Tokyo.
var DefaultCenter = models.Coordinates{Latitude: 35.6762, Longitude: 139.6503}

// Mode is the interaction mode.
type Mode string

const (
	Viewing    Mode = "viewing"
	Placing    Mode = "placing"
	Confirming Mode = "confirming"
)

var (
	ErrInvalidTransition = errors.New("invalid map transition")
	ErrLoginRequired     = errors.New("login required")
)

// Viewport is what the map widget shows.
type Viewport struct {
	Center models.Coordinates
	Zoom   int
}

// State is the full interaction state of one map.
type State struct {
	Mode     Mode
	Viewport Viewport
	// ViewportSet is true once the map has a center other than the default.
	ViewportSet bool
	// UserLocation is nil when the current-location marker is hidden.
	UserLocation *models.Coordinates
	// Pin is the provisional location while confirming.
	Pin  *models.Coordinates
	Memo string
	// Error is a message catalog key, empty when there is nothing to show.
	Error string
}

// Initial is the state of a freshly loaded map.
func Initial() State {
	return State{
		Mode:     Viewing,
		Viewport: Viewport{Center: DefaultCenter, Zoom: DefaultZoom},
	}
}

// Candidate is the location a confirmation would capture.
func (s State) Candidate() models.Coordinates {
	return s.Viewport.Center
}

// ShowMemoTooltips reports whether memo tooltips render at the current zoom.
func (s State) ShowMemoTooltips() bool {
	return s.Viewport.Zoom >= MemoTooltipMinZoom
}

// Areas is the record access the map needs.
type Areas interface {
	Add(ctx context.Context, in models.NewArea) (string, error)
	List(ctx context.Context) []models.SmokingArea
}

// Machine applies events to a State.
type Machine struct {
	State

	areas   Areas
	locator Locator
}

// New wraps s. locator may be nil, meaning no geolocation.
func New(s State, areas Areas, locator Locator) *Machine {
	if locator == nil {
		locator = Unavailable{}
	}
	return &Machine{State: s, areas: areas, locator: locator}
}

// Init positions a freshly loaded map on the user's location if available.
func (m *Machine) Init(ctx context.Context) {
	m.locate(ctx)
}

// Toggle switches add mode. Turning it off discards the draft without
// touching the store.
func (m *Machine) Toggle(ctx context.Context) {
	switch m.Mode {
	case Viewing:
		m.Mode = Placing
		m.Error = ""
		m.locate(ctx)
	default:
		m.Cancel()
	}
}

// locate asks for the current location once, bounded by GeolocationTimeout.
func (m *Machine) locate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, GeolocationTimeout)
	defer cancel()

	loc, err := m.locator.Locate(ctx)
	if err != nil || !loc.Valid() {
		log.Debug().Err(err).Msg("mapstate: geolocation unavailable, using fallback")
		m.UserLocation = nil
		if !m.ViewportSet {
			m.Viewport.Center = DefaultCenter
		}
		return
	}
	m.UserLocation = &loc
	m.Viewport.Center = loc
	m.ViewportSet = true
}

// Pan records a viewport change reported by the map widget. While placing
// the pin follows the center.
func (m *Machine) Pan(center models.Coordinates, zoom int) {
	if center.Valid() {
		m.Viewport.Center = center
		m.ViewportSet = true
	}
	if zoom != 0 {
		m.Viewport.Zoom = clampZoom(zoom)
	}
}

// Confirm captures the viewport center as the candidate and opens the memo
// dialog.
func (m *Machine) Confirm() error {
	if m.Mode != Placing {
		return ErrInvalidTransition
	}
	pin := m.Candidate()
	m.Pin = &pin
	m.Mode = Confirming
	m.Memo = ""
	return nil
}

// SetMemo updates the memo draft.
func (m *Machine) SetMemo(memo string) {
	if m.Mode == Confirming {
		m.Memo = memo
	}
}

// Submit creates the area at the pin and re-fetches the full list. The map
// returns to viewing whether or not the store call succeeds; on failure
// Error is set and the returned list is nil.
func (m *Machine) Submit(ctx context.Context, creatorID string) ([]models.SmokingArea, error) {
	if m.Mode != Confirming || m.Pin == nil {
		return nil, ErrInvalidTransition
	}
	if creatorID == "" {
		return nil, ErrLoginRequired
	}
	in, err := models.NewAreaInput(*m.Pin, m.Memo, creatorID)
	if err != nil {
		return nil, err
	}

	pin := *m.Pin
	m.reset()
	if _, err := m.areas.Add(ctx, in); err != nil {
		m.Error = "error.area_add_failed"
		return nil, err
	}
	m.Viewport.Center = pin
	m.ViewportSet = true
	return m.areas.List(ctx), nil
}

// Cancel discards the draft and returns to viewing. No store call is made.
func (m *Machine) Cancel() {
	m.reset()
}

func (m *Machine) reset() {
	m.Mode = Viewing
	m.Pin = nil
	m.Memo = ""
	m.Error = ""
}

func clampZoom(z int) int {
	switch {
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	default:
		return z
	}
}
