package mapstate

import "github.com/yu-fu/smokesearch/internal/models"

// Signals is the Datastar signal form of State, kept under the "map" key.
type Signals struct {
	Mode        Mode    `json:"mode"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Zoom        int     `json:"zoom"`
	ViewportSet bool    `json:"viewportSet"`
	Located     bool    `json:"located"`
	UserLat     float64 `json:"userLat"`
	UserLng     float64 `json:"userLng"`
	HasPin      bool    `json:"hasPin"`
	PinLat      float64 `json:"pinLat"`
	PinLng      float64 `json:"pinLng"`
	Memo        string  `json:"memo"`
	ShowMemos   bool    `json:"showMemos"`
	Error       string  `json:"error"`
}

// Signals returns the signal form of s.
func (s State) Signals() Signals {
	out := Signals{
		Mode:        s.Mode,
		Lat:         s.Viewport.Center.Latitude,
		Lng:         s.Viewport.Center.Longitude,
		Zoom:        s.Viewport.Zoom,
		ViewportSet: s.ViewportSet,
		Memo:        s.Memo,
		ShowMemos:   s.ShowMemoTooltips(),
		Error:       s.Error,
	}
	if s.UserLocation != nil {
		out.Located = true
		out.UserLat = s.UserLocation.Latitude
		out.UserLng = s.UserLocation.Longitude
	}
	if s.Pin != nil {
		out.HasPin = true
		out.PinLat = s.Pin.Latitude
		out.PinLng = s.Pin.Longitude
	}
	return out
}

// FromSignals rebuilds a State from browser signals, repairing anything
// inconsistent: unknown modes become viewing, a confirming state without a
// pin falls back to viewing, and zoom is clamped.
func FromSignals(sig Signals) State {
	s := State{
		Mode:        sig.Mode,
		Viewport:    Viewport{Center: models.Coordinates{Latitude: sig.Lat, Longitude: sig.Lng}, Zoom: sig.Zoom},
		ViewportSet: sig.ViewportSet,
		Memo:        sig.Memo,
		Error:       sig.Error,
	}
	switch s.Mode {
	case Viewing, Placing, Confirming:
	default:
		s.Mode = Viewing
	}
	if s.Viewport.Zoom == 0 {
		s.Viewport.Zoom = DefaultZoom
	} else {
		s.Viewport.Zoom = clampZoom(s.Viewport.Zoom)
	}
	if !s.ViewportSet || !s.Viewport.Center.Valid() {
		s.Viewport.Center = DefaultCenter
		s.ViewportSet = false
	}
	if sig.Located {
		loc := models.Coordinates{Latitude: sig.UserLat, Longitude: sig.UserLng}
		s.UserLocation = &loc
	}
	if sig.HasPin {
		pin := models.Coordinates{Latitude: sig.PinLat, Longitude: sig.PinLng}
		s.Pin = &pin
	}
	if s.Mode == Confirming && s.Pin == nil {
		s.Mode = Viewing
	}
	if s.Mode != Confirming {
		s.Pin = nil
		s.Memo = ""
	}
	return s
}
