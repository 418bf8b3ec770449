package ui

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/forms"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/mapstate"
	"github.com/yu-fu/smokesearch/internal/models"
)

// AreaSignal is the map marker form of a smoking area.
type AreaSignal struct {
	ID   string  `json:"id"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Memo string  `json:"memo,omitempty"`
}

func areaSignals(areas []models.SmokingArea) []AreaSignal {
	out := make([]AreaSignal, len(areas))
	for i, a := range areas {
		out[i] = AreaSignal{ID: a.ID, Lat: a.Latitude, Lng: a.Longitude, Memo: a.Memo}
	}
	return out
}

// mapEvent applies one event to the machine rebuilt from the signals. It
// returns the areas to send back, nil when the list is unchanged.
type mapEvent func(r *request, m *mapstate.Machine) []models.SmokingArea

func (h *Handler) mapAction(ctx context.Context, in *Input, clearAlerts bool, event mapEvent) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		m := mapstate.New(mapstate.FromSignals(r.sig.Map), h.Areas, mapstate.SignalLocator{Geo: r.sig.Geo})
		areas := event(r, m)

		signals := map[string]any{"map": m.Signals()}
		if areas != nil {
			signals["areas"] = areaSignals(areas)
		}
		switch {
		case m.Error != "":
			signals["error"] = r.t(h, m.Error)
			signals["success"] = ""
		case clearAlerts:
			signals["error"] = ""
		}
		sse.Signals(signals)
	}), nil
}

// MapInit positions the map on the reported location and loads the areas.
func (h *Handler) MapInit(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, false, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		m.Init(r.ctx)
		return h.Areas.List(r.ctx)
	})
}

// MapToggle enters placing mode, or leaves it without saving.
func (h *Handler) MapToggle(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, true, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		m.Toggle(r.ctx)
		return nil
	})
}

// MapPan records the viewport reported by the map widget.
func (h *Handler) MapPan(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, false, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		m.Pan(models.Coordinates{Latitude: r.sig.Map.Lat, Longitude: r.sig.Map.Lng}, r.sig.Map.Zoom)
		return nil
	})
}

// MapConfirm captures the viewport center and opens the memo dialog.
func (h *Handler) MapConfirm(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, true, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		if err := m.Confirm(); err != nil {
			log.Debug().Err(err).Str("mode", string(m.Mode)).Msg("ui: confirm ignored")
		}
		return nil
	})
}

// MapMemo validates and stores the memo draft.
func (h *Handler) MapMemo(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, true, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		if errs := (forms.Memo{Memo: r.sig.Map.Memo}).Validate(); !errs.OK() {
			m.Error = errs.First()
			return nil
		}
		m.SetMemo(r.sig.Map.Memo)
		return nil
	})
}

// MapSubmit saves the pinned area and reloads every area.
func (h *Handler) MapSubmit(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, true, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		if errs := (forms.Memo{Memo: r.sig.Map.Memo}).Validate(); !errs.OK() {
			m.Error = errs.First()
			return nil
		}
		areas, err := m.Submit(r.ctx, h.userID(r.ctx, r.cookies.Session))
		switch {
		case errors.Is(err, mapstate.ErrLoginRequired):
			m.Error = "auth.login_required"
		case errors.Is(err, mapstate.ErrInvalidTransition):
			log.Debug().Str("mode", string(m.Mode)).Msg("ui: submit ignored")
		case err != nil && m.Error == "":
			m.Error = "error.area_add_failed"
		}
		return areas
	})
}

// MapCancel discards the draft.
func (h *Handler) MapCancel(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, true, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		m.Cancel()
		return nil
	})
}

// MapAreas reloads every area.
func (h *Handler) MapAreas(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.mapAction(ctx, in, false, func(r *request, m *mapstate.Machine) []models.SmokingArea {
		return h.Areas.List(r.ctx)
	})
}
