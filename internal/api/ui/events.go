package ui

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/humastar"
)

// AreaEvents streams the full area list to the map whenever any browser
// adds, edits or deletes an area.
func (h *Handler) AreaEvents(ctx context.Context, in *humastar.EmptyInput) (*huma.StreamResponse, error) {
	if h.Bus == nil {
		return h.Stream(func(sse humastar.SSE) {}), nil
	}
	return h.StreamRaw(func(humaCtx huma.Context, start func() humastar.SSE) {
		done := humastar.Request(humaCtx).Context().Done()
		ch := h.Bus.Subscribe(bus.TopicAreas)
		defer h.Bus.Unsubscribe(bus.TopicAreas, ch)
		sse := start()

		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				// Collapse a burst of changes into one reload.
				for pending := true; pending; {
					select {
					case _, ok := <-ch:
						pending = ok
					default:
						pending = false
					}
				}
				sse.Signals(map[string]any{"areas": areaSignals(h.Areas.List(ctx))})
				sse.DispatchCustomEvent("areas-changed", map[string]any{
					"action": ev.Action,
					"id":     ev.ID,
				})
			}
		}
	}), nil
}
