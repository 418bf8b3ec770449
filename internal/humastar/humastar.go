// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming → Datastar SSE protocol via [SSE] and [NewSSE]
//   - Signals: typed Datastar signal decoding via [SignalsInput]
//   - Rendering: list helpers via [RenderList]
//   - Hypermedia: RFC 8288 Link headers via [Links], [Action] and [PageBody]
//
// Usage:
//
//	type MyHandler struct {
//	    humastar.Handler
//	    areas *service.AreaService
//	}
//
//	func (h *MyHandler) List(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Patch(h.RenderList("area-item", items, empty), "#area-list")
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/yu-fu/smokesearch/internal/templates"
)

// ---------------------------------------------------------------------------
// Handler — embeddable base for Datastar SSE handlers
// ---------------------------------------------------------------------------

// Handler is an embeddable base for Huma handlers that produce Datastar SSE
// responses.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// StreamRaw is like Stream but hands fn the Huma context first, so it can
// read the request or set headers (cookies) before the stream starts.
func (h *Handler) StreamRaw(fn func(humaCtx huma.Context, start func() SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(humaCtx, func() SSE { return NewSSE(humaCtx) })
		},
	}
}

// RenderList renders items with a named template, or the empty state.
func (h *Handler) RenderList(tmpl string, items []any, empty Empty) string {
	return RenderList(h.Renderer, tmpl, items, empty)
}

// ---------------------------------------------------------------------------
// SSE — Huma ↔ Datastar bridge
// ---------------------------------------------------------------------------

// SSE wraps a Datastar SSE generator with convenience methods for common
// patterns: error/success signals, inner/outer element patching.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch sends HTML to replace inner content at a CSS selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
	)
}

// Replace replaces outer HTML at a CSS selector.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Error sends an error message signal to the UI and clears success.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg, "success": ""})
}

// Success sends a success message signal to the UI and clears error.
func (s SSE) Success(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"success": msg, "error": ""})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// SetCookie adds a Set-Cookie header. Call before the stream starts.
func SetCookie(ctx huma.Context, c *http.Cookie) {
	ctx.AppendHeader("Set-Cookie", c.String())
}

// Request returns the underlying request of a humago context.
func Request(ctx huma.Context) *http.Request {
	r, _ := humago.Unwrap(ctx)
	return r
}

// ---------------------------------------------------------------------------
// Input types
// ---------------------------------------------------------------------------

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// SignalsInput is an input struct for handlers that receive Datastar signals.
// Datastar sends every non-local signal as one JSON object in the body.
type SignalsInput struct {
	RawBody []byte
}

// Decode unmarshals the signals into v. An empty body leaves v untouched.
func (i *SignalsInput) Decode(v any) error {
	if len(bytes.TrimSpace(i.RawBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(i.RawBody, v); err != nil {
		return huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rendering helpers
// ---------------------------------------------------------------------------

// Empty is the data of the "empty-state" fragment.
type Empty struct {
	Title   string
	Message string
}

// RenderList renders items with a named template, or the empty state if
// there are none.
func RenderList(r *templates.Renderer, tmpl string, items []any, empty Empty) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		r.RenderToBuffer(&buf, "empty-state", empty)
	} else {
		for _, item := range items {
			r.RenderToBuffer(&buf, tmpl, item)
		}
	}
	return buf.String()
}
