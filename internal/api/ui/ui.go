// Package ui contains the Datastar SSE handlers and the HTML pages.
//
// Every /ui endpoint receives the page signals, applies one action and
// answers with signal and fragment patches. Pages are plain handlers on the
// mux; they render the layout with the initial signals.
package ui

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yu-fu/smokesearch/internal/api"
	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/i18n"
	"github.com/yu-fu/smokesearch/internal/mapstate"
	"github.com/yu-fu/smokesearch/internal/service"
	"github.com/yu-fu/smokesearch/internal/session"
	"github.com/yu-fu/smokesearch/internal/templates"
)

// Tag marks the Datastar operations in the OpenAPI document.
const Tag = "ui"

// DefaultTileURL and DefaultAttribution describe the OpenStreetMap tile layer.
const (
	DefaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
)

// Site is the deployment-specific page configuration.
type Site struct {
	BaseURL       string // absolute origin for canonical links and the sitemap
	AnalyticsID   string // empty disables the analytics snippet
	TileURL       string
	Attribution   string
	SecureCookies bool
}

// Deps are the collaborators of the UI handlers.
type Deps struct {
	Catalog  *i18n.Catalog
	Areas    *service.AreaService
	Reports  *service.ReportService
	Auth     *auth.Client
	Sessions *session.Manager
	Bus      *bus.Bus            // area change feed; the live stream is idle when unset
	Verifier auth.HeaderVerifier // federated sign-in; disabled when unset
	Site     Site
}

// Handler serves the Datastar endpoints and the pages.
type Handler struct {
	humastar.Handler
	Deps
}

// New creates the UI handler rendering with r.
func New(r *templates.Renderer, d Deps) *Handler {
	if d.Site.TileURL == "" {
		d.Site.TileURL = DefaultTileURL
	}
	if d.Site.Attribution == "" {
		d.Site.Attribution = DefaultAttribution
	}
	return &Handler{Handler: humastar.Handler{Renderer: r}, Deps: d}
}

// RegisterRoutes registers the Datastar endpoints.
func (h *Handler) RegisterRoutes(a huma.API) {
	tags := huma.OperationTags(Tag)

	huma.Post(a, "/ui/map/init", h.MapInit, tags)
	huma.Post(a, "/ui/map/toggle", h.MapToggle, tags)
	huma.Post(a, "/ui/map/pan", h.MapPan, tags)
	huma.Post(a, "/ui/map/confirm", h.MapConfirm, tags)
	huma.Post(a, "/ui/map/memo", h.MapMemo, tags)
	huma.Post(a, "/ui/map/submit", h.MapSubmit, tags)
	huma.Post(a, "/ui/map/cancel", h.MapCancel, tags)
	huma.Post(a, "/ui/map/areas", h.MapAreas, tags)
	huma.Get(a, "/ui/map/events", h.AreaEvents, tags)

	huma.Post(a, "/ui/reports/open", h.ReportOpen, tags)
	huma.Post(a, "/ui/reports/submit", h.ReportSubmit, tags)

	huma.Post(a, "/ui/auth/signup", h.SignUp, tags)
	huma.Post(a, "/ui/auth/login", h.Login, tags)
	huma.Post(a, "/ui/auth/federated", h.Federated, tags)
	huma.Post(a, "/ui/auth/reset", h.SendReset, tags)
	huma.Post(a, "/ui/auth/confirm-reset", h.ConfirmReset, tags)
	huma.Post(a, "/ui/auth/logout", h.Logout, tags)

	huma.Post(a, "/ui/settings/reset", h.SettingsReset, tags)
	huma.Post(a, "/ui/settings/delete", h.SettingsDelete, tags)

	huma.Get(a, "/ui/session/events", h.SessionEvents, tags)
}

// Input is what every Datastar action receives.
type Input struct {
	humastar.SignalsInput
	api.Cookies
}

// ReportSignals is the report dialog state.
type ReportSignals struct {
	Open    bool   `json:"open"`
	AreaID  string `json:"areaId"`
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

// Signals are the page signals sent with every action.
type Signals struct {
	Locale     string             `json:"locale"`
	Prefix     string             `json:"prefix"`
	Map        mapstate.Signals   `json:"map"`
	Geo        mapstate.GeoSignal `json:"geo"`
	Report     ReportSignals      `json:"report"`
	Email      string             `json:"email"`
	Password   string             `json:"password"`
	Confirm    string             `json:"confirm"`
	ResetEmail string             `json:"resetemail"`
	Code       string             `json:"code"`
}

// request is one decoded Datastar action.
type request struct {
	ctx     context.Context
	sig     Signals
	cookies api.Cookies
	locale  string
}

// decode reads the signals and resolves the request locale: the locale
// signal, then the locale cookie, then the default.
func (h *Handler) decode(ctx context.Context, in *Input) (*request, error) {
	var sig Signals
	if err := in.Decode(&sig); err != nil {
		return nil, err
	}
	preferred := sig.Locale
	if !h.Catalog.Supports(preferred) {
		preferred = in.Locale
	}
	locale := h.Catalog.Negotiate(preferred, "")
	return &request{
		ctx:     i18n.WithLocale(ctx, locale),
		sig:     sig,
		cookies: in.Cookies,
		locale:  locale,
	}, nil
}

// t translates key in the request locale.
func (r *request) t(h *Handler, key string, args ...any) string {
	return h.Catalog.T(r.locale, key, args...)
}

// href prefixes route with the locale prefix of the calling page.
func (r *request) href(route string) string {
	return templates.Page{Prefix: r.sig.Prefix}.Href(route)
}

// userID returns the signed-in user id for the request, or "".
func (h *Handler) userID(ctx context.Context, sessionID string) string {
	u, err := h.Auth.Current(ctx, sessionID)
	if err != nil || u == nil {
		return ""
	}
	return u.ID
}

// authMessage returns the user-facing text of an auth failure.
func (h *Handler) authMessage(r *request, err error) string {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if code := auth.CodeOf(err); code != "" {
		return auth.Message(h.Catalog, r.locale, code)
	}
	return r.t(h, "auth_error.default")
}

// browserID returns the browser cookie value, minting one (and its cookie)
// when the browser has none yet.
func (h *Handler) browserID(humaCtx huma.Context, cookies api.Cookies) string {
	if cookies.BrowserID != "" {
		return cookies.BrowserID
	}
	id := api.NewBrowserID()
	humastar.SetCookie(humaCtx, api.BrowserCookie(id, h.Site.SecureCookies))
	return id
}

func (h *Handler) startSession(humaCtx huma.Context, s auth.Session) {
	humastar.SetCookie(humaCtx, api.SessionCookie(s.ID, s.ExpiresAt, h.Site.SecureCookies))
}

func (h *Handler) clearSession(humaCtx huma.Context) {
	humastar.SetCookie(humaCtx, api.ClearCookie(api.CookieSession, h.Site.SecureCookies))
}
