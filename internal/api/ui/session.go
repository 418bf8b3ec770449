package ui

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/api"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/session"
	"github.com/yu-fu/smokesearch/internal/templates"
)

// EventsInput identifies the page that listens for identity changes.
type EventsInput struct {
	api.Cookies
	Lang   string `query:"locale" doc:"Page locale"`
	Prefix string `query:"prefix" doc:"Locale prefix of the page URL"`
	Path   string `query:"path" doc:"Page route without the prefix"`
}

// SessionEvents streams the site header whenever the browser signs in or
// out, in this tab or another one.
func (h *Handler) SessionEvents(ctx context.Context, in *EventsInput) (*huma.StreamResponse, error) {
	page := templates.Page{
		Locale:  h.Catalog.Negotiate(in.Lang, ""),
		Locales: h.Catalog.Locales(),
		Prefix:  in.Prefix,
		Path:    in.Path,
	}
	if in.BrowserID == "" {
		// No browser id means no sign-in can be announced to this tab.
		return h.Stream(func(sse humastar.SSE) {}), nil
	}

	return h.StreamRaw(func(humaCtx huma.Context, start func() humastar.SSE) {
		done := humastar.Request(humaCtx).Context().Done()
		sse := start()

		sc := h.Sessions.Open(ctx, in.BrowserID, in.Session)
		defer sc.Close()

		// Keep only the newest snapshot; subscriber calls are serialized.
		latest := make(chan session.Snapshot, 1)
		unsubscribe := sc.Subscribe(func(s session.Snapshot) {
			select {
			case <-latest:
			default:
			}
			latest <- s
		})
		defer unsubscribe()

		for {
			select {
			case <-done:
				return
			case s := <-latest:
				if s.State == session.Loading {
					continue
				}
				p := page
				p.SignedIn = s.SignedIn()
				if p.SignedIn {
					p.UserEmail = s.User.Email
				}
				html, err := h.Renderer.Render("header", p)
				if err != nil {
					log.Error().Err(err).Msg("ui: render header")
					return
				}
				sse.Replace(html, "#site-header")
				sse.Signals(map[string]any{"signedIn": p.SignedIn})
			}
		}
	}), nil
}
