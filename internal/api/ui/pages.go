package ui

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/api"
	"github.com/yu-fu/smokesearch/internal/mapstate"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/session"
	"github.com/yu-fu/smokesearch/internal/templates"
)

// identityWait bounds how long a page waits for the session to settle.
const identityWait = 2 * time.Second

type pageDef struct {
	route      string
	name       string
	titleKey   string
	descKey    string
	noIndex    bool
	changeFreq string  // sitemap; empty keeps the page out of it
	priority   float64 // sitemap
}

var pageDefs = []pageDef{
	{route: "/", name: "home", titleKey: "meta.title", descKey: "meta.description", changeFreq: "daily", priority: 1},
	{route: "/login", name: "login", titleKey: "meta.login_title", descKey: "meta.login_description", changeFreq: "monthly", priority: 0.5},
	{route: "/signup", name: "signup", titleKey: "meta.signup_title", descKey: "meta.signup_description", changeFreq: "monthly", priority: 0.5},
	{route: "/settings", name: "settings", titleKey: "meta.settings_title", descKey: "meta.description", noIndex: true},
	{route: "/terms", name: "terms", titleKey: "meta.terms_title", descKey: "meta.description", changeFreq: "yearly", priority: 0.3},
	{route: "/privacy", name: "privacy", titleKey: "meta.privacy_title", descKey: "meta.description", changeFreq: "yearly", priority: 0.3},
}

// HomeData is the page data of the map.
type HomeData struct {
	TileURL     string
	Attribution string
	Center      models.Coordinates
	Zoom        int
}

// AuthData is the page data of the login and signup pages.
type AuthData struct {
	Federated bool
	ResetCode string
}

// DocData lists the catalog keys of a document's bullet items.
type DocData struct {
	Items []string
}

var (
	termsItems   = []string{"terms.s3_item1", "terms.s3_item2", "terms.s3_item3", "terms.s3_item4", "terms.s3_item5"}
	privacyItems = []string{"privacy.s2_item1", "privacy.s2_item2", "privacy.s2_item3", "privacy.s2_item4", "privacy.s2_item5"}
)

// RegisterPages registers the HTML pages, unprefixed and under every
// locale prefix, plus the locale switch, the sitemap and robots.txt.
func (h *Handler) RegisterPages(mux *http.ServeMux) {
	for _, def := range pageDefs {
		mux.HandleFunc("GET "+pattern("", def.route), h.page(def, ""))
		for _, loc := range h.Catalog.Locales() {
			mux.HandleFunc("GET "+pattern("/"+loc, def.route), h.page(def, loc))
		}
	}
	mux.HandleFunc("GET /locale/{locale}", h.switchLocale)
	mux.HandleFunc("GET /sitemap.xml", h.sitemap)
	mux.HandleFunc("GET /robots.txt", h.robots)
}

func pattern(prefix, route string) string {
	if route == "/" {
		return prefix + "/{$}"
	}
	return prefix + route
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// baseURL is the configured origin, or the request origin.
func (h *Handler) baseURL(r *http.Request) string {
	if h.Site.BaseURL != "" {
		return strings.TrimRight(h.Site.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// identity reads the session of the browser once it has settled.
func (h *Handler) identity(ctx context.Context, browserID, sessionID string) session.Snapshot {
	sc := h.Sessions.Open(ctx, browserID, sessionID)
	defer sc.Close()

	ctx, cancel := context.WithTimeout(ctx, identityWait)
	defer cancel()
	snap, err := sc.Wait(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("ui: session did not settle, rendering anonymous")
	}
	return snap
}

func (h *Handler) page(def pageDef, pathLocale string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bid := cookieValue(r, api.CookieBrowser)
		if bid == "" {
			bid = api.NewBrowserID()
			http.SetCookie(w, api.BrowserCookie(bid, h.Site.SecureCookies))
		}

		locale, prefix := pathLocale, ""
		if pathLocale != "" {
			prefix = "/" + pathLocale
		} else {
			locale = h.Catalog.Negotiate(cookieValue(r, api.CookieLocale), r.Header.Get("Accept-Language"))
		}

		snap := h.identity(r.Context(), bid, cookieValue(r, api.CookieSession))
		base := h.baseURL(r)
		p := templates.Page{
			Locale:      locale,
			Locales:     h.Catalog.Locales(),
			Prefix:      prefix,
			Path:        def.route,
			Title:       h.Catalog.T(locale, def.titleKey),
			Description: h.Catalog.T(locale, def.descKey),
			Keywords:    h.Catalog.T(locale, "meta.keywords"),
			Canonical:   base + templates.Page{Prefix: prefix}.Href(def.route),
			OGImage:     base + "/static/opengraph-image.png",
			NoIndex:     def.noIndex,
			AnalyticsID: h.Site.AnalyticsID,
			SignedIn:    snap.SignedIn(),
		}
		if p.SignedIn {
			p.UserEmail = snap.User.Email
		}

		signals := map[string]any{
			"locale":   locale,
			"prefix":   prefix,
			"signedIn": p.SignedIn,
			"error":    "",
			"success":  "",
		}
		h.pageData(def, r, &p, signals, base)

		sig, err := json.Marshal(signals)
		if err != nil {
			log.Error().Err(err).Str("page", def.name).Msg("ui: encode signals")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		p.Signals = string(sig)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if def.noIndex {
			w.Header().Set("X-Robots-Tag", "noindex")
		}
		if err := h.Renderer.RenderPage(w, def.name, p); err != nil {
			log.Error().Err(err).Str("page", def.name).Msg("ui: render page")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// pageData fills the page specific data and initial signals.
func (h *Handler) pageData(def pageDef, r *http.Request, p *templates.Page, signals map[string]any, base string) {
	switch def.name {
	case "home":
		state := mapstate.Initial()
		p.Data = HomeData{
			TileURL:     h.Site.TileURL,
			Attribution: h.Site.Attribution,
			Center:      state.Viewport.Center,
			Zoom:        state.Viewport.Zoom,
		}
		p.JSONLD = h.jsonLD(p.Locale, base)
		signals["map"] = state.Signals()
		signals["geo"] = mapstate.GeoSignal{}
		signals["areas"] = []AreaSignal{}
		signals["report"] = ReportSignals{}

	case "login":
		data := AuthData{Federated: h.Verifier.Enabled()}
		q := r.URL.Query()
		if q.Get("mode") == "resetPassword" {
			data.ResetCode = q.Get("oobCode")
		}
		if q.Get("reauth") != "" {
			signals["error"] = h.Catalog.T(p.Locale, "settings.delete_account_reauth")
		}
		p.Data = data
		signals["email"] = ""
		signals["password"] = ""
		signals["confirm"] = ""
		signals["resetemail"] = ""
		signals["code"] = data.ResetCode

	case "signup":
		p.Data = AuthData{Federated: h.Verifier.Enabled()}
		signals["email"] = ""
		signals["password"] = ""
		signals["confirm"] = ""

	case "terms":
		p.Data = DocData{Items: termsItems}

	case "privacy":
		p.Data = DocData{Items: privacyItems}
	}
}

// jsonLD returns the organization and website metadata of the home page.
func (h *Handler) jsonLD(locale, base string) []any {
	name := h.Catalog.T(locale, "meta.site_name")
	return []any{
		map[string]any{
			"@context":    "https://schema.org",
			"@type":       "Organization",
			"name":        name,
			"url":         base,
			"description": h.Catalog.T(locale, "meta.org_description"),
		},
		map[string]any{
			"@context":    "https://schema.org",
			"@type":       "WebSite",
			"name":        name,
			"url":         base,
			"inLanguage":  locale,
			"description": h.Catalog.T(locale, "meta.description"),
			"potentialAction": map[string]any{
				"@type": "SearchAction",
				"target": map[string]any{
					"@type":       "EntryPoint",
					"urlTemplate": base + "/?q={search_term_string}",
				},
				"query-input": "required name=search_term_string",
			},
		},
	}
}

// switchLocale remembers the chosen locale and returns to the page.
func (h *Handler) switchLocale(w http.ResponseWriter, r *http.Request) {
	locale := r.PathValue("locale")
	if !h.Catalog.Supports(locale) {
		http.NotFound(w, r)
		return
	}
	http.SetCookie(w, api.LocaleCookie(locale, h.Site.SecureCookies))

	next := r.URL.Query().Get("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

// sitemap lists the indexable pages, unprefixed and per locale.
func (h *Handler) sitemap(w http.ResponseWriter, r *http.Request) {
	base := h.baseURL(r)
	today := time.Now().UTC().Format("2006-01-02")

	set := urlSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, def := range pageDefs {
		if def.changeFreq == "" {
			continue
		}
		prefixes := []string{""}
		for _, loc := range h.Catalog.Locales() {
			prefixes = append(prefixes, "/"+loc)
		}
		for _, prefix := range prefixes {
			set.URLs = append(set.URLs, sitemapURL{
				Loc:        base + templates.Page{Prefix: prefix}.Href(def.route),
				LastMod:    today,
				ChangeFreq: def.changeFreq,
				Priority:   def.priority,
			})
		}
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		log.Error().Err(err).Msg("ui: encode sitemap")
	}
}

// robots keeps crawlers out of the settings pages and the Datastar endpoints.
func (h *Handler) robots(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	for _, def := range pageDefs {
		if !def.noIndex {
			continue
		}
		fmt.Fprintf(&b, "Disallow: %s\n", def.route)
		for _, loc := range h.Catalog.Locales() {
			fmt.Fprintf(&b, "Disallow: /%s%s\n", loc, def.route)
		}
	}
	b.WriteString("Disallow: /ui/\n")
	fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", h.baseURL(r))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(b.String()))
}
