// Package templates renders the HTML pages and the fragments patched in by
// Datastar SSE responses.
//
// Templates are read from an fs.FS laid out as:
//
//	layout.html        defines "layout", shared by every page
//	fragments/*.html   named fragments, also available to pages
//	pages/*.html       one file per page, each defining "content"
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/yu-fu/smokesearch/internal/i18n"
)

// dict creates a map from key-value pairs, useful for passing multiple
// values to nested templates.
func dict(values ...any) map[string]any {
	if len(values)%2 != 0 {
		return nil
	}
	m := make(map[string]any, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			continue
		}
		m[key] = values[i+1]
	}
	return m
}

// Page is the data every page template receives. Data holds the page
// specific part.
type Page struct {
	Locale      string
	Locales     []string
	Prefix      string // "" or "/{locale}" when the URL carried a locale
	Path        string // route path without the locale prefix
	Title       string
	Description string
	Keywords    string
	Canonical   string
	OGImage     string
	NoIndex     bool
	JSONLD      []any
	AnalyticsID string
	SignedIn    bool
	UserEmail   string
	Signals     string
	Data        any
}

// Href prefixes route with the locale prefix of the page.
func (p Page) Href(route string) string {
	if p.Prefix == "" {
		return route
	}
	if route == "/" {
		return p.Prefix + "/"
	}
	return p.Prefix + route
}

// EventsURL is the session event stream of the page.
func (p Page) EventsURL() string {
	q := url.Values{"locale": {p.Locale}, "prefix": {p.Prefix}, "path": {p.Path}}
	return "/ui/session/events?" + q.Encode()
}

// Renderer manages the page and fragment templates.
type Renderer struct {
	fsys    fs.FS
	catalog *i18n.Catalog

	mu        sync.RWMutex
	fragments *template.Template
	pages     map[string]*template.Template
}

// New parses every template in fsys.
func New(fsys fs.FS, catalog *i18n.Catalog) (*Renderer, error) {
	r := &Renderer{fsys: fsys, catalog: catalog}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"dict":  dict,
		"t":     r.catalog.T,
		"upper": strings.ToUpper,
	}
}

// Reload re-parses the templates (useful with a web dir override during
// development).
func (r *Renderer) Reload() error {
	base, err := template.New("").Funcs(r.funcs()).ParseFS(r.fsys, "layout.html", "fragments/*.html")
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(r.fsys, "pages/*.html")
	if err != nil {
		return err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := t.ParseFS(r.fsys, f); err != nil {
			return fmt.Errorf("parse %s: %w", f, err)
		}
		pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}

	r.mu.Lock()
	r.fragments = base
	r.pages = pages
	r.mu.Unlock()
	return nil
}

// Render renders a named fragment to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named fragment to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.fragments.ExecuteTemplate(buf, name, data)
}

// MustRender renders a fragment and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// HasPage reports whether a page template exists.
func (r *Renderer) HasPage(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pages[name]
	return ok
}

// RenderPage renders a full page inside the layout. The page is rendered
// to a buffer first so a template error never leaves a half-written
// response.
func (r *Renderer) RenderPage(w io.Writer, name string, p Page) error {
	r.mu.RLock()
	t, ok := r.pages[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
