// Package server wires the stores, the auth client and the HTTP surface of
// the smoking area search.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/api"
	"github.com/yu-fu/smokesearch/internal/api/ui"
	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/db"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/i18n"
	"github.com/yu-fu/smokesearch/internal/observability"
	"github.com/yu-fu/smokesearch/internal/service"
	"github.com/yu-fu/smokesearch/internal/session"
	"github.com/yu-fu/smokesearch/internal/store"
	"github.com/yu-fu/smokesearch/internal/templates"
	"github.com/yu-fu/smokesearch/internal/web"
)

// Store backends.
const (
	StoreDuckDB = "duckdb"
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // overrides the embedded templates and static files
	Env     string

	Store         string // duckdb, mongo or memory
	MongoURI      string
	MongoDB       string
	RedisAddr     string // empty keeps sessions in memory
	RedisPassword string

	BaseURL       string
	AnalyticsID   string
	DefaultLocale string
	TileURL       string
	RecentLogin   time.Duration

	FederatedEmailHeader   string // empty disables federated sign-in
	FederatedSubjectHeader string
	SecureCookies          bool

	// Mailer delivers password reset links; nil logs them.
	Mailer auth.Mailer
}

// Server is the smoking area search HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	store    store.Store
	sessions auth.SessionStore
	areas    *service.AreaService
	renderer *templates.Renderer
}

// New opens the configured backends and registers every route.
func New(ctx context.Context, cfg Config) (*Server, error) {
	locale := cfg.DefaultLocale
	if locale == "" {
		locale = i18n.Default
	}
	catalog, err := i18n.LoadDefault(locale)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := openSessions(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	tfs, err := web.Templates(cfg.WebDir)
	if err != nil {
		return nil, errors.Join(err, st.Close(), sessions.Close())
	}
	renderer, err := templates.New(tfs, catalog)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("load templates: %w", err), st.Close(), sessions.Close())
	}
	static, err := web.Static(cfg.WebDir)
	if err != nil {
		return nil, errors.Join(err, st.Close(), sessions.Close())
	}

	events := bus.New()
	provider := auth.NewLocalProvider(cfg.DataDir, resetURL(cfg.BaseURL), cfg.Mailer)
	authClient := auth.NewClient(provider, sessions, events, catalog, auth.Config{RecentLogin: cfg.RecentLogin})
	areas := service.NewAreaService(st, events)
	reports := service.NewReportService(st, areas)
	verifier := auth.HeaderVerifier{
		EmailHeader:   cfg.FederatedEmailHeader,
		SubjectHeader: cfg.FederatedSubjectHeader,
	}

	mux := http.NewServeMux()

	// humago keeps the API on the stdlib mux next to the pages.
	links := humastar.NewLinks("/api/v1/info", ui.Tag)
	humaConfig := huma.DefaultConfig("Smoking Area Search API", api.Version)
	humaConfig.Info.Description = "Find, register and report smoking areas on a map."
	if cfg.BaseURL != "" {
		humaConfig.Servers = []*huma.Server{{URL: cfg.BaseURL}}
	} else if cfg.Host != "" {
		humaConfig.Servers = []*huma.Server{
			{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
		}
	}
	// Disable $schema property in responses
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())
	humaAPI := humago.New(mux, humaConfig)

	huma.AutoRegister(humaAPI, api.NewAPIHandler(&api.Services{
		Areas:   areas,
		Reports: reports,
		Auth:    authClient,
	}))
	api.NewInfoHandler(storeKind(cfg), sessionKind(cfg), verifier.Enabled()).RegisterRoutes(humaAPI)

	uiHandler := ui.New(renderer, ui.Deps{
		Catalog:  catalog,
		Areas:    areas,
		Reports:  reports,
		Auth:     authClient,
		Sessions: session.NewManager(authClient),
		Bus:      events,
		Verifier: verifier,
		Site: ui.Site{
			BaseURL:       cfg.BaseURL,
			AnalyticsID:   cfg.AnalyticsID,
			TileURL:       cfg.TileURL,
			SecureCookies: cfg.SecureCookies,
		},
	})
	uiHandler.RegisterRoutes(humaAPI)
	uiHandler.RegisterPages(mux)
	links.Build(humaAPI)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	log.Info().
		Str("store", storeKind(cfg)).
		Str("sessions", sessionKind(cfg)).
		Bool("federated", verifier.Enabled()).
		Msg("server ready")

	return &Server{
		config:   cfg,
		mux:      mux,
		handler:  observability.RequestLogger(mux),
		humaAPI:  humaAPI,
		store:    st,
		sessions: sessions,
		areas:    areas,
		renderer: renderer,
	}, nil
}

func storeKind(cfg Config) string {
	if cfg.Store == "" {
		return StoreDuckDB
	}
	return cfg.Store
}

func sessionKind(cfg Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "memory"
}

func resetURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/login"
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch kind := storeKind(cfg); kind {
	case StoreDuckDB:
		st, err := store.OpenDuckDB(ctx, db.Config{DataDir: cfg.DataDir})
		if err != nil {
			return nil, fmt.Errorf("open duckdb store: %w", err)
		}
		return st, nil
	case StoreMongo:
		st, err := store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		return st, nil
	case StoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func openSessions(ctx context.Context, cfg Config) (auth.SessionStore, error) {
	if cfg.RedisAddr == "" {
		return auth.NewMemorySessions(), nil
	}
	s, err := auth.NewRedisSessions(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		return nil, fmt.Errorf("open redis sessions: %w", err)
	}
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// API returns the huma API, for exporting the OpenAPI document.
func (s *Server) API() huma.API {
	return s.humaAPI
}

// OpenAPI returns the OpenAPI document of the REST and Datastar endpoints.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Areas returns the area service.
func (s *Server) Areas() *service.AreaService {
	return s.areas
}

// Reload re-reads the templates from disk when a web dir is configured.
func (s *Server) Reload() error {
	return s.renderer.Reload()
}

// Close closes server resources.
func (s *Server) Close() error {
	return errors.Join(s.store.Close(), s.sessions.Close())
}
