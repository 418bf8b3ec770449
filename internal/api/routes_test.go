package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/i18n"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/service"
	"github.com/yu-fu/smokesearch/internal/store"
	"github.com/yu-fu/smokesearch/internal/tiles"
)

type testEnv struct {
	api  humatest.TestAPI
	auth *auth.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	links := humastar.NewLinks("/api/v1/info")
	cfg := huma.DefaultConfig("test", "1.0.0")
	cfg.Transformers = append(cfg.Transformers, links.Transformer())
	_, api := humatest.New(t, cfg)

	provider := auth.NewLocalProvider(t.TempDir(), "", nil)
	provider.Cost = bcrypt.MinCost
	client := auth.NewClient(provider, auth.NewMemorySessions(), bus.New(), i18n.MustLoad(), auth.Config{})

	st := store.NewMemory()
	areas := service.NewAreaService(st, nil)
	huma.AutoRegister(api, NewAPIHandler(&Services{
		Areas:   areas,
		Reports: service.NewReportService(st, areas),
		Auth:    client,
	}))
	NewInfoHandler("memory", "memory", false).RegisterRoutes(api)
	links.Build(api)
	return &testEnv{api: api, auth: client}
}

// signIn creates an account and returns its session cookie header.
func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()
	s, err := e.auth.SignUp(context.Background(), "bid-"+email, email, "secret1")
	require.NoError(t, err)
	return "Cookie: " + CookieSession + "=" + s.ID
}

func decode[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body.Bytes(), &v))
	return v
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthBody](t, resp.Body).Status)

	resp = env.api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	info := decode[InfoBody](t, resp.Body)
	assert.Equal(t, "smokesearch", info.Name)
	assert.Equal(t, "memory", info.Store)
	assert.NotContains(t, info.Features, "federated-sign-in")
}

func TestAreaWritesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.api.Post("/api/v1/areas", map[string]any{"latitude": 35.0, "longitude": 139.0})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.api.Post("/api/v1/areas", "Cookie: smoke_session=unknown",
		map[string]any{"latitude": 35.0, "longitude": 139.0})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAreaCRUD(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")
	bob := env.signIn(t, "bob@example.com")

	resp := env.api.Post("/api/v1/areas", alice, map[string]any{
		"latitude": 35.6812, "longitude": 139.7671, "memo": " 屋外 ",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[models.SmokingArea](t, resp.Body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "屋外", created.Memo)
	assert.NotEmpty(t, created.CreatedByID)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/areas/`+created.ID+`>; rel="delete"; method="DELETE"; title="Delete smoking area"`)

	resp = env.api.Get("/api/v1/areas")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]models.SmokingArea](t, resp.Body), 1)

	// Anonymous readers see no owner actions.
	resp = env.api.Get("/api/v1/areas/" + created.ID)
	require.Equal(t, http.StatusOK, resp.Code)
	for _, l := range resp.Header().Values("Link") {
		assert.NotContains(t, l, `rel="delete"`)
	}

	resp = env.api.Patch("/api/v1/areas/"+created.ID, bob, map[string]any{"memo": "hijack"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.api.Patch("/api/v1/areas/"+created.ID, alice, map[string]any{"latitude": 36.0})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Patch("/api/v1/areas/"+created.ID, alice, map[string]any{
		"latitude": 35.7, "longitude": 139.8, "memo": "moved",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	updated := decode[models.SmokingArea](t, resp.Body)
	assert.Equal(t, 35.7, updated.Latitude)
	assert.Equal(t, "moved", updated.Memo)

	resp = env.api.Delete("/api/v1/areas/"+created.ID, bob)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.api.Delete("/api/v1/areas/"+created.ID, alice)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.api.Get("/api/v1/areas/" + created.ID)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListAreasBBox(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")
	for _, c := range [][2]float64{{35.68, 139.76}, {34.70, 135.50}} {
		resp := env.api.Post("/api/v1/areas", alice, map[string]any{"latitude": c[0], "longitude": c[1]})
		require.Equal(t, http.StatusCreated, resp.Code)
	}

	resp := env.api.Get("/api/v1/areas?bbox=139.0,35.0,140.0,36.0")
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[[]models.SmokingArea](t, resp.Body)
	require.Len(t, got, 1)
	assert.Equal(t, 35.68, got[0].Latitude)

	resp = env.api.Get("/api/v1/areas?bbox=1,2,3")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox(" 139, 35 ,140,36")
	require.NoError(t, err)
	assert.Equal(t, 139.0, b.Min.Lon())
	assert.Equal(t, 36.0, b.Max.Lat())

	_, err = ParseBBox("140,35,139,36")
	assert.Error(t, err)
	_, err = ParseBBox("a,b,c,d")
	assert.Error(t, err)
}

func TestNearbyAndGeoJSON(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")
	for _, c := range [][2]float64{{35.6895, 139.6917}, {35.6812, 139.7671}, {34.70, 135.50}} {
		resp := env.api.Post("/api/v1/areas", alice, map[string]any{"latitude": c[0], "longitude": c[1]})
		require.Equal(t, http.StatusCreated, resp.Code)
	}

	resp := env.api.Get("/api/v1/areas/nearby?lat=35.6895&lng=139.6917&radius=10")
	require.Equal(t, http.StatusOK, resp.Code)
	near := decode[[]service.NearbyArea](t, resp.Body)
	require.Len(t, near, 2)
	assert.Less(t, near[0].DistanceMeters, near[1].DistanceMeters)

	resp = env.api.Get("/api/v1/areas/nearby?lng=139.6917")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Get("/api/v1/areas.geojson")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/geo+json", resp.Header().Get("Content-Type"))
	fc, err := geojson.UnmarshalFeatureCollection(resp.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")

	resp := env.api.Post("/api/v1/areas", alice, map[string]any{"latitude": 35.0, "longitude": 139.0})
	require.Equal(t, http.StatusCreated, resp.Code)
	area := decode[models.SmokingArea](t, resp.Body)

	resp = env.api.Post("/api/v1/areas/"+area.ID+"/reports", map[string]any{"reason": "closed"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.api.Post("/api/v1/areas/"+area.ID+"/reports", alice, map[string]any{"reason": "gone"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Post("/api/v1/areas/missing/reports", alice, map[string]any{"reason": "closed"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	for _, reason := range []string{"closed", "relocated", "other"} {
		resp = env.api.Post("/api/v1/areas/"+area.ID+"/reports", alice, map[string]any{"reason": reason})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	}

	resp = env.api.Get("/api/v1/areas/" + area.ID + "/reports?limit=2")
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[humastar.PageBody[models.Report]](t, resp.Body)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, models.ReasonOther, page.Data[0].Reason)

	resp = env.api.Get("/api/v1/areas/unknown/reports")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, decode[humastar.PageBody[models.Report]](t, resp.Body).Total)
}

func TestGetTile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")
	resp := env.api.Post("/api/v1/areas", alice, map[string]any{"latitude": 35.6812, "longitude": 139.7671})
	require.Equal(t, http.StatusCreated, resp.Code)

	// Zoom 0 covers the world.
	resp = env.api.Get("/api/v1/tiles/0/0/0.mvt")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, tiles.ContentType, resp.Header().Get("Content-Type"))
	assert.Equal(t, "gzip", resp.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	_, err = io.ReadAll(zr)
	require.NoError(t, err)

	resp = env.api.Get("/api/v1/tiles/1/5/0")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = env.api.Get("/api/v1/tiles/1/0/x.mvt")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestGetTileArchive(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice@example.com")
	resp := env.api.Post("/api/v1/areas", alice, map[string]any{"latitude": 35.6812, "longitude": 139.7671})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.api.Get("/api/v1/tiles.pmtiles?maxzoom=3")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, tiles.ArchiveContentType, resp.Header().Get("Content-Type"))
	assert.Equal(t, "PMTiles", resp.Body.String()[:7])

	resp = env.api.Get("/api/v1/tiles.pmtiles?minzoom=5&maxzoom=2")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
