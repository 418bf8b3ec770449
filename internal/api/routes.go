// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/humastar"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/service"
	"github.com/yu-fu/smokesearch/internal/tiles"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Areas   *service.AreaService
	Reports *service.ReportService
	Auth    *auth.Client
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Smoking area ID"`
}

type SessionInput struct {
	Session string `cookie:"smoke_session" doc:"Session token from sign-in"`
}

// AreaBody is a smoking area plus the actions open to the caller.
type AreaBody struct {
	models.SmokingArea
	owner bool
}

var areaActions = []humastar.ActionDef{
	{Rel: "reports", Pattern: "/api/v1/areas/%s/reports", Method: http.MethodGet, Title: "List reports"},
	{Rel: "report", Pattern: "/api/v1/areas/%s/reports", Method: http.MethodPost, Title: "Report a problem"},
	{Rel: "edit", Pattern: "/api/v1/areas/%s", Method: http.MethodPatch, Title: "Edit location or memo", OwnerOnly: true},
	{Rel: "delete", Pattern: "/api/v1/areas/%s", Method: http.MethodDelete, Title: "Delete smoking area", OwnerOnly: true},
}

func (b AreaBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, b.owner, areaActions)
}

type AreaOutput struct {
	Body AreaBody
}

type AreasOutput struct {
	Body []models.SmokingArea
}

type CreateAreaBody struct {
	Latitude  float64 `json:"latitude" doc:"Latitude in degrees" example:"35.6762"`
	Longitude float64 `json:"longitude" doc:"Longitude in degrees" example:"139.6503"`
	Memo      string  `json:"memo,omitempty" maxLength:"200" doc:"Optional note" example:"屋外、灰皿あり"`
}

type PatchAreaBody struct {
	Latitude  *float64 `json:"latitude,omitempty" doc:"New latitude; requires longitude"`
	Longitude *float64 `json:"longitude,omitempty" doc:"New longitude; requires latitude"`
	Memo      *string  `json:"memo,omitempty" maxLength:"200" doc:"New note; empty clears it"`
}

type CreateReportBody struct {
	Reason  models.ReportReason `json:"reason" enum:"closed,relocated,no-cigarettes-allowed,other" doc:"Report reason"`
	Comment string              `json:"comment,omitempty" maxLength:"1000" doc:"Optional details"`
}

type CreatedBody struct {
	ID      string `json:"id" doc:"Generated ID"`
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RawOutput is a pre-encoded response body.
type RawOutput struct {
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	CacheControl    string `header:"Cache-Control"`
	Body            []byte
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

func created(o *huma.Operation) { o.DefaultStatus = http.StatusCreated }

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterAreas registers smoking area CRUD and search routes.
func (h *APIHandler) RegisterAreas(api huma.API) {
	huma.Get(api, "/api/v1/areas", h.ListAreas, huma.OperationTags("areas"))
	huma.Post(api, "/api/v1/areas", h.CreateArea, huma.OperationTags("areas"), created)
	huma.Get(api, "/api/v1/areas/nearby", h.NearbyAreas, huma.OperationTags("areas"))
	huma.Get(api, "/api/v1/areas.geojson", h.AreasGeoJSON, huma.OperationTags("areas"))
	huma.Get(api, "/api/v1/areas/{id}", h.GetArea, huma.OperationTags("areas"))
	huma.Patch(api, "/api/v1/areas/{id}", h.PatchArea, huma.OperationTags("areas"))
	huma.Delete(api, "/api/v1/areas/{id}", h.DeleteArea, huma.OperationTags("areas"))
}

// RegisterReports registers report routes.
func (h *APIHandler) RegisterReports(api huma.API) {
	huma.Get(api, "/api/v1/areas/{id}/reports", h.ListReports, huma.OperationTags("reports"))
	huma.Post(api, "/api/v1/areas/{id}/reports", h.CreateReport, huma.OperationTags("reports"), created)
}

// RegisterTiles registers the vector tile and tile archive routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles/{z}/{x}/{y}", h.GetTile, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles.pmtiles", h.GetTileArchive, huma.OperationTags("tiles"))
}

// actor resolves the signed-in user of a write request.
func (h *APIHandler) actor(ctx context.Context, sessionID string) (*auth.User, error) {
	u, err := h.svc.Auth.Current(ctx, sessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("operation failed")
	}
	if u == nil {
		return nil, huma.Error401Unauthorized("sign in required")
	}
	return u, nil
}

// viewer is like actor but never fails; "" means anonymous.
func (h *APIHandler) viewer(ctx context.Context, sessionID string) string {
	u, err := h.svc.Auth.Current(ctx, sessionID)
	if err != nil || u == nil {
		return ""
	}
	return u.ID
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

type ListAreasInput struct {
	BBox string `query:"bbox" doc:"Optional bounding box: minLng,minLat,maxLng,maxLat" example:"139.6,35.6,139.8,35.8"`
}

func (h *APIHandler) ListAreas(ctx context.Context, input *ListAreasInput) (*AreasOutput, error) {
	if input.BBox == "" {
		return &AreasOutput{Body: h.svc.Areas.List(ctx)}, nil
	}
	bound, err := ParseBBox(input.BBox)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	return &AreasOutput{Body: h.svc.Areas.ListWithin(ctx, bound)}, nil
}

// ParseBBox parses "minLng,minLat,maxLng,maxLat".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, apperr.Validation("bbox must be minLng,minLat,maxLng,maxLat")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, apperr.Validation(fmt.Sprintf("bbox value %q is not a number", p))
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, apperr.Validation("bbox minimum exceeds maximum")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func (h *APIHandler) CreateArea(ctx context.Context, input *struct {
	SessionInput
	Body CreateAreaBody
}) (*AreaOutput, error) {
	u, err := h.actor(ctx, input.Session)
	if err != nil {
		return nil, err
	}
	in, err := models.NewAreaInput(
		models.Coordinates{Latitude: input.Body.Latitude, Longitude: input.Body.Longitude},
		input.Body.Memo, u.ID,
	)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	id, err := h.svc.Areas.Add(ctx, in)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	area, err := h.svc.Areas.Get(ctx, id)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	return &AreaOutput{Body: AreaBody{SmokingArea: area, owner: true}}, nil
}

type NearbyInput struct {
	Lat    float64 `query:"lat" required:"true" doc:"Search center latitude" example:"35.6762"`
	Lng    float64 `query:"lng" required:"true" doc:"Search center longitude" example:"139.6503"`
	Radius float64 `query:"radius" minimum:"0" doc:"Search radius in km (default 5)"`
	Limit  int     `query:"limit" minimum:"0" maximum:"500" doc:"Maximum results (default 50)"`
}

func (h *APIHandler) NearbyAreas(ctx context.Context, input *NearbyInput) (*struct{ Body []service.NearbyArea }, error) {
	center := models.Coordinates{Latitude: input.Lat, Longitude: input.Lng}
	if !center.Valid() {
		return nil, huma.Error422UnprocessableEntity("lat and lng must be finite numbers")
	}
	return &struct{ Body []service.NearbyArea }{
		Body: h.svc.Areas.Nearby(ctx, center, input.Radius, input.Limit),
	}, nil
}

func (h *APIHandler) AreasGeoJSON(ctx context.Context, input *struct{}) (*RawOutput, error) {
	data, err := json.Marshal(h.svc.Areas.FeatureCollection(ctx))
	if err != nil {
		return nil, huma.Error500InternalServerError("operation failed")
	}
	return &RawOutput{ContentType: "application/geo+json", Body: data}, nil
}

func (h *APIHandler) GetArea(ctx context.Context, input *struct {
	IDInput
	SessionInput
}) (*AreaOutput, error) {
	area, err := h.svc.Areas.Get(ctx, input.ID)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	viewer := h.viewer(ctx, input.Session)
	return &AreaOutput{Body: AreaBody{SmokingArea: area, owner: viewer != "" && viewer == area.CreatedByID}}, nil
}

func (h *APIHandler) PatchArea(ctx context.Context, input *struct {
	IDInput
	SessionInput
	Body PatchAreaBody
}) (*AreaOutput, error) {
	u, err := h.actor(ctx, input.Session)
	if err != nil {
		return nil, err
	}
	patch, err := input.Body.toPatch()
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	area, err := h.svc.Areas.Update(ctx, u.ID, input.ID, patch)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	return &AreaOutput{Body: AreaBody{SmokingArea: area, owner: true}}, nil
}

func (b PatchAreaBody) toPatch() (models.AreaPatch, error) {
	var p models.AreaPatch
	switch {
	case b.Latitude != nil && b.Longitude != nil:
		p.Coordinates = &models.Coordinates{Latitude: *b.Latitude, Longitude: *b.Longitude}
	case b.Latitude != nil || b.Longitude != nil:
		return p, apperr.Validation("latitude and longitude must be updated together")
	}
	p.Memo = b.Memo
	return p, p.Validate()
}

func (h *APIHandler) DeleteArea(ctx context.Context, input *struct {
	IDInput
	SessionInput
}) (*struct{}, error) {
	u, err := h.actor(ctx, input.Session)
	if err != nil {
		return nil, err
	}
	if err := h.svc.Areas.Delete(ctx, u.ID, input.ID); err != nil {
		return nil, apperr.ToHuma(err)
	}
	return nil, nil
}

type ListReportsInput struct {
	IDInput
	Offset int `query:"offset" minimum:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"0" maximum:"100" doc:"Page size (default 20)"`
}

func (h *APIHandler) ListReports(ctx context.Context, input *ListReportsInput) (*struct {
	Body humastar.PageBody[models.Report]
}, error) {
	reports := h.svc.Reports.ListForArea(ctx, input.ID)
	return &struct {
		Body humastar.PageBody[models.Report]
	}{Body: humastar.Paginate(reports, input.Offset, input.Limit, 20)}, nil
}

func (h *APIHandler) CreateReport(ctx context.Context, input *struct {
	IDInput
	SessionInput
	Body CreateReportBody
}) (*struct{ Body CreatedBody }, error) {
	u, err := h.actor(ctx, input.Session)
	if err != nil {
		return nil, err
	}
	in, err := models.NewReportInput(input.ID, string(input.Body.Reason), input.Body.Comment, u.ID)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	id, err := h.svc.Reports.Submit(ctx, in)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	return &struct{ Body CreatedBody }{Body: CreatedBody{ID: id, Message: "Report submitted"}}, nil
}

type TileInput struct {
	Z int    `path:"z" minimum:"0" maximum:"22" doc:"Zoom level"`
	X int    `path:"x" minimum:"0" doc:"Tile column"`
	Y string `path:"y" doc:"Tile row, optionally suffixed with .mvt" example:"6451.mvt"`
}

func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*RawOutput, error) {
	y, err := strconv.Atoi(strings.TrimSuffix(input.Y, ".mvt"))
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("tile row must be an integer")
	}
	t, err := tiles.Parse(input.Z, input.X, y)
	if err != nil {
		return nil, apperr.ToHuma(err)
	}
	data, err := tiles.Encode(t, h.svc.Areas.ListWithin(ctx, t.Bound()))
	if err != nil {
		return nil, huma.Error500InternalServerError("operation failed")
	}
	return &RawOutput{
		ContentType:     tiles.ContentType,
		ContentEncoding: "gzip",
		CacheControl:    "no-cache",
		Body:            data,
	}, nil
}

type TileArchiveInput struct {
	MinZoom int `query:"minzoom" minimum:"0" maximum:"22" default:"0" doc:"Shallowest zoom in the archive"`
	MaxZoom int `query:"maxzoom" minimum:"0" maximum:"22" default:"14" doc:"Deepest zoom in the archive"`
}

// GetTileArchive bundles the tiles of every area into one PMTiles archive.
func (h *APIHandler) GetTileArchive(ctx context.Context, input *TileArchiveInput) (*RawOutput, error) {
	var buf bytes.Buffer
	if _, err := tiles.WriteArchive(&buf, h.svc.Areas.List(ctx), input.MinZoom, input.MaxZoom); err != nil {
		return nil, apperr.ToHuma(err)
	}
	return &RawOutput{
		ContentType:  tiles.ArchiveContentType,
		CacheControl: "no-cache",
		Body:         buf.Bytes(),
	}, nil
}
