package service

import (
	"context"
	"errors"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/models"
	"github.com/yu-fu/smokesearch/internal/store"
)

// Nearby search defaults.
const (
	DefaultNearbyRadiusKm = 5.0
	DefaultNearbyLimit    = 50
)

// operationFailed is the only detail users see for store write failures.
const operationFailed = "operation failed"

// AreaService manages smoking areas.
type AreaService struct {
	store store.Store
	bus   *bus.Bus
}

// NewAreaService creates a new area service. b may be nil.
func NewAreaService(s store.Store, b *bus.Bus) *AreaService {
	return &AreaService{store: s, bus: b}
}

func (s *AreaService) publish(action, id string) {
	if s.bus != nil {
		s.bus.Publish(bus.Event{Topic: bus.TopicAreas, Action: action, ID: id})
	}
}

// Add stores a validated area and returns its id.
func (s *AreaService) Add(ctx context.Context, in models.NewArea) (string, error) {
	id, err := s.store.CreateArea(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("op", "create-area").Msg("store write failed")
		return "", apperr.Internal(operationFailed, err)
	}
	log.Info().Str("id", id).Str("createdBy", in.CreatedByID).Msg("smoking area added")
	s.publish("created", id)
	return id, nil
}

// Get returns one area.
func (s *AreaService) Get(ctx context.Context, id string) (models.SmokingArea, error) {
	a, err := s.store.GetArea(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.SmokingArea{}, apperr.NotFound("smoking area " + id + " not found")
	}
	if err != nil {
		log.Error().Err(err).Str("op", "get-area").Msg("store read failed")
		return models.SmokingArea{}, apperr.Internal(operationFailed, err)
	}
	return a, nil
}

// List returns every area in store order. A failed read is logged and
// yields an empty list.
func (s *AreaService) List(ctx context.Context) []models.SmokingArea {
	areas, err := s.store.ListAreas(ctx)
	if err != nil {
		log.Error().Err(err).Str("op", "list-areas").Msg("store read failed, returning empty list")
		return []models.SmokingArea{}
	}
	if areas == nil {
		areas = []models.SmokingArea{}
	}
	return areas
}

// ListWithin returns the areas inside bound, in store order.
func (s *AreaService) ListWithin(ctx context.Context, bound orb.Bound) []models.SmokingArea {
	all := s.List(ctx)
	out := make([]models.SmokingArea, 0, len(all))
	for _, a := range all {
		if bound.Contains(a.Coordinates().Point()) {
			out = append(out, a)
		}
	}
	return out
}

// Update patches an area. Only its creator may change it.
func (s *AreaService) Update(ctx context.Context, actorID, id string, patch models.AreaPatch) (models.SmokingArea, error) {
	if err := patch.Validate(); err != nil {
		return models.SmokingArea{}, err
	}
	if err := s.authorize(ctx, actorID, id); err != nil {
		return models.SmokingArea{}, err
	}
	if err := s.store.UpdateArea(ctx, id, patch); err != nil {
		return models.SmokingArea{}, s.writeError("update-area", id, err)
	}
	s.publish("updated", id)
	return s.Get(ctx, id)
}

// Delete removes an area. Only its creator may delete it.
func (s *AreaService) Delete(ctx context.Context, actorID, id string) error {
	if err := s.authorize(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.store.DeleteArea(ctx, id); err != nil {
		return s.writeError("delete-area", id, err)
	}
	log.Info().Str("id", id).Msg("smoking area deleted")
	s.publish("deleted", id)
	return nil
}

func (s *AreaService) authorize(ctx context.Context, actorID, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if actorID == "" || a.CreatedByID != actorID {
		return apperr.Unauthorized("only the creator can modify this smoking area")
	}
	return nil
}

func (s *AreaService) writeError(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("smoking area " + id + " not found")
	}
	log.Error().Err(err).Str("op", op).Str("id", id).Msg("store write failed")
	return apperr.Internal(operationFailed, err)
}

// NearbyArea is an area with its distance from the search center.
type NearbyArea struct {
	models.SmokingArea
	DistanceMeters float64 `json:"distanceMeters" doc:"Great-circle distance from the search center"`
}

// Nearby returns areas within radiusKm of center, closest first. Zero
// values select the defaults.
func (s *AreaService) Nearby(ctx context.Context, center models.Coordinates, radiusKm float64, limit int) []NearbyArea {
	if radiusKm <= 0 {
		radiusKm = DefaultNearbyRadiusKm
	}
	if limit <= 0 {
		limit = DefaultNearbyLimit
	}
	origin := center.Point()
	maxMeters := radiusKm * 1000

	// Bound prefilter before computing distances.
	bound := geo.NewBoundAroundPoint(origin, maxMeters)

	var out []NearbyArea
	for _, a := range s.List(ctx) {
		p := a.Coordinates().Point()
		if !nearBound(bound, p) {
			continue
		}
		d := geo.DistanceHaversine(origin, p)
		if d <= maxMeters {
			out = append(out, NearbyArea{SmokingArea: a, DistanceMeters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []NearbyArea{}
	}
	return out
}

// nearBound reports whether p lies in b. A bound crossing the antimeridian
// comes back from geo.NewBoundAroundPoint with Min.Lon > Max.Lon.
func nearBound(b orb.Bound, p orb.Point) bool {
	if p.Lat() < b.Min.Lat() || p.Lat() > b.Max.Lat() {
		return false
	}
	if b.Min.Lon() > b.Max.Lon() {
		return p.Lon() >= b.Min.Lon() || p.Lon() <= b.Max.Lon()
	}
	return p.Lon() >= b.Min.Lon() && p.Lon() <= b.Max.Lon()
}

// FeatureCollection returns every area as a GeoJSON point feature.
func (s *AreaService) FeatureCollection(ctx context.Context) *geojson.FeatureCollection {
	return ToFeatureCollection(s.List(ctx))
}

// ToFeatureCollection converts areas to GeoJSON point features.
func ToFeatureCollection(areas []models.SmokingArea) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range areas {
		f := geojson.NewFeature(a.Coordinates().Point())
		f.ID = a.ID
		f.Properties["id"] = a.ID
		if a.Memo != "" {
			f.Properties["memo"] = a.Memo
		}
		f.Properties["createdById"] = a.CreatedByID
		f.Properties["createdAt"] = a.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00")
		fc.Append(f)
	}
	return fc
}
