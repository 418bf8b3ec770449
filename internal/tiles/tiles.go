// Package tiles renders smoking areas as Mapbox Vector Tiles.
//
// Tiles are built on request from the current area list: one point feature
// per area inside the tile, in a single layer. Uses paulmach/orb for tile
// math and MVT encoding.
package tiles

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/models"
)

// LayerName is the MVT layer that carries smoking areas.
const LayerName = "smoking_areas"

// MaxZoom is the deepest tile zoom served.
const MaxZoom = 22

// ContentType is the media type of encoded tiles.
const ContentType = "application/vnd.mapbox-vector-tile"

// Parse validates z/x/y tile coordinates.
func Parse(z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > MaxZoom {
		return maptile.Tile{}, apperr.Validation(fmt.Sprintf("zoom must be between 0 and %d", MaxZoom))
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return maptile.Tile{}, apperr.Validation(fmt.Sprintf("tile %d/%d/%d is out of range", z, x, y))
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// Encode returns the gzipped MVT for tile t. Areas outside the tile are
// skipped; a tile with no areas encodes an empty layer.
func Encode(t maptile.Tile, areas []models.SmokingArea) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	bound := t.Bound()

	for _, a := range areas {
		// MVT projection mutates geometry in place, so every feature
		// gets its own point value.
		p := orb.Point{a.Longitude, a.Latitude}
		if !bound.Contains(p) {
			continue
		}
		f := geojson.NewFeature(p)
		f.Properties["id"] = a.ID
		if a.Memo != "" {
			f.Properties["memo"] = a.Memo
		}
		f.Properties["createdAt"] = a.CreatedAt.Unix()
		fc.Append(f)
	}

	layer := mvt.NewLayer(LayerName, fc)
	layer.Clip(bound)
	layer.ProjectToTile(t)

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, apperr.Internal("encode tile", err)
	}
	return data, nil
}

// Decode parses a gzipped tile back into WGS84 feature collections keyed
// by layer name.
func Decode(t maptile.Tile, data []byte) (map[string]*geojson.FeatureCollection, error) {
	layers, err := mvt.UnmarshalGzipped(data)
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	layers.ProjectToWGS84(t)
	return layers.ToFeatureCollections(), nil
}
