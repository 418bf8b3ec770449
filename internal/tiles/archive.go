package tiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/yu-fu/smokesearch/internal/apperr"
	"github.com/yu-fu/smokesearch/internal/models"
)

// ArchiveContentType is the media type of PMTiles archives.
const ArchiveContentType = "application/vnd.pmtiles"

// Archive zoom defaults. Deeper levels multiply the tile count by four.
const (
	DefaultArchiveMinZoom = 0
	DefaultArchiveMaxZoom = 14
)

// PMTiles v3 layout constants.
const (
	headerLen       = 127
	maxRootDirBytes = 16384 - headerLen

	compressionGzip = 2
	tileTypeMVT     = 1
)

// ArchiveInfo summarizes a written archive.
type ArchiveInfo struct {
	Tiles   int
	Areas   int
	MinZoom int
	MaxZoom int
	Bytes   int64
}

// archiveHeader is the fixed PMTiles v3 header.
type archiveHeader struct {
	rootOffset, rootLength         uint64
	metadataOffset, metadataLength uint64
	tileDataOffset, tileDataLength uint64
	tiles                          uint64
	minZoom, maxZoom               uint8
	bound                          orb.Bound
	center                         orb.Point
	centerZoom                     uint8
}

func e7(v float64) uint32 {
	return uint32(int32(math.Round(v * 1e7)))
}

func (h archiveHeader) marshal() []byte {
	b := make([]byte, headerLen)
	copy(b, "PMTiles")
	b[7] = 3

	le := binary.LittleEndian
	le.PutUint64(b[8:], h.rootOffset)
	le.PutUint64(b[16:], h.rootLength)
	le.PutUint64(b[24:], h.metadataOffset)
	le.PutUint64(b[32:], h.metadataLength)
	// No leaf directories: offset and length at 40 and 48 stay zero.
	le.PutUint64(b[56:], h.tileDataOffset)
	le.PutUint64(b[64:], h.tileDataLength)
	// Every tile is addressed once, stored once and never deduplicated.
	le.PutUint64(b[72:], h.tiles)
	le.PutUint64(b[80:], h.tiles)
	le.PutUint64(b[88:], h.tiles)
	b[96] = 1 // clustered
	b[97] = compressionGzip
	b[98] = compressionGzip
	b[99] = tileTypeMVT
	b[100] = h.minZoom
	b[101] = h.maxZoom
	le.PutUint32(b[102:], e7(h.bound.Min.Lon()))
	le.PutUint32(b[106:], e7(h.bound.Min.Lat()))
	le.PutUint32(b[110:], e7(h.bound.Max.Lon()))
	le.PutUint32(b[114:], e7(h.bound.Max.Lat()))
	b[118] = h.centerZoom
	le.PutUint32(b[119:], e7(h.center.Lon()))
	le.PutUint32(b[123:], e7(h.center.Lat()))
	return b
}

// tileID is the position of t on the PMTiles Hilbert curve, counting the
// tiles of every shallower zoom first.
func tileID(t maptile.Tile) uint64 {
	z := uint(t.Z)
	id := ((uint64(1) << (2 * z)) - 1) / 3

	n := uint32(1) << z
	x, y := t.X, t.Y
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint32
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		id += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		if ry == 0 {
			if rx == 1 {
				x, y = n-1-x, n-1-y
			}
			x, y = y, x
		}
	}
	return id
}

type archiveEntry struct {
	id     uint64
	offset uint64
	length uint32
}

// directory encodes the root directory: count, then the delta-coded ids,
// run lengths, lengths and offsets as varints, gzipped.
func directory(entries []archiveEntry) ([]byte, error) {
	var raw bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		raw.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		put(e.id - last)
		last = e.id
	}
	for range entries {
		put(1)
	}
	for _, e := range entries {
		put(uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			put(0)
		} else {
			put(e.offset + 1)
		}
	}
	return gzipBytes(raw.Bytes())
}

func gzipBytes(data []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// maxMercatorLat bounds the latitudes a web mercator tile can hold.
const maxMercatorLat = 85.05112878

func tileable(c models.Coordinates) bool {
	return c.Valid() &&
		math.Abs(c.Latitude) <= maxMercatorLat &&
		math.Abs(c.Longitude) <= 180
}

// group buckets the areas by the tile containing them at every zoom.
// Areas a web mercator tile cannot hold are left out.
func group(areas []models.SmokingArea, minZoom, maxZoom int) map[maptile.Tile][]models.SmokingArea {
	out := make(map[maptile.Tile][]models.SmokingArea)
	for _, a := range areas {
		c := a.Coordinates()
		if !tileable(c) {
			continue
		}
		for z := minZoom; z <= maxZoom; z++ {
			t := maptile.At(c.Point(), maptile.Zoom(z))
			out[t] = append(out[t], a)
		}
	}
	return out
}

// WriteArchive writes the areas as a single-directory PMTiles v3 archive
// of gzipped vector tiles, one tile per area-bearing tile of every zoom
// from minZoom to maxZoom.
func WriteArchive(w io.Writer, areas []models.SmokingArea, minZoom, maxZoom int) (ArchiveInfo, error) {
	if minZoom < 0 || maxZoom > MaxZoom || minZoom > maxZoom {
		return ArchiveInfo{}, apperr.Validation(fmt.Sprintf("zoom range must be within 0..%d", MaxZoom))
	}

	grouped := group(areas, minZoom, maxZoom)
	tiles := make([]maptile.Tile, 0, len(grouped))
	for t := range grouped {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool { return tileID(tiles[i]) < tileID(tiles[j]) })

	var data bytes.Buffer
	entries := make([]archiveEntry, 0, len(tiles))
	bound := orb.Bound{Min: orb.Point{180, 90}, Max: orb.Point{-180, -90}}
	counted := 0
	for _, t := range tiles {
		tileAreas := grouped[t]
		if int(t.Z) == minZoom {
			for _, a := range tileAreas {
				bound = bound.Extend(a.Coordinates().Point())
				counted++
			}
		}
		enc, err := Encode(t, tileAreas)
		if err != nil {
			return ArchiveInfo{}, err
		}
		entries = append(entries, archiveEntry{id: tileID(t), offset: uint64(data.Len()), length: uint32(len(enc))})
		data.Write(enc)
	}
	if counted == 0 {
		bound = orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}
	}

	root, err := directory(entries)
	if err != nil {
		return ArchiveInfo{}, apperr.Internal("encode archive directory", err)
	}
	if len(root) > maxRootDirBytes {
		return ArchiveInfo{}, apperr.Validation("too many tiles for one archive directory, narrow the zoom range")
	}

	meta, err := json.Marshal(map[string]any{
		"name":    LayerName,
		"format":  "pbf",
		"type":    "overlay",
		"minzoom": minZoom,
		"maxzoom": maxZoom,
		"vector_layers": []map[string]any{{
			"id":      LayerName,
			"minzoom": minZoom,
			"maxzoom": maxZoom,
			"fields":  map[string]string{"id": "String", "memo": "String", "createdAt": "Number"},
		}},
	})
	if err != nil {
		return ArchiveInfo{}, apperr.Internal("encode archive metadata", err)
	}
	if meta, err = gzipBytes(meta); err != nil {
		return ArchiveInfo{}, apperr.Internal("compress archive metadata", err)
	}

	h := archiveHeader{
		rootOffset:     headerLen,
		rootLength:     uint64(len(root)),
		metadataOffset: headerLen + uint64(len(root)),
		metadataLength: uint64(len(meta)),
		tileDataOffset: headerLen + uint64(len(root)) + uint64(len(meta)),
		tileDataLength: uint64(data.Len()),
		tiles:          uint64(len(entries)),
		minZoom:        uint8(minZoom),
		maxZoom:        uint8(maxZoom),
		bound:          bound,
		center:         bound.Center(),
		centerZoom:     uint8(minZoom),
	}

	var written int64
	for _, part := range [][]byte{h.marshal(), root, meta, data.Bytes()} {
		n, err := w.Write(part)
		written += int64(n)
		if err != nil {
			return ArchiveInfo{}, fmt.Errorf("write archive: %w", err)
		}
	}
	return ArchiveInfo{
		Tiles:   len(entries),
		Areas:   counted,
		MinZoom: minZoom,
		MaxZoom: maxZoom,
		Bytes:   written,
	}, nil
}
