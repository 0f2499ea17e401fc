package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// ViewportKind distinguishes the three viewport shapes.
type ViewportKind string

const (
	// ViewportDefault is the configured fallback view used when nothing is mappable.
	ViewportDefault ViewportKind = "default"
	// ViewportPoint centers on a single coordinate.
	ViewportPoint ViewportKind = "point"
	// ViewportBounds fits a padded bounding box.
	ViewportBounds ViewportKind = "bounds"
)

// tileSize is the pixel width of a web-mercator tile.
const tileSize = 256.0

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// Center returns the box midpoint.
func (b BBox) Center() Coordinate {
	return NewCoordinate((b.MinLat+b.MaxLat)/2, (b.MinLng+b.MaxLng)/2)
}

// Contains reports whether c lies inside the box (inclusive).
func (b BBox) Contains(c Coordinate) bool {
	return c.Valid && c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Viewport describes what a map should display.
type Viewport struct {
	Kind    ViewportKind `json:"kind"`
	Center  Coordinate   `json:"center"`
	Zoom    int          `json:"zoom"`
	Bounds  *BBox        `json:"bounds,omitempty"`
	Padding int          `json:"padding,omitempty"`
	MaxZoom int          `json:"max_zoom,omitempty"`
}

// ViewportConfig holds the fixed parameters of viewport computation.
type ViewportConfig struct {
	DefaultLat    float64 `yaml:"default_lat" mapstructure:"default_lat"`
	DefaultLng    float64 `yaml:"default_lng" mapstructure:"default_lng"`
	DefaultZoom   int     `yaml:"default_zoom" mapstructure:"default_zoom"`
	PointZoom     int     `yaml:"point_zoom" mapstructure:"point_zoom"`
	MaxZoom       int     `yaml:"max_zoom" mapstructure:"max_zoom"`
	PaddingRatio  float64 `yaml:"padding_ratio" mapstructure:"padding_ratio"`
	PaddingPixels int     `yaml:"padding_pixels" mapstructure:"padding_pixels"`
	MinSpanDeg    float64 `yaml:"min_span_deg" mapstructure:"min_span_deg"`
	MapWidth      int     `yaml:"map_width" mapstructure:"map_width"`
	MapHeight     int     `yaml:"map_height" mapstructure:"map_height"`
}

// DefaultViewportConfig returns the whole-continent view the directory map
// opens with.
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{
		DefaultLat:    -25,
		DefaultLng:    133,
		DefaultZoom:   4,
		PointZoom:     10,
		MaxZoom:       12,
		PaddingRatio:  0.1,
		PaddingPixels: 40,
		MinSpanDeg:    0.01,
		MapWidth:      1024,
		MapHeight:     500,
	}
}

// Bounds computes the viewport for cs. Invalid coordinates are ignored. Zero
// points yield the default view, one point a point view, and two or more a
// padded bounding box capped at MaxZoom.
func Bounds(cs []Coordinate, cfg ViewportConfig) Viewport {
	valid := Valid(cs)

	switch len(valid) {
	case 0:
		return Viewport{
			Kind:   ViewportDefault,
			Center: NewCoordinate(cfg.DefaultLat, cfg.DefaultLng),
			Zoom:   cfg.DefaultZoom,
		}
	case 1:
		return Viewport{
			Kind:   ViewportPoint,
			Center: valid[0],
			Zoom:   cfg.PointZoom,
		}
	}

	box := padBox(enclose(valid), cfg)
	return Viewport{
		Kind:    ViewportBounds,
		Center:  box.Center(),
		Zoom:    fitZoom(box, cfg),
		Bounds:  &box,
		Padding: cfg.PaddingPixels,
		MaxZoom: cfg.MaxZoom,
	}
}

// enclose returns the smallest axis-aligned box containing cs. X is longitude
// and Y latitude, matching the order PostGIS and go-geom use.
func enclose(cs []Coordinate) BBox {
	flat := make([]float64, 0, 2*len(cs))
	for _, c := range cs {
		flat = append(flat, c.Lng, c.Lat)
	}
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	return BBox{
		MinLng: b.Min(0),
		MinLat: b.Min(1),
		MaxLng: b.Max(0),
		MaxLat: b.Max(1),
	}
}

func padBox(b BBox, cfg ViewportConfig) BBox {
	latPad := (b.MaxLat-b.MinLat)*cfg.PaddingRatio + cfg.MinSpanDeg/2
	lngPad := (b.MaxLng-b.MinLng)*cfg.PaddingRatio + cfg.MinSpanDeg/2

	return BBox{
		MinLat: math.Max(b.MinLat-latPad, -90),
		MaxLat: math.Min(b.MaxLat+latPad, 90),
		MinLng: math.Max(b.MinLng-lngPad, -180),
		MaxLng: math.Min(b.MaxLng+lngPad, 180),
	}
}

// fitZoom estimates the highest zoom at which the box fits the map, after
// reserving PaddingPixels on each side. The result is clamped to
// [0, MaxZoom].
func fitZoom(b BBox, cfg ViewportConfig) int {
	width := float64(cfg.MapWidth - 2*cfg.PaddingPixels)
	height := float64(cfg.MapHeight - 2*cfg.PaddingPixels)
	if width <= 0 || height <= 0 {
		return clampZoom(0, cfg.MaxZoom)
	}

	lngFrac := (b.MaxLng - b.MinLng) / 360
	latFrac := (mercatorY(b.MaxLat) - mercatorY(b.MinLat)) / (2 * math.Pi)

	zoom := float64(cfg.MaxZoom)
	if lngFrac > 0 {
		zoom = math.Min(zoom, math.Log2(width/tileSize/lngFrac))
	}
	if latFrac > 0 {
		zoom = math.Min(zoom, math.Log2(height/tileSize/latFrac))
	}
	return clampZoom(int(math.Floor(zoom)), cfg.MaxZoom)
}

func mercatorY(lat float64) float64 {
	lat = math.Max(math.Min(lat, 85.0511), -85.0511)
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

func clampZoom(z, maxZoom int) int {
	if z > maxZoom {
		z = maxZoom
	}
	if z < 0 {
		z = 0
	}
	return z
}
