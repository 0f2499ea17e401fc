// Package geo extracts coordinates from raw records and derives map viewports
// over sets of valid coordinates.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/compare-engine/internal/record"
)

// Synonym lists for coordinate columns, in priority order.
var (
	LatitudeFields  = []string{"lat", "latitude", "y"}
	LongitudeFields = []string{"lng", "lon", "longitude", "x"}
)

// Coordinate is a latitude/longitude pair. It is only usable when Valid is
// true; invalid coordinates are never defaulted to 0/0.
type Coordinate struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Valid bool    `json:"valid"`
}

// NewCoordinate builds a Coordinate, marking it valid when both components are
// finite.
func NewCoordinate(lat, lng float64) Coordinate {
	return Coordinate{Lat: lat, Lng: lng, Valid: finite(lat) && finite(lng)}
}

// Extract resolves latitude and longitude from r. String values may use a
// decimal comma ("52,52").
func Extract(r record.Raw) Coordinate {
	latRaw, _ := record.Resolve(r, LatitudeFields...)
	lngRaw, _ := record.Resolve(r, LongitudeFields...)

	lat, latOK := ParseNumber(latRaw)
	lng, lngOK := ParseNumber(lngRaw)
	if !latOK || !lngOK {
		return Coordinate{}
	}
	return NewCoordinate(lat, lng)
}

// ParseNumber converts a resolved value into a finite float64. Strings have
// every comma replaced with a period before parsing.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int8:
		f = float64(t)
	case int16:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint8:
		f = float64(t)
	case uint16:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return ParseNumber(string(t))
	default:
		return 0, false
	}
	if !finite(f) {
		return 0, false
	}
	return f, true
}

// Valid returns only the valid coordinates from cs, preserving order.
func Valid(cs []Coordinate) []Coordinate {
	out := make([]Coordinate, 0, len(cs))
	for _, c := range cs {
		if c.Valid && finite(c.Lat) && finite(c.Lng) {
			out = append(out, c)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
