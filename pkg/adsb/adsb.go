package adsb

import (
	"maps"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/unklstewy/ads-livemap/pkg/coordinates"
)

// Feed field names the store interprets. Every other field is carried
// through untouched for the details panel.
const (
	FieldID           = "id"
	FieldCallsign     = "callsign"
	FieldLatitude     = "latitude"
	FieldLongitude    = "longitude"
	FieldWorldX       = "worldX"
	FieldWorldZ       = "worldZ"
	FieldHeading      = "heading"
	FieldAircraftType = "aircraftType"
	FieldType         = "type"
	FieldImageURL     = "imageUrl"
	FieldPilot        = "pilot"
)

// numericFields are coerced to float64 on ingestion.
var numericFields = map[string]bool{
	FieldLatitude:  true,
	FieldLongitude: true,
	FieldWorldX:    true,
	FieldWorldZ:    true,
	FieldHeading:   true,
}

// Aircraft is the merged state of one tracked entity.
type Aircraft struct {
	// ID is the trimmed feed identifier, or the callsign when the feed sent none
	ID string

	// Callsign is the flight number or display name, may be empty
	Callsign string

	// Type is the aircraft type code (e.g., "B738"), may be empty
	Type string

	// Position is decided once per update from the fields present:
	// worldX/worldZ win over latitude/longitude
	Position coordinates.Position

	// Heading in degrees, 0 = north, clockwise positive
	Heading float64

	// Fields holds every field received so far, incoming values winning
	Fields map[string]any

	// LastUpdate is when the last feed update for this aircraft was applied
	LastUpdate time.Time
}

// DisplayName returns the callsign, falling back to the ID.
func (a Aircraft) DisplayName() string {
	if a.Callsign != "" {
		return a.Callsign
	}
	if a.ID != "" {
		return a.ID
	}
	return "Unknown"
}

// TypeName returns the type code or a placeholder.
func (a Aircraft) TypeName() string {
	if a.Type != "" {
		return a.Type
	}
	return "Unknown Type"
}

// String returns a trimmed string field, or "" when absent or not a string.
func (a Aircraft) String(key string) string {
	s, _ := a.Fields[key].(string)
	return strings.TrimSpace(s)
}

// Float returns a numeric field.
func (a Aircraft) Float(key string) (float64, bool) {
	return toFloat(a.Fields[key])
}

// Age returns how long ago the aircraft was last updated.
func (a Aircraft) Age(now time.Time) time.Duration {
	return now.Sub(a.LastUpdate)
}

func (a Aircraft) clone() Aircraft {
	a.Fields = maps.Clone(a.Fields)
	return a
}

// Identify extracts the identifier for a raw feed record: the trimmed id
// (numbers are formatted as strings), else the trimmed callsign.
func Identify(fields map[string]any) (string, bool) {
	if id, ok := ParseID(fields[FieldID]); ok {
		return id, true
	}
	if cs, ok := fields[FieldCallsign].(string); ok {
		if cs = strings.TrimSpace(cs); cs != "" {
			return cs, true
		}
	}
	return "", false
}

// derive recomputes the interpreted attributes from the merged field map.
func (a *Aircraft) derive() {
	a.Callsign = a.String(FieldCallsign)

	a.Type = a.String(FieldAircraftType)
	if a.Type == "" {
		a.Type = a.String(FieldType)
	}

	x, hasX := a.Float(FieldWorldX)
	z, hasZ := a.Float(FieldWorldZ)
	lat, hasLat := a.Float(FieldLatitude)
	lon, hasLon := a.Float(FieldLongitude)
	switch {
	case hasX && hasZ:
		a.Position = coordinates.World(x, z)
	case hasLat && hasLon:
		a.Position = coordinates.Geo(lat, lon)
	default:
		a.Position = coordinates.Position{}
	}

	if h, ok := a.Float(FieldHeading); ok {
		a.Heading = h
	}
}

// ParseID coerces a feed identifier to a trimmed string. Numbers are
// formatted without a trailing fraction.
func ParseID(v any) (string, bool) {
	var s string
	switch id := v.(type) {
	case string:
		s = strings.TrimSpace(id)
	case json.Number:
		s = id.String()
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return "", false
		}
		s = strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		s = strconv.Itoa(id)
	case int64:
		s = strconv.FormatInt(id, 10)
	}
	return s, s != ""
}

// toFloat coerces feed values to float64. Numeric strings are accepted;
// non-finite values are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
