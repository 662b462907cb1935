package feed

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/unklstewy/ads-livemap/pkg/adsb"
)

// Feed message type values.
const (
	TypeInitialData     = "initial_data"
	TypeAircraftUpdate  = "aircraft_update"
	TypeAircraftRemoved = "aircraft_removed"
	TypeServerShutdown  = "server_shutdown"
)

// Message is one parsed feed event. It is one of InitialData,
// AircraftUpdate, AircraftRemoved, ServerShutdown or Ignored.
type Message interface {
	// Type returns the wire type, or the unrecognised type for Ignored
	Type() string

	isMessage()
}

// InitialData is a full snapshot that replaces every tracked aircraft.
type InitialData struct {
	Aircraft []map[string]any
}

// AircraftUpdate carries aircraft to merge into the store.
type AircraftUpdate struct {
	Aircraft []map[string]any
}

// AircraftRemoved names one aircraft that left the feed.
type AircraftRemoved struct {
	ID string
}

// ServerShutdown announces that the feed is going away.
type ServerShutdown struct{}

// Ignored is a payload that was malformed or of an unknown type.
type Ignored struct {
	Kind   string
	Reason string
}

func (InitialData) Type() string     { return TypeInitialData }
func (AircraftUpdate) Type() string  { return TypeAircraftUpdate }
func (AircraftRemoved) Type() string { return TypeAircraftRemoved }
func (ServerShutdown) Type() string  { return TypeServerShutdown }
func (m Ignored) Type() string       { return m.Kind }

func (InitialData) isMessage()     {}
func (AircraftUpdate) isMessage()  {}
func (AircraftRemoved) isMessage() {}
func (ServerShutdown) isMessage()  {}
func (Ignored) isMessage()         {}

// envelope is the raw wire shape shared by every message type
type envelope struct {
	Type     *string         `json:"type"`
	Aircraft json.RawMessage `json:"aircraft"`
	ID       any             `json:"id"`
}

// ParseMessage decodes a feed payload. It never fails: anything that is
// not a well-formed recognised message becomes Ignored with a reason.
func ParseMessage(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Ignored{Reason: fmt.Sprintf("malformed json: %v", err)}
	}
	if env.Type == nil {
		return Ignored{Reason: "missing type"}
	}

	switch *env.Type {
	case TypeInitialData, TypeAircraftUpdate:
		list, err := parseAircraft(env.Aircraft)
		if err != nil {
			return Ignored{Kind: *env.Type, Reason: err.Error()}
		}
		if *env.Type == TypeInitialData {
			return InitialData{Aircraft: list}
		}
		return AircraftUpdate{Aircraft: list}

	case TypeAircraftRemoved:
		id, ok := adsb.ParseID(env.ID)
		if !ok {
			return Ignored{Kind: *env.Type, Reason: "missing id"}
		}
		return AircraftRemoved{ID: id}

	case TypeServerShutdown:
		return ServerShutdown{}

	default:
		return Ignored{Kind: *env.Type, Reason: "unknown type"}
	}
}

func parseAircraft(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing aircraft list")
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("invalid aircraft list: %w", err)
	}
	return list, nil
}
