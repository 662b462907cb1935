package adsb

import (
	"slices"
	"strings"
	"time"
)

// Store is the single source of truth for tracked aircraft, keyed by ID.
//
// The store keeps an insertion-ordered list alongside the index so List
// never returns stale entries. It is not safe for concurrent use; the
// controller owns it and mutates it from one goroutine.
type Store struct {
	records map[string]*Aircraft
	order   []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Aircraft)}
}

// Upsert shallow-merges a raw feed record into the store and returns a copy
// of the merged aircraft. Records with neither id nor callsign are ignored
// and report false.
//
// Numeric position and heading fields are coerced to float64; values that
// cannot be parsed are dropped so they never overwrite a good value.
func (s *Store) Upsert(fields map[string]any, now time.Time) (Aircraft, bool) {
	id, ok := Identify(fields)
	if !ok {
		return Aircraft{}, false
	}

	rec, exists := s.records[id]
	if !exists {
		rec = &Aircraft{ID: id, Fields: make(map[string]any, len(fields))}
		s.records[id] = rec
		s.order = append(s.order, id)
	}

	for k, v := range fields {
		if numericFields[k] {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			v = f
		}
		rec.Fields[k] = v
	}
	rec.derive()
	rec.LastUpdate = now

	return rec.clone(), true
}

// Replace clears the store and seeds it from a snapshot. It returns the
// number of records accepted.
func (s *Store) Replace(list []map[string]any, now time.Time) int {
	s.Clear()
	n := 0
	for _, fields := range list {
		if _, ok := s.Upsert(fields, now); ok {
			n++
		}
	}
	return n
}

// Remove deletes an aircraft. Removing an unknown ID is a no-op that
// reports false.
func (s *Store) Remove(id string) bool {
	id = strings.TrimSpace(id)
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return true
}

// FindByID returns a copy of the aircraft with the given ID.
func (s *Store) FindByID(id string) (Aircraft, bool) {
	rec, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return Aircraft{}, false
	}
	return rec.clone(), true
}

// LastUpdate returns when an aircraft was last updated.
func (s *Store) LastUpdate(id string) (time.Time, bool) {
	rec, ok := s.records[id]
	if !ok {
		return time.Time{}, false
	}
	return rec.LastUpdate, true
}

// Clear removes every aircraft.
func (s *Store) Clear() {
	clear(s.records)
	s.order = s.order[:0]
}

// Len returns the number of tracked aircraft.
func (s *Store) Len() int {
	return len(s.records)
}

// IDs returns the tracked IDs in insertion order.
func (s *Store) IDs() []string {
	return slices.Clone(s.order)
}

// List returns copies of every aircraft in insertion order.
func (s *Store) List() []Aircraft {
	out := make([]Aircraft, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Stale returns the IDs of aircraft last updated longer than maxAge ago.
func (s *Store) Stale(now time.Time, maxAge time.Duration) []string {
	var ids []string
	for _, id := range s.order {
		if now.Sub(s.records[id].LastUpdate) > maxAge {
			ids = append(ids, id)
		}
	}
	return ids
}
