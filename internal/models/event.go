package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Event is a timestamped, duration-bearing record with an arbitrary payload.
// The ID is store-local: it is assigned by whichever store holds the event
// and is stripped before the event crosses into another store. Events are
// compared across stores by (timestamp, duration, data), never by id.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Data      map[string]any `json:"data,omitempty"`
}

// eventWire is the JSON wire shape: duration travels as a float of seconds,
// matching the live server's API.
type eventWire struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data,omitempty"`
}

// MarshalJSON encodes the duration as seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Duration:  e.Duration.Seconds(),
		Data:      e.Data,
	})
}

// UnmarshalJSON decodes the duration from seconds.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Duration < 0 {
		return fmt.Errorf("event duration must be non-negative, got %v", w.Duration)
	}
	e.ID = w.ID
	e.Timestamp = w.Timestamp
	e.Duration = time.Duration(w.Duration * float64(time.Second))
	e.Data = w.Data
	return nil
}

// EndTime returns the instant the event ends: timestamp + duration.
func (e *Event) EndTime() time.Time {
	return e.Timestamp.Add(e.Duration)
}

// WithoutID returns a copy of the event with the store-local id cleared.
// Used before inserting an event into a different store.
func (e *Event) WithoutID() *Event {
	out := *e
	out.ID = 0
	return &out
}

// DataEqual reports whether two events carry the same payload. It is the
// equality the heartbeat merge rule uses; ids and times are ignored.
func (e *Event) DataEqual(other *Event) bool {
	if len(e.Data) == 0 && len(other.Data) == 0 {
		return true
	}
	return reflect.DeepEqual(e.Data, other.Data)
}

// SortEventsByTimestamp sorts events ascending by timestamp, in place.
// Ties keep their relative order.
func SortEventsByTimestamp(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
