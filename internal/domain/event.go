package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned by the capacity ledger when an event has no remaining seats.
var ErrEventFull = errors.New("event is fully booked")

// Event represents a bookable event as the catalog exposes it. The engine only
// reads the metadata; capacity and booked_count are mutated exclusively through
// the CapacityLedger.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Venue       string    `json:"venue"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Occupancy is a snapshot of an event's seat counter. It is also the payload
// pushed to occupancy subscribers after every committed reserve or cancel.
type Occupancy struct {
	EventID     string `json:"event_id"`
	BookedCount int    `json:"booked_count"`
	Capacity    int    `json:"capacity"`
}

// Remaining returns the number of free seats.
func (o Occupancy) Remaining() int {
	if o.Capacity < o.BookedCount {
		return 0
	}
	return o.Capacity - o.BookedCount
}

// EventRepository defines read access to the event catalog. Catalog writes
// (create/update/delete) belong to the catalog service, not this engine.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
	GetOccupancy(ctx context.Context, id string) (*Occupancy, error)
}

// CapacityLedger owns the booked_count/capacity invariant for every event:
// 0 <= booked_count <= capacity holds at all times, including under concurrent
// callers. Both operations are single atomic steps at the storage layer; there
// is never a separate read-compare-write window.
type CapacityLedger interface {
	// TryReserve atomically checks booked_count < capacity and increments the
	// counter in the same step. Returns the new occupancy, ErrEventFull when
	// the event is at capacity, or ErrNotFound when the event does not exist.
	TryReserve(ctx context.Context, eventID string) (*Occupancy, error)
	// Release atomically decrements booked_count, floored at zero.
	Release(ctx context.Context, eventID string) (*Occupancy, error)
}
