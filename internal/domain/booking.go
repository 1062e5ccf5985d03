package domain

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyBooked is returned when the user already holds a live booking for the event.
var ErrAlreadyBooked = errors.New("already booked for this event")

// ErrForbidden is returned when the caller is neither the booking owner nor an admin.
var ErrForbidden = errors.New("forbidden")

// ErrStorageConflict is returned for transient storage failures inside the
// reservation critical section. Nothing is committed when it is returned, so
// the operation is safe to retry.
var ErrStorageConflict = errors.New("storage conflict")

// Booking binds one user to one occupied seat of an event. For any
// (user, event) pair at most one live booking exists; a booking and a ledger
// increment are always paired, one never exists without the other.
// swagger:model Booking
type Booking struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBooking returns a new Booking. ID is set by the repository on create.
func NewBooking(eventID, userID string, createdAt time.Time) *Booking {
	return &Booking{
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: createdAt,
	}
}

// BookingWithDetails bundles a booking with its event and owner for display.
type BookingWithDetails struct {
	Booking *Booking `json:"booking"`
	Event   *Event   `json:"event"`
	User    *User    `json:"user"`
}

// BookingRepository defines storage for booking records. It doubles as the
// uniqueness index: Create must be insert-if-absent on (event_id, user_id).
type BookingRepository interface {
	// Create inserts the booking unless the (event, user) pair already holds
	// one, in which case it returns ErrAlreadyBooked and changes nothing.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*Booking, error)
	ListByUserID(ctx context.Context, userID string) ([]*Booking, error)
	ListAll(ctx context.Context) ([]*Booking, error)
	// Delete removes the booking. Deleting an absent booking is not an error.
	Delete(ctx context.Context, id string) error
}

// BookingService coordinates the reserve/cancel protocol.
type BookingService interface {
	// Reserve books one seat on the event for the user. Returns ErrNotFound,
	// ErrEventFull, ErrAlreadyBooked, or ErrStorageConflict on failure; any
	// failure leaves the ledger, the uniqueness index, and the booking set
	// exactly as they were.
	Reserve(ctx context.Context, eventID, userID string) (*BookingWithDetails, error)
	// Cancel releases the booking's seat. Only the owner or an admin may cancel.
	Cancel(ctx context.Context, bookingID, callerID string, callerRole Role) error
	// IsBooked reports whether the user holds a live booking for the event.
	IsBooked(ctx context.Context, eventID, userID string) (bool, error)
	GetByID(ctx context.Context, bookingID, callerID string, callerRole Role) (*BookingWithDetails, error)
	ListMine(ctx context.Context, userID string) ([]*BookingWithDetails, error)
	ListAll(ctx context.Context) ([]*BookingWithDetails, error)
}
