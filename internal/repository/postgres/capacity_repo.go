package postgres

import (
	"context"
	"database/sql"
	"errors"

	"eventbooking/internal/domain"
)

type capacityLedger struct {
	DB *sql.DB
}

// NewCapacityLedger returns a domain.CapacityLedger backed by the events table.
//
// Both operations are single conditional UPDATE statements, so the
// check-and-mutate step is atomic at the storage layer: two concurrent
// TryReserve calls can never both pass the capacity check on a stale count.
func NewCapacityLedger(db *sql.DB) domain.CapacityLedger {
	return &capacityLedger{
		DB: db,
	}
}

func (l *capacityLedger) TryReserve(ctx context.Context, eventID string) (*domain.Occupancy, error) {
	query := `
		UPDATE events
		SET booked_count = booked_count + 1, updated_at = NOW()
		WHERE id = $1 AND booked_count < capacity
		RETURNING booked_count, capacity
	`
	occ := &domain.Occupancy{EventID: eventID}
	err := l.DB.QueryRowContext(ctx, query, eventID).
		Scan(&occ.BookedCount, &occ.Capacity)
	if err == nil {
		return occ, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// The condition did not hold: either the event is at capacity or it does
	// not exist. State is unchanged either way.
	var exists bool
	if err := l.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrEventFull
}

func (l *capacityLedger) Release(ctx context.Context, eventID string) (*domain.Occupancy, error) {
	// Floored at zero: the counter must never go negative even if a caller
	// releases more than it reserved.
	query := `
		UPDATE events
		SET booked_count = GREATEST(booked_count - 1, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING booked_count, capacity
	`
	occ := &domain.Occupancy{EventID: eventID}
	err := l.DB.QueryRowContext(ctx, query, eventID).
		Scan(&occ.BookedCount, &occ.Capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return occ, nil
}
