package postgres

import (
	"context"
	"database/sql"
	"errors"

	"eventbooking/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

// NewEventRepository returns a read-only domain.EventRepository over the
// events table the catalog service owns. Occupancy reads here are lock-free
// and eventually consistent; all writes go through the capacity ledger.
func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, title, description, date, venue, price, capacity, booked_count, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	e := &domain.Event{}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.Venue, &e.Price,
		&e.Capacity, &e.BookedCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *eventRepository) GetOccupancy(ctx context.Context, id string) (*domain.Occupancy, error) {
	query := `
		SELECT booked_count, capacity
		FROM events
		WHERE id = $1
	`
	occ := &domain.Occupancy{EventID: id}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&occ.BookedCount, &occ.Capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return occ, nil
}
