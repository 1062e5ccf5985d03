package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventbooking/internal/domain"
)

// maxReserveAttempts bounds the automatic retry of a reserve attempt that
// failed with a storage conflict. Nothing commits on such a failure, so the
// retry is safe.
const maxReserveAttempts = 3

// compensationTimeout bounds the rollback of a half-applied mutation inside
// the critical section. Compensation runs on a fresh context so it still
// completes when the caller's context is already cancelled.
const compensationTimeout = 5 * time.Second

type bookingService struct {
	eventRepo      domain.EventRepository
	userRepo       domain.UserRepository
	bookingRepo    domain.BookingRepository
	ledger         domain.CapacityLedger
	broadcaster    domain.Broadcaster
	emailService   domain.EmailService
	logger         *slog.Logger
	locks          *keyedMutex
	contextTimeout time.Duration
}

// NewBookingService creates the reservation coordinator. The broadcaster and
// emailService observe outcomes on a best-effort basis; they never gate the
// reserve/cancel decision.
func NewBookingService(
	eventRepo domain.EventRepository,
	userRepo domain.UserRepository,
	bookingRepo domain.BookingRepository,
	ledger domain.CapacityLedger,
	broadcaster domain.Broadcaster,
	emailService domain.EmailService,
	logger *slog.Logger,
	timeout time.Duration,
) domain.BookingService {
	return &bookingService{
		eventRepo:      eventRepo,
		userRepo:       userRepo,
		bookingRepo:    bookingRepo,
		ledger:         ledger,
		broadcaster:    broadcaster,
		emailService:   emailService,
		logger:         logger,
		locks:          newKeyedMutex(),
		contextTimeout: timeout,
	}
}

func (s *bookingService) Reserve(ctx context.Context, eventID, userID string) (*domain.BookingWithDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	// Catalog lookup stays outside the critical section.
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	var booking *domain.Booking
	var occ *domain.Occupancy
	for attempt := 1; ; attempt++ {
		booking, occ, err = s.reserveOnce(ctx, eventID, userID)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrStorageConflict) && attempt < maxReserveAttempts && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "reserve attempt failed, retrying",
				"event_id", eventID, "user_id", userID, "attempt", attempt, "err", err)
			continue
		}
		return nil, err
	}

	event.BookedCount = occ.BookedCount
	result := &domain.BookingWithDetails{Booking: booking, Event: event}

	// Display detail only; the reservation is already committed, so a failed
	// user lookup must not turn the outcome into an error.
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "resolve booking owner failed", "user_id", userID, "err", err)
	} else {
		result.User = user
	}

	s.publishOccupancy(*occ)
	s.sendConfirmation(booking, event, user)
	return result, nil
}

// reserveOnce runs one reservation attempt inside the event's exclusive
// section. On any failure the ledger, the uniqueness index, and the booking
// set are left exactly as they were.
func (s *bookingService) reserveOnce(ctx context.Context, eventID, userID string) (*domain.Booking, *domain.Occupancy, error) {
	unlock := s.locks.Lock(eventID)
	defer unlock()

	// Uniqueness first: a duplicate is rejected without touching the ledger.
	if _, err := s.bookingRepo.GetByEventAndUser(ctx, eventID, userID); err == nil {
		return nil, nil, domain.ErrAlreadyBooked
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: check existing booking: %v", domain.ErrStorageConflict, err)
	}

	occ, err := s.ledger.TryReserve(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrEventFull) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: reserve seat: %v", domain.ErrStorageConflict, err)
	}

	booking := domain.NewBooking(eventID, userID, time.Now())
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		// The increment must not outlive a failed insert. The section is
		// still held, so no other in-process caller can observe or race the
		// intermediate count.
		s.compensateReserve(eventID)
		if errors.Is(err, domain.ErrAlreadyBooked) {
			return nil, nil, domain.ErrAlreadyBooked
		}
		return nil, nil, fmt.Errorf("%w: create booking: %v", domain.ErrStorageConflict, err)
	}
	return booking, occ, nil
}

func (s *bookingService) compensateReserve(eventID string) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()
	if _, err := s.ledger.Release(ctx, eventID); err != nil {
		s.logger.Error("reserve compensation failed, seat count may be high",
			"event_id", eventID, "err", err)
	}
}

func (s *bookingService) Cancel(ctx context.Context, bookingID, callerID string, callerRole domain.Role) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("get booking: %w", err)
	}
	if booking.UserID != callerID && !callerRole.IsAdmin() {
		return domain.ErrForbidden
	}

	occ, err := s.cancelLocked(ctx, booking)
	if err != nil {
		return err
	}

	s.publishOccupancy(*occ)
	return nil
}

// cancelLocked releases the seat inside the same per-event section reserve
// uses, keeping cancel and reserve mutually exclusive for one event.
func (s *bookingService) cancelLocked(ctx context.Context, booking *domain.Booking) (*domain.Occupancy, error) {
	unlock := s.locks.Lock(booking.EventID)
	defer unlock()

	// Re-check under the lock: the booking may have been cancelled while we
	// were authorizing.
	if _, err := s.bookingRepo.GetByID(ctx, booking.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get booking: %v", domain.ErrStorageConflict, err)
	}

	occ, err := s.ledger.Release(ctx, booking.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: release seat: %v", domain.ErrStorageConflict, err)
	}

	if err := s.bookingRepo.Delete(ctx, booking.ID); err != nil {
		// Restore the count released above; the section is still held.
		cctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
		defer cancel()
		if _, rerr := s.ledger.TryReserve(cctx, booking.EventID); rerr != nil {
			s.logger.Error("cancel compensation failed, seat count may be low",
				"event_id", booking.EventID, "err", rerr)
		}
		return nil, fmt.Errorf("%w: delete booking: %v", domain.ErrStorageConflict, err)
	}
	return occ, nil
}

func (s *bookingService) IsBooked(ctx context.Context, eventID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	_, err := s.bookingRepo.GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get booking: %w", err)
	}
	return true, nil
}

func (s *bookingService) GetByID(ctx context.Context, bookingID, callerID string, callerRole domain.Role) (*domain.BookingWithDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking.UserID != callerID && !callerRole.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.populate(ctx, []*domain.Booking{booking})[0], nil
}

func (s *bookingService) ListMine(ctx context.Context, userID string) ([]*domain.BookingWithDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	bookings, err := s.bookingRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return s.populate(ctx, bookings), nil
}

func (s *bookingService) ListAll(ctx context.Context) ([]*domain.BookingWithDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	bookings, err := s.bookingRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return s.populate(ctx, bookings), nil
}

// populate resolves event and user detail for display. Lookups are cached per
// call; a failed lookup leaves the field nil rather than failing the list.
func (s *bookingService) populate(ctx context.Context, bookings []*domain.Booking) []*domain.BookingWithDetails {
	eventsByID := make(map[string]*domain.Event)
	usersByID := make(map[string]*domain.User)

	result := make([]*domain.BookingWithDetails, 0, len(bookings))
	for _, b := range bookings {
		item := &domain.BookingWithDetails{Booking: b}

		ev, ok := eventsByID[b.EventID]
		if !ok {
			var err error
			ev, err = s.eventRepo.GetByID(ctx, b.EventID)
			if err != nil {
				s.logger.WarnContext(ctx, "resolve booking event failed", "event_id", b.EventID, "err", err)
				ev = nil
			}
			eventsByID[b.EventID] = ev
		}
		item.Event = ev

		u, ok := usersByID[b.UserID]
		if !ok {
			var err error
			u, err = s.userRepo.GetByID(ctx, b.UserID)
			if err != nil {
				s.logger.WarnContext(ctx, "resolve booking owner failed", "user_id", b.UserID, "err", err)
				u = nil
			}
			usersByID[b.UserID] = u
		}
		item.User = u

		result = append(result, item)
	}
	return result
}

// publishOccupancy notifies subscribers off the request path. A failed or
// slow delivery never surfaces to the booking caller.
func (s *bookingService) publishOccupancy(occ domain.Occupancy) {
	if s.broadcaster == nil {
		return
	}
	go s.broadcaster.Publish(occ.EventID, occ)
}

func (s *bookingService) sendConfirmation(booking *domain.Booking, event *domain.Event, user *domain.User) {
	if s.emailService == nil || user == nil || user.Email == "" {
		return
	}
	data := &domain.BookingConfirmationEmailData{
		Email:      user.Email,
		Name:       user.Name,
		EventTitle: event.Title,
		EventDate:  event.Date.Format("Monday, 2 January 2006 15:04"),
		Venue:      event.Venue,
		BookingID:  booking.ID,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.contextTimeout)
		defer cancel()
		if err := s.emailService.SendBookingConfirmation(ctx, data); err != nil {
			s.logger.Warn("booking confirmation email failed", "booking_id", booking.ID, "err", err)
		}
	}()
}
