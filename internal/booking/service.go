package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// createRetries bounds how often a failed insert is retried with a fresh
// token or daily number before the booking is abandoned.
const createRetries = 5

// Service is the reservation allocator and lifecycle manager. All capacity
// and state transitions for reservations run through it.
type Service struct {
	repo   Repository
	locker Locker
	tokens TokenIssuer
	logger *zap.Logger
}

func NewService(repo Repository, locker Locker, tokens TokenIssuer, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		tokens: tokens,
		logger: logger,
	}
}

// Book reserves a spot in the slot for the identified patient. It holds a
// per-date lock so that the duplicate-day pre-check and the capacity
// decrement cannot interleave with a competing booking; the storage-level
// uniqueness constraints close the same races for callers that bypass
// the lock.
func (s *Service) Book(ctx context.Context, ident Identity, slotID uuid.UUID) (*Reservation, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if !slot.Active {
		return nil, ErrSlotInactive
	}

	var created *Reservation

	err = s.locker.WithLock(ctx, dayLockKey(slot.Date), func(lockCtx context.Context) error {
		existing, err := s.repo.FindActiveReservation(lockCtx, ident.UserID, slot.Date)
		if err != nil && !errors.Is(err, ErrReservationNotFound) {
			return fmt.Errorf("check existing reservation: %w", err)
		}
		if existing != nil {
			return ErrDuplicateDailyBooking
		}

		// The single serialization point against overselling: a
		// conditional decrement, not a read followed by a write.
		if err := s.repo.ReserveSpot(lockCtx, slotID); err != nil {
			return err
		}

		r, err := s.createWithRetry(lockCtx, ident.UserID, slot)
		if err != nil {
			// The spot was consumed above; give it back so the
			// operation is all-or-nothing from the caller's view.
			if relErr := s.repo.ReleaseSpot(lockCtx, slotID); relErr != nil {
				s.logger.Error("compensating release failed",
					zap.String("slot_id", slotID.String()),
					zap.Error(relErr))
			}
			return err
		}

		created = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.logger.Info("reservation created",
		zap.String("reservation_id", created.ID.String()),
		zap.String("slot_id", slotID.String()),
		zap.Int("daily_number", created.DailyNumber))

	return created, nil
}

func (s *Service) createWithRetry(ctx context.Context, patientID uuid.UUID, slot *Slot) (*Reservation, error) {
	for attempt := 0; attempt < createRetries; attempt++ {
		token, err := s.tokens.Issue()
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}

		r := &Reservation{
			ID:        uuid.New(),
			PatientID: patientID,
			SlotID:    slot.ID,
			SlotDate:  slot.Date,
			Token:     token,
			Status:    StatusCreated,
		}

		err = s.repo.CreateReservation(ctx, r)
		switch {
		case err == nil:
			return r, nil
		case errors.Is(err, ErrTokenCollision), errors.Is(err, ErrDailyNumberTaken):
			s.logger.Warn("reservation insert conflict, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("create reservation: retries exhausted")
}

// Confirm moves a created reservation to confirmed. Capacity is untouched;
// the spot was consumed when the reservation was created.
func (s *Service) Confirm(ctx context.Context, token string) (*Reservation, error) {
	detail, err := s.repo.GetReservationByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch detail.Status {
	case StatusConfirmed:
		return nil, ErrAlreadyConfirmed
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.UpdateReservationStatus(ctx, detail.ID, StatusCreated, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			// Lost a race with another transition; re-read for the
			// accurate terminal-state error.
			return nil, s.terminalStateError(ctx, detail.ID)
		}
		return nil, fmt.Errorf("confirm reservation: %w", err)
	}

	s.logger.Info("reservation confirmed",
		zap.String("reservation_id", updated.ID.String()))

	return updated, nil
}

// Cancel releases a created reservation. Only the owning patient or an
// admin may cancel; confirmed reservations are immutable by business rule.
func (s *Service) Cancel(ctx context.Context, ident Identity, id uuid.UUID) error {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}

	if r.PatientID != ident.UserID && !ident.IsAdmin() {
		return ErrNotAuthorized
	}

	switch r.Status {
	case StatusConfirmed:
		return ErrAlreadyConfirmed
	case StatusCancelled:
		return ErrAlreadyCancelled
	}

	if err := s.repo.CancelReservation(ctx, id); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return s.terminalStateError(ctx, id)
		}
		return fmt.Errorf("cancel reservation: %w", err)
	}

	s.logger.Info("reservation cancelled",
		zap.String("reservation_id", id.String()),
		zap.String("cancelled_by", ident.UserID.String()))

	return nil
}

func (s *Service) terminalStateError(ctx context.Context, id uuid.UUID) error {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	switch r.Status {
	case StatusConfirmed:
		return ErrAlreadyConfirmed
	case StatusCancelled:
		return ErrAlreadyCancelled
	default:
		return ErrReservationNotFound
	}
}

// LookupByToken resolves a reservation for verification display. Works in
// any state.
func (s *Service) LookupByToken(ctx context.Context, token string) (*ReservationDetail, error) {
	return s.repo.GetReservationByToken(ctx, token)
}

// ListMine returns the calling patient's reservations ordered by slot date
// and start time, optionally including past days.
func (s *Service) ListMine(ctx context.Context, ident Identity, includePast bool) ([]ReservationDetail, error) {
	list, err := s.repo.ListPatientReservations(ctx, ident.UserID, includePast, time.Now())
	if err != nil {
		return nil, fmt.Errorf("list patient reservations: %w", err)
	}
	return list, nil
}

// ListByDate returns every reservation, optionally filtered to one calendar
// date, ordered by date, start time and daily number.
func (s *Service) ListByDate(ctx context.Context, date *time.Time) ([]ReservationDetail, error) {
	list, err := s.repo.ListReservationsByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

func dayLockKey(date time.Time) string {
	return "book:day:" + date.Format("2006-01-02")
}
