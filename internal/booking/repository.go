package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the services.
// Every capacity mutation goes through ReserveSpot/ReleaseSpot so the
// remaining-spots counter has a single choke point.
type Repository interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error)
	InsertSlot(ctx context.Context, s *Slot) error
	UpdateSlot(ctx context.Context, id uuid.UUID, date, start, end time.Time, capacity int) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// ReserveSpot is an atomic check-and-decrement of the slot's available
	// spots. ReleaseSpot is the matching increment, capped at capacity.
	ReserveSpot(ctx context.Context, id uuid.UUID) error
	ReleaseSpot(ctx context.Context, id uuid.UUID) error

	// DeactivateSlotsBefore marks every active slot dated strictly before
	// the given date as inactive and returns how many were touched.
	DeactivateSlotsBefore(ctx context.Context, date time.Time) (int64, error)

	// CreateReservation inserts r in state created, assigning the next
	// daily number for r.SlotDate in the same atomic unit. Unique-index
	// clashes come back as ErrTokenCollision, ErrDailyNumberTaken or
	// ErrDuplicateDailyBooking.
	CreateReservation(ctx context.Context, r *Reservation) error

	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	GetReservationByToken(ctx context.Context, token string) (*ReservationDetail, error)
	FindActiveReservation(ctx context.Context, patientID uuid.UUID, date time.Time) (*Reservation, error)
	ListPatientReservations(ctx context.Context, patientID uuid.UUID, includePast bool, now time.Time) ([]ReservationDetail, error)
	ListReservationsByDate(ctx context.Context, date *time.Time) ([]ReservationDetail, error)

	// UpdateReservationStatus performs a compare-and-set transition and
	// returns ErrReservationNotFound when no row matched the from state.
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error)

	// CancelReservation marks a created reservation cancelled and releases
	// its slot spot as one atomic pair.
	CancelReservation(ctx context.Context, id uuid.UUID) error
}
