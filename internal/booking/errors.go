package booking

import "errors"

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrReservationNotFound = errors.New("reservation not found")

	// Administrative input validation.
	ErrInvalidRange    = errors.New("slot end time must be after start time")
	ErrInvalidCapacity = errors.New("slot capacity must be positive")

	// Administrative mutations blocked by live state.
	ErrCapacityConflict = errors.New("cannot reduce capacity below taken spots")
	ErrSlotInUse        = errors.New("slot has live reservations")
	ErrDuplicateSlot    = errors.New("slot already exists for this date and start time")

	// Booking failures.
	ErrNoCapacity            = errors.New("no available spots in slot")
	ErrSlotInactive          = errors.New("slot is not active")
	ErrDuplicateDailyBooking = errors.New("patient already has an active reservation for this day")
	ErrBookingContended      = errors.New("booking is contended, please retry")

	// Lifecycle violations.
	ErrAlreadyConfirmed = errors.New("reservation is already confirmed")
	ErrAlreadyCancelled = errors.New("reservation is already cancelled")
	ErrNotAuthorized    = errors.New("not authorized for this reservation")

	// Internal conflicts resolved by retrying with fresh values, never
	// surfaced to callers.
	ErrTokenCollision   = errors.New("reservation token collision")
	ErrDailyNumberTaken = errors.New("daily number already taken")
)
