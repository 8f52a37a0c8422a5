package booking

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusCreated   ReservationStatus = "created"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

// Active reports whether the reservation still counts against slot capacity
// and the one-per-day rule.
func (s ReservationStatus) Active() bool {
	return s == StatusCreated || s == StatusConfirmed
}

type Role string

const (
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Identity is the authenticated caller, supplied by the fronting identity
// layer. The engine trusts it as-is.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Slot struct {
	ID             uuid.UUID
	Date           time.Time // calendar date, midnight UTC
	StartTime      time.Time
	EndTime        time.Time
	Capacity       int
	AvailableSpots int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TakenSpots is the number of spots consumed by active reservations.
func (s *Slot) TakenSpots() int {
	return s.Capacity - s.AvailableSpots
}

type Reservation struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	SlotID      uuid.UUID // uuid.Nil once the slot has been deleted
	SlotDate    time.Time // denormalized from the slot, drives daily numbering
	DailyNumber int
	Token       string
	Status      ReservationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ReservationDetail struct {
	Reservation
	Slot *Slot
}

type SlotFilter struct {
	From          *time.Time
	To            *time.Time
	ActiveOnly    bool
	AvailableOnly bool
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
