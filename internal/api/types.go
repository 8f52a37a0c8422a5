package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
)

type CreateSlotRequest struct {
	Date      string `json:"date"` // 2006-01-02
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Capacity  int    `json:"capacity"`
}

type SlotResponse struct {
	ID             uuid.UUID `json:"id"`
	Date           string    `json:"date"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Capacity       int       `json:"capacity"`
	AvailableSpots int       `json:"available_spots"`
	Active         bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateReservationRequest struct {
	SlotID string `json:"slot_id"`
}

type ReservationResponse struct {
	ID          uuid.UUID     `json:"id"`
	PatientID   uuid.UUID     `json:"patient_id"`
	SlotID      uuid.UUID     `json:"slot_id"`
	Date        string        `json:"date"`
	DailyNumber int           `json:"daily_number"`
	Token       string        `json:"token"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	Slot        *SlotResponse `json:"slot,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const dateLayout = "2006-01-02"

func slotResponse(s *booking.Slot) *SlotResponse {
	return &SlotResponse{
		ID:             s.ID,
		Date:           s.Date.Format(dateLayout),
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Capacity:       s.Capacity,
		AvailableSpots: s.AvailableSpots,
		Active:         s.Active,
		CreatedAt:      s.CreatedAt,
	}
}

func reservationResponse(r *booking.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:          r.ID,
		PatientID:   r.PatientID,
		SlotID:      r.SlotID,
		Date:        r.SlotDate.Format(dateLayout),
		DailyNumber: r.DailyNumber,
		Token:       r.Token,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

func reservationDetailResponse(d *booking.ReservationDetail) ReservationResponse {
	resp := reservationResponse(&d.Reservation)
	if d.Slot != nil {
		resp.Slot = slotResponse(d.Slot)
	}
	return resp
}
