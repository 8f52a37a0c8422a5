package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
)

func createReservationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFrom(r.Context())

		var req CreateReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		res, err := svc.Book(r.Context(), ident, slotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, reservationResponse(res))
	}
}

func listMyReservationsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFrom(r.Context())
		includePast := r.URL.Query().Get("include_past") == "true"

		list, err := svc.ListMine(r.Context(), ident, includePast)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, detailResponses(list))
	}
}

func listAllReservationsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var date *time.Time
		if v := r.URL.Query().Get("date"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = &t
		}

		list, err := svc.ListByDate(r.Context(), date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, detailResponses(list))
	}
}

func lookupReservationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		detail, err := svc.LookupByToken(r.Context(), token)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reservationDetailResponse(detail))
	}
}

func confirmReservationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		res, err := svc.Confirm(r.Context(), token)
		if err != nil {
			handleLifecycleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reservationResponse(res))
	}
}

func cancelReservationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, _ := IdentityFrom(r.Context())

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), ident, id); err != nil {
			handleLifecycleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func detailResponses(list []booking.ReservationDetail) []ReservationResponse {
	resp := make([]ReservationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, reservationDetailResponse(&list[i]))
	}
	return resp
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotInactive):
		writeError(w, http.StatusConflict, "slot_inactive", err.Error())
	case errors.Is(err, booking.ErrNoCapacity):
		writeError(w, http.StatusConflict, "no_capacity", err.Error())
	case errors.Is(err, booking.ErrDuplicateDailyBooking):
		writeError(w, http.StatusConflict, "duplicate_daily_booking", err.Error())
	case errors.Is(err, booking.ErrBookingContended):
		writeError(w, http.StatusConflict, "booking_contended", "booking is contended, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, booking.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, "already_confirmed", err.Error())
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
