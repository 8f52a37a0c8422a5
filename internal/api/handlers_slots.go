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

func createSlotHandler(slots *booking.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, start, end, err := parseSlotTimes(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_times", err.Error())
			return
		}

		slot, err := slots.Create(r.Context(), date, start, end, req.Capacity)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, slotResponse(slot))
	}
}

func listSlotsHandler(slots *booking.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := booking.SlotFilter{
			ActiveOnly:    q.Get("active_only") != "false",
			AvailableOnly: q.Get("available_only") == "true",
		}
		if v := q.Get("from"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			filter.From = &t
		}
		if v := q.Get("to"); v != "" {
			t, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			filter.To = &t
		}

		list, err := slots.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]*SlotResponse, 0, len(list))
		for i := range list {
			resp = append(resp, slotResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateSlotHandler(slots *booking.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, start, end, err := parseSlotTimes(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_times", err.Error())
			return
		}

		slot, err := slots.Update(r.Context(), id, date, start, end, req.Capacity)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, slotResponse(slot))
	}
}

func deleteSlotHandler(slots *booking.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := slots.Delete(r.Context(), id); err != nil {
			handleSlotError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseSlotTimes(req CreateSlotRequest) (date, start, end time.Time, err error) {
	date, err = time.Parse(dateLayout, req.Date)
	if err != nil {
		return
	}
	start, err = time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return
	}
	end, err = time.Parse(time.RFC3339, req.EndTime)
	return
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, booking.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error())
	case errors.Is(err, booking.ErrCapacityConflict):
		writeError(w, http.StatusConflict, "capacity_conflict", err.Error())
	case errors.Is(err, booking.ErrSlotInUse):
		writeError(w, http.StatusConflict, "slot_in_use", err.Error())
	case errors.Is(err, booking.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
