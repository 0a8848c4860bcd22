package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carelink/booking-service/internal/booking"
	"github.com/carelink/booking-service/internal/payment"
)

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctorID must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be formatted YYYY-MM-DD")
			return
		}

		slots, err := svc.ListFreeSlots(r.Context(), doctorID, date)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		resp := AvailabilityResponse{
			DoctorID: doctorID,
			Date:     dateStr,
			Slots:    make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start, End: s.End})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createReservationHandler(svc *booking.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		doctorID, _ := uuid.Parse(req.DoctorID)
		holderID, _ := uuid.Parse(req.HolderID)

		res, err := svc.Reserve(r.Context(), doctorID, req.SlotStart, holderID)
		if err != nil {
			handleReserveError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func cancelReservationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}
		holderID, err := uuid.Parse(r.URL.Query().Get("holder_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_holder_id", "holder_id must be a valid UUID")
			return
		}

		if err := svc.CancelReservation(r.Context(), id, holderID); err != nil {
			handleReservationStateError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func remainingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		left, err := svc.Remaining(r.Context(), id)
		if err != nil {
			handleReservationStateError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, RemainingResponse{
			ReservationID:    id,
			SecondsRemaining: int64(left / time.Second),
		})
	}
}

func completeReservationHandler(svc *booking.Service, validate *validator.Validate, gateway payment.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reservation_id", "id must be a valid UUID")
			return
		}

		var req CompleteReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		holderID, _ := uuid.Parse(req.HolderID)
		elderID, _ := uuid.Parse(req.ElderID)

		// Resolve the payment outcome before touching booking state; the
		// core only ever sees the resolved boolean.
		paymentConfirmed := false
		if req.Payment != nil {
			paymentConfirmed, err = gateway.Authorize(r.Context(), req.Payment.AmountCents, req.Payment.Method)
			if err != nil {
				writeError(w, http.StatusBadGateway, "payment_gateway_error", err.Error())
				return
			}
		}

		details := booking.BookingDetails{
			ElderID:      elderID,
			Reason:       req.Reason,
			Type:         req.Type,
			Priority:     req.Priority,
			Notes:        req.Notes,
			RecordAccess: req.RecordAccess,
		}

		appt, err := svc.Complete(r.Context(), id, holderID, details, paymentConfirmed)
		if err != nil {
			handleCompleteError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *booking.Service, validate *validator.Validate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.NewStart)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// Error mapping

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleReserveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is already reserved or booked, re-query availability")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleReservationStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, booking.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCompleteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "reservation_not_found", err.Error())
	case errors.Is(err, booking.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, booking.ErrReservationExpired):
		writeError(w, http.StatusConflict, "reservation_expired", err.Error())
	case errors.Is(err, booking.ErrInvalidBooking):
		writeError(w, http.StatusBadRequest, "invalid_booking_details", err.Error())
	case errors.Is(err, booking.ErrElderNotOwned):
		writeError(w, http.StatusForbidden, "elder_not_owned", err.Error())
	case errors.Is(err, booking.ErrPaymentRequired):
		writeError(w, http.StatusPaymentRequired, "payment_required", "payment was not confirmed, reservation stays active until expiry")
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// Response helpers

func toReservationResponse(res *booking.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        res.ID,
		DoctorID:  res.DoctorID,
		HolderID:  res.HolderID,
		SlotStart: res.Start,
		SlotEnd:   res.End,
		Status:    string(res.Status),
		ExpiresAt: res.ExpiresAt,
	}
}

func toAppointmentResponse(appt *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            appt.ID,
		ReservationID: appt.ReservationID,
		DoctorID:      appt.DoctorID,
		ElderID:       appt.ElderID,
		HolderID:      appt.HolderID,
		Start:         appt.Start,
		End:           appt.End,
		Status:        string(appt.Status),
		Reason:        appt.Reason,
		Type:          appt.Type,
		Priority:      appt.Priority,
		Notes:         appt.Notes,
		RecordAccess:  appt.RecordAccess,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
