package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateReservationRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	HolderID  string    `json:"holder_id" validate:"required,uuid"`
	SlotStart time.Time `json:"slot_start" validate:"required"`
}

type ReservationResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	HolderID  uuid.UUID `json:"holder_id"`
	SlotStart time.Time `json:"slot_start"`
	SlotEnd   time.Time `json:"slot_end"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RemainingResponse struct {
	ReservationID    uuid.UUID `json:"reservation_id"`
	SecondsRemaining int64     `json:"seconds_remaining"`
}

type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Method      string `json:"method" validate:"required"`
}

type CompleteReservationRequest struct {
	HolderID     string          `json:"holder_id" validate:"required,uuid"`
	ElderID      string          `json:"elder_id" validate:"required,uuid"`
	Reason       string          `json:"reason" validate:"required"`
	Type         string          `json:"type" validate:"omitempty,oneof=consultation follow_up home_visit telehealth"`
	Priority     string          `json:"priority" validate:"omitempty,oneof=routine urgent"`
	Notes        string          `json:"notes"`
	RecordAccess bool            `json:"record_access"`
	Payment      *PaymentRequest `json:"payment" validate:"omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ElderID       uuid.UUID `json:"elder_id"`
	HolderID      uuid.UUID `json:"holder_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason"`
	Type          string    `json:"type,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	RecordAccess  bool      `json:"record_access"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID      `json:"doctor_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type RescheduleAppointmentRequest struct {
	NewStart time.Time `json:"new_start" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
