package booking

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
	ReservationCancelled ReservationStatus = "cancelled"
)

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// TimeRange is the one overlap primitive shared by reservation, completion,
// cancellation and reschedule checks.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two ranges share any instant. Touching
// boundaries (one range ending exactly where the other starts) do not overlap.
func (t TimeRange) Overlaps(o TimeRange) bool {
	return t.Start.Before(o.End) && o.Start.Before(t.End)
}

// Slot is a bookable candidate time for a doctor. Slots are derived from the
// schedule on demand and never stored.
type Slot struct {
	DoctorID uuid.UUID
	Start    time.Time
	End      time.Time
}

// Reservation is a time-boxed exclusive claim on a slot. ExpiresAt is an
// absolute deadline fixed at creation and never extended.
type Reservation struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	HolderID  uuid.UUID
	Start     time.Time
	End       time.Time
	Status    ReservationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (r *Reservation) Range() TimeRange {
	return TimeRange{Start: r.Start, End: r.End}
}

// BookingDetails is what a holder supplies when converting a reservation into
// an appointment.
type BookingDetails struct {
	ElderID      uuid.UUID
	Reason       string
	Type         string
	Priority     string
	Notes        string
	RecordAccess bool
}

type Appointment struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	DoctorID      uuid.UUID
	ElderID       uuid.UUID
	HolderID      uuid.UUID
	Start         time.Time
	End           time.Time
	Status        AppointmentStatus
	Reason        string
	Type          string
	Priority      string
	Notes         string
	RecordAccess  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Appointment) Range() TimeRange {
	return TimeRange{Start: a.Start, End: a.End}
}

// EventLog is one row of the append-only transition ledger. Writes are
// best-effort and never fail a booking operation.
type EventLog struct {
	ID            int64
	EventType     string
	ReservationID *uuid.UUID
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Event is the notification emitted to the external dispatcher after a
// state transition commits.
type Event struct {
	Type          string         `json:"type"`
	DoctorID      uuid.UUID      `json:"doctor_id"`
	HolderID      uuid.UUID      `json:"holder_id"`
	ReservationID *uuid.UUID     `json:"reservation_id,omitempty"`
	AppointmentID *uuid.UUID     `json:"appointment_id,omitempty"`
	At            time.Time      `json:"at"`
	Payload       map[string]any `json:"payload,omitempty"`
}
