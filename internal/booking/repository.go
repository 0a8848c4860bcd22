package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor schedule not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all store interactions needed by the service. Status
// updates are conditional (compare-and-set on the expected current status) so
// concurrent transitions cannot double-fire; a failed CAS surfaces as
// ErrReservationNotFound / ErrAppointmentNotFound.
type Repository interface {
	GetDoctorSchedule(ctx context.Context, doctorID uuid.UUID) (*DoctorSchedule, error)

	// Reservations
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error)
	ListActiveReservations(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error)

	// Expiry reaper
	FindExpiredActive(ctx context.Context, now time.Time) ([]Reservation, error)
	FindExpiredActiveForDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]Reservation, error)

	// CompleteReservation transitions the reservation active->completed and
	// inserts the confirmed appointment as one atomic step.
	CompleteReservation(ctx context.Context, reservationID uuid.UUID, appt *Appointment) (*Appointment, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByReservation(ctx context.Context, reservationID uuid.UUID) (*Appointment, error)
	ListConfirmedAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	UpdateAppointmentTime(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time) (*Appointment, error)

	// Event ledger
	InsertEvent(ctx context.Context, ev EventLog) error
}
