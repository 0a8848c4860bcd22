package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a map-backed Repository with the same conditional-
// update semantics as the Postgres one. It backs the test suite and makes
// the service runnable without external infrastructure.
type MemoryRepository struct {
	mu           sync.Mutex
	schedules    map[uuid.UUID]*DoctorSchedule
	reservations map[uuid.UUID]*Reservation
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		schedules:    make(map[uuid.UUID]*DoctorSchedule),
		reservations: make(map[uuid.UUID]*Reservation),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

// PutSchedule registers a doctor schedule. Schedules are read-only for the
// booking core, so there is no update path here.
func (m *MemoryRepository) PutSchedule(s *DoctorSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.schedules[s.DoctorID] = &cp
}

func (m *MemoryRepository) GetDoctorSchedule(_ context.Context, doctorID uuid.UUID) (*DoctorSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) CreateReservation(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.reservations[r.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetReservationByID(_ context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) UpdateReservationStatus(_ context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return nil, ErrReservationNotFound
	}
	r.Status = to
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) ListActiveReservations(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := TimeRange{Start: from, End: to}
	var result []Reservation
	for _, r := range m.reservations {
		if r.DoctorID == doctorID && r.Status == ReservationActive && r.Range().Overlaps(window) {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *MemoryRepository) FindExpiredActive(_ context.Context, now time.Time) ([]Reservation, error) {
	return m.findExpired(uuid.Nil, now), nil
}

func (m *MemoryRepository) FindExpiredActiveForDoctor(_ context.Context, doctorID uuid.UUID, now time.Time) ([]Reservation, error) {
	return m.findExpired(doctorID, now), nil
}

func (m *MemoryRepository) findExpired(doctorID uuid.UUID, now time.Time) []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Reservation
	for _, r := range m.reservations {
		if doctorID != uuid.Nil && r.DoctorID != doctorID {
			continue
		}
		if r.Status == ReservationActive && !r.ExpiresAt.After(now) {
			result = append(result, *r)
		}
	}
	return result
}

func (m *MemoryRepository) CompleteReservation(_ context.Context, reservationID uuid.UUID, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok || r.Status != ReservationActive {
		return nil, ErrReservationNotFound
	}
	r.Status = ReservationCompleted

	cp := *appt
	m.appointments[appt.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) GetAppointmentByReservation(_ context.Context, reservationID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.appointments {
		if a.ReservationID == reservationID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *MemoryRepository) ListConfirmedAppointments(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := TimeRange{Start: from, End: to}
	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status == AppointmentConfirmed && a.Range().Overlaps(window) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) UpdateAppointmentTime(_ context.Context, id uuid.UUID, newStart, newEnd time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != AppointmentConfirmed {
		return nil, ErrAppointmentNotFound
	}
	a.Start = newStart
	a.End = newEnd
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the ledger, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}
