package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ListFreeSlots derives the bookable slots for a doctor on the given calendar
// date (only year/month/day of `date` are used, interpreted in the doctor's
// timezone). A slot is free when it overlaps no active reservation and no
// confirmed appointment. An empty result is a valid answer, not an error.
func (s *Service) ListFreeSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	sched, err := s.repo.GetDoctorSchedule(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	loc, err := sched.Location()
	if err != nil {
		return nil, err
	}

	now := s.now()
	year, month, day := date.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	if err := s.checkDate(dayStart, dayEnd, now); err != nil {
		return nil, err
	}

	candidates, err := sched.SlotsOn(date)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	// Opportunistic expiry so a stale claim never hides a slot. The
	// transition itself is a CAS, so no lock is needed on a read path.
	s.expireStaleForDoctor(ctx, doctorID)

	reservations, err := s.repo.ListActiveReservations(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	appointments, err := s.repo.ListConfirmedAppointments(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list confirmed appointments: %w", err)
	}

	free := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if c.Start.Before(now) {
			continue
		}
		if slotClaimed(c, reservations, appointments) {
			continue
		}
		free = append(free, Slot{DoctorID: doctorID, Start: c.Start, End: c.End})
	}

	return free, nil
}

func slotClaimed(c TimeRange, reservations []Reservation, appointments []Appointment) bool {
	for i := range reservations {
		if reservations[i].Range().Overlaps(c) {
			return true
		}
	}
	for i := range appointments {
		if appointments[i].Range().Overlaps(c) {
			return true
		}
	}
	return false
}

// checkDate rejects past dates and dates beyond the horizon. "Today" is
// valid: slots already behind the clock are filtered, not the whole day.
func (s *Service) checkDate(dayStart, dayEnd, now time.Time) error {
	if dayEnd.Before(now) || dayEnd.Equal(now) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidDate, dayStart.Format("2006-01-02"))
	}
	horizon := now.AddDate(0, 0, s.cfg.HorizonDays)
	if dayStart.After(horizon) {
		return fmt.Errorf("%w: %s is beyond the %d day horizon", ErrInvalidDate, dayStart.Format("2006-01-02"), s.cfg.HorizonDays)
	}
	return nil
}
