package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Complete converts a live reservation into a confirmed appointment.
//
// A false paymentConfirmed leaves the reservation active so the holder can
// retry within the TTL window. Replaying Complete on an already-completed
// reservation returns the appointment created the first time, so a client
// that lost the response can safely retry.
func (s *Service) Complete(ctx context.Context, reservationID, holderID uuid.UUID, details BookingDetails, paymentConfirmed bool) (*Appointment, error) {
	res, err := s.repo.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.HolderID != holderID {
		return nil, ErrNotOwner
	}

	if res.Status == ReservationCompleted {
		appt, err := s.repo.GetAppointmentByReservation(ctx, reservationID)
		if err != nil {
			return nil, fmt.Errorf("load completed booking: %w", err)
		}
		return appt, nil
	}
	if res.Status != ReservationActive {
		return nil, ErrReservationExpired
	}

	now := s.now()
	if now.After(res.ExpiresAt) {
		s.expireOne(ctx, res, "complete_after_expiry")
		return nil, ErrReservationExpired
	}

	if err := validateDetails(details); err != nil {
		return nil, err
	}

	owns, err := s.identity.OwnsElder(ctx, holderID, details.ElderID)
	if err != nil {
		return nil, fmt.Errorf("check elder ownership: %w", err)
	}
	if !owns {
		return nil, ErrElderNotOwned
	}

	if !paymentConfirmed {
		return nil, ErrPaymentRequired
	}

	var appt *Appointment

	err = s.locker.WithDoctorLock(ctx, res.DoctorID, func(lockCtx context.Context) error {
		// Defensive re-check against any out-of-band confirmed booking. On
		// conflict the reservation stays active for one more client decision.
		appointments, err := s.repo.ListConfirmedAppointments(lockCtx, res.DoctorID, res.Start, res.End)
		if err != nil {
			return fmt.Errorf("list confirmed appointments: %w", err)
		}
		for i := range appointments {
			if appointments[i].Range().Overlaps(res.Range()) {
				return ErrSlotConflict
			}
		}

		candidate := &Appointment{
			ID:            uuid.New(),
			ReservationID: res.ID,
			DoctorID:      res.DoctorID,
			ElderID:       details.ElderID,
			HolderID:      holderID,
			Start:         res.Start,
			End:           res.End,
			Status:        AppointmentConfirmed,
			Reason:        details.Reason,
			Type:          details.Type,
			Priority:      details.Priority,
			Notes:         details.Notes,
			RecordAccess:  details.RecordAccess,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		created, err := s.repo.CompleteReservation(lockCtx, res.ID, candidate)
		if err != nil {
			if errors.Is(err, ErrReservationNotFound) {
				// The reaper's CAS won between our status read and here.
				return ErrReservationExpired
			}
			return fmt.Errorf("complete reservation: %w", err)
		}

		appt = created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	s.record(ctx, EventBookingConfirmed, appt.DoctorID, appt.HolderID, &res.ID, &appt.ID, map[string]any{
		"elder_id": appt.ElderID,
		"start":    appt.Start,
	})

	return appt, nil
}

// CancelAppointment moves a confirmed appointment to cancelled, freeing its
// time range. Cancelling an already-cancelled appointment succeeds.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == AppointmentCancelled {
		return appt, nil
	}
	if appt.Status != AppointmentConfirmed {
		return nil, ErrInvalidTransition
	}

	cancelled, err := s.repo.UpdateAppointmentStatus(ctx, appointmentID, AppointmentConfirmed, AppointmentCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.record(ctx, EventAppointmentCancelled, cancelled.DoctorID, cancelled.HolderID, nil, &cancelled.ID, map[string]any{
		"reason": reason,
	})
	return cancelled, nil
}

// MarkOutcome records what happened to a confirmed appointment once its time
// passed: completed or no_show.
func (s *Service) MarkOutcome(ctx context.Context, appointmentID uuid.UUID, outcome AppointmentStatus) (*Appointment, error) {
	if outcome != AppointmentCompleted && outcome != AppointmentNoShow {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appointmentID, AppointmentConfirmed, outcome)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Either no such appointment or it is not confirmed anymore.
			if _, lookupErr := s.repo.GetAppointmentByID(ctx, appointmentID); lookupErr != nil {
				return nil, lookupErr
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("mark appointment outcome: %w", err)
	}
	return updated, nil
}

// Reschedule moves a confirmed appointment to a new schedule slot, re-running
// the same overlap check reservation and completion use.
func (s *Service) Reschedule(ctx context.Context, appointmentID uuid.UUID, newStart time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != AppointmentConfirmed {
		return nil, ErrInvalidTransition
	}

	sched, err := s.repo.GetDoctorSchedule(ctx, appt.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	if err := s.checkBookable(newStart, s.now()); err != nil {
		return nil, err
	}
	slot, ok := sched.SlotAt(newStart)
	if !ok {
		return nil, ErrSlotConflict
	}

	var moved *Appointment

	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		s.expireStaleForDoctor(lockCtx, appt.DoctorID)

		taken, err := s.rangeTaken(lockCtx, appt.DoctorID, slot, appt.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}

		updated, err := s.repo.UpdateAppointmentTime(lockCtx, appt.ID, slot.Start, slot.End)
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		moved = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	s.record(ctx, EventAppointmentRescheduled, moved.DoctorID, moved.HolderID, nil, &moved.ID, map[string]any{
		"old_start": appt.Start,
		"new_start": moved.Start,
	})
	return moved, nil
}

func validateDetails(d BookingDetails) error {
	if strings.TrimSpace(d.Reason) == "" {
		return fmt.Errorf("%w: reason must not be empty", ErrInvalidBooking)
	}
	if d.ElderID == uuid.Nil {
		return fmt.Errorf("%w: elder_id is required", ErrInvalidBooking)
	}
	return nil
}
