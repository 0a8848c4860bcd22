package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/booking-service/internal/config"
)

const (
	EventReservationCreated     = "RESERVATION_CREATED"
	EventReservationCancelled   = "RESERVATION_CANCELLED"
	EventReservationExpired     = "RESERVATION_EXPIRED"
	EventBookingConfirmed       = "BOOKING_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)

var (
	ErrSlotUnavailable    = errors.New("slot is not available")
	ErrSlotConflict       = errors.New("slot conflicts with a confirmed appointment")
	ErrNotOwner           = errors.New("reservation is held by a different holder")
	ErrReservationExpired = errors.New("reservation is no longer active")
	ErrPaymentRequired    = errors.New("payment confirmation required to complete booking")
	ErrInvalidDate        = errors.New("date is in the past or beyond the booking horizon")
	ErrInvalidBooking     = errors.New("invalid booking details")
	ErrElderNotOwned      = errors.New("elder does not belong to this holder")
	ErrInvalidTransition  = errors.New("invalid appointment status transition")
)

// Service owns slot reservation, booking completion and expiry. All writes to
// one doctor's reservation/appointment set happen inside that doctor's lock,
// so the check-and-claim step is indivisible for concurrent callers.
type Service struct {
	repo     Repository
	locker   Locker
	identity IdentityProvider
	notifier Notifier
	cfg      config.Config

	// injectable clock, tests only
	now func() time.Time
}

func NewService(repo Repository, locker Locker, identity IdentityProvider, notifier Notifier, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		identity: identity,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Reserve atomically claims the slot starting at slotStart for holderID.
// Exactly one of any set of concurrent callers targeting overlapping ranges
// succeeds; the rest get ErrSlotUnavailable and must re-query availability.
func (s *Service) Reserve(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, holderID uuid.UUID) (*Reservation, error) {
	sched, err := s.repo.GetDoctorSchedule(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	now := s.now()
	if err := s.checkBookable(slotStart, now); err != nil {
		return nil, err
	}

	slot, ok := sched.SlotAt(slotStart)
	if !ok {
		return nil, ErrSlotUnavailable
	}

	var created *Reservation

	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		// Lazy sweep first so a stale claim never blocks a fresh one.
		s.expireStaleForDoctor(lockCtx, doctorID)

		taken, err := s.rangeTaken(lockCtx, doctorID, slot, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotUnavailable
		}

		res := &Reservation{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			HolderID:  holderID,
			Start:     slot.Start,
			End:       slot.End,
			Status:    ReservationActive,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.ReservationTTL),
		}
		if err := s.repo.CreateReservation(lockCtx, res); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		created = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			// Another claim on this doctor is in flight; to the caller that
			// is indistinguishable from losing the race.
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.record(ctx, EventReservationCreated, created.DoctorID, created.HolderID, &created.ID, nil, map[string]any{
		"slot_start": created.Start,
		"expires_at": created.ExpiresAt,
	})

	return created, nil
}

// CancelReservation releases an active claim immediately. Cancelling a
// reservation that already reached a terminal status succeeds without effect:
// either way the slot is free.
func (s *Service) CancelReservation(ctx context.Context, reservationID, holderID uuid.UUID) error {
	res, err := s.repo.GetReservationByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.HolderID != holderID {
		return ErrNotOwner
	}
	if res.Status != ReservationActive {
		return nil
	}

	cancelled, err := s.repo.UpdateReservationStatus(ctx, reservationID, ReservationActive, ReservationCancelled)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			// Lost a race against expiry or completion; the claim is gone
			// either way.
			return nil
		}
		return fmt.Errorf("cancel reservation: %w", err)
	}

	s.record(ctx, EventReservationCancelled, cancelled.DoctorID, cancelled.HolderID, &cancelled.ID, nil, nil)
	return nil
}

// Remaining reports how long a reservation stays claimable. Zero for
// reservations past expiry or in a terminal status. Read-only.
func (s *Service) Remaining(ctx context.Context, reservationID uuid.UUID) (time.Duration, error) {
	res, err := s.repo.GetReservationByID(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	if res.Status != ReservationActive {
		return 0, nil
	}

	left := res.ExpiresAt.Sub(s.now())
	if left < 0 {
		return 0, nil
	}
	return left, nil
}

// Sweep expires every active reservation past its deadline and returns how
// many it transitioned. Called by the background worker; the same logic runs
// inline (per doctor) on the reserve and availability paths, so correctness
// never depends on the worker interval.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	stale, err := s.repo.FindExpiredActive(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find expired reservations: %w", err)
	}

	count := 0
	for i := range stale {
		if s.expireOne(ctx, &stale[i], "sweep") {
			count++
		}
	}
	return count, nil
}

func (s *Service) expireStaleForDoctor(ctx context.Context, doctorID uuid.UUID) {
	stale, err := s.repo.FindExpiredActiveForDoctor(ctx, doctorID, s.now())
	if err != nil {
		log.Printf("find expired reservations for doctor %s: %v", doctorID, err)
		return
	}
	for i := range stale {
		s.expireOne(ctx, &stale[i], "lazy")
	}
}

// expireOne is a conditional compare-and-set on status=active, so it is safe
// against a concurrent complete or cancel winning first.
func (s *Service) expireOne(ctx context.Context, res *Reservation, reason string) bool {
	_, err := s.repo.UpdateReservationStatus(ctx, res.ID, ReservationActive, ReservationExpired)
	if err != nil {
		if !errors.Is(err, ErrReservationNotFound) {
			log.Printf("expire reservation %s: %v", res.ID, err)
		}
		return false
	}

	s.record(ctx, EventReservationExpired, res.DoctorID, res.HolderID, &res.ID, nil, map[string]any{
		"reason": reason,
	})
	return true
}

// rangeTaken checks tr against the doctor's active reservations and confirmed
// appointments. skipAppointment excludes one appointment from the check, used
// when rescheduling it.
func (s *Service) rangeTaken(ctx context.Context, doctorID uuid.UUID, tr TimeRange, skipAppointment uuid.UUID) (bool, error) {
	reservations, err := s.repo.ListActiveReservations(ctx, doctorID, tr.Start, tr.End)
	if err != nil {
		return false, fmt.Errorf("list active reservations: %w", err)
	}
	for i := range reservations {
		if reservations[i].Range().Overlaps(tr) {
			return true, nil
		}
	}

	appointments, err := s.repo.ListConfirmedAppointments(ctx, doctorID, tr.Start, tr.End)
	if err != nil {
		return false, fmt.Errorf("list confirmed appointments: %w", err)
	}
	for i := range appointments {
		if appointments[i].ID == skipAppointment {
			continue
		}
		if appointments[i].Range().Overlaps(tr) {
			return true, nil
		}
	}

	return false, nil
}

func (s *Service) checkBookable(start time.Time, now time.Time) error {
	if start.Before(now) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidDate, start.Format(time.RFC3339))
	}
	horizon := now.AddDate(0, 0, s.cfg.HorizonDays)
	if start.After(horizon) {
		return fmt.Errorf("%w: %s is beyond the %d day horizon", ErrInvalidDate, start.Format(time.RFC3339), s.cfg.HorizonDays)
	}
	return nil
}

// record appends the transition to the event ledger and hands it to the
// notifier. Both are best-effort and run outside any doctor lock.
func (s *Service) record(ctx context.Context, eventType string, doctorID, holderID uuid.UUID, reservationID, appointmentID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		ReservationID: reservationID,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("insert event log %s: %v", eventType, err)
	}

	if s.notifier == nil {
		return
	}
	notifyErr := s.notifier.Publish(ctx, Event{
		Type:          eventType,
		DoctorID:      doctorID,
		HolderID:      holderID,
		ReservationID: reservationID,
		AppointmentID: appointmentID,
		At:            s.now(),
		Payload:       payload,
	})
	if notifyErr != nil {
		log.Printf("publish event %s: %v", eventType, notifyErr)
	}
}
