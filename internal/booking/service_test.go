package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/booking-service/internal/config"
	"github.com/carelink/booking-service/internal/identity"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *captureNotifier) Publish(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *captureNotifier) byType(eventType string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	cfg      config.Config
	clock    *fakeClock
	repo     *MemoryRepository
	notifier *captureNotifier
	svc      *Service

	doctorID uuid.UUID
	holderA  uuid.UUID
	holderB  uuid.UUID
	elderA   uuid.UUID
	elderB   uuid.UUID
}

// newFixture wires the service against the in-memory store and mutex locker,
// with the clock parked at noon the day before the test Monday.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	fx := &fixture{
		cfg: config.Config{
			ReservationTTL: 10 * time.Minute,
			LockTTL:        5 * time.Second,
			SlotMinutes:    30,
			HorizonDays:    60,
		},
		clock:    &fakeClock{t: time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)},
		repo:     NewMemoryRepository(),
		notifier: &captureNotifier{},
		doctorID: uuid.New(),
		holderA:  uuid.New(),
		holderB:  uuid.New(),
		elderA:   uuid.New(),
		elderB:   uuid.New(),
	}

	fx.repo.PutSchedule(mondaySchedule(fx.doctorID))

	idp := identity.Static{
		fx.holderA: {fx.elderA},
		fx.holderB: {fx.elderB},
	}

	fx.svc = NewService(fx.repo, NewMutexLocker(), idp, fx.notifier, fx.cfg)
	fx.svc.now = fx.clock.Now

	return fx
}

func (fx *fixture) detailsFor(elderID uuid.UUID) BookingDetails {
	return BookingDetails{
		ElderID:  elderID,
		Reason:   "quarterly check-up",
		Type:     "consultation",
		Priority: "routine",
	}
}

func slotStart(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestReserveCreatesActiveReservation(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.Reserve(context.Background(), fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	assert.Equal(t, ReservationActive, res.Status)
	assert.Equal(t, slotStart(9, 0), res.Start)
	assert.Equal(t, slotStart(9, 30), res.End)
	assert.Equal(t, fx.clock.Now().Add(fx.cfg.ReservationTTL), res.ExpiresAt)

	require.Len(t, fx.notifier.byType(EventReservationCreated), 1)
}

func TestReserveUnknownDoctor(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Reserve(context.Background(), uuid.New(), slotStart(9, 0), fx.holderA)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestReserveDateBounds(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Reserve(context.Background(), fx.doctorID, slotStart(9, 0).AddDate(0, 0, -14), fx.holderA)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = fx.svc.Reserve(context.Background(), fx.doctorID, slotStart(9, 0).AddDate(0, 0, 70), fx.holderA)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestReserveOffGridStart(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Reserve(context.Background(), fx.doctorID, slotStart(9, 10), fx.holderA)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestReserveSameSlotTwice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConcurrentReservesSingleWinner(t *testing.T) {
	fx := newFixture(t)

	const callers = 32
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Reserve(context.Background(), fx.doctorID, slotStart(9, 0), uuid.New())
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrSlotUnavailable):
			losses++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent caller must win the slot")
	assert.Equal(t, callers-1, losses)
}

func TestIndependentDoctorsDoNotContend(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	otherDoctor := uuid.New()
	fx.repo.PutSchedule(mondaySchedule(otherDoctor))

	_, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	_, err = fx.svc.Reserve(ctx, otherDoctor, slotStart(9, 0), fx.holderB)
	assert.NoError(t, err, "the same wall-clock slot on another doctor is independent")
}

func TestExpiryFreesSlot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	fx.clock.Advance(fx.cfg.ReservationTTL + time.Second)

	second, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	require.NoError(t, err, "an expired claim must not block a fresh one")
	assert.Equal(t, fx.holderB, second.HolderID)

	stored, err := fx.repo.GetReservationByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationExpired, stored.Status)
}

func TestSweep(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)
	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(10, 0), fx.holderB)
	require.NoError(t, err)

	count, err := fx.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is stale yet")

	fx.clock.Advance(fx.cfg.ReservationTTL + time.Second)

	count, err = fx.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, fx.notifier.byType(EventReservationExpired), 2)

	// A second sweep finds nothing: the CAS already fired.
	count, err = fx.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelReleasesImmediately(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	require.NoError(t, fx.svc.CancelReservation(ctx, res.ID, fx.holderA))

	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	assert.NoError(t, err, "cancel must free the slot without waiting for TTL")
}

func TestCancelIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	require.NoError(t, fx.svc.CancelReservation(ctx, res.ID, fx.holderA))
	require.NoError(t, fx.svc.CancelReservation(ctx, res.ID, fx.holderA))

	assert.Len(t, fx.notifier.byType(EventReservationCancelled), 1, "replayed cancel must not re-emit")
}

func TestCancelGuards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	err := fx.svc.CancelReservation(ctx, uuid.New(), fx.holderA)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	err = fx.svc.CancelReservation(ctx, res.ID, fx.holderB)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestRemaining(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	left, err := fx.svc.Remaining(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.cfg.ReservationTTL, left)

	fx.clock.Advance(4 * time.Minute)
	left, err = fx.svc.Remaining(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Minute, left)

	fx.clock.Advance(10 * time.Minute)
	left, err = fx.svc.Remaining(ctx, res.ID)
	require.NoError(t, err)
	assert.Zero(t, left, "remaining never goes negative")
}

func TestCompleteHappyPath(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	// Holder B loses the race for the same slot.
	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	appt, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	assert.Equal(t, AppointmentConfirmed, appt.Status)
	assert.Equal(t, res.ID, appt.ReservationID)
	assert.Equal(t, fx.elderA, appt.ElderID)
	assert.Equal(t, res.Start, appt.Start)
	assert.Equal(t, res.End, appt.End)

	stored, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationCompleted, stored.Status)

	free, err := fx.svc.ListFreeSlots(ctx, fx.doctorID, monday)
	require.NoError(t, err)
	for _, s := range free {
		assert.NotEqual(t, slotStart(9, 0), s.Start, "booked slot must leave availability")
	}

	require.Len(t, fx.notifier.byType(EventBookingConfirmed), 1)
}

func TestCompleteIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	first, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	second, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a replay must return the original appointment")
	assert.Len(t, fx.notifier.byType(EventBookingConfirmed), 1, "a replay must not re-emit")
}

func TestCompletePaymentGate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), false)
	require.ErrorIs(t, err, ErrPaymentRequired)

	stored, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationActive, stored.Status, "a failed payment keeps the claim alive")

	// Retry before expiry succeeds on the same handle.
	fx.clock.Advance(2 * time.Minute)
	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	assert.NoError(t, err)
}

func TestCompleteAfterExpiry(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	fx.clock.Advance(fx.cfg.ReservationTTL + time.Second)

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.ErrorIs(t, err, ErrReservationExpired)

	stored, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationExpired, stored.Status, "late complete marks the claim expired")

	// Holder B can now claim the freed slot.
	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	assert.NoError(t, err)
}

func TestCompleteGuards(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Complete(ctx, uuid.New(), fx.holderA, fx.detailsFor(fx.elderA), true)
	assert.ErrorIs(t, err, ErrReservationNotFound)

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderB, fx.detailsFor(fx.elderA), true)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, BookingDetails{ElderID: fx.elderA}, true)
	assert.ErrorIs(t, err, ErrInvalidBooking)

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderB), true)
	assert.ErrorIs(t, err, ErrElderNotOwned)

	require.NoError(t, fx.svc.CancelReservation(ctx, res.ID, fx.holderA))
	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	assert.ErrorIs(t, err, ErrReservationExpired)
}

func TestCompleteDetectsOutOfBandBooking(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	// An appointment written behind the service's back, overlapping the
	// reserved range.
	fx.repo.appointments[uuid.New()] = &Appointment{
		ID:       uuid.New(),
		DoctorID: fx.doctorID,
		Start:    slotStart(9, 0),
		End:      slotStart(9, 30),
		Status:   AppointmentConfirmed,
	}

	_, err = fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.ErrorIs(t, err, ErrSlotConflict)

	stored, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationActive, stored.Status, "conflict leaves the reservation for one more client decision")
}

func TestCancelAppointmentFreesSlot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)
	appt, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	cancelled, err := fx.svc.CancelAppointment(ctx, appt.ID, "elder unwell")
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, cancelled.Status)

	// Cancelling again succeeds without effect.
	again, err := fx.svc.CancelAppointment(ctx, appt.ID, "elder unwell")
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, again.Status)

	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderB)
	assert.NoError(t, err, "cancelled appointment frees its range")
}

func TestRescheduleAppointment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)
	appt, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	moved, err := fx.svc.Reschedule(ctx, appt.ID, slotStart(11, 0))
	require.NoError(t, err)
	assert.Equal(t, slotStart(11, 0), moved.Start)
	assert.Equal(t, slotStart(11, 30), moved.End)

	free, err := fx.svc.ListFreeSlots(ctx, fx.doctorID, monday)
	require.NoError(t, err)
	starts := make([]time.Time, 0, len(free))
	for _, s := range free {
		starts = append(starts, s.Start)
	}
	assert.Contains(t, starts, slotStart(9, 0), "old range is free again")
	assert.NotContains(t, starts, slotStart(11, 0))
}

func TestRescheduleConflicts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)
	appt, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	// Target slot held by an active reservation.
	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(10, 0), fx.holderB)
	require.NoError(t, err)

	_, err = fx.svc.Reschedule(ctx, appt.ID, slotStart(10, 0))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// Off-grid target.
	_, err = fx.svc.Reschedule(ctx, appt.ID, slotStart(10, 10))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// Rescheduling onto its own slot is a no-op move and must not
	// self-conflict.
	same, err := fx.svc.Reschedule(ctx, appt.ID, slotStart(9, 0))
	require.NoError(t, err)
	assert.Equal(t, slotStart(9, 0), same.Start)
}

func TestMarkOutcome(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)
	appt, err := fx.svc.Complete(ctx, res.ID, fx.holderA, fx.detailsFor(fx.elderA), true)
	require.NoError(t, err)

	done, err := fx.svc.MarkOutcome(ctx, appt.ID, AppointmentCompleted)
	require.NoError(t, err)
	assert.Equal(t, AppointmentCompleted, done.Status)

	_, err = fx.svc.MarkOutcome(ctx, appt.ID, AppointmentNoShow)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.svc.MarkOutcome(ctx, appt.ID, AppointmentCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.svc.MarkOutcome(ctx, uuid.New(), AppointmentNoShow)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
