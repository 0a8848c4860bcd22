package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-10 is a Monday.
var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func mondaySchedule(doctorID uuid.UUID) *DoctorSchedule {
	return &DoctorSchedule{
		DoctorID:    doctorID,
		Timezone:    "UTC",
		SlotMinutes: 30,
		Windows: []WeeklyWindow{
			{Weekday: time.Monday, Start: "09:00", End: "12:00"},
		},
	}
}

func TestSlotsOnWeeklyWindow(t *testing.T) {
	sched := mondaySchedule(uuid.New())

	slots, err := sched.SlotsOn(monday)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC), slots[0].End)
	assert.Equal(t, time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC), slots[5].Start)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Start.Before(slots[i].Start), "slots must be ascending")
	}
}

func TestSlotsOnOffDay(t *testing.T) {
	sched := mondaySchedule(uuid.New())

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := sched.SlotsOn(tuesday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsOnBlockedException(t *testing.T) {
	sched := mondaySchedule(uuid.New())
	sched.Exceptions = []ScheduleException{
		{Date: "2025-03-10", Kind: ExceptionBlocked, Start: "09:00", End: "10:00"},
	}

	slots, err := sched.SlotsOn(monday)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), slots[0].Start)
}

func TestSlotsOnBlockedExceptionPartialOverlap(t *testing.T) {
	sched := mondaySchedule(uuid.New())
	// Blocks 09:45-10:15, which overlaps both the 09:30 and 10:00 slots.
	sched.Exceptions = []ScheduleException{
		{Date: "2025-03-10", Kind: ExceptionBlocked, Start: "09:45", End: "10:15"},
	}

	slots, err := sched.SlotsOn(monday)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC), slots[1].Start)
}

func TestSlotsOnWholeDayBlock(t *testing.T) {
	sched := mondaySchedule(uuid.New())
	sched.Exceptions = []ScheduleException{
		{Date: "2025-03-10", Kind: ExceptionBlocked, Start: "00:00", End: "24:00"},
	}

	slots, err := sched.SlotsOn(monday)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotsOnAddedException(t *testing.T) {
	sched := mondaySchedule(uuid.New())
	saturday := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	sched.Exceptions = []ScheduleException{
		{Date: "2025-03-15", Kind: ExceptionAdded, Start: "10:00", End: "11:00"},
	}

	slots, err := sched.SlotsOn(saturday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC), slots[1].Start)
}

func TestSlotsOnRespectsTimezone(t *testing.T) {
	sched := mondaySchedule(uuid.New())
	sched.Timezone = "America/New_York"

	slots, err := sched.SlotsOn(monday)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), slots[0].Start)
}

func TestSlotAt(t *testing.T) {
	sched := mondaySchedule(uuid.New())

	slot, ok := sched.SlotAt(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), slot.End)

	_, ok = sched.SlotAt(time.Date(2025, 3, 10, 9, 45, 0, 0, time.UTC))
	assert.False(t, ok, "off-grid starts must not resolve to a slot")

	_, ok = sched.SlotAt(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok, "window end is not a slot start")
}

func TestListFreeSlotsUnknownDoctor(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.ListFreeSlots(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestListFreeSlotsDateValidation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.ListFreeSlots(context.Background(), fx.doctorID, monday.AddDate(0, 0, -14))
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = fx.svc.ListFreeSlots(context.Background(), fx.doctorID, monday.AddDate(0, 0, 90))
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestListFreeSlotsEmptyDayIsNotAnError(t *testing.T) {
	fx := newFixture(t)

	slots, err := fx.svc.ListFreeSlots(context.Background(), fx.doctorID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestListFreeSlotsFiltersReservedAndBooked(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	all, err := fx.svc.ListFreeSlots(ctx, fx.doctorID, monday)
	require.NoError(t, err)
	require.Len(t, all, 6)

	_, err = fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(10, 0), fx.holderB)
	require.NoError(t, err)
	_, err = fx.svc.Complete(ctx, res.ID, fx.holderB, fx.detailsFor(fx.elderB), true)
	require.NoError(t, err)

	free, err := fx.svc.ListFreeSlots(ctx, fx.doctorID, monday)
	require.NoError(t, err)
	require.Len(t, free, 4)
	for _, s := range free {
		assert.NotEqual(t, slotStart(9, 0), s.Start)
		assert.NotEqual(t, slotStart(10, 0), s.Start)
	}
}

func TestListFreeSlotsTodayFiltersElapsed(t *testing.T) {
	fx := newFixture(t)

	// Clock mid-morning on the requested day: earlier slots are gone.
	fx.clock.Set(time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC))

	free, err := fx.svc.ListFreeSlots(context.Background(), fx.doctorID, monday)
	require.NoError(t, err)
	require.Len(t, free, 3)
	assert.Equal(t, slotStart(10, 30), free[0].Start)
}

func TestListFreeSlotsExpiresStaleReservations(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	res, err := fx.svc.Reserve(ctx, fx.doctorID, slotStart(9, 0), fx.holderA)
	require.NoError(t, err)

	fx.clock.Advance(fx.cfg.ReservationTTL + time.Second)

	free, err := fx.svc.ListFreeSlots(ctx, fx.doctorID, monday)
	require.NoError(t, err)
	assert.Len(t, free, 6, "expired reservation must not hide its slot")

	stored, err := fx.repo.GetReservationByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, ReservationExpired, stored.Status)
}
