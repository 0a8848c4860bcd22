package booking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ExceptionKind string

const (
	ExceptionBlocked ExceptionKind = "blocked"
	ExceptionAdded   ExceptionKind = "added"
)

// WeeklyWindow is one recurring availability window, with wall-clock times in
// the doctor's timezone ("15:04" format).
type WeeklyWindow struct {
	Weekday time.Weekday
	Start   string
	End     string
}

// ScheduleException adjusts a single date: a blocked exception removes any
// candidate slot it overlaps, an added exception contributes an extra window.
type ScheduleException struct {
	Date  string // "2006-01-02"
	Kind  ExceptionKind
	Start string
	End   string
}

// DoctorSchedule is read-only from the booking core's perspective; it is
// mutated only through the schedule-management surface, which is elsewhere.
type DoctorSchedule struct {
	DoctorID    uuid.UUID
	Timezone    string
	SlotMinutes int
	Windows     []WeeklyWindow
	Exceptions  []ScheduleException
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *DoctorSchedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load schedule timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// SlotsOn returns every candidate slot for the calendar date of `date`
// (only year/month/day are used), ascending by start time. Candidates are the
// weekday's recurring windows plus any added exceptions, sliced into
// SlotMinutes increments, minus any slot overlapping a blocked exception.
// Availability against reservations and appointments is checked elsewhere.
func (s *DoctorSchedule) SlotsOn(date time.Time) ([]TimeRange, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	year, month, day := date.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, loc)
	dateKey := dayStart.Format("2006-01-02")

	var windows []TimeRange
	for _, w := range s.Windows {
		if w.Weekday != dayStart.Weekday() {
			continue
		}
		tr, err := clockRange(dayStart, w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("weekly window %s: %w", w.Weekday, err)
		}
		windows = append(windows, tr)
	}

	var blocked []TimeRange
	for _, ex := range s.Exceptions {
		if ex.Date != dateKey {
			continue
		}
		tr, err := clockRange(dayStart, ex.Start, ex.End)
		if err != nil {
			return nil, fmt.Errorf("exception on %s: %w", ex.Date, err)
		}
		switch ex.Kind {
		case ExceptionAdded:
			windows = append(windows, tr)
		case ExceptionBlocked:
			blocked = append(blocked, tr)
		}
	}

	step := time.Duration(s.SlotMinutes) * time.Minute
	if step <= 0 {
		return nil, fmt.Errorf("schedule for doctor %s has non-positive slot duration", s.DoctorID)
	}

	seen := make(map[time.Time]bool)
	var slots []TimeRange
	for _, w := range windows {
		for start := w.Start; !start.Add(step).After(w.End); start = start.Add(step) {
			slot := TimeRange{Start: start, End: start.Add(step)}
			if seen[slot.Start] {
				continue
			}
			if overlapsAny(slot, blocked) {
				continue
			}
			seen[slot.Start] = true
			slots = append(slots, slot)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// SlotAt returns the schedule-generated slot starting exactly at `start`, so
// callers cannot claim off-grid ranges.
func (s *DoctorSchedule) SlotAt(start time.Time) (TimeRange, bool) {
	loc, err := s.Location()
	if err != nil {
		return TimeRange{}, false
	}
	slots, err := s.SlotsOn(start.In(loc))
	if err != nil {
		return TimeRange{}, false
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return slot, true
		}
	}
	return TimeRange{}, false
}

func overlapsAny(tr TimeRange, others []TimeRange) bool {
	for _, o := range others {
		if tr.Overlaps(o) {
			return true
		}
	}
	return false
}

// clockRange turns "09:00"–"12:30" wall-clock bounds into absolute instants
// on dayStart's date. "24:00" is accepted as end-of-day.
func clockRange(dayStart time.Time, from, to string) (TimeRange, error) {
	start, err := atClock(dayStart, from)
	if err != nil {
		return TimeRange{}, err
	}
	end, err := atClock(dayStart, to)
	if err != nil {
		return TimeRange{}, err
	}
	if !start.Before(end) {
		return TimeRange{}, fmt.Errorf("window %s-%s is empty or inverted", from, to)
	}
	return TimeRange{Start: start, End: end}, nil
}

func atClock(dayStart time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid clock value %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock value %q", clock)
	}
	if hour == 24 && minute == 0 {
		return dayStart.AddDate(0, 0, 1), nil
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("clock value %q out of range", clock)
	}
	return time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), hour, minute, 0, 0, dayStart.Location()), nil
}
