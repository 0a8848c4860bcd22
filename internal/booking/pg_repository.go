package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation

	err := row.Scan(
		&r.ID,
		&r.DoctorID,
		&r.HolderID,
		&r.Start,
		&r.End,
		&r.Status,
		&r.CreatedAt,
		&r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}

	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ReservationID,
		&a.DoctorID,
		&a.ElderID,
		&a.HolderID,
		&a.Start,
		&a.End,
		&a.Status,
		&a.Reason,
		&a.Type,
		&a.Priority,
		&a.Notes,
		&a.RecordAccess,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const reservationColumns = `id, doctor_id, holder_id, start_time, end_time, status, created_at, expires_at`

const appointmentColumns = `id, reservation_id, doctor_id, elder_id, holder_id, start_time, end_time,
	status, reason, type, priority, notes, record_access, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorSchedule(ctx context.Context, doctorID uuid.UUID) (*DoctorSchedule, error) {
	var s DoctorSchedule

	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, timezone, slot_minutes, created_at, updated_at
		FROM doctor_schedules
		WHERE doctor_id = $1
	`, doctorID)
	err := row.Scan(&s.DoctorID, &s.Timezone, &s.SlotMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_time, end_time
		FROM schedule_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var w WeeklyWindow
		var weekday int
		if err := rows.Scan(&weekday, &w.Start, &w.End); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(weekday)
		s.Windows = append(s.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	exRows, err := r.pool.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), kind, start_time, end_time
		FROM schedule_exceptions
		WHERE doctor_id = $1
		ORDER BY date, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer exRows.Close()

	for exRows.Next() {
		var ex ScheduleException
		if err := exRows.Scan(&ex.Date, &ex.Kind, &ex.Start, &ex.End); err != nil {
			return nil, err
		}
		s.Exceptions = append(s.Exceptions, ex)
	}
	if err := exRows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reservations (id, doctor_id, holder_id, start_time, end_time, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, res.DoctorID, res.HolderID, res.Start, res.End, res.Status, res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *PgRepository) GetReservationByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reservations
		SET status = $2
		WHERE id = $1
		  AND status = $3
		RETURNING `+reservationColumns+`
	`, id, to, from)
	return scanReservation(row)
}

func (r *PgRepository) ListActiveReservations(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE doctor_id = $1
		  AND status = 'active'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]Reservation, error) {
	return r.findExpired(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'active'
		  AND expires_at <= $1
	`, now)
}

func (r *PgRepository) FindExpiredActiveForDoctor(ctx context.Context, doctorID uuid.UUID, now time.Time) ([]Reservation, error) {
	return r.findExpired(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE status = 'active'
		  AND expires_at <= $1
		  AND doctor_id = $2
	`, now, doctorID)
}

func (r *PgRepository) findExpired(ctx context.Context, query string, args ...any) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteReservation runs the reservation CAS and the appointment insert in
// one transaction, so no other caller can observe the claim released without
// the appointment in place.
func (r *PgRepository) CompleteReservation(ctx context.Context, reservationID uuid.UUID, appt *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE reservations
		SET status = 'completed'
		WHERE id = $1
		  AND status = 'active'
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("complete reservation cas: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrReservationNotFound
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, reservation_id, doctor_id, elder_id, holder_id, start_time, end_time,
			status, reason, type, priority, notes, record_access, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.ReservationID, appt.DoctorID, appt.ElderID, appt.HolderID, appt.Start, appt.End,
		appt.Status, appt.Reason, appt.Type, appt.Priority, appt.Notes, appt.RecordAccess, appt.CreatedAt, appt.UpdatedAt)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete tx: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByReservation(ctx context.Context, reservationID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE reservation_id = $1
	`, reservationID)
	return scanAppointment(row)
}

func (r *PgRepository) ListConfirmedAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'confirmed'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentTime(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns+`
	`, id, newStart, newEnd)
	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, reservation_id, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.ReservationID, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
