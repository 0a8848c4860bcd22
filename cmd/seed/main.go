package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/booking-service/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctorSchedules(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctor schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctorSchedules(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctor schedules", count)

	timezones := []string{
		"Europe/Berlin",
		"Europe/London",
		"America/New_York",
		"Asia/Tehran",
		"UTC",
	}

	morning := [][2]string{{"08:00", "12:00"}, {"09:00", "12:30"}, {"08:30", "11:30"}}
	afternoon := [][2]string{{"13:00", "17:00"}, {"14:00", "18:00"}, {"13:30", "16:30"}}
	slotMinutes := []int{20, 30, 30, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		doctorID := uuid.New()
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]
		minutes := slotMinutes[gofakeit.Number(0, len(slotMinutes)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctor_schedules (doctor_id, timezone, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, doctorID, tz, minutes)
		if err != nil {
			return err
		}

		// Mon-Fri morning window, some doctors also work afternoons.
		am := morning[gofakeit.Number(0, len(morning)-1)]
		pm := afternoon[gofakeit.Number(0, len(afternoon)-1)]
		worksAfternoons := gofakeit.Bool()

		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_windows (doctor_id, weekday, start_time, end_time)
				VALUES ($1, $2, $3, $4)
			`, doctorID, weekday, am[0], am[1])
			if err != nil {
				return err
			}
			if worksAfternoons {
				_, err := tx.Exec(ctx, `
					INSERT INTO schedule_windows (doctor_id, weekday, start_time, end_time)
					VALUES ($1, $2, $3, $4)
				`, doctorID, weekday, pm[0], pm[1])
				if err != nil {
					return err
				}
			}
		}

		// A blocked day off in the next two weeks for roughly a third of them.
		if gofakeit.Number(0, 2) == 0 {
			dayOff := time.Now().AddDate(0, 0, gofakeit.Number(1, 14)).Format("2006-01-02")
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_exceptions (doctor_id, date, kind, start_time, end_time)
				VALUES ($1, $2, 'blocked', '00:00', '24:00')
			`, doctorID, dayOff)
			if err != nil {
				return err
			}
		}

		// And an occasional extra Saturday window.
		if gofakeit.Number(0, 3) == 0 {
			saturday := nextWeekday(time.Now(), time.Saturday).Format("2006-01-02")
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_exceptions (doctor_id, date, kind, start_time, end_time)
				VALUES ($1, $2, 'added', '10:00', '13:00')
			`, doctorID, saturday)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctor schedules seeded")
	return nil
}

func nextWeekday(from time.Time, day time.Weekday) time.Time {
	d := from.AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
