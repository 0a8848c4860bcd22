package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/booking-service/internal/db"
)

// simulate drives concurrent holders at the reservation API and reports how
// contention resolved: every slot should be won exactly once, everyone else
// should see slot_unavailable.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Holders     int
	DoctorLimit int
	PostgresDSN string
}

type DataPool struct {
	Doctors []uuid.UUID
	Holders []uuid.UUID

	mu           sync.RWMutex
	reservations []reservationRef
}

type reservationRef struct {
	ID       uuid.UUID
	HolderID uuid.UUID
}

func (dp *DataPool) AddReservation(id, holderID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.reservations = append(dp.reservations, reservationRef{ID: id, HolderID: holderID})
}

func (dp *DataPool) TakeRandomReservation() (reservationRef, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.reservations) == 0 {
		return reservationRef{}, false
	}
	idx := rand.Intn(len(dp.reservations))
	ref := dp.reservations[idx]
	dp.reservations = append(dp.reservations[:idx], dp.reservations[idx+1:]...)
	return ref, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()

	pool, err := loadDataPool(cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("simulating with %d doctors, %d holders, %d workers for %s",
		len(pool.Doctors), len(pool.Holders), cfg.Workers, cfg.Duration)

	var (
		reserveMetrics  OperationMetrics
		completeMetrics OperationMetrics
		cancelMetrics   OperationMetrics
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				switch rand.Intn(10) {
				case 0, 1, 2, 3, 4, 5:
					doReserve(ctx, client, cfg, pool, &reserveMetrics)
				case 6, 7, 8:
					doComplete(ctx, client, cfg, pool, &completeMetrics)
				default:
					doCancel(ctx, client, cfg, pool, &cancelMetrics)
				}
			}
		}()
	}
	wg.Wait()

	printMetrics("reserve", &reserveMetrics)
	printMetrics("complete", &completeMetrics)
	printMetrics("cancel", &cancelMetrics)
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  envOr("SIM_API_URL", "http://localhost:8080"),
		Duration:    30 * time.Second,
		Workers:     32,
		Holders:     200,
		DoctorLimit: 20,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if v := os.Getenv("SIM_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = d
		}
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func loadDataPool(cfg SimConfig) (*DataPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	defer pgPool.Close()

	doctors, err := loadDoctors(ctx, pgPool, cfg.DoctorLimit)
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		return nil, fmt.Errorf("no doctor schedules found, run cmd/seed first")
	}

	gofakeit.Seed(time.Now().UnixNano())
	holders := make([]uuid.UUID, cfg.Holders)
	for i := range holders {
		holders[i] = uuid.New()
	}

	return &DataPool{Doctors: doctors, Holders: holders}, nil
}

func loadDoctors(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT doctor_id FROM doctor_schedules LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func doReserve(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	doctorID := pool.Doctors[rand.Intn(len(pool.Doctors))]
	holderID := pool.Holders[rand.Intn(len(pool.Holders))]
	date := time.Now().AddDate(0, 0, 1+rand.Intn(5)).Format("2006-01-02")

	slots, err := fetchAvailability(ctx, client, cfg, doctorID, date)
	if err != nil || len(slots) == 0 {
		return
	}

	// Bias toward the first few slots so workers actually collide.
	slot := slots[rand.Intn(min(3, len(slots)))]

	body, _ := json.Marshal(map[string]any{
		"doctor_id":  doctorID,
		"holder_id":  holderID,
		"slot_start": slot,
	})

	start := time.Now()
	status, resp, err := post(ctx, client, cfg.APIBaseURL+"/reservations", body)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}

	switch status {
	case http.StatusCreated:
		var out struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(resp, &out) == nil {
			pool.AddReservation(out.ID, holderID)
		}
		m.Record(latency, true, false)
	case http.StatusConflict:
		m.Record(latency, false, true)
	default:
		m.Record(latency, false, false)
	}
}

func doComplete(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	ref, ok := pool.TakeRandomReservation()
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]any{
		"holder_id": ref.HolderID,
		"elder_id":  uuid.New(),
		"reason":    gofakeit.Sentence(4),
		"type":      "consultation",
		"priority":  "routine",
		"payment":   map[string]any{"amount_cents": int64(2500), "method": "card"},
	})

	start := time.Now()
	status, _, err := post(ctx, client, fmt.Sprintf("%s/reservations/%s/complete", cfg.APIBaseURL, ref.ID), body)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	m.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func doCancel(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	ref, ok := pool.TakeRandomReservation()
	if !ok {
		return
	}

	url := fmt.Sprintf("%s/reservations/%s?holder_id=%s", cfg.APIBaseURL, ref.ID, ref.HolderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	m.Record(latency, resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict)
}

func fetchAvailability(ctx context.Context, client *http.Client, cfg SimConfig, doctorID uuid.UUID, date string) ([]time.Time, error) {
	url := fmt.Sprintf("%s/doctors/%s/availability?date=%s", cfg.APIBaseURL, doctorID, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("availability returned %d", resp.StatusCode)
	}

	var out struct {
		Slots []struct {
			Start time.Time `json:"start"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	starts := make([]time.Time, 0, len(out.Slots))
	for _, s := range out.Slots {
		starts = append(starts, s.Start)
	}
	return starts, nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func printMetrics(name string, m *OperationMetrics) {
	avg, p50, p95 := m.Stats()
	fmt.Printf("%-10s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s\n",
		name, atomic.LoadInt64(&m.Total), atomic.LoadInt64(&m.Success),
		atomic.LoadInt64(&m.Conflict), atomic.LoadInt64(&m.Error), avg, p50, p95)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
