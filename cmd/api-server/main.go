package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/carelink/booking-service/internal/api"
	"github.com/carelink/booking-service/internal/booking"
	"github.com/carelink/booking-service/internal/config"
	"github.com/carelink/booking-service/internal/db"
	"github.com/carelink/booking-service/internal/identity"
	"github.com/carelink/booking-service/internal/payment"
	redisclient "github.com/carelink/booking-service/internal/redis"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s reservation_ttl=%s", cfg.Env, cfg.HTTPPort, cfg.ReservationTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	var idp booking.IdentityProvider = identity.AllowAll{}
	if cfg.IdentityURL != "" {
		idp = identity.NewClient(cfg.IdentityURL, 5*time.Second)
	}

	var gateway payment.Gateway = payment.AlwaysApprove{}
	if cfg.PaymentURL != "" {
		gateway = payment.NewClient(cfg.PaymentURL, 10*time.Second)
	}

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewDoctorLocker(rdb, cfg.LockTTL)
	notifier := redisclient.NewPubSubNotifier(rdb)
	svc := booking.NewService(repo, locker, idp, notifier, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Gateway: gateway,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
