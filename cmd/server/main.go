package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"autocheckin/internal/api"
	"autocheckin/internal/attendance"
	"autocheckin/internal/checkout"
	"autocheckin/internal/config"
	"autocheckin/internal/logging"
	"autocheckin/internal/metrics"
	"autocheckin/internal/portal"
	"autocheckin/internal/queue"
	"autocheckin/internal/scheduler"
	"autocheckin/internal/session"
	"autocheckin/internal/store"
	"autocheckin/internal/submit"
)

// Server runs the HTTP API and all background schedulers in one process.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.StateBackend, cfg.StateFile, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("state store open failed")
	}
	defer st.Close()

	co, err := checkout.New(cfg.CheckoutAPIURL, cfg.CheckoutAPIKey, cfg.CheckoutTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("checkout client init failed")
	}

	var redisClient *store.Redis
	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient.Client, "")
	} else {
		q = queue.NewInMemory(64)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	portalClient := portal.NewClient(cfg.CheckinURL)
	refreshEngine := session.NewEngine(portalClient, co, log)
	submitEngine := submit.NewEngine(portalClient, log)
	attendanceSync := attendance.NewSync(st, portalClient, co, log)

	fetchUsers := func(ctx context.Context) error {
		return scheduler.FetchUsers(ctx, co, st)
	}

	checkin := scheduler.NewCheckin(scheduler.CheckinConfig{
		InitialDelay:    cfg.InitialDelay,
		RunInitialCycle: cfg.RunInitialCycle,
		MinCycle:        cfg.MinCycle,
		MaxCycle:        cfg.MaxCycle,
		MinAccountDelay: cfg.MinAccountDelay,
		MaxAccountDelay: cfg.MaxAccountDelay,
	}, st, refreshEngine, submitEngine, scheduler.CheckoutCodes{Client: co, DeptPath: cfg.CodesPath}, co, m, log)

	attendanceTick := scheduler.NewAttendance(attendanceSync, m, log)
	monitor := scheduler.NewMonitor(st, co, fetchUsers, cfg.MonitorRetry, cfg.MonitorUpdate, log)
	dispatcher := scheduler.NewDispatcher(q, checkin, func(ctx context.Context) error {
		return attendanceSync.RunAll(ctx, true)
	}, fetchUsers, log)

	go checkin.Run(ctx)
	go attendanceTick.Run(ctx)
	go monitor.Run(ctx)
	go dispatcher.Run(ctx)

	router := api.NewRouter(api.Deps{
		Cfg:        cfg,
		Store:      st,
		Checkout:   co,
		Queue:      q,
		Redis:      redisClient,
		FetchUsers: fetchUsers,
		Gatherer:   reg,
		Log:        log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
