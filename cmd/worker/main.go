package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

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

// Worker runs the schedulers without the HTTP API. Pair it with a server
// process and a redis-backed command queue so API triggers still reach it.
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

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(store.NewRedis(cfg.RedisAddr).Client, "")
	} else {
		q = queue.NewInMemory(64)
	}

	m := metrics.New(prometheus.NewRegistry())

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

	log.Info().Msg("worker started")
	dispatcher.Run(ctx)
	log.Info().Msg("worker stopped")
}
