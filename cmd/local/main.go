package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"autocheckin/internal/config"
	"autocheckin/internal/localuser"
	"autocheckin/internal/logging"
	"autocheckin/internal/portal"
	"autocheckin/internal/session"
	"autocheckin/internal/submit"
)

// Local is the single-account variant: no CheckOut API, no HTTP surface.
// Codes come from the record's own code URL and all state lives in one file.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := localuser.Open(cfg.LocalUserFile, cfg.LocalMaxLogs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("local user file open failed")
	}

	portalClient := portal.NewClient(cfg.CheckinURL)
	refreshEngine := session.NewEngine(portalClient, nil, log)
	submitEngine := submit.NewEngine(portalClient, log)
	runner := localuser.NewRunner(st, refreshEngine, submitEngine, log)

	fetcher := localuser.NewFetcher(st, cfg.LocalFetchInterval, log)
	go fetcher.Run(ctx)

	if err := runner.RefreshSession(ctx); err != nil {
		log.Warn().Err(err).Msg("initial session refresh failed")
	}

	ticker := time.NewTicker(cfg.LocalFetchInterval)
	defer ticker.Stop()

	log.Info().Msg("local runner started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("local runner stopped")
			return
		case <-ticker.C:
			if _, err := runner.TryCodes(ctx); err != nil {
				log.Warn().Err(err).Msg("submission run failed")
			}
		}
	}
}
