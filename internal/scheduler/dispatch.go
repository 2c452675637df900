package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"autocheckin/internal/checkout"
	"autocheckin/internal/queue"
	"autocheckin/internal/submit"
)

// Dispatcher consumes force-run commands published by the API and routes
// them to the right task.
type Dispatcher struct {
	queue      queue.Queue
	checkin    *Checkin
	attendance func(ctx context.Context) error
	fetchUsers func(ctx context.Context) error
	log        zerolog.Logger
}

// NewDispatcher wires the command consumer.
func NewDispatcher(q queue.Queue, checkin *Checkin, attendance func(ctx context.Context) error, fetchUsers func(ctx context.Context) error, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{queue: q, checkin: checkin, attendance: attendance, fetchUsers: fetchUsers, log: log}
}

// Run consumes commands until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	msgs, err := d.queue.Consume(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("command queue consume failed")
		return
	}
	for msg := range msgs {
		d.log.Info().Str("command", msg.Type).Msg("command received")
		switch msg.Type {
		case queue.CmdRefreshAll, queue.CmdTryCodes:
			d.checkin.ForceRun()
		case queue.CmdAttendanceSync:
			if err := d.attendance(ctx); err != nil {
				d.log.Error().Err(err).Msg("forced attendance sync failed")
			}
		case queue.CmdFetchUsers:
			if err := d.fetchUsers(ctx); err != nil {
				d.log.Error().Err(err).Msg("forced user fetch failed")
			}
		default:
			d.log.Warn().Str("command", msg.Type).Msg("unknown command")
		}
	}
}

// CheckoutCodes adapts the CheckOut client to the CodeSource interface for a
// fixed department path.
type CheckoutCodes struct {
	Client   *checkout.Client
	DeptPath string
}

// Codes fetches and converts candidate codes.
func (c CheckoutCodes) Codes(ctx context.Context) ([]submit.Code, error) {
	fetched, err := c.Client.Codes(ctx, c.DeptPath)
	if err != nil {
		return nil, err
	}
	codes := make([]submit.Code, 0, len(fetched))
	for _, code := range fetched {
		codes = append(codes, submit.Code{Value: code.Value, Reputation: code.Reputation})
	}
	return codes, nil
}
