package service

import (
	"context"
	"time"

	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Poller discovers queued jobs, claims them one at a time and runs them.
// A notifier, when present, only shortens the wait between passes.
type Poller struct {
	jobs     ports.JobRepository
	runner   ports.BackfillRunner
	notifier ports.JobNotifier
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

// NewPoller creates a new Poller. notifier may be nil.
func NewPoller(
	jobs ports.JobRepository,
	runner ports.BackfillRunner,
	notifier ports.JobNotifier,
	interval time.Duration,
	batch int,
	log zerolog.Logger,
) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Poller{
		jobs:     jobs,
		runner:   runner,
		notifier: notifier,
		interval: interval,
		batch:    batch,
		log:      logger.Component(log, "poller"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Dur("interval", p.interval).
		Bool("notify", p.notifier != nil).
		Msg("Job poller started")

	for {
		p.Poll(ctx)
		if err := p.wait(ctx); err != nil {
			p.log.Info().Msg("Job poller stopped")
			return nil
		}
	}
}

// Poll makes one pass over the queued jobs and returns how many it ran.
func (p *Poller) Poll(ctx context.Context) int {
	queued, err := p.jobs.ListQueued(ctx, p.batch)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error().Err(err).Msg("Failed to list queued jobs")
		}
		return 0
	}

	ran := 0
	for _, job := range queued {
		if ctx.Err() != nil {
			return ran
		}
		if p.claimAndRun(ctx, job.ID) {
			ran++
		}
	}
	return ran
}

func (p *Poller) claimAndRun(ctx context.Context, id uuid.UUID) bool {
	log := p.log.With().Str("job_id", id.String()).Logger()

	claimed, err := p.jobs.Claim(ctx, id, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("Failed to claim job")
		return false
	}
	if claimed == nil {
		log.Debug().Msg("Job already claimed elsewhere")
		return false
	}

	if err := p.runner.Run(ctx, id); err != nil {
		log.Warn().Err(err).Msg("Job finished with error")
	}
	return true
}

func (p *Poller) wait(ctx context.Context) error {
	if p.notifier != nil {
		_, err := p.notifier.Wait(ctx, p.interval)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Warn().Err(err).Msg("Job notifier unavailable, falling back to interval")
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ChannelNotifier implements ports.JobNotifier in memory, for an API process
// that runs its own poller.
type ChannelNotifier struct {
	ch chan uuid.UUID
}

// NewChannelNotifier creates a notifier holding up to size pending wake-ups.
func NewChannelNotifier(size int) *ChannelNotifier {
	if size < 1 {
		size = 1
	}
	return &ChannelNotifier{ch: make(chan uuid.UUID, size)}
}

// Notify never blocks. A full buffer already guarantees a wake-up.
func (n *ChannelNotifier) Notify(_ context.Context, jobID uuid.UUID) error {
	select {
	case n.ch <- jobID:
	default:
	}
	return nil
}

// Wait blocks until a notification arrives or timeout elapses.
func (n *ChannelNotifier) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-n.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

var _ ports.JobNotifier = (*ChannelNotifier)(nil)
