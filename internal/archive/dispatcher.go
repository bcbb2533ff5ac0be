package archive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/claude/grouplift/internal/rotation"
)

// Config tunes the Dispatcher. Zero fields take the defaults below.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	return c
}

// Dispatcher drains the spool into a Sink.
type Dispatcher struct {
	spool *Spool
	sink  Sink
	cfg   Config
	log   *slog.Logger

	wake             chan struct{}
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(spool *Spool, sink Sink, cfg Config, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		spool:            spool,
		sink:             sink,
		cfg:              cfg.withDefaults(),
		log:              log,
		wake:             make(chan struct{}, 1),
		shutdownComplete: make(chan struct{}),
	}
}

// Enqueue spools a finished session and wakes the delivery loop.
func (d *Dispatcher) Enqueue(ctx context.Context, view rotation.View) error {
	if err := d.spool.Enqueue(ctx, view); err != nil {
		return err
	}
	enqueuedCounter.Inc()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start runs the delivery loop until ctx is cancelled. It should be called
// in a goroutine. Undelivered entries stay in the spool for the next start.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("archive dispatcher", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	entries, err := d.spool.Due(ctx, d.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.deliver(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// deliver hands one entry to the sink and records the outcome. Only spool
// errors are returned; sink errors reschedule the entry.
func (d *Dispatcher) deliver(ctx context.Context, e Entry) error {
	sinkErr := d.sink.ArchiveSession(ctx, e.View)
	if sinkErr == nil {
		deliveredCounter.Inc()
		d.log.Info("session archived", "session_id", e.View.ID, "archive_key", e.Key, "attempts", e.Attempts+1)
		return d.spool.MarkArchived(ctx, e.Key)
	}

	failedCounter.Inc()
	attempts := e.Attempts + 1
	if attempts >= d.cfg.MaxAttempts {
		parkedCounter.Inc()
		d.log.Error("archive attempts exhausted, parking session",
			"session_id", e.View.ID, "archive_key", e.Key, "attempts", attempts, "error", sinkErr)
		return d.spool.Park(ctx, e.Key, attempts, sinkErr.Error())
	}

	wait := d.backoff(attempts)
	d.log.Warn("archive attempt failed",
		"session_id", e.View.ID, "archive_key", e.Key, "attempts", attempts, "retry_in", wait, "error", sinkErr)
	return d.spool.Reschedule(ctx, e.Key, attempts, d.spool.now().Add(wait), sinkErr.Error())
}

// backoff returns the wait before retry number attempts: BaseBackoff
// doubled per previous attempt, capped at MaxBackoff. Attempt counts live in
// the spool, so the schedule is replayed from a fresh policy rather than
// kept per entry in memory.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.BaseBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	wait := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		wait = b.NextBackOff()
	}
	return min(wait, d.cfg.MaxBackoff)
}
