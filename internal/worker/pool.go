// Package worker – the worker pool.
//
// A bounded set of goroutines consumes queued jobs and drives the generation
// pipeline against the reading state machine and the credit ledger. The claim
// transition is the single serialization point: a job whose reading is no
// longer pending is dropped silently, which makes redelivery (and the
// periodic driver) safe by construction.
//
// Failure policy: any pipeline failure after a successful claim resolves to a
// refund + terminal fail pair. The refund lands before the FAILED transition
// and is idempotent at the ledger level, so a reading is never left
// permanently processing and a user is never charged for a reading they did
// not receive.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/repo"
	"github.com/tbourn/go-reading-backend/internal/rewards"
	"github.com/tbourn/go-reading-backend/internal/services"
)

// Job outcomes for metrics and driver accounting.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
)

// Pipeline runs the generation stages for one claimed reading.
type Pipeline interface {
	Run(ctx context.Context, reading *domain.Reading, report services.ProgressFunc) (*domain.ReadingAnswer, error)
}

// Refunder returns credits for failed readings.
type Refunder interface {
	Refund(ctx context.Context, userID, readingID, reason string) (services.RefundResult, error)
}

// Config holds pool tuning knobs.
type Config struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int
	// QueueSize bounds the in-memory job channel.
	QueueSize int
	// StallAfter is how long a processing reading may go without finishing
	// before the reaper considers it stalled.
	StallAfter time.Duration
	// MaxStalledRetries bounds redeliveries before a stalled reading is
	// abandoned (fail + refund).
	MaxStalledRetries int
	// ReapInterval is how often the reaper scans for stalled readings.
	ReapInterval time.Duration
}

// withDefaults fills zero fields with production defaults.
func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.StallAfter <= 0 {
		c.StallAfter = 5 * time.Minute
	}
	if c.MaxStalledRetries <= 0 {
		c.MaxStalledRetries = 2
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	return c
}

// Pool is the bounded consumer set plus its reaper. Construct with New, feed
// with Enqueue (or Drive for batch/cron environments), and stop with Close.
type Pool struct {
	db       *gorm.DB
	pipeline Pipeline
	ledger   Refunder
	notifier rewards.Notifier
	broker   *Broker
	cfg      Config
	log      zerolog.Logger

	jobs chan services.Job
	wg   sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	// sendMu orders Enqueue sends before Close's channel close so an enqueue
	// racing shutdown returns false instead of panicking.
	sendMu sync.RWMutex
}

// New constructs a Pool. The broker may be shared with the HTTP event-stream
// handler; a nil notifier disables achievement pings.
func New(db *gorm.DB, pipeline Pipeline, ledger Refunder, notifier rewards.Notifier, broker *Broker, cfg Config, logger zerolog.Logger) *Pool {
	cfg = cfg.withDefaults()
	if notifier == nil {
		notifier = rewards.NopNotifier{}
	}
	if broker == nil {
		broker = NewBroker()
	}
	return &Pool{
		db:       db,
		pipeline: pipeline,
		ledger:   ledger,
		notifier: notifier,
		broker:   broker,
		cfg:      cfg,
		log:      logger,
		jobs:     make(chan services.Job, cfg.QueueSize),
		closed:   make(chan struct{}),
	}
}

// Broker exposes the pool's event broker for the stream handler.
func (p *Pool) Broker() *Broker { return p.broker }

// Start launches the worker goroutines and the stalled-job reaper. It returns
// immediately; workers exit when ctx is cancelled or Close is called.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Concurrency; i++ {
			p.wg.Add(1)
			go p.runWorker(ctx, i)
		}
		p.wg.Add(1)
		go p.runReaper(ctx)
	})
}

// Close stops accepting jobs and waits for in-flight work to finish. Safe to
// call concurrently with Enqueue.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.sendMu.Lock()
		close(p.jobs)
		p.sendMu.Unlock()
	})
	p.wg.Wait()
}

// Enqueue implements services.Enqueuer. It never blocks: a full queue returns
// false and the pending row waits for the driver.
func (p *Pool) Enqueue(job services.Job) bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.jobs <- job:
		queueDepth.Set(float64(len(p.jobs)))
		return true
	default:
		return false
	}
}

func (p *Pool) runWorker(ctx context.Context, idx int) {
	defer p.wg.Done()
	lg := p.log.With().Int("worker", idx).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			queueDepth.Set(float64(len(p.jobs)))
			p.Process(ctx, job, lg)
		}
	}
}

// Process runs one job end to end and records its outcome. It is exported so
// the batch driver and the manual trigger share the exact same path as the
// long-running workers.
func (p *Pool) Process(ctx context.Context, job services.Job, lg zerolog.Logger) (outcome string) {
	start := time.Now()
	defer func() {
		jobsTotal.WithLabelValues(outcome).Inc()
		if outcome != outcomeDropped {
			jobDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// Validate the job reference: a missing reading is fatal and never retried.
	reading, err := repo.GetReading(ctx, p.db, job.ReadingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lg.Error().Str("reading_id", job.ReadingID).Msg("job references missing reading")
			p.broker.Publish(job.ReadingID, Event{Name: EventError, Data: ErrorData{
				Code: services.CodeNotFound, Message: "reading not found",
			}})
			return outcomeDropped
		}
		lg.Error().Err(err).Str("reading_id", job.ReadingID).Msg("loading reading failed")
		return outcomeDropped
	}

	// Claim: the CAS update is the only write that decides ownership. Losing
	// it means another worker (or a previous delivery) owns the reading.
	claimed, err := repo.ClaimReading(ctx, p.db, reading.ID)
	if err != nil {
		if errors.Is(err, repo.ErrAlreadyClaimed) {
			lg.Debug().Str("reading_id", reading.ID).Msg("reading already claimed, dropping job")
			return outcomeDropped
		}
		lg.Error().Err(err).Str("reading_id", reading.ID).Msg("claim failed")
		return outcomeDropped
	}

	// A missing user is fatal for the claimed job, never retried. FailReading
	// needs the claim to have happened so the terminal write matches.
	if _, err := repo.GetBalance(ctx, p.db, claimed.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lg.Error().Str("reading_id", claimed.ID).Str("user_id", claimed.UserID).Msg("job references missing user")
			p.fail(ctx, claimed, services.NewPipelineError(services.CodeNotFound, "user not found", "", services.ErrUserNotFound), lg)
			return outcomeFailed
		}
		lg.Error().Err(err).Msg("loading user balance failed")
		return outcomeDropped
	}

	report := func(step string, percent int, message string) {
		p.broker.Publish(claimed.ID, Event{Name: EventProgress, Data: ProgressData{
			Step: step, Percent: percent, Message: message,
		}})
	}

	answer, err := p.pipeline.Run(ctx, claimed, report)
	if err != nil {
		p.fail(ctx, claimed, services.AsPipelineError(err), lg)
		return outcomeFailed
	}

	rows, err := repo.CompleteReading(ctx, p.db, claimed.ID, answer)
	if err != nil {
		lg.Error().Err(err).Str("reading_id", claimed.ID).Msg("completing reading failed")
		p.fail(ctx, claimed, services.NewPipelineError(services.CodePersistence, "storing answer failed", "", err), lg)
		return outcomeFailed
	}
	if rows == 0 {
		// Terminal write raced with the reaper; nothing more to do.
		lg.Warn().Str("reading_id", claimed.ID).Msg("complete matched zero rows")
		return outcomeDropped
	}

	report(services.StepCompleted, 100, "your reading is ready")
	p.broker.Publish(claimed.ID, Event{Name: EventReading, Data: answer})
	p.broker.Publish(claimed.ID, Event{Name: EventComplete, Data: struct{}{}})

	// Fire-and-forget: achievements never affect the reading outcome.
	go p.notifier.ReadingCompleted(context.WithoutCancel(ctx), claimed.UserID, claimed.ID)

	lg.Info().
		Str("reading_id", claimed.ID).
		Str("user_id", claimed.UserID).
		Dur("took", time.Since(start)).
		Msg("reading completed")
	return outcomeCompleted
}

// fail refunds the deduction and records the terminal failure, in that order:
// if we crash after the refund the row is still processing and the reaper
// finishes the transition, whereas the reverse order could leave a FAILED row
// nothing ever revisits with the charge kept. Both writes are idempotent:
// the ledger refuses a second refund and FailReading matches only processing
// rows, so redundant calls cannot duplicate entries.
func (p *Pool) fail(ctx context.Context, reading *domain.Reading, pe *services.PipelineError, lg zerolog.Logger) {
	failuresTotal.WithLabelValues(pe.Code).Inc()

	res, err := p.ledger.Refund(ctx, reading.UserID, reading.ID, pe.Code)
	if err != nil {
		lg.Error().Err(err).Str("reading_id", reading.ID).Msg("refund failed")
	} else if res.Refunded {
		refundsTotal.Inc()
	}

	msg := services.FailureMessage(reading.Locale, pe.Code)
	rows, err := repo.FailReading(ctx, p.db, reading.ID, msg)
	if err != nil {
		lg.Error().Err(err).Str("reading_id", reading.ID).Msg("failing reading failed")
	}
	if rows == 0 && err == nil {
		lg.Warn().Str("reading_id", reading.ID).Msg("fail matched zero rows")
	}

	p.broker.Publish(reading.ID, Event{Name: EventError, Data: ErrorData{
		Code: pe.Code, Message: msg,
	}})

	lg.Warn().
		Str("reading_id", reading.ID).
		Str("code", pe.Code).
		Str("details", pe.Details).
		Err(pe.Err).
		Msg("reading failed")
}

// runReaper periodically redelivers stalled readings and abandons the ones
// whose retry budget is exhausted.
func (p *Pool) runReaper(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-ticker.C:
			p.Reap(ctx)
		}
	}
}

// Reap performs one stalled-job sweep: readings processing longer than
// StallAfter go back to pending and onto the queue (bounded by
// MaxStalledRetries); exhausted ones are failed and refunded. Exported for
// the cron endpoint and tests.
func (p *Pool) Reap(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.cfg.StallAfter)

	// Snapshot the stalled set before the reset so the rows can be requeued
	// afterwards; once pending they are indistinguishable from fresh
	// submissions. A row that finishes between the snapshot and the reset is
	// skipped by both writes, and enqueueing it is harmless since the claim
	// CAS drops non-pending jobs.
	stalled, err := repo.ListStalledReadings(ctx, p.db, cutoff, p.cfg.MaxStalledRetries)
	if err != nil {
		p.log.Error().Err(err).Msg("listing stalled readings failed")
	}

	reset, err := repo.ResetStalledReadings(ctx, p.db, cutoff, p.cfg.MaxStalledRetries)
	if err != nil {
		p.log.Error().Err(err).Msg("stalled reset failed")
	} else if reset > 0 {
		stalledResetsTotal.Add(float64(reset))
		p.log.Info().Int64("count", reset).Msg("stalled readings redelivered")
	}
	if err == nil {
		for i := range stalled {
			r := stalled[i]
			if !p.Enqueue(services.Job{ReadingID: r.ID, UserID: r.UserID, Question: r.Question}) {
				// Queue full or pool closing; the row stays pending for the
				// cron driver to pick up.
				p.log.Warn().Str("reading_id", r.ID).Msg("requeue of stalled reading rejected")
			}
		}
	}

	exhausted, err := repo.ListExhaustedReadings(ctx, p.db, cutoff, p.cfg.MaxStalledRetries)
	if err != nil {
		p.log.Error().Err(err).Msg("listing exhausted readings failed")
		return
	}
	for i := range exhausted {
		r := exhausted[i]
		p.fail(ctx, &r, services.NewPipelineError(
			services.CodeStalled,
			"reading stalled",
			fmt.Sprintf("retries=%d", r.RetryCount),
			nil,
		), p.log)
	}
}

// Drive pulls up to batchSize pending readings and processes them on the
// calling goroutine. It is the cron/manual entrypoint for environments
// without a persistent consumer; claim CAS semantics make it idempotent
// against jobs already owned by a live worker.
func (p *Pool) Drive(ctx context.Context, batchSize int) (processed, failed int, err error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	pending, err := repo.ListPendingReadings(ctx, p.db, batchSize)
	if err != nil {
		return 0, 0, err
	}
	for i := range pending {
		r := pending[i]
		outcome := p.Process(ctx, services.Job{
			ReadingID: r.ID,
			UserID:    r.UserID,
			Question:  r.Question,
		}, p.log)
		switch outcome {
		case outcomeCompleted:
			processed++
		case outcomeFailed:
			failed++
		}
	}
	return processed, failed, nil
}

// ProcessOne force-processes a specific reading. Returns
// services.ErrReadingNotPending when the reading is already claimed or
// terminal, and services.ErrReadingNotFound when it does not exist.
func (p *Pool) ProcessOne(ctx context.Context, readingID string) error {
	r, err := repo.GetReading(ctx, p.db, readingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrReadingNotFound
		}
		return err
	}
	if r.Status != domain.StatusPending {
		return services.ErrReadingNotPending
	}
	outcome := p.Process(ctx, services.Job{
		ReadingID: r.ID,
		UserID:    r.UserID,
		Question:  r.Question,
	}, p.log)
	if outcome == outcomeDropped {
		return services.ErrReadingNotPending
	}
	return nil
}
