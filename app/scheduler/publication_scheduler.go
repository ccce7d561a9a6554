// Package scheduler drives periodic publication of due campaigns and posts
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/utils"
	"golang.org/x/sync/errgroup"
)

// TickReport summarizes what one tick did
type TickReport struct {
	StartedAt   time.Time
	Expired     int64
	Due         int
	Published   int
	Failed      int
	Retried     int
	Skipped     int
	StoreErrors int
}

// PublicationScheduler periodically lists due records and hands each one to the publication flow
type PublicationScheduler struct {
	flow        businessflow.PublicationFlow
	clock       utils.Clock
	logger      *log.Logger
	interval    time.Duration
	concurrency int

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
	ticks    sync.WaitGroup
}

func NewPublicationScheduler(
	flow businessflow.PublicationFlow,
	cfg config.SchedulerConfig,
	clock utils.Clock,
	logger *log.Logger,
) *PublicationScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if clock == nil {
		clock = utils.RealClock{}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &PublicationScheduler{
		flow:        flow,
		clock:       clock,
		logger:      logger,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
	}
}

// Start launches the scheduler loop in a background goroutine and returns a stop function.
// One tick fires immediately, then one per interval. Ticks never wait for each other.
func (s *PublicationScheduler) Start(parent context.Context) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return s.Stop
	}

	ctx, cancel := context.WithCancel(parent)
	ticker := s.clock.NewTicker(s.interval)
	done := make(chan struct{})
	s.cancel = cancel
	s.loopDone = done

	go func() {
		defer close(done)
		defer ticker.Stop()

		s.launchTick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				s.launchTick(ctx)
			}
		}
	}()

	s.logger.Printf("scheduler: started with interval=%s concurrency=%d", s.interval, s.concurrency)
	return s.Stop
}

// Stop ends the loop and waits for in-flight ticks to finish their records
func (s *PublicationScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.ticks.Wait()
	s.logger.Printf("scheduler: stopped")
}

func (s *PublicationScheduler) launchTick(ctx context.Context) {
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.RunOnce(ctx)
	}()
}

// RunOnce expires stale claims, lists due records and publishes them with bounded concurrency.
// Records already handed to the flow run to completion even if ctx is cancelled meanwhile.
func (s *PublicationScheduler) RunOnce(ctx context.Context) TickReport {
	report := TickReport{StartedAt: s.clock.Now()}
	if ctx.Err() != nil {
		return report
	}

	schedulerTicksTotal.Inc()
	start := time.Now()
	defer func() {
		schedulerTickDuration.Observe(time.Since(start).Seconds())
	}()

	work := context.WithoutCancel(ctx)

	expired, err := s.flow.ExpireStaleClaims(work, report.StartedAt)
	if err != nil {
		report.StoreErrors++
		s.logger.Printf("scheduler: CRITICAL expire stale claims failed: %v", err)
	}
	if expired > 0 {
		report.Expired = expired
		staleClaimsExpiredTotal.Add(float64(expired))
		s.logger.Printf("scheduler: expired %d stale claims", expired)
	}

	records, err := s.flow.DueRecords(work, report.StartedAt)
	if err != nil {
		report.StoreErrors++
		s.logger.Printf("scheduler: CRITICAL list due records failed: %v", err)
		return report
	}
	report.Due = len(records)
	schedulerDueRecords.Set(float64(len(records)))
	if len(records) == 0 {
		return report
	}
	s.logger.Printf("scheduler: %d records due", len(records))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, rec := range records {
		r := rec
		g.Go(func() error {
			out, err := s.flow.Publish(work, r)

			mu.Lock()
			defer mu.Unlock()
			s.record(&report, r, out, err)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Printf("scheduler: tick done due=%d published=%d failed=%d retried=%d skipped=%d store_errors=%d",
		report.Due, report.Published, report.Failed, report.Retried, report.Skipped, report.StoreErrors)
	return report
}

func (s *PublicationScheduler) record(report *TickReport, rec businessflow.DueRecord, out *businessflow.PublicationOutcome, err error) {
	kind := string(rec.Kind)

	if err != nil {
		report.StoreErrors++
		category := businessflow.CategoryOf(err)
		publicationOutcomesTotal.WithLabelValues(kind, "error", string(category)).Inc()
		if businessflow.IsStoreUnavailable(err) {
			s.logger.Printf("scheduler: CRITICAL %s id=%d store unavailable: %v", kind, rec.ID, err)
			return
		}
		s.logger.Printf("scheduler: %s id=%d publish failed category=%s: %v", kind, rec.ID, category, err)
		return
	}

	publicationOutcomesTotal.WithLabelValues(kind, string(out.Outcome), string(out.Category)).Inc()
	switch out.Outcome {
	case businessflow.OutcomePublished:
		report.Published++
		s.logger.Printf("scheduler: %s id=%d published external_id=%s live=%t", kind, rec.ID, out.ExternalID, out.Published)
		if out.NextOccurrence != nil {
			s.logger.Printf("scheduler: %s id=%d next occurrence at %s", kind, rec.ID, out.NextOccurrence.Format(time.RFC3339))
		}
	case businessflow.OutcomeFailed:
		report.Failed++
		s.logger.Printf("scheduler: %s id=%d failed category=%s: %v", kind, rec.ID, out.Category, out.Err)
	case businessflow.OutcomeRetry:
		report.Retried++
		next := ""
		if out.NextAttemptAt != nil {
			next = out.NextAttemptAt.Format(time.RFC3339)
		}
		s.logger.Printf("scheduler: %s id=%d will retry at %s category=%s: %v", kind, rec.ID, next, out.Category, out.Err)
	case businessflow.OutcomeSkipped:
		report.Skipped++
	}
}
