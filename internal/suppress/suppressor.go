// Package suppress implements the k-anonymity safety net: a scheduled sweep
// that withholds any closed-day metric whose estimated contributor population
// is too small for the noise guarantee to mean much, and expires rows past
// the retention window.
package suppress

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"signals/internal/domain"
	"signals/internal/estimate"
)

// lookbackDays bounds how many closed days each sweep re-examines. Sweeps are
// idempotent, so revisiting already-suppressed days costs nothing and covers
// runs missed while the job was down.
const lookbackDays = 3

// Sweeper runs the suppression and retention sweep against the counter store.
type Sweeper struct {
	counters  domain.CounterRepository
	logger    zerolog.Logger
	floor     int
	retention time.Duration
	interval  time.Duration
}

func NewSweeper(counters domain.CounterRepository, logger zerolog.Logger, floor, retentionDays int, interval time.Duration) *Sweeper {
	return &Sweeper{
		counters:  counters,
		logger:    logger,
		floor:     floor,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
	}
}

// Run sweeps immediately, then on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.SweepOnce(ctx, time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("suppressor: sweep failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx, time.Now()); err != nil {
				s.logger.Error().Err(err).Msg("suppressor: sweep failed")
			}
		}
	}
}

// SweepOnce examines the recent closed days, suppresses every metric whose
// contributor estimate is below the floor, and purges rows past retention.
// It only flags and deletes, never aggregates, so an interrupted sweep can
// simply run again.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) error {
	today := domain.Day(now)

	for i := 1; i <= lookbackDays; i++ {
		day := today.AddDate(0, 0, -i)
		if err := s.sweepDay(ctx, day); err != nil {
			return fmt.Errorf("sweep %s: %w", day.Format("2006-01-02"), err)
		}
	}

	cutoff := today.Add(-s.retention)
	purged, err := s.counters.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge before %s: %w", cutoff.Format("2006-01-02"), err)
	}
	if purged > 0 {
		s.logger.Info().Int64("rows", purged).Msg("suppressor: retention purge")
	}
	return nil
}

func (s *Sweeper) sweepDay(ctx context.Context, day time.Time) error {
	records, err := s.counters.Contributors(ctx, day)
	if err != nil {
		return err
	}

	var below []string
	for _, rec := range records {
		contributors, err := estimate.Load(rec.Filter, rec.HoursSeen)
		if err != nil {
			// Unreadable filter: population unknown, treat as below floor.
			s.logger.Warn().Err(err).Str("metric", rec.Name).Msg("suppressor: filter unreadable, suppressing")
			below = append(below, rec.Name)
			continue
		}
		if contributors.Estimate() < s.floor {
			below = append(below, rec.Name)
		}
	}

	if len(below) == 0 {
		return nil
	}
	if err := s.counters.Suppress(ctx, day, below); err != nil {
		return err
	}
	s.logger.Info().
		Str("day", day.Format("2006-01-02")).
		Strs("metrics", below).
		Msg("suppressor: withheld below-floor metrics")
	return nil
}
