package logstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/transcripts/pkg/blob"
	"github.com/entrhq/transcripts/pkg/logging"
)

// SweepReport summarizes one retention pass.
type SweepReport struct {
	Scanned int
	Removed []string
	Failed  int
	Objects int
}

// Sweeper deletes visitor namespaces whose newest object is older than the
// retention period. A namespace is removed as a whole; failures on one
// namespace are logged and the sweep moves on.
type Sweeper struct {
	bucket    blob.Bucket
	retention time.Duration
	limiter   *rate.Limiter
	running   sync.Mutex
	now       func() time.Time
	logger    *logging.Logger
}

// NewSweeper creates a sweeper over bucket. MaybeSweep runs at most once per
// interval; a non-positive interval lets every call through.
func NewSweeper(bucket blob.Bucket, retention, interval time.Duration, logger *logging.Logger) *Sweeper {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		bucket:    bucket,
		retention: retention,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep removes every namespace last modified before now minus the
// retention period. Running it again right away removes nothing.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if s.bucket == nil || s.retention <= 0 {
		return report, nil
	}
	namespaces, err := s.bucket.Namespaces(ctx)
	if err != nil {
		return report, fmt.Errorf("logstore: list namespaces: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	for _, ns := range namespaces {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if !ns.Updated.Before(cutoff) {
			continue
		}
		n, err := s.bucket.DeletePrefix(ctx, ns.Name+"/")
		if err != nil {
			s.logger.Warnf("failed to remove expired namespace %s: %v", ns.Name, err)
			report.Failed++
			continue
		}
		s.logger.Infof("removed expired namespace %s (%d objects, last modified %s)", ns.Name, n, ns.Updated.Format(time.RFC3339))
		report.Removed = append(report.Removed, ns.Name)
		report.Objects += n
	}
	return report, nil
}

// MaybeSweep runs Sweep if the rate limit allows it and no other sweep is in
// progress. It reports whether a sweep ran. Errors are logged.
func (s *Sweeper) MaybeSweep(ctx context.Context) bool {
	if !s.running.TryLock() {
		return false
	}
	defer s.running.Unlock()
	if !s.limiter.Allow() {
		return false
	}
	report, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warnf("retention sweep failed: %v", err)
		return true
	}
	if len(report.Removed) > 0 || report.Failed > 0 {
		s.logger.Infof("retention sweep: scanned %d, removed %d, failed %d", report.Scanned, len(report.Removed), report.Failed)
	}
	return true
}
