package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

type ExpiryConfig struct {
	Interval  time.Duration
	BatchSize int64
}

// ExpiryScanner periodically sweeps the expiry index and requests
// cancellation of timed-out holds. The leader lock keeps at most one
// instance scanning fleet-wide; the lock's TTL bounds how long a crashed
// leader can block the sweep.
type ExpiryScanner struct {
	log       *slog.Logger
	index     ExpiryIndex
	publisher CancelPublisher
	lock      LeaderLock
	cfg       ExpiryConfig
	now       func() time.Time
}

func NewExpiryScanner(log *slog.Logger, index ExpiryIndex, publisher CancelPublisher, lock LeaderLock, cfg ExpiryConfig) *ExpiryScanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ExpiryScanner{
		log:       log,
		index:     index,
		publisher: publisher,
		lock:      lock,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExpiryScanner) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry scanner stopping")
			return nil
		case <-t.C:
			if err := s.ScanOnce(ctx); err != nil {
				s.log.Error("expiry scan failed", "err", err)
			}
		}
	}
}

// ScanOnce publishes a cancel request for every due entry and removes the
// entry from the index. The reservation manager owns the authoritative
// state transition; the index only tracks "needs a cancellation sent".
// A malformed entry is logged and skipped, never aborting the batch.
func (s *ExpiryScanner) ScanOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.log.Error("leader lock release failed", "err", err)
		}
	}()

	members, err := s.index.Due(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			s.log.Error("invalid expiry index member", "member", member, "err", err)
			continue
		}
		if err := s.publisher.PublishCancel(ctx, id, "EXPIRED"); err != nil {
			// Leave the entry in place so the next sweep retries it.
			s.log.Error("expiry cancel publish failed", "reservation_id", id, "err", err)
			continue
		}
		if err := s.index.Remove(ctx, member); err != nil {
			s.log.Error("expiry index remove failed", "member", member, "err", err)
			continue
		}
		s.log.Info("expired reservation cancel requested", "reservation_id", id)
	}
	return nil
}
