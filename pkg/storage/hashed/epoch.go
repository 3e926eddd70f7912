package hashed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// AdvanceEpoch seals the current epoch. The seal instant is taken under the
// chain section: every post holding a sequence number below the seal
// belongs to the closing epoch and is eligible for the new snapshot, every
// later post belongs to the new epoch and waits for the next one.
func (s *Store) AdvanceEpoch(ctx context.Context) (uint64, error) {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	ctx, span := tracer.Start(ctx, "blackboard.advance_epoch",
		trace.WithAttributes(attribute.String("blackboard.store", s.opts.Name)))
	defer span.End()

	if s.closed.Load() {
		return 0, storage.ErrClosed
	}

	s.chainMu.Lock()
	s.epoch++
	s.sealSeq = s.nextSeq
	epoch, sealSeq := s.epoch, s.sealSeq
	s.chainMu.Unlock()

	now := s.opts.Clock()
	tombstoned, pruned, sweepErr := s.sweep(ctx, sealSeq, epoch, now)
	compaction, compactErr := s.compact(ctx, sealSeq)

	s.chainMu.Lock()
	foldErr := s.foldLocked(ctx)
	var metaErr error
	if s.journal != nil {
		metaErr = s.journal.SaveMeta(ctx, epoch, sealSeq, s.head, s.anchor)
	}
	s.chainMu.Unlock()

	snap := s.seal(epoch, sealSeq, now)
	size := s.entries.len()

	s.opts.Metrics.Epoch(s.opts.Name, s.flavor, epoch)
	s.opts.Metrics.Entries(s.opts.Name, s.flavor, size)
	s.opts.Metrics.Swept(s.flavor, metrics.ActionTombstoned, tombstoned)
	s.opts.Metrics.Swept(s.flavor, metrics.ActionPruned, pruned)
	s.opts.Metrics.Compacted(s.flavor, compaction.Removed)
	s.opts.Publish(ctx, eventstream.NewEpochSealed(s.opts.Source(s.flavor), eventstream.EpochMeta{
		Epoch:      epoch,
		Thumbprint: string(snap.Thumbprint),
		Entries:    snap.Len(),
		Swept:      tombstoned + pruned,
		Compacted:  compaction.Removed,
	}))
	s.opts.Logger.Info("blackboard epoch sealed",
		"store", s.opts.Name,
		"flavor", s.flavor,
		"epoch", epoch,
		"entries", snap.Len(),
		"stored", size,
		"tombstoned", tombstoned,
		"pruned", pruned,
		"compacted", compaction.Removed,
		"thumbprint", snap.Thumbprint.Short(),
	)
	span.SetAttributes(
		attribute.Int64("blackboard.epoch", int64(epoch)),
		attribute.Int("blackboard.snapshot.entries", snap.Len()),
	)

	if err := errors.Join(sweepErr, compactErr, foldErr, metaErr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "journal write failed")
		return epoch, fmt.Errorf("epoch %d sealed with journal errors: %w", epoch, err)
	}

	return epoch, nil
}

// sweep applies the expiry policy to entries of the closing epoch. Each
// mutation takes the chain section on its own so posts interleave freely.
func (s *Store) sweep(ctx context.Context, sealSeq, epoch uint64, now time.Time) (int, int, error) {
	var (
		tombstoned, pruned int
		errs               []error
	)

	defaults := s.cfg.ExpiryDefaults()
	for _, e := range s.entries.sorted() {
		if e.Seq >= sealSeq {
			break
		}
		if !e.Expired(now, epoch, defaults) {
			continue
		}

		switch s.cfg.ExpiryPolicy {
		case storage.ExpiryPrune:
			s.chainMu.Lock()
			removed, err := s.removeLocked(ctx, e)
			s.chainMu.Unlock()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if removed {
				pruned++
			}
		default:
			if e.Tombstoned {
				continue
			}
			s.chainMu.Lock()
			changed, err := s.tombstoneLocked(ctx, e.ID)
			s.chainMu.Unlock()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if changed {
				tombstoned++
			}
		}
	}

	return tombstoned, pruned, errors.Join(errs...)
}

// Compact removes entries until the store is back under MaxEntries. Removed
// entries are withdrawn from the sealed snapshot.
func (s *Store) Compact(ctx context.Context) (storage.CompactionStats, error) {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	s.chainMu.Lock()
	limit := s.nextSeq
	s.chainMu.Unlock()

	stats, err := s.compact(ctx, limit)

	s.chainMu.Lock()
	if foldErr := s.foldLocked(ctx); foldErr != nil {
		err = errors.Join(err, foldErr)
	}
	if s.journal != nil {
		if metaErr := s.journal.SaveMeta(ctx, s.epoch, s.sealSeq, s.head, s.anchor); metaErr != nil {
			err = errors.Join(err, metaErr)
		}
	}
	s.refreshLocked()
	s.chainMu.Unlock()

	s.opts.Metrics.Compacted(s.flavor, stats.Removed)
	s.opts.Metrics.Entries(s.opts.Name, s.flavor, stats.After)
	return stats, err
}

// compact removes tombstoned entries oldest first, then Working entries
// oldest first. Session and LongTerm entries are never removed here.
func (s *Store) compact(ctx context.Context, sealSeq uint64) (storage.CompactionStats, error) {
	all := s.entries.sorted()
	stats := storage.CompactionStats{Before: len(all), After: len(all)}

	over := len(all) - s.cfg.MaxEntries
	if over <= 0 {
		return stats, nil
	}

	var victims []*entry.Entry
	for _, e := range all {
		if e.Seq < sealSeq && e.Tombstoned {
			victims = append(victims, e)
		}
	}
	for _, e := range all {
		if e.Seq < sealSeq && !e.Tombstoned && e.Tier == entry.TierWorking {
			victims = append(victims, e)
		}
	}

	var errs []error
	for _, e := range victims {
		if stats.Removed >= over {
			break
		}

		s.chainMu.Lock()
		removed, err := s.removeLocked(ctx, e)
		s.chainMu.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !removed {
			continue
		}

		stats.Removed++
		if e.Tombstoned {
			stats.Tombstoned++
		} else {
			stats.Pruned++
		}
	}

	stats.After = s.entries.len()
	if stats.Removed < over {
		s.opts.Logger.Warn("blackboard still over capacity after compaction",
			"store", s.opts.Name,
			"entries", stats.After,
			"max_entries", s.cfg.MaxEntries,
		)
	}

	return stats, errors.Join(errs...)
}

// seal builds and publishes the snapshot for epoch from entries below
// sealSeq that are still visible. The snapshot is built outside the chain
// section; entries tombstoned or removed meanwhile are withdrawn as it is
// published.
func (s *Store) seal(epoch, sealSeq uint64, now time.Time) *snapshot.Snapshot {
	snap := snapshot.New(epoch, s.collect(epoch, sealSeq, now), now)

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	s.sealed.Store(snap)
	return s.refreshLocked()
}

// collect returns the entries below sealSeq visible at epoch and now.
func (s *Store) collect(epoch, sealSeq uint64, now time.Time) []*entry.Entry {
	defaults := s.cfg.ExpiryDefaults()

	var visible []*entry.Entry
	for _, e := range s.entries.sorted() {
		if e.Seq >= sealSeq {
			break
		}
		if e.Visible(now, epoch, defaults) {
			visible = append(visible, e)
		}
	}
	return visible
}
