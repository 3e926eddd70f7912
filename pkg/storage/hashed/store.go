// Package hashed is the production blackboard backend: a content-addressed
// map sharded for concurrent access, threaded onto a tamper-evident hash
// chain, with readers served from an atomically published snapshot.
//
// Posts contend only on a narrow section that assigns the chain position
// and moves the head. Epoch advances are serialized among themselves and
// take that same section only for the instant the epoch is sealed.
package hashed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

const (
	// Flavor is reported by an in-memory store.
	Flavor = "hashed"

	// FlavorDurable is reported when the store is backed by a journal.
	FlavorDurable = "durable"
)

var tracer = otel.Tracer("github.com/papercomputeco/blackboard/pkg/storage/hashed")

// Store implements storage.Store.
type Store struct {
	cfg     storage.Config
	opts    storage.Options
	flavor  string
	journal storage.Journal

	// entries is never reassigned after New; Reset clears it in place.
	entries *shardedMap

	// advanceMu serializes AdvanceEpoch, Compact and Reset.
	advanceMu sync.Mutex

	// chainMu guards the chain position state below, every mutation of
	// entries and every store to sealed.
	chainMu sync.Mutex
	links   []link
	head    string
	anchor  string
	epoch   uint64
	nextSeq uint64
	sealSeq uint64

	sealed atomic.Pointer[snapshot.Snapshot]
	closed atomic.Bool
}

var _ storage.Store = (*Store)(nil)

// New creates a store. When a journal is supplied with storage.WithJournal
// its contents are replayed first and the store reports FlavorDurable.
func New(ctx context.Context, cfg storage.Config, opts ...storage.Option) (*Store, error) {
	o := storage.NewOptions(opts...)
	s := &Store{
		cfg:     cfg.Normalized(),
		opts:    o,
		flavor:  Flavor,
		journal: o.Journal,
		entries: newShardedMap(),
		head:    entry.GenesisHash,
		anchor:  entry.GenesisHash,
	}
	s.sealed.Store(snapshot.Empty())

	if s.journal != nil {
		s.flavor = FlavorDurable
		if err := s.restore(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) Flavor() string { return s.flavor }

// Post commits e. Identical live content is a no-op that skips the policy
// hook. The policy hook runs before the chain section, so a denied attempt
// never holds up other writers and never occupies a chain position.
func (s *Store) Post(ctx context.Context, e *entry.Entry) (storage.PostResult, error) {
	ctx, span := tracer.Start(ctx, "blackboard.post",
		trace.WithAttributes(
			attribute.String("blackboard.store", s.opts.Name),
			attribute.String("blackboard.flavor", s.flavor),
		))
	defer span.End()

	if s.closed.Load() {
		return storage.PostResult{}, storage.ErrClosed
	}

	if err := e.Validate(s.cfg.Limits()); err != nil {
		s.opts.Metrics.Post(s.flavor, metrics.OutcomeInvalid)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid entry")
		return storage.PostResult{}, err
	}

	e = e.Clone()
	e.ID = entry.ComputeID(e.Tier, e.Payload, s.cfg.NormalizeOptions())
	span.SetAttributes(
		attribute.String("blackboard.entry.id", e.ID),
		attribute.String("blackboard.entry.author", e.Author),
	)

	if cur, ok := s.entries.get(e.ID); ok && !cur.Tombstoned {
		s.opts.Metrics.Post(s.flavor, metrics.OutcomeDeduplicated)
		span.SetAttributes(attribute.Bool("blackboard.entry.created", false))
		return storage.PostResult{ID: e.ID}, nil
	}

	decision := policy.Evaluate(ctx, s.opts.Authorizer, policy.NewCommitIntent(e), s.cfg.PolicyTimeout)
	if !decision.Allowed {
		err := s.opts.Deny(ctx, s.flavor, e, decision)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit denied")
		return storage.PostResult{ID: e.ID}, err
	}
	e.PolicyAudit = decision.Audit()

	created, err := s.commit(ctx, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return storage.PostResult{}, err
	}
	span.SetAttributes(attribute.Bool("blackboard.entry.created", created))
	if !created {
		s.opts.Metrics.Post(s.flavor, metrics.OutcomeDeduplicated)
		return storage.PostResult{ID: e.ID}, nil
	}

	s.supersede(ctx, e)

	s.opts.Metrics.Post(s.flavor, metrics.OutcomeCreated)
	s.opts.Metrics.Entries(s.opts.Name, s.flavor, s.entries.len())
	s.opts.Publish(ctx, eventstream.NewEntryCommitted(s.opts.Source(s.flavor), e))
	s.opts.Logger.Debug("blackboard entry committed",
		"store", s.opts.Name,
		"flavor", s.flavor,
		"id", e.Short(),
		"seq", e.Seq,
		"epoch", e.CreatedEpoch,
		"author", e.Author,
		"kind", e.Kind,
	)

	return storage.PostResult{ID: e.ID, Created: true}, nil
}

// commit is the narrow section: it links e onto the chain head and makes it
// visible in the map. It reports false when identical live content won a
// race since the caller's dedup check.
func (s *Store) commit(ctx context.Context, e *entry.Entry) (bool, error) {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	prior, exists := s.entries.get(e.ID)
	if exists && !prior.Tombstoned {
		return false, nil
	}

	e.Seq = s.nextSeq
	e.PrevHash = s.head
	e.CreatedEpoch = s.epoch
	e.CreatedAt = s.opts.Clock()
	e.Tombstoned = false

	if s.journal != nil {
		if err := s.journal.Append(ctx, e); err != nil {
			return false, fmt.Errorf("journal append: %w", err)
		}
	}

	// Re-posting tombstoned content starts a new link. The old one stays
	// behind as a stub so the chain between them still verifies.
	if exists {
		if i, ok := s.find(prior.Seq); ok {
			s.links[i].stub = true
		}
		if s.journal != nil {
			if err := s.journal.Stub(ctx, prior.Seq); err != nil {
				s.opts.Logger.Warn("failed to journal replaced link", "seq", prior.Seq, "error", err)
			}
		}
	}

	s.entries.put(e)
	s.links = append(s.links, link{seq: e.Seq, id: e.ID, prev: e.PrevHash})
	s.head = e.ID
	s.nextSeq++

	return true, nil
}

// supersede tombstones the live entries e replaces and withdraws them from
// the sealed snapshot.
func (s *Store) supersede(ctx context.Context, e *entry.Entry) {
	if len(e.Supersedes) == 0 {
		return
	}

	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	var withdrawn []string
	for _, id := range e.Supersedes {
		if id == e.ID {
			continue
		}
		changed, err := s.tombstoneLocked(ctx, id)
		if err != nil {
			s.opts.Logger.Debug("superseded entry not tombstoned", "id", short(id), "error", err)
			continue
		}
		if changed {
			withdrawn = append(withdrawn, id)
		}
	}
	s.withdrawLocked(withdrawn...)
}

// Contextualize returns the sealed snapshot rendering followed by existing.
// It reads only the published snapshot so every caller within an epoch gets
// the same bytes.
func (s *Store) Contextualize(_ context.Context, _ string, existing string) string {
	prompt := s.sealed.Load().Prompt()

	switch {
	case prompt == "":
		return existing
	case existing == "":
		return prompt
	default:
		return prompt + "\n\n" + existing
	}
}

// Tombstone flags id and withdraws it from the sealed snapshot. The entry
// keeps its chain position.
func (s *Store) Tombstone(ctx context.Context, id string) error {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	changed, err := s.tombstoneLocked(ctx, id)
	if changed {
		s.withdrawLocked(id)
	}
	return err
}

// VerifyIntegrity walks the chain and reports the first broken link.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	_, span := tracer.Start(ctx, "blackboard.verify",
		trace.WithAttributes(attribute.String("blackboard.store", s.opts.Name)))
	defer span.End()

	if err := s.verify(); err != nil {
		s.opts.Metrics.IntegrityFailure(s.flavor)
		s.opts.Logger.Error("blackboard integrity check failed",
			"store", s.opts.Name,
			"flavor", s.flavor,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "integrity violation")
		return err
	}

	return nil
}

// Reset empties the store, its journal included.
func (s *Store) Reset(ctx context.Context) error {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	if s.journal != nil {
		if err := s.journal.Reset(ctx); err != nil {
			return fmt.Errorf("journal reset: %w", err)
		}
	}

	s.entries.clear()
	s.links = nil
	s.head = entry.GenesisHash
	s.anchor = entry.GenesisHash
	s.epoch = 0
	s.nextSeq = 0
	s.sealSeq = 0
	s.sealed.Store(snapshot.Empty())

	s.opts.Metrics.Epoch(s.opts.Name, s.flavor, 0)
	s.opts.Metrics.Entries(s.opts.Name, s.flavor, 0)
	s.opts.Logger.Info("blackboard reset", "store", s.opts.Name, "flavor", s.flavor)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*entry.Entry, error) {
	e, ok := s.entries.get(id)
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}
	return e.Clone(), nil
}

func (s *Store) Query(_ context.Context, q storage.Query) ([]*entry.Entry, error) {
	return q.Apply(s.entries.sorted()), nil
}

func (s *Store) Snapshot(context.Context) *snapshot.Snapshot {
	return s.sealed.Load()
}

func (s *Store) Epoch() uint64 {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	return s.epoch
}

// Len counts stored entries, tombstoned ones included.
func (s *Store) Len() int {
	return s.entries.len()
}

// Head returns the id of the most recent link.
func (s *Store) Head() string {
	s.chainMu.Lock()
	defer s.chainMu.Unlock()

	return s.head
}

func (s *Store) Stats(context.Context) storage.Stats {
	st := storage.Stats{
		Flavor:     s.flavor,
		Epoch:      s.Epoch(),
		Head:       s.Head(),
		Thumbprint: string(s.sealed.Load().Thumbprint),
	}
	storage.CollectStats(&st, s.entries.sorted())
	return st
}

// Close marks the store closed and closes the journal.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
