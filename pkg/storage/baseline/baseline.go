// Package baseline is the compatibility flavor of the blackboard: a plain
// insertion-ordered list behind one lock. It has no hash chain and no TTL
// sweep, and serves as the reference the concurrent backend is checked
// against.
package baseline

import (
	"context"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/snapshot"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// Flavor is the name this backend reports.
const Flavor = "baseline"

// Store implements storage.Store over a slice.
type Store struct {
	cfg  storage.Config
	opts storage.Options

	// mu guards every field below.
	mu      sync.RWMutex
	entries []*entry.Entry
	nextSeq uint64
	epoch   uint64
	sealed  *snapshot.Snapshot
	closed  bool
}

var _ storage.Store = (*Store)(nil)

// New creates an empty baseline store.
func New(cfg storage.Config, opts ...storage.Option) *Store {
	return &Store{
		cfg:    cfg.Normalized(),
		opts:   storage.NewOptions(opts...),
		sealed: snapshot.Empty(),
	}
}

func (s *Store) Flavor() string { return Flavor }

// Post appends e unless identical live content is already present.
func (s *Store) Post(ctx context.Context, e *entry.Entry) (storage.PostResult, error) {
	if err := e.Validate(s.cfg.Limits()); err != nil {
		s.opts.Metrics.Post(Flavor, metrics.OutcomeInvalid)
		return storage.PostResult{}, err
	}

	e = e.Clone()
	e.ID = entry.ComputeID(e.Tier, e.Payload, s.cfg.NormalizeOptions())

	if s.live(e.ID) {
		s.opts.Metrics.Post(Flavor, metrics.OutcomeDeduplicated)
		return storage.PostResult{ID: e.ID}, nil
	}

	decision := policy.Evaluate(ctx, s.opts.Authorizer, policy.NewCommitIntent(e), s.cfg.PolicyTimeout)
	if !decision.Allowed {
		return storage.PostResult{ID: e.ID}, s.opts.Deny(ctx, Flavor, e, decision)
	}
	e.PolicyAudit = decision.Audit()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.PostResult{}, storage.ErrClosed
	}

	// A concurrent Post may have won the race since the check above.
	if i := s.index(e.ID); i >= 0 {
		if !s.entries[i].Tombstoned {
			s.mu.Unlock()
			s.opts.Metrics.Post(Flavor, metrics.OutcomeDeduplicated)
			return storage.PostResult{ID: e.ID}, nil
		}
		s.entries = slices.Delete(s.entries, i, i+1)
	}

	e.Seq = s.nextSeq
	s.nextSeq++
	e.PrevHash = ""
	e.Tombstoned = false
	e.CreatedEpoch = s.epoch
	e.CreatedAt = s.opts.Clock()
	s.entries = append(s.entries, e)

	for _, id := range e.Supersedes {
		if id == e.ID {
			continue
		}
		if i := s.index(id); i >= 0 {
			s.entries[i].Tombstoned = true
			s.sealed = s.sealed.Without(id)
		}
	}

	size := len(s.entries)
	committed := eventstream.NewEntryCommitted(s.opts.Source(Flavor), e)
	s.mu.Unlock()

	s.opts.Metrics.Post(Flavor, metrics.OutcomeCreated)
	s.opts.Metrics.Entries(s.opts.Name, Flavor, size)
	s.opts.Publish(ctx, committed)
	s.opts.Logger.Debug("blackboard entry committed",
		"store", s.opts.Name,
		"flavor", Flavor,
		"id", e.Short(),
		"author", e.Author,
		"kind", e.Kind,
	)

	return storage.PostResult{ID: e.ID, Created: true}, nil
}

func (s *Store) live(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	return i >= 0 && !s.entries[i].Tombstoned
}

// index is a linear scan. Callers hold mu.
func (s *Store) index(id string) int {
	return slices.IndexFunc(s.entries, func(e *entry.Entry) bool { return e.ID == id })
}

// Contextualize formats the live entries sharing a keyword with the prompt
// or the existing context. When nothing matches, the most recent entries
// are used instead so agents still see what the board holds.
func (s *Store) Contextualize(_ context.Context, prompt, existing string) string {
	keywords := tokenize(prompt + " " + existing)

	s.mu.RLock()
	now, epoch := s.opts.Clock(), s.epoch
	var live, matched []*entry.Entry
	for _, e := range s.entries {
		if !e.Visible(now, epoch, s.cfg.ExpiryDefaults()) {
			continue
		}
		live = append(live, e)
		if matches(e.Payload, keywords) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	if len(matched) == 0 {
		matched = live
		if len(matched) > s.cfg.ContextLimit {
			matched = matched[len(matched)-s.cfg.ContextLimit:]
		}
	} else if len(matched) > s.cfg.ContextLimit {
		matched = matched[:s.cfg.ContextLimit]
	}

	if len(matched) == 0 {
		return existing
	}

	var b strings.Builder
	b.WriteString("Blackboard Context:")
	for _, e := range matched {
		b.WriteString("\n- ")
		b.WriteString(e.Payload)
	}

	if existing != "" {
		b.WriteString("\n\n")
		b.WriteString(existing)
	}

	return b.String()
}

// tokenize splits text into lowercased words of at least three runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 3 && !slices.Contains(tokens, f) {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func matches(payload string, keywords []string) bool {
	lower := strings.ToLower(payload)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// AdvanceEpoch bumps the epoch, truncates to the most recent MaxEntries and
// seals the live entries.
func (s *Store) AdvanceEpoch(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, storage.ErrClosed
	}

	s.epoch++
	removed := len(s.truncate())
	snap := s.seal()
	epoch, size := s.epoch, len(s.entries)
	s.mu.Unlock()

	s.opts.Metrics.Epoch(s.opts.Name, Flavor, epoch)
	s.opts.Metrics.Entries(s.opts.Name, Flavor, size)
	s.opts.Metrics.Compacted(Flavor, removed)
	s.opts.Publish(ctx, eventstream.NewEpochSealed(s.opts.Source(Flavor), eventstream.EpochMeta{
		Epoch:      epoch,
		Thumbprint: string(snap.Thumbprint),
		Entries:    snap.Len(),
		Compacted:  removed,
	}))
	s.opts.Logger.Info("blackboard epoch sealed",
		"store", s.opts.Name,
		"flavor", Flavor,
		"epoch", epoch,
		"entries", snap.Len(),
		"thumbprint", snap.Thumbprint.Short(),
	)

	return epoch, nil
}

// truncate drops the oldest entries beyond MaxEntries and returns their
// ids. Callers hold mu.
func (s *Store) truncate() []string {
	over := len(s.entries) - s.cfg.MaxEntries
	if over <= 0 {
		return nil
	}

	ids := make([]string, 0, over)
	for _, e := range s.entries[:over] {
		ids = append(ids, e.ID)
	}
	s.entries = slices.Delete(s.entries, 0, over)
	return ids
}

// seal publishes a snapshot of the visible entries. Callers hold mu.
func (s *Store) seal() *snapshot.Snapshot {
	now := s.opts.Clock()
	var visible []*entry.Entry
	for _, e := range s.entries {
		if e.Visible(now, s.epoch, s.cfg.ExpiryDefaults()) {
			visible = append(visible, e)
		}
	}
	s.sealed = snapshot.New(s.epoch, visible, now)
	return s.sealed
}

// Compact removes tombstoned and expired entries, then truncates. Removed
// entries are withdrawn from the sealed snapshot.
func (s *Store) Compact(context.Context) (storage.CompactionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := storage.CompactionStats{Before: len(s.entries)}
	now := s.opts.Clock()
	var expired []string
	s.entries = slices.DeleteFunc(s.entries, func(e *entry.Entry) bool {
		switch {
		case e.Tombstoned:
			stats.Tombstoned++
			return true
		case e.Expired(now, s.epoch, s.cfg.ExpiryDefaults()):
			stats.Pruned++
			expired = append(expired, e.ID)
			return true
		}
		return false
	})
	truncated := s.truncate()
	stats.Removed = len(truncated)
	stats.After = len(s.entries)
	s.sealed = s.sealed.Without(append(expired, truncated...)...)

	s.opts.Metrics.Compacted(Flavor, stats.Before-stats.After)
	s.opts.Metrics.Entries(s.opts.Name, Flavor, stats.After)
	return stats, nil
}

func (s *Store) Tombstone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return storage.NotFoundError{ID: id}
	}
	s.entries[i].Tombstoned = true
	s.sealed = s.sealed.Without(id)
	return nil
}

// VerifyIntegrity always succeeds: there is no chain to check.
func (s *Store) VerifyIntegrity(context.Context) error {
	return nil
}

func (s *Store) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.nextSeq = 0
	s.epoch = 0
	s.sealed = snapshot.Empty()

	s.opts.Metrics.Epoch(s.opts.Name, Flavor, 0)
	s.opts.Metrics.Entries(s.opts.Name, Flavor, 0)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	if i < 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return s.entries[i].Clone(), nil
}

func (s *Store) Query(_ context.Context, q storage.Query) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return q.Apply(s.entries), nil
}

func (s *Store) Snapshot(context.Context) *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sealed
}

func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.epoch
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Store) Stats(context.Context) storage.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := storage.Stats{
		Flavor:     Flavor,
		Epoch:      s.epoch,
		Thumbprint: string(s.sealed.Thumbprint),
	}
	storage.CollectStats(&st, s.entries)
	return st
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
