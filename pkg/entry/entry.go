// Package entry defines the unit of data stored on the blackboard: a
// content-addressed fact, decision, or observation posted by an agent.
package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/papercomputeco/blackboard/pkg/utils"
)

// GenesisHash is the PrevHash of the first entry in a hash chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Kind tags what an entry asserts. The set is open: any non-empty string is
// a valid kind, the constants below are the ones the pipeline emits itself.
type Kind string

const (
	KindObservation Kind = "observation"
	KindDecision    Kind = "decision"
	KindFact        Kind = "fact"
	KindGoal        Kind = "goal"
	KindError       Kind = "error"
	KindHypothesis  Kind = "hypothesis"
	KindVeto        Kind = "veto"
	KindPartial     Kind = "partial"
	KindQuery       Kind = "query"
	KindReasoning   Kind = "reasoning"
)

// PolicyAudit records the authorization decision made when an entry was
// committed.
type PolicyAudit struct {
	Allowed    bool      `json:"allowed"`
	DecisionID string    `json:"decision_id,omitempty"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Entry is a single blackboard record.
//
// ID, Seq, PrevHash, CreatedEpoch and CreatedAt are assigned by the store on
// Post; values set by the caller are overwritten.
type Entry struct {
	// ID is the content hash (SHA-256, hex-encoded) of the normalized payload
	// and tier.
	ID string `json:"id"`

	Author string `json:"author"`
	Kind   Kind   `json:"kind"`
	Tier   Tier   `json:"tier"`

	// Payload is the content as posted. It is never mutated once stored.
	Payload string `json:"payload"`

	// Confidence is the author's self-assessed confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Metadata is free-form structured context (tool name, task id, ...).
	// It does not participate in the content hash.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Supersedes lists ids this entry replaces. Live superseded entries are
	// tombstoned when this entry is committed.
	Supersedes []string `json:"supersedes,omitempty"`

	// Evidence lists ids supporting this entry.
	Evidence []string `json:"evidence,omitempty"`

	// Seq is the position of the entry in insertion (chain) order.
	Seq uint64 `json:"seq"`

	// PrevHash is the id of the chain head at insertion time.
	PrevHash string `json:"prev_hash,omitempty"`

	CreatedEpoch uint64    `json:"created_epoch"`
	CreatedAt    time.Time `json:"created_at"`

	// TTL is an optional wall-clock lifetime.
	TTL time.Duration `json:"ttl,omitempty"`

	// TTLEpochs is an optional lifetime measured in epochs.
	TTLEpochs uint64 `json:"ttl_epochs,omitempty"`

	// Tombstoned marks a logically deleted entry. It only ever goes from
	// false to true.
	Tombstoned bool `json:"tombstoned"`

	PolicyAudit *PolicyAudit `json:"policy_audit,omitempty"`
}

// Option configures an Entry built with New.
type Option func(*Entry)

// WithTier sets the retention tier.
func WithTier(t Tier) Option {
	return func(e *Entry) { e.Tier = t }
}

// WithTTL sets an explicit wall-clock lifetime.
func WithTTL(d time.Duration) Option {
	return func(e *Entry) { e.TTL = d }
}

// WithTTLEpochs sets an explicit lifetime in epochs.
func WithTTLEpochs(n uint64) Option {
	return func(e *Entry) { e.TTLEpochs = n }
}

// WithConfidence sets the confidence, clamped to [0, 1].
func WithConfidence(c float64) Option {
	return func(e *Entry) { e.Confidence = min(max(c, 0), 1) }
}

// WithMetadata adds a metadata key.
func WithMetadata(key string, value any) Option {
	return func(e *Entry) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithSupersedes sets the ids this entry replaces.
func WithSupersedes(ids ...string) Option {
	return func(e *Entry) { e.Supersedes = ids }
}

// WithEvidence sets the ids supporting this entry.
func WithEvidence(ids ...string) Option {
	return func(e *Entry) { e.Evidence = ids }
}

// New creates an unstored entry. Session is the default tier and 1.0 the
// default confidence.
func New(author string, kind Kind, payload string, opts ...Option) *Entry {
	e := &Entry{
		Author:     author,
		Kind:       kind,
		Tier:       TierSession,
		Payload:    payload,
		Confidence: 1,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ComputeID returns the content hash for a payload at the given tier.
// Identical normalized payloads at the same tier always produce the same id,
// regardless of author.
func ComputeID(tier Tier, payload string, opts NormalizeOptions) string {
	data, err := json.Marshal(struct {
		Tier    Tier   `json:"tier"`
		Payload string `json:"payload"`
	}{
		Tier:    tier,
		Payload: Normalize(payload, opts),
	})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 characters of the id for display.
func (e *Entry) Short() string {
	if len(e.ID) < 8 {
		return e.ID
	}
	return e.ID[:8]
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	c := *e
	c.Metadata = maps.Clone(e.Metadata)
	c.Supersedes = slices.Clone(e.Supersedes)
	c.Evidence = slices.Clone(e.Evidence)
	if e.PolicyAudit != nil {
		audit := *e.PolicyAudit
		c.PolicyAudit = &audit
	}

	return &c
}

func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s by %s (conf=%.2f): %s", e.Short(), e.Kind, e.Author, e.Confidence, utils.Truncate(e.Payload, 80))
}
