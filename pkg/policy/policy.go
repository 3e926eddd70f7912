// Package policy gates commits to the blackboard. Every new entry is
// described as a CommitIntent and handed to an Authorizer before it is
// allowed into the store; anything other than an explicit allow, including
// an authorizer that errors or runs past its deadline, is a denial.
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

const (
	// ActionCommit is the action every commit intent carries.
	ActionCommit = "blackboard commit"

	// ResourceSharedMemory is the resource every commit intent targets.
	ResourceSharedMemory = "shared memory"

	// DefaultTimeout bounds a single authorization call.
	DefaultTimeout = 2 * time.Second
)

// CommitIntent describes an attempted commit.
type CommitIntent struct {
	Action        string     `json:"action"`
	Resource      string     `json:"resource"`
	PayloadDigest string     `json:"payload_digest"`
	Author        string     `json:"author"`
	Kind          entry.Kind `json:"kind"`
	Tier          entry.Tier `json:"tier"`
}

// NewCommitIntent builds the intent for an entry whose ID is already
// computed. The entry's content hash doubles as the payload digest.
func NewCommitIntent(e *entry.Entry) CommitIntent {
	return CommitIntent{
		Action:        ActionCommit,
		Resource:      ResourceSharedMemory,
		PayloadDigest: e.ID,
		Author:        e.Author,
		Kind:          e.Kind,
		Tier:          e.Tier,
	}
}

// Decision is the outcome of an authorization.
type Decision struct {
	ID        string    `json:"id"`
	Allowed   bool      `json:"allowed"`
	DecidedBy string    `json:"decided_by,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Allow returns an allowing decision attributed to by.
func Allow(by string) Decision {
	return Decision{
		ID:        uuid.NewString(),
		Allowed:   true,
		DecidedBy: by,
		DecidedAt: time.Now().UTC(),
	}
}

// Deny returns a denying decision attributed to by.
func Deny(by, rule, reason string) Decision {
	return Decision{
		ID:        uuid.NewString(),
		DecidedBy: by,
		Rule:      rule,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
}

// Audit converts the decision into the record stored on the entry.
func (d Decision) Audit() *entry.PolicyAudit {
	return &entry.PolicyAudit{
		Allowed:    d.Allowed,
		DecisionID: d.ID,
		DecidedBy:  d.DecidedBy,
		Rule:       d.Rule,
		Reason:     d.Reason,
		DecidedAt:  d.DecidedAt,
	}
}

// Authorizer decides whether a commit may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, intent CommitIntent) (Decision, error)
}

// AuthorizerFunc adapts a plain function to Authorizer.
type AuthorizerFunc func(ctx context.Context, intent CommitIntent) (Decision, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, intent CommitIntent) (Decision, error) {
	return f(ctx, intent)
}

// AllowAll allows every commit. It is the default when no authorizer is
// configured.
type AllowAll struct{}

// Authorize always allows.
func (AllowAll) Authorize(context.Context, CommitIntent) (Decision, error) {
	return Allow("allow-all"), nil
}

// ErrTimeout is the reason recorded when an authorizer misses its deadline.
var ErrTimeout = errors.New("policy evaluation timed out")

// Evaluate runs a with the given timeout and always returns a decision.
// Errors and timeouts become denials so callers only need to look at
// Decision.Allowed. A nil authorizer allows everything.
func Evaluate(ctx context.Context, a Authorizer, intent CommitIntent, timeout time.Duration) Decision {
	if a == nil {
		return Allow("allow-all")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		decision Decision
		err      error
	}

	// Buffered so an authorizer that ignores ctx does not leak a blocked
	// goroutine once we have stopped waiting for it.
	done := make(chan result, 1)
	go func() {
		d, err := a.Authorize(ctx, intent)
		done <- result{decision: d, err: err}
	}()

	select {
	case <-ctx.Done():
		reason := ErrTimeout.Error()
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("policy evaluation cancelled: %v", ctx.Err())
		}
		return Deny("policy", "timeout", reason)
	case r := <-done:
		if r.err != nil {
			return Deny("policy", "error", fmt.Sprintf("policy evaluation failed: %v", r.err))
		}
		return fill(r.decision)
	}
}

// fill stamps an id and time on decisions returned by authorizers that left
// them blank.
func fill(d Decision) Decision {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	if !d.Allowed && d.Reason == "" {
		d.Reason = "denied"
	}
	return d
}
