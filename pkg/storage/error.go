package storage

import (
	"errors"

	"github.com/papercomputeco/blackboard/pkg/policy"
)

var (
	// ErrCommitDenied is wrapped by every CommitDeniedError.
	ErrCommitDenied = errors.New("commit denied")

	// ErrIntegrity is wrapped by every IntegrityError.
	ErrIntegrity = errors.New("integrity violation")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// NotFoundError is returned when an entry doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "entry not found"
	}

	return "entry not found: " + e.ID
}

// CommitDeniedError is returned when the policy hook refuses a commit,
// including when it fails or times out.
type CommitDeniedError struct {
	Reason   string
	Decision policy.Decision
}

func (e *CommitDeniedError) Error() string {
	return "commit denied: " + e.Reason
}

func (e *CommitDeniedError) Unwrap() error {
	return ErrCommitDenied
}

// IntegrityError names the first entry at which the hash chain is broken.
type IntegrityError struct {
	ID     string
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity violation at " + e.ID + ": " + e.Reason
}

func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}
