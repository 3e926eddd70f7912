package entry

import (
	"fmt"
	"time"
)

// Limits bounds what a store accepts.
type Limits struct {
	// MaxPayloadBytes caps the raw payload size. Zero disables the check.
	MaxPayloadBytes int

	Normalize NormalizeOptions
}

// Validate checks the entry against the limits and returns an *InvalidError
// describing the first problem found.
func (e *Entry) Validate(limits Limits) error {
	if e == nil {
		return &InvalidError{Reason: "nil entry"}
	}

	if e.Author == "" {
		return &InvalidError{Reason: "author is required"}
	}

	if e.Kind == "" {
		return &InvalidError{Reason: "kind is required"}
	}

	if !e.Tier.Valid() {
		return &InvalidError{Reason: fmt.Sprintf("unknown tier %q", e.Tier)}
	}

	if Normalize(e.Payload, limits.Normalize) == "" {
		return &InvalidError{Reason: "payload is empty"}
	}

	if limits.MaxPayloadBytes > 0 && len(e.Payload) > limits.MaxPayloadBytes {
		return &InvalidError{
			Reason: fmt.Sprintf("payload is %d bytes, limit is %d", len(e.Payload), limits.MaxPayloadBytes),
		}
	}

	if e.Confidence < 0 || e.Confidence > 1 {
		return &InvalidError{Reason: fmt.Sprintf("confidence %.2f outside [0, 1]", e.Confidence)}
	}

	return nil
}

// ExpiryDefaults are the lifetimes applied to Working-tier entries that do
// not carry an explicit TTL.
type ExpiryDefaults struct {
	WorkingTTL       time.Duration
	WorkingTTLEpochs uint64
}

// Expired reports whether the entry is past its lifetime at the given time
// and epoch. Only Working-tier entries, or entries with an explicit TTL, are
// eligible; Session and LongTerm entries without a TTL never expire.
func (e *Entry) Expired(now time.Time, epoch uint64, defaults ExpiryDefaults) bool {
	ttl, ttlEpochs := e.TTL, e.TTLEpochs

	if ttl == 0 && ttlEpochs == 0 {
		if e.Tier != TierWorking {
			return false
		}
		ttl, ttlEpochs = defaults.WorkingTTL, defaults.WorkingTTLEpochs
	}

	if ttlEpochs > 0 && e.CreatedEpoch+ttlEpochs <= epoch {
		return true
	}

	if ttl > 0 && !e.CreatedAt.IsZero() && now.Sub(e.CreatedAt) >= ttl {
		return true
	}

	return false
}

// Visible reports whether the entry may be surfaced as live content.
func (e *Entry) Visible(now time.Time, epoch uint64, defaults ExpiryDefaults) bool {
	return !e.Tombstoned && !e.Expired(now, epoch, defaults)
}
