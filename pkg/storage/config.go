package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/policy"
)

// ExpiryPolicy selects what the epoch sweep does with expired entries.
type ExpiryPolicy string

const (
	// ExpiryTombstone marks expired entries tombstoned and keeps them.
	ExpiryTombstone ExpiryPolicy = "tombstone"

	// ExpiryPrune removes expired entries.
	ExpiryPrune ExpiryPolicy = "prune"
)

// ParseExpiryPolicy maps a name onto an ExpiryPolicy. Empty means tombstone.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch ExpiryPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExpiryTombstone:
		return ExpiryTombstone, nil
	case ExpiryPrune:
		return ExpiryPrune, nil
	default:
		return "", fmt.Errorf("unknown expiry policy %q", s)
	}
}

const (
	DefaultMaxEntries      = 10_000
	DefaultWorkingTTL      = time.Hour
	DefaultMaxPayloadBytes = 64 * 1024
	DefaultContextLimit    = 10
)

// Config holds the behavioural knobs shared by every backend.
type Config struct {
	ExpiryPolicy ExpiryPolicy

	// MaxEntries triggers compaction when exceeded.
	MaxEntries int

	// WorkingTTL and WorkingTTLEpochs are the lifetimes of Working-tier
	// entries without an explicit TTL. Zero disables the respective limit.
	WorkingTTL       time.Duration
	WorkingTTLEpochs uint64

	MaxPayloadBytes int

	// CaseInsensitive folds case before hashing, so payloads differing only
	// in case deduplicate.
	CaseInsensitive bool

	// PolicyTimeout bounds each authorization call.
	PolicyTimeout time.Duration

	// ContextLimit caps how many entries keyword matching returns.
	ContextLimit int
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		ExpiryPolicy:    ExpiryTombstone,
		MaxEntries:      DefaultMaxEntries,
		WorkingTTL:      DefaultWorkingTTL,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		PolicyTimeout:   policy.DefaultTimeout,
		ContextLimit:    DefaultContextLimit,
	}
}

// Normalized fills non-positive limits with their defaults. The Working
// TTLs are left alone since zero disables them.
func (c Config) Normalized() Config {
	if c.ExpiryPolicy == "" {
		c.ExpiryPolicy = ExpiryTombstone
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.PolicyTimeout <= 0 {
		c.PolicyTimeout = policy.DefaultTimeout
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = DefaultContextLimit
	}
	return c
}

// Limits returns the validation limits for entries.
func (c Config) Limits() entry.Limits {
	return entry.Limits{
		MaxPayloadBytes: c.MaxPayloadBytes,
		Normalize:       c.NormalizeOptions(),
	}
}

// NormalizeOptions returns the payload normalization options.
func (c Config) NormalizeOptions() entry.NormalizeOptions {
	return entry.NormalizeOptions{CaseInsensitive: c.CaseInsensitive}
}

// ExpiryDefaults returns the Working-tier lifetimes.
func (c Config) ExpiryDefaults() entry.ExpiryDefaults {
	return entry.ExpiryDefaults{
		WorkingTTL:       c.WorkingTTL,
		WorkingTTLEpochs: c.WorkingTTLEpochs,
	}
}
