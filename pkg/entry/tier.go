package entry

import (
	"fmt"
	"strings"
)

// Tier is the retention class of an entry.
type Tier string

const (
	// TierWorking entries are ephemeral and subject to TTL expiry.
	TierWorking Tier = "working"

	// TierSession entries live for one orchestration run.
	TierSession Tier = "session"

	// TierLongTerm entries survive runs and are exempt from compaction.
	TierLongTerm Tier = "long_term"
)

// ParseTier maps a user-supplied tier name onto a Tier. An empty string
// yields TierSession.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return TierSession, nil
	case "working", "stm", "short_term":
		return TierWorking, nil
	case "session":
		return TierSession, nil
	case "long_term", "longterm", "ltm":
		return TierLongTerm, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierWorking, TierSession, TierLongTerm:
		return true
	}
	return false
}

// Priority orders tiers in snapshots: lower values come first.
func (t Tier) Priority() int {
	switch t {
	case TierLongTerm:
		return 0
	case TierSession:
		return 1
	default:
		return 2
	}
}

// Label is the human readable section heading for the tier.
func (t Tier) Label() string {
	switch t {
	case TierLongTerm:
		return "Long-term"
	case TierSession:
		return "Session"
	case TierWorking:
		return "Working"
	default:
		return string(t)
	}
}
