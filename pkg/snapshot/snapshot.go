// Package snapshot builds the immutable, deterministically ordered view of
// the blackboard that agents inject into their prompts.
//
// Agents reading the same sealed snapshot render byte-identical prompt
// prefixes, which lets provider-side prompt caching skip recomputation for
// everything up to the end of the snapshot block.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

// ZeroThumbprint is the thumbprint of an empty snapshot.
const ZeroThumbprint Thumbprint = "0000000000000000000000000000000000000000000000000000000000000000"

// Thumbprint is the SHA-256 (hex) of a snapshot's canonical serialization.
// Two requests carrying the same thumbprint share an identical prompt prefix.
type Thumbprint string

// Short returns a 16 character prefix for logs.
func (t Thumbprint) Short() string {
	if len(t) < 16 {
		return string(t)
	}
	return string(t[:16])
}

// Snapshot is the sealed view of the store at an epoch.
type Snapshot struct {
	// Epoch is the epoch the snapshot was sealed at.
	Epoch uint64 `json:"epoch"`

	// Entries are deep copies in canonical order.
	Entries []*entry.Entry `json:"entries"`

	Thumbprint Thumbprint `json:"thumbprint"`

	SealedAt time.Time `json:"sealed_at"`

	rendered string
}

// New sorts the given entries into canonical order and seals them. The
// entries are copied; callers keep ownership of the originals.
func New(epoch uint64, entries []*entry.Entry, sealedAt time.Time) *Snapshot {
	copies := make([]*entry.Entry, 0, len(entries))
	for _, e := range entries {
		copies = append(copies, e.Clone())
	}

	Sort(copies)

	rendered := Render(copies)

	return &Snapshot{
		Epoch:      epoch,
		Entries:    copies,
		Thumbprint: Fingerprint(rendered),
		SealedAt:   sealedAt,
		rendered:   rendered,
	}
}

// Empty returns the snapshot of an empty store at epoch 0.
func Empty() *Snapshot {
	return New(0, nil, time.Time{})
}

// Sort orders entries by tier priority (long-term, session, working) and
// then by insertion sequence.
func Sort(entries []*entry.Entry) {
	slices.SortStableFunc(entries, func(a, b *entry.Entry) int {
		if pa, pb := a.Tier.Priority(), b.Tier.Priority(); pa != pb {
			return pa - pb
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Render produces the canonical serialization of entries that are already in
// canonical order. Only stable fields are written (no epoch, no timestamps)
// so that unchanged content renders identically across epochs.
//
//	[Blackboard: 2 entries]
//
//	## Long-term
//	- [a1b2c3d4] decision by agent-1: market entry approved
//
//	## Working
//	- [e5f6a7b8] observation by tool-serper: search results indicate ...
func Render(entries []*entry.Entry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Blackboard: %d entries]\n", len(entries))

	var section entry.Tier
	for _, e := range entries {
		if e.Tier != section {
			section = e.Tier
			fmt.Fprintf(&b, "\n## %s\n", section.Label())
		}
		fmt.Fprintf(&b, "- [%s] %s by %s: %s\n", e.Short(), inline(string(e.Kind)), inline(e.Author), inline(e.Payload))
	}

	return b.String()
}

// continuation indents every line after the first so embedded text can
// never start a heading or entry line of its own.
var continuation = strings.NewReplacer("\r\n", "\n  ", "\r", "\n  ", "\n", "\n  ")

func inline(s string) string {
	return continuation.Replace(s)
}

// Fingerprint hashes a canonical serialization.
func Fingerprint(rendered string) Thumbprint {
	if rendered == "" {
		return ZeroThumbprint
	}
	h := sha256.Sum256([]byte(rendered))
	return Thumbprint(hex.EncodeToString(h[:]))
}

// Prompt returns the canonical serialization, ready to be placed as a
// cacheable prompt prefix.
func (s *Snapshot) Prompt() string {
	return s.rendered
}

// Without returns a snapshot at the same epoch and seal time that leaves
// out the given ids. It returns s itself when none of them are present.
func (s *Snapshot) Without(ids ...string) *Snapshot {
	if len(ids) == 0 {
		return s
	}

	kept := make([]*entry.Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if !slices.Contains(ids, e.ID) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(s.Entries) {
		return s
	}

	return New(s.Epoch, kept, s.SealedAt)
}

// Len is the number of entries in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// IsEmpty reports whether the snapshot holds no entries.
func (s *Snapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// Contains reports whether an entry with the given id is in the snapshot.
func (s *Snapshot) Contains(id string) bool {
	return slices.ContainsFunc(s.Entries, func(e *entry.Entry) bool {
		return e.ID == id
	})
}
