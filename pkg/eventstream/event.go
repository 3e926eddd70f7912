package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/blackboard/pkg/entry"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeEntryCommitted is emitted after a new entry joins the store.
	EventTypeEntryCommitted = "blackboard.entry.committed"

	// EventTypeEntryDenied is emitted when the policy hook refuses a commit.
	EventTypeEntryDenied = "blackboard.entry.denied"

	// EventTypeEpochSealed is emitted after an epoch advance seals a snapshot.
	EventTypeEpochSealed = "blackboard.epoch.sealed"
)

// Event is a transport-neutral notification about a store change.
// Exactly one of Entry, Epoch and Denial is set, matching EventType.
type Event struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Entry         *EntryMeta  `json:"entry,omitempty"`
	Epoch         *EpochMeta  `json:"epoch,omitempty"`
	Denial        *DenialMeta `json:"denial,omitempty"`
}

// EventSource identifies the store that emitted the event.
type EventSource struct {
	Store  string `json:"store"`
	Flavor string `json:"flavor"`
}

// EntryMeta summarizes a committed entry. The payload is included so
// subscribers can mirror the board without a read-back.
type EntryMeta struct {
	ID           string     `json:"id"`
	Author       string     `json:"author"`
	Kind         entry.Kind `json:"kind"`
	Tier         entry.Tier `json:"tier"`
	Payload      string     `json:"payload"`
	Seq          uint64     `json:"seq"`
	PrevHash     string     `json:"prev_hash,omitempty"`
	CreatedEpoch uint64     `json:"created_epoch"`
	Supersedes   []string   `json:"supersedes,omitempty"`
}

// EpochMeta describes a sealed epoch.
type EpochMeta struct {
	Epoch      uint64 `json:"epoch"`
	Thumbprint string `json:"thumbprint"`
	Entries    int    `json:"entries"`
	Swept      int    `json:"swept"`
	Compacted  int    `json:"compacted"`
}

// DenialMeta describes a refused commit.
type DenialMeta struct {
	PayloadDigest string `json:"payload_digest"`
	Author        string `json:"author"`
	Kind          string `json:"kind"`
	DecisionID    string `json:"decision_id"`
	Reason        string `json:"reason"`
}

func newEvent(eventType string, source EventSource) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
	}
}

// NewEntryCommitted builds a committed event for e.
func NewEntryCommitted(source EventSource, e *entry.Entry) *Event {
	ev := newEvent(EventTypeEntryCommitted, source)
	ev.Entry = &EntryMeta{
		ID:           e.ID,
		Author:       e.Author,
		Kind:         e.Kind,
		Tier:         e.Tier,
		Payload:      e.Payload,
		Seq:          e.Seq,
		PrevHash:     e.PrevHash,
		CreatedEpoch: e.CreatedEpoch,
		Supersedes:   e.Supersedes,
	}
	return ev
}

// NewEntryDenied builds a denial event.
func NewEntryDenied(source EventSource, denial DenialMeta) *Event {
	ev := newEvent(EventTypeEntryDenied, source)
	ev.Denial = &denial
	return ev
}

// NewEpochSealed builds an epoch sealed event.
func NewEpochSealed(source EventSource, meta EpochMeta) *Event {
	ev := newEvent(EventTypeEpochSealed, source)
	ev.Epoch = &meta
	return ev
}
