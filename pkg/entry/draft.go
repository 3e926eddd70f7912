package entry

import (
	"fmt"
	"time"
)

// Draft is an entry as submitted over the wire by a client. TTL is a Go
// duration string.
type Draft struct {
	Author     string         `json:"author"`
	Kind       string         `json:"kind"`
	Payload    string         `json:"payload"`
	Tier       string         `json:"tier,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Supersedes []string       `json:"supersedes,omitempty"`
	Evidence   []string       `json:"evidence,omitempty"`
	TTL        string         `json:"ttl,omitempty"`
	TTLEpochs  uint64         `json:"ttl_epochs,omitempty"`
}

// Entry converts the draft into an unstored entry. Parse failures are
// reported as *InvalidError.
func (d Draft) Entry() (*Entry, error) {
	tier, err := ParseTier(d.Tier)
	if err != nil {
		return nil, &InvalidError{Reason: err.Error()}
	}

	opts := []Option{WithTier(tier), WithTTLEpochs(d.TTLEpochs)}
	if d.TTL != "" {
		ttl, err := time.ParseDuration(d.TTL)
		if err != nil || ttl < 0 {
			return nil, &InvalidError{Reason: fmt.Sprintf("invalid ttl %q", d.TTL)}
		}
		opts = append(opts, WithTTL(ttl))
	}
	if len(d.Supersedes) > 0 {
		opts = append(opts, WithSupersedes(d.Supersedes...))
	}
	if len(d.Evidence) > 0 {
		opts = append(opts, WithEvidence(d.Evidence...))
	}
	for k, v := range d.Metadata {
		opts = append(opts, WithMetadata(k, v))
	}

	e := New(d.Author, Kind(d.Kind), d.Payload, opts...)
	if d.Confidence != nil {
		if *d.Confidence < 0 || *d.Confidence > 1 {
			return nil, &InvalidError{Reason: fmt.Sprintf("confidence %.2f outside [0, 1]", *d.Confidence)}
		}
		e.Confidence = *d.Confidence
	}
	return e, nil
}
