package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/blackboard/pkg/entry"
	"github.com/papercomputeco/blackboard/pkg/eventstream"
	"github.com/papercomputeco/blackboard/pkg/eventstream/nop"
	"github.com/papercomputeco/blackboard/pkg/logger"
	"github.com/papercomputeco/blackboard/pkg/metrics"
	"github.com/papercomputeco/blackboard/pkg/policy"
)

// DefaultName identifies a store when none is given.
const DefaultName = "default"

// Options are the collaborators a backend is wired to.
type Options struct {
	Name       string
	Logger     *slog.Logger
	Authorizer policy.Authorizer
	Publisher  eventstream.Publisher
	Metrics    *metrics.Metrics
	Journal    Journal
	Clock      func() time.Time
}

// Option configures Options.
type Option func(*Options)

// WithName names the store in logs and events.
func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithAuthorizer sets the commit policy hook.
func WithAuthorizer(a policy.Authorizer) Option {
	return func(o *Options) { o.Authorizer = a }
}

// WithPublisher sets the event publisher.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *Options) { o.Publisher = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithJournal makes the store durable. Only the hash-chained backend
// supports a journal.
func WithJournal(j Journal) Option {
	return func(o *Options) { o.Journal = j }
}

// WithClock overrides time.Now, for tests that exercise wall-clock TTLs.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Clock = now }
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := Options{
		Name:       DefaultName,
		Authorizer: policy.AllowAll{},
		Clock:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	o.Logger = logger.OrNop(o.Logger)
	if o.Publisher == nil {
		o.Publisher = nop.NewPublisher()
	}
	if o.Authorizer == nil {
		o.Authorizer = policy.AllowAll{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Name == "" {
		o.Name = DefaultName
	}
	return o
}

// Source identifies the store in published events.
func (o Options) Source(flavor string) eventstream.EventSource {
	return eventstream.EventSource{Store: o.Name, Flavor: flavor}
}

// Publish sends ev, logging instead of failing when the publisher errors.
func (o Options) Publish(ctx context.Context, ev *eventstream.Event) {
	if err := o.Publisher.Publish(ctx, ev); err != nil {
		o.Logger.Warn("failed to publish blackboard event",
			"store", o.Name,
			"event_type", ev.EventType,
			"error", err,
		)
	}
}

// Deny converts a refusing decision into the error Post returns, counting
// and announcing it on the way.
func (o Options) Deny(ctx context.Context, flavor string, e *entry.Entry, d policy.Decision) error {
	o.Metrics.Post(flavor, metrics.OutcomeDenied)
	o.Logger.Warn("blackboard commit denied",
		"store", o.Name,
		"author", e.Author,
		"kind", e.Kind,
		"id", e.Short(),
		"decision_id", d.ID,
		"reason", d.Reason,
	)
	o.Publish(ctx, eventstream.NewEntryDenied(o.Source(flavor), eventstream.DenialMeta{
		PayloadDigest: e.ID,
		Author:        e.Author,
		Kind:          string(e.Kind),
		DecisionID:    d.ID,
		Reason:        d.Reason,
	}))
	return &CommitDeniedError{Reason: d.Reason, Decision: d}
}
