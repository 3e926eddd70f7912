package blackboard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/papercomputeco/blackboard/pkg/storage"
)

// DefaultCrew names the store handed out when no crew is given.
const DefaultCrew = "default"

// ErrRegistryClosed is returned by Store after Close.
var ErrRegistryClosed = errors.New("blackboard registry closed")

// Provider hands out the store a crew should use.
type Provider interface {
	Store(ctx context.Context, crew string) (storage.Store, error)
}

// Registry opens stores lazily and keeps them until Close. In ModeShared
// every crew gets the same store; in ModeSeparate each crew gets its own.
type Registry struct {
	cfg  Config
	opts []storage.Option

	mu     sync.Mutex
	stores map[string]storage.Store
	closed bool
}

var _ Provider = (*Registry)(nil)

// NewRegistry validates cfg and returns an empty registry. opts are applied
// to every store it opens.
func NewRegistry(cfg Config, opts ...storage.Option) (*Registry, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeShared
	}
	if cfg.Mode == ModeSeparate && cfg.Flavor == FlavorDurable && strings.EqualFold(cfg.Durable.Driver, DriverPostgres) {
		return nil, ErrSeparatePostgres
	}

	return &Registry{
		cfg:    cfg,
		opts:   opts,
		stores: make(map[string]storage.Store),
	}, nil
}

// Mode returns the registry mode.
func (r *Registry) Mode() Mode { return r.cfg.Mode }

// Store returns the store for crew, opening it on first use.
func (r *Registry) Store(ctx context.Context, crew string) (storage.Store, error) {
	key := r.key(crew)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if s, ok := r.stores[key]; ok {
		return s, nil
	}

	cfg, opts := r.cfg, r.opts
	if cfg.Mode == ModeSeparate {
		opts = append(slices.Clone(opts), storage.WithName(key))
		if cfg.Flavor == FlavorDurable {
			cfg.Durable.SQLitePath = crewPath(cfg.Durable.SQLitePath, key)
		}
	}

	s, err := Open(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store for %s: %w", key, err)
	}

	r.stores[key] = s
	return s, nil
}

func (r *Registry) key(crew string) string {
	if r.cfg.Mode != ModeSeparate {
		return DefaultCrew
	}
	if crew = strings.TrimSpace(crew); crew == "" {
		return DefaultCrew
	}
	return crew
}

// Crews lists the stores opened so far, sorted.
func (r *Registry) Crews() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	crews := make([]string, 0, len(r.stores))
	for crew := range r.stores {
		crews = append(crews, crew)
	}
	slices.Sort(crews)
	return crews
}

// Close closes every store. Later calls to Store fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for crew, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", crew, err))
		}
	}
	clear(r.stores)
	return errors.Join(errs...)
}

// AdvanceEpoch advances every open store. It returns the highest epoch
// reached and the joined errors of stores that failed.
func (r *Registry) AdvanceEpoch(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	stores := make(map[string]storage.Store, len(r.stores))
	maps.Copy(stores, r.stores)
	r.mu.Unlock()

	var (
		latest uint64
		errs   []error
	)
	for crew, s := range stores {
		epoch, err := s.AdvanceEpoch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("advancing %s: %w", crew, err))
		}
		latest = max(latest, epoch)
	}
	return latest, errors.Join(errs...)
}
