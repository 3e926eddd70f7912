package blackboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/blackboard/pkg/storage"
	"github.com/papercomputeco/blackboard/pkg/storage/baseline"
	"github.com/papercomputeco/blackboard/pkg/storage/hashed"
	"github.com/papercomputeco/blackboard/pkg/storage/postgres"
	"github.com/papercomputeco/blackboard/pkg/storage/sqlite"
)

// Journal drivers for FlavorDurable.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is used when a durable SQLite store has no path.
const DefaultSQLitePath = "blackboard.db"

// ErrSeparatePostgres is returned when separate mode is asked of a
// PostgreSQL journal, which keeps a single chain per database.
var ErrSeparatePostgres = errors.New("separate store mode is not supported by the postgres journal")

// DurableConfig selects and locates the journal for FlavorDurable.
type DurableConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Config describes the store to open.
type Config struct {
	Flavor  Flavor
	Mode    Mode
	Store   storage.Config
	Durable DurableConfig
}

// DefaultConfig returns a shared hashed store with default limits.
func DefaultConfig() Config {
	return Config{
		Flavor:  FlavorHashed,
		Mode:    ModeShared,
		Store:   storage.DefaultConfig(),
		Durable: DurableConfig{Driver: DriverSQLite, SQLitePath: DefaultSQLitePath},
	}
}

// Open creates the store cfg describes.
func Open(ctx context.Context, cfg Config, opts ...storage.Option) (storage.Store, error) {
	switch cfg.Flavor {
	case FlavorBaseline:
		return baseline.New(cfg.Store, opts...), nil
	case FlavorHashed, "":
		return hashed.New(ctx, cfg.Store, opts...)
	case FlavorDurable:
		j, err := openJournal(ctx, cfg.Durable)
		if err != nil {
			return nil, err
		}
		s, err := hashed.New(ctx, cfg.Store, append(opts, storage.WithJournal(j))...)
		if err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("failed to restore durable store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blackboard flavor %q", cfg.Flavor)
	}
}

func openJournal(ctx context.Context, cfg DurableConfig) (storage.Journal, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		j, err := sqlite.NewJournal(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite journal: %w", err)
		}
		return j, nil
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres journal requires a DSN")
		}
		j, err := postgres.NewJournal(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL journal: %w", err)
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}

// crewPath derives a per-crew database file next to base, e.g.
// "data/blackboard.db" becomes "data/blackboard-research.db". A crew name
// that is not already a plain lowercase file name also gets a short hash of
// the raw name, so "crew/one", "Crew_one" and "crew_one" each keep their own
// journal.
func crewPath(base, crew string) string {
	if base == "" {
		base = DefaultSQLitePath
	}

	name := sanitize(crew)
	if name != strings.ToLower(crew) || crew != strings.ToLower(crew) {
		sum := sha256.Sum256([]byte(crew))
		name += "-" + hex.EncodeToString(sum[:4])
	}

	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + name + ext
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
