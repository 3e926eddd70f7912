// Package storeflags registers the store flags shared by blackboard
// commands and resolves the effective configuration behind them.
package storeflags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/blackboard/cmd/blackboard/sqlitepath"
	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/config"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

// values holds flag targets. The effective values are read back through
// viper so env vars and config.toml apply when a flag is not set.
type values struct {
	flavor          string
	mode            string
	pruneExpired    bool
	maxEntries      int
	workingTTL      string
	caseInsensitive bool
	durableDriver   string
	sqlite          string
	postgres        string
	rules           string
	policyTimeout   string
}

// Add registers every StoreFlags entry on cmd.
func Add(cmd *cobra.Command) {
	v := &values{}
	fs := config.StoreFlags

	config.AddStringFlag(cmd, fs, config.FlagFlavor, &v.flavor)
	config.AddStringFlag(cmd, fs, config.FlagMode, &v.mode)
	config.AddBoolFlag(cmd, fs, config.FlagPruneExpired, &v.pruneExpired)
	config.AddIntFlag(cmd, fs, config.FlagMaxEntries, &v.maxEntries)
	config.AddStringFlag(cmd, fs, config.FlagWorkingTTL, &v.workingTTL)
	config.AddBoolFlag(cmd, fs, config.FlagCaseInsensitive, &v.caseInsensitive)
	config.AddStringFlag(cmd, fs, config.FlagDurableDriver, &v.durableDriver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &v.sqlite)
	config.AddStringFlag(cmd, fs, config.FlagPostgres, &v.postgres)
	config.AddStringFlag(cmd, fs, config.FlagRules, &v.rules)
	config.AddStringFlag(cmd, fs, config.FlagPolicyTimeout, &v.policyTimeout)
}

// Load returns the configuration for cmd with precedence flag > env >
// config.toml > default. StoreFlags are always bound; extra sets are bound
// after them.
func Load(cmd *cobra.Command, extra ...config.FlagSet) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	for _, fs := range append([]config.FlagSet{config.StoreFlags}, extra...) {
		config.BindRegisteredFlags(v, cmd, fs, fs.Keys())
	}

	return config.FromViper(v), nil
}

// OpenJournal opens the durable store behind cfg for offline inspection,
// whatever flavor cfg names. In shared mode a SQLite journal that does not
// exist yet is an error rather than silently created. The returned func
// closes the store.
func OpenJournal(ctx context.Context, cfg *config.Config, crew string, log *slog.Logger) (storage.Store, func() error, error) {
	boardCfg, err := cfg.Blackboard()
	if err != nil {
		return nil, nil, err
	}
	boardCfg.Flavor = blackboard.FlavorDurable

	if boardCfg.Durable.Driver == blackboard.DriverSQLite && boardCfg.Mode == blackboard.ModeShared {
		path, err := sqlitepath.ResolveSQLitePath(boardCfg.Durable.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := os.Stat(path); err != nil {
			return nil, nil, fmt.Errorf("opening journal %s: %w", path, err)
		}
		boardCfg.Durable.SQLitePath = path
	}

	registry, err := blackboard.NewRegistry(boardCfg, storage.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	st, err := registry.Store(ctx, crew)
	if err != nil {
		return nil, nil, errors.Join(err, registry.Close())
	}
	return st, registry.Close, nil
}
