package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --flavor
// on both "blackboard serve" and "blackboard verify").
type Flag struct {
	// Name is the long flag name (e.g. "flavor").
	Name string

	// Shorthand is the one-letter short flag (e.g. "f"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "store.flavor").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagFlavor          = "flavor"
	FlagMode            = "mode"
	FlagPruneExpired    = "prune-expired"
	FlagMaxEntries      = "max-entries"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagRules           = "rules"
	FlagEvents          = "events"
	FlagKafkaBrokers    = "kafka-brokers"
	FlagRedisAddr       = "redis-addr"
	FlagAPIListen       = "listen"
	FlagEpochSchedule   = "epoch-schedule"
	FlagDurableDriver   = "durable-driver"
	FlagPolicyTimeout   = "policy-timeout"
	FlagWorkingTTL      = "working-ttl"
	FlagCaseInsensitive = "case-insensitive"
	FlagOTLPEndpoint    = "otlp-endpoint"
	FlagOTLPInsecure    = "otlp-insecure"
)

// StoreFlags are shared by every command that opens a store.
var StoreFlags = FlagSet{
	FlagFlavor:          {Name: "flavor", Shorthand: "f", ViperKey: "store.flavor", Description: "Store flavor (baseline, hashed, durable)"},
	FlagMode:            {Name: "mode", ViperKey: "store.mode", Description: "Store mode (shared, separate)"},
	FlagPruneExpired:    {Name: "prune-expired", ViperKey: "store.prune_expired", Description: "Remove expired entries instead of tombstoning them"},
	FlagMaxEntries:      {Name: "max-entries", ViperKey: "store.max_entries", Description: "Entry count that triggers compaction"},
	FlagWorkingTTL:      {Name: "working-ttl", ViperKey: "store.working_ttl", Description: "Default lifetime of working-tier entries"},
	FlagCaseInsensitive: {Name: "case-insensitive", ViperKey: "store.case_insensitive", Description: "Fold case before hashing payloads"},
	FlagDurableDriver:   {Name: "durable-driver", ViperKey: "durable.driver", Description: "Journal driver for the durable flavor (sqlite, postgres)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "durable.sqlite_path", Description: "Path to the SQLite journal"},
	FlagPostgres:        {Name: "postgres", ViperKey: "durable.postgres_dsn", Description: "PostgreSQL connection string for the journal"},
	FlagRules:           {Name: "rules", ViperKey: "policy.rules_path", Description: "Path to a TOML commit rules file"},
	FlagPolicyTimeout:   {Name: "policy-timeout", ViperKey: "policy.timeout", Description: "Maximum time a commit authorization may take"},
}

// ServeFlags are the flags of "blackboard serve".
var ServeFlags = FlagSet{
	FlagAPIListen:     {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagEvents:        {Name: "events", ViperKey: "events.provider", Description: "Event stream provider (none, kafka, redis)"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers"},
	FlagRedisAddr:     {Name: "redis-addr", ViperKey: "events.redis_addr", Description: "Redis address for the event stream"},
	FlagEpochSchedule: {Name: "epoch-schedule", ViperKey: "epoch.schedule", Description: "Cron schedule for advancing epochs (e.g. \"@every 30s\")"},
	FlagOTLPEndpoint:  {Name: "otlp-endpoint", ViperKey: "telemetry.otlp_endpoint", Description: "OTLP/HTTP collector host:port for trace export"},
	FlagOTLPInsecure:  {Name: "otlp-insecure", ViperKey: "telemetry.otlp_insecure", Description: "Export traces over plain HTTP"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// Keys returns the registry keys of fs.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

// defaults returns a viper instance holding only NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
