package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/blackboard/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. BLACKBOARD_STORE_FLAVOR.
const EnvPrefix = "BLACKBOARD"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the BLACKBOARD_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (BLACKBOARD_STORE_FLAVOR, BLACKBOARD_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper reads the effective configuration out of v.
func FromViper(v *viper.Viper) *Config {
	var brokers []string
	for _, b := range v.GetStringSlice("events.brokers") {
		brokers = append(brokers, splitList(b)...)
	}

	return &Config{
		Version: v.GetInt("version"),
		Store: StoreConfig{
			Flavor:           v.GetString("store.flavor"),
			Mode:             v.GetString("store.mode"),
			PruneExpired:     v.GetBool("store.prune_expired"),
			MaxEntries:       v.GetInt("store.max_entries"),
			WorkingTTL:       v.GetString("store.working_ttl"),
			WorkingTTLEpochs: v.GetUint64("store.working_ttl_epochs"),
			MaxPayloadBytes:  v.GetInt("store.max_payload_bytes"),
			CaseInsensitive:  v.GetBool("store.case_insensitive"),
		},
		Durable: DurableConfig{
			Driver:      v.GetString("durable.driver"),
			SQLitePath:  v.GetString("durable.sqlite_path"),
			PostgresDSN: v.GetString("durable.postgres_dsn"),
		},
		Policy: PolicyConfig{
			RulesPath: v.GetString("policy.rules_path"),
			Timeout:   v.GetString("policy.timeout"),
		},
		Events: EventsConfig{
			Provider:  v.GetString("events.provider"),
			Brokers:   brokers,
			Topic:     v.GetString("events.topic"),
			RedisAddr: v.GetString("events.redis_addr"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Epoch: EpochConfig{
			Schedule: v.GetString("epoch.schedule"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
			OTLPInsecure: v.GetBool("telemetry.otlp_insecure"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Store
	v.SetDefault("store.flavor", d.Store.Flavor)
	v.SetDefault("store.mode", d.Store.Mode)
	v.SetDefault("store.prune_expired", d.Store.PruneExpired)
	v.SetDefault("store.max_entries", d.Store.MaxEntries)
	v.SetDefault("store.working_ttl", d.Store.WorkingTTL)
	v.SetDefault("store.working_ttl_epochs", d.Store.WorkingTTLEpochs)
	v.SetDefault("store.max_payload_bytes", d.Store.MaxPayloadBytes)
	v.SetDefault("store.case_insensitive", d.Store.CaseInsensitive)

	// Durable
	v.SetDefault("durable.driver", d.Durable.Driver)
	v.SetDefault("durable.sqlite_path", d.Durable.SQLitePath)
	v.SetDefault("durable.postgres_dsn", d.Durable.PostgresDSN)

	// Policy
	v.SetDefault("policy.rules_path", d.Policy.RulesPath)
	v.SetDefault("policy.timeout", d.Policy.Timeout)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.redis_addr", d.Events.RedisAddr)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Epoch
	v.SetDefault("epoch.schedule", d.Epoch.Schedule)

	// Telemetry
	v.SetDefault("telemetry.otlp_endpoint", d.Telemetry.OTLPEndpoint)
	v.SetDefault("telemetry.otlp_insecure", d.Telemetry.OTLPInsecure)
}
