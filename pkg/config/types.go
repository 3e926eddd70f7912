package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	"github.com/papercomputeco/blackboard/pkg/epoch"
)

// Config represents the persistent blackboard configuration stored as
// config.toml in the .blackboard/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Store     StoreConfig     `toml:"store"`
	Durable   DurableConfig   `toml:"durable"`
	Policy    PolicyConfig    `toml:"policy"`
	Events    EventsConfig    `toml:"events"`
	API       APIConfig       `toml:"api"`
	Epoch     EpochConfig     `toml:"epoch"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// StoreConfig selects the backend and its limits. Durations are written as
// Go duration strings ("1h", "90s").
type StoreConfig struct {
	Flavor           string `toml:"flavor,omitempty"`
	Mode             string `toml:"mode,omitempty"`
	PruneExpired     bool   `toml:"prune_expired,omitempty"`
	MaxEntries       int    `toml:"max_entries,omitempty"`
	WorkingTTL       string `toml:"working_ttl,omitempty"`
	WorkingTTLEpochs uint64 `toml:"working_ttl_epochs,omitempty"`
	MaxPayloadBytes  int    `toml:"max_payload_bytes,omitempty"`
	CaseInsensitive  bool   `toml:"case_insensitive,omitempty"`
}

// DurableConfig locates the journal of the durable flavor.
type DurableConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// PolicyConfig holds commit policy settings. An empty RulesPath allows
// every commit.
type PolicyConfig struct {
	RulesPath string `toml:"rules_path,omitempty"`
	Timeout   string `toml:"timeout,omitempty"`
}

// Event stream providers.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsRedis = "redis"
)

// EventsConfig selects where commit and epoch events are published.
type EventsConfig struct {
	Provider  string   `toml:"provider,omitempty"`
	Brokers   []string `toml:"brokers,omitempty"`
	Topic     string   `toml:"topic,omitempty"`
	RedisAddr string   `toml:"redis_addr,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EpochConfig holds the optional epoch schedule. An empty schedule leaves
// epoch advancement to the caller.
type EpochConfig struct {
	Schedule string `toml:"schedule,omitempty"`
}

// TelemetryConfig points trace export at an OTLP/HTTP collector. An empty
// endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint,omitempty"`
	OTLPInsecure bool   `toml:"otlp_insecure,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string, check func(string) error) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if check != nil {
				if err := check(v); err != nil {
					return err
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func checkDuration(name string) func(string) error {
	return func(v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", name, err)
		}
		return nil
	}
}

func checkOneOf(name string, allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return nil
			}
		}
		return fmt.Errorf("invalid value for %s: %q (expected one of %s)", name, v, strings.Join(allowed, ", "))
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"store.flavor": stringKey(func(c *Config) *string { return &c.Store.Flavor }, func(v string) error {
		_, err := blackboard.ParseFlavor(v)
		return err
	}),
	"store.mode": stringKey(func(c *Config) *string { return &c.Store.Mode }, func(v string) error {
		_, err := blackboard.ParseMode(v)
		return err
	}),
	"store.prune_expired": boolKey("store.prune_expired", func(c *Config) *bool { return &c.Store.PruneExpired }),
	"store.max_entries":   intKey("store.max_entries", func(c *Config) *int { return &c.Store.MaxEntries }),
	"store.working_ttl": stringKey(func(c *Config) *string { return &c.Store.WorkingTTL },
		checkDuration("store.working_ttl")),
	"store.working_ttl_epochs": {
		get: func(c *Config) string { return strconv.FormatUint(c.Store.WorkingTTLEpochs, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for store.working_ttl_epochs: %w", err)
			}
			c.Store.WorkingTTLEpochs = n
			return nil
		},
	},
	"store.max_payload_bytes": intKey("store.max_payload_bytes", func(c *Config) *int { return &c.Store.MaxPayloadBytes }),
	"store.case_insensitive":  boolKey("store.case_insensitive", func(c *Config) *bool { return &c.Store.CaseInsensitive }),

	"durable.driver": stringKey(func(c *Config) *string { return &c.Durable.Driver },
		checkOneOf("durable.driver", blackboard.DriverSQLite, blackboard.DriverPostgres)),
	"durable.sqlite_path":  stringKey(func(c *Config) *string { return &c.Durable.SQLitePath }, nil),
	"durable.postgres_dsn": stringKey(func(c *Config) *string { return &c.Durable.PostgresDSN }, nil),

	"policy.rules_path": stringKey(func(c *Config) *string { return &c.Policy.RulesPath }, nil),
	"policy.timeout": stringKey(func(c *Config) *string { return &c.Policy.Timeout },
		checkDuration("policy.timeout")),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider },
		checkOneOf("events.provider", EventsNone, EventsKafka, EventsRedis)),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic":      stringKey(func(c *Config) *string { return &c.Events.Topic }, nil),
	"events.redis_addr": stringKey(func(c *Config) *string { return &c.Events.RedisAddr }, nil),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }, nil),

	"epoch.schedule": stringKey(func(c *Config) *string { return &c.Epoch.Schedule }, func(v string) error {
		if v == "" {
			return nil
		}
		return epoch.ParseSchedule(v)
	}),

	"telemetry.otlp_endpoint": stringKey(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint }, nil),
	"telemetry.otlp_insecure": boolKey("telemetry.otlp_insecure", func(c *Config) *bool { return &c.Telemetry.OTLPInsecure }),
}

// splitList splits comma or whitespace separated values.
func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
