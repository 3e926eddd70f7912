package config

import (
	"fmt"
	"time"

	"github.com/papercomputeco/blackboard/pkg/blackboard"
	kafkapub "github.com/papercomputeco/blackboard/pkg/eventstream/kafka"
	"github.com/papercomputeco/blackboard/pkg/policy"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

const (
	defaultAPIListen = ":8090"
	defaultRedisAddr = "localhost:6379"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Flavor:          string(blackboard.FlavorHashed),
			Mode:            string(blackboard.ModeShared),
			MaxEntries:      storage.DefaultMaxEntries,
			WorkingTTL:      storage.DefaultWorkingTTL.String(),
			MaxPayloadBytes: storage.DefaultMaxPayloadBytes,
		},
		Durable: DurableConfig{
			Driver: blackboard.DriverSQLite,
		},
		Policy: PolicyConfig{
			Timeout: policy.DefaultTimeout.String(),
		},
		Events: EventsConfig{
			Provider:  EventsNone,
			Topic:     kafkapub.DefaultTopic,
			RedisAddr: defaultRedisAddr,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}

// Blackboard converts the file-level settings into a store configuration.
func (c *Config) Blackboard() (blackboard.Config, error) {
	flavor, err := blackboard.ParseFlavor(c.Store.Flavor)
	if err != nil {
		return blackboard.Config{}, err
	}
	mode, err := blackboard.ParseMode(c.Store.Mode)
	if err != nil {
		return blackboard.Config{}, err
	}

	out := blackboard.DefaultConfig()
	out.Flavor = flavor
	out.Mode = mode

	st := &out.Store
	if c.Store.PruneExpired {
		st.ExpiryPolicy = storage.ExpiryPrune
	}
	if c.Store.MaxEntries > 0 {
		st.MaxEntries = c.Store.MaxEntries
	}
	if c.Store.WorkingTTL != "" {
		if st.WorkingTTL, err = time.ParseDuration(c.Store.WorkingTTL); err != nil {
			return blackboard.Config{}, fmt.Errorf("invalid store.working_ttl: %w", err)
		}
	}
	st.WorkingTTLEpochs = c.Store.WorkingTTLEpochs
	if c.Store.MaxPayloadBytes > 0 {
		st.MaxPayloadBytes = c.Store.MaxPayloadBytes
	}
	st.CaseInsensitive = c.Store.CaseInsensitive
	if c.Policy.Timeout != "" {
		if st.PolicyTimeout, err = time.ParseDuration(c.Policy.Timeout); err != nil {
			return blackboard.Config{}, fmt.Errorf("invalid policy.timeout: %w", err)
		}
	}

	out.Durable = blackboard.DurableConfig{
		Driver:      c.Durable.Driver,
		SQLitePath:  c.Durable.SQLitePath,
		PostgresDSN: c.Durable.PostgresDSN,
	}
	return out, nil
}
