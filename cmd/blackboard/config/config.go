// Package configcmder provides the config command for managing persistent
// blackboard configuration stored in the .blackboard/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent blackboard configuration.

Configuration is stored as config.toml in the .blackboard/ directory and
provides default values for command flags. CLI flags and BLACKBOARD_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  store.flavor, store.mode, store.prune_expired, store.max_entries,
  store.working_ttl, store.working_ttl_epochs, store.max_payload_bytes,
  store.case_insensitive,
  durable.driver, durable.sqlite_path, durable.postgres_dsn,
  policy.rules_path, policy.timeout,
  events.provider, events.brokers, events.topic, events.redis_addr,
  api.listen, epoch.schedule

Use subcommands to get, set, or list configuration values:
  blackboard config set <key> <value>    Set a configuration value
  blackboard config get <key>            Get a configuration value
  blackboard config list                 List all configuration values

Examples:
  blackboard config set store.flavor durable
  blackboard config set epoch.schedule "@every 1m"
  blackboard config get store.flavor
  blackboard config list`

const configShortDesc string = "Manage persistent blackboard configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
