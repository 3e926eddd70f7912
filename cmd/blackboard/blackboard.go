// Package blackboardcmder
package blackboardcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/blackboard/cmd/blackboard/config"
	servecmder "github.com/papercomputeco/blackboard/cmd/blackboard/serve"
	snapshotcmder "github.com/papercomputeco/blackboard/cmd/blackboard/snapshot"
	verifycmder "github.com/papercomputeco/blackboard/cmd/blackboard/verify"
	versioncmder "github.com/papercomputeco/blackboard/cmd/version"
)

const blackboardLongDesc string = `Blackboard is a shared, tamper-evident memory for multi-agent pipelines.

Agents post facts, decisions and observations; every epoch the board is
sealed into a snapshot whose stable rendering keeps prompt caches warm.

Run services using:
  blackboard serve       Run the API and MCP server
  blackboard verify      Check the hash chain of a durable journal
  blackboard snapshot    Render the sealed snapshot of a durable journal`

const blackboardShortDesc string = "Blackboard - Shared Agent Memory"

func NewBlackboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blackboard",
		Short: blackboardShortDesc,
		Long:  blackboardLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .blackboard/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(verifycmder.NewVerifyCmd())
	cmd.AddCommand(snapshotcmder.NewSnapshotCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
