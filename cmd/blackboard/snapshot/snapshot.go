// Package snapshotcmder provides the snapshot command, which renders the
// sealed snapshot of a durable journal.
package snapshotcmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/blackboard/cmd/blackboard/storeflags"
	"github.com/papercomputeco/blackboard/pkg/cliui"
	"github.com/papercomputeco/blackboard/pkg/logger"
)

const snapshotLongDesc string = `Render the sealed snapshot of a durable blackboard journal.

The snapshot is what agents see in their prompts: the entries sealed at the
last epoch boundary, grouped by tier. Its thumbprint changes only when the
rendered content does.

Examples:
  blackboard snapshot
  blackboard snapshot --raw
  blackboard snapshot --json --sqlite ./board.db`

const snapshotShortDesc string = "Render a durable journal's sealed snapshot"

type snapshotCommander struct {
	crew    string
	raw     bool
	jsonOut bool
}

func NewSnapshotCmd() *cobra.Command {
	cmder := &snapshotCommander{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: snapshotShortDesc,
		Long:  snapshotLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	storeflags.Add(cmd)
	cmd.Flags().StringVar(&cmder.crew, "crew", "", "Crew whose journal to read (separate mode)")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the prompt text without markdown rendering")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the snapshot as JSON")

	return cmd
}

func (c *snapshotCommander) run(cmd *cobra.Command) error {
	cfg, err := storeflags.Load(cmd)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	log := logger.New(logger.WithDebug(debug), logger.WithPretty(true), logger.WithWriter(cmd.ErrOrStderr()))

	st, closeFn, err := storeflags.OpenJournal(cmd.Context(), cfg, c.crew, log)
	if err != nil {
		return err
	}
	defer closeFn()

	snap := st.Snapshot(cmd.Context())
	out := cmd.OutOrStdout()

	if c.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprintf(out, "\n  %s  %s\n", cliui.KeyStyle.Render("Epoch:     "), cliui.ValueStyle.Render(fmt.Sprint(snap.Epoch)))
	fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render("Thumbprint:"), cliui.HashStyle.Render(string(snap.Thumbprint)))
	fmt.Fprintf(out, "  %s  %s\n\n", cliui.KeyStyle.Render("Entries:   "), cliui.ValueStyle.Render(fmt.Sprint(snap.Len())))

	prompt := snap.Prompt()
	if prompt == "" {
		fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Nothing sealed yet."))
		return nil
	}

	if c.raw {
		fmt.Fprint(out, prompt)
		return nil
	}

	rendered, err := cliui.RenderMarkdown(prompt)
	if err != nil {
		log.Debug("markdown rendering failed, printing raw prompt", "error", err)
	}
	fmt.Fprint(out, rendered)
	return nil
}
