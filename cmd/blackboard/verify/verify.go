// Package verifycmder provides the verify command, which walks the hash
// chain of a durable journal and reports the first broken link.
package verifycmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/blackboard/cmd/blackboard/storeflags"
	"github.com/papercomputeco/blackboard/pkg/cliui"
	"github.com/papercomputeco/blackboard/pkg/logger"
	"github.com/papercomputeco/blackboard/pkg/storage"
)

const verifyLongDesc string = `Verify the integrity of a durable blackboard journal.

Replays the journal into memory and recomputes every link of the hash
chain. Any entry whose content or position was altered outside the
blackboard is reported and the command exits non-zero.

Examples:
  blackboard verify
  blackboard verify --sqlite ./board.db
  blackboard verify --mode separate --crew research`

const verifyShortDesc string = "Verify a durable journal's hash chain"

func NewVerifyCmd() *cobra.Command {
	var crew string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: verifyShortDesc,
		Long:  verifyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := storeflags.Load(cmd)
			if err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			log := logger.New(logger.WithDebug(debug), logger.WithPretty(true), logger.WithWriter(cmd.ErrOrStderr()))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)

			var st storage.Store
			var closeFn func() error
			err = cliui.Step(out, "Opening journal", func() error {
				var openErr error
				st, closeFn, openErr = storeflags.OpenJournal(cmd.Context(), cfg, crew, log)
				return openErr
			})
			if err != nil {
				return err
			}
			defer closeFn()

			verifyErr := cliui.Step(out, "Verifying hash chain", func() error {
				return st.VerifyIntegrity(cmd.Context())
			})

			stats := st.Stats(cmd.Context())
			fmt.Fprintf(out, "\n  %s  %s\n", cliui.KeyStyle.Render("Entries:"), cliui.ValueStyle.Render(fmt.Sprint(stats.Entries)))
			fmt.Fprintf(out, "  %s    %s\n", cliui.KeyStyle.Render("Epoch:"), cliui.ValueStyle.Render(fmt.Sprint(stats.Epoch)))
			if stats.Head != "" {
				fmt.Fprintf(out, "  %s     %s\n", cliui.KeyStyle.Render("Head:"), cliui.HashStyle.Render(stats.Head))
			}
			fmt.Fprintln(out)

			var broken *storage.IntegrityError
			if errors.As(verifyErr, &broken) {
				fmt.Fprintf(out, "  %s entry %s: %s\n\n", cliui.FailMark, cliui.HashStyle.Render(broken.ID), broken.Reason)
			}
			return verifyErr
		},
	}

	storeflags.Add(cmd)
	cmd.Flags().StringVar(&crew, "crew", "", "Crew whose journal to verify (separate mode)")

	return cmd
}
