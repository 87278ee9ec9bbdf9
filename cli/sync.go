package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync with the remote hub and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.SyncEnabled() {
				return errors.New("no remote configured (set remote.url)")
			}

			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sync.RunNow(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pushed=%d rejected=%d pulled=%d applied=%d skipped=%d cursor=%d\n",
				report.Pushed, report.Rejected, report.Pulled, report.Applied, report.Skipped, report.Cursor)
			for _, c := range report.Conflicts {
				fmt.Fprintf(out, "conflict %s: %s won, superseded %s\n", c.Key, c.Winner, c.Superseded)
			}
			return nil
		},
	}
}
