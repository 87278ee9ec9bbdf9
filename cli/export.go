package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/crewtime/export"
	"github.com/warp/crewtime/ledger"
)

func newExportCommand(load configLoader) *cobra.Command {
	var (
		month  string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a month to CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := parseMonthFlag(month)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := ledger.ContextWithActor(cmd.Context(), cliActor)
			snap, err := a.ledger.Snapshot(ctx, ym)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := export.Write(&buf, f, snap); err != nil {
				return err
			}

			target := out
			if target == "" {
				target = f.Filename(ym)
			}
			if target == "-" {
				if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
					return err
				}
			} else if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}

			desc := fmt.Sprintf("exported %s as %s (%d employees)", ym, f, len(snap.Sheets))
			if err := a.ledger.RecordExport(ctx, desc); err != nil {
				return err
			}
			if target != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv, xlsx")
	cmd.Flags().StringVar(&out, "out", "", `output file, "-" for stdout (default crewtime-<month>.<format>)`)
	return cmd
}

func parseMonthFlag(month string) (ledger.YearMonth, error) {
	if month == "" {
		return ledger.DateOf(time.Now()).YearMonth(), nil
	}
	return ledger.ParseYearMonth(month)
}
