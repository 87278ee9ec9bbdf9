package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/warp/crewtime/ledger"
)

func newSummaryCommand(load configLoader) *cobra.Command {
	var employee, month string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print one employee's totals for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ym, err := parseMonthFlag(month)
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

			emp, err := findEmployee(cmd.Context(), a.ledger, employee)
			if err != nil {
				return err
			}
			sum, err := a.ledger.MonthSummary(cmd.Context(), emp.ID, ym)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) %s\n", emp.Name, emp.Position, ym)

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Status", "Hours"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, st := range ledger.Statuses {
				table.Append([]string{st.String(), sum.Of(st).String()})
			}
			table.Append([]string{"total", sum.Total().String()})
			table.Append([]string{"days", fmt.Sprint(sum.Days)})
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&employee, "employee", "", "employee id or exact name")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

// findEmployee resolves an id first, then a unique case-insensitive name.
func findEmployee(ctx context.Context, l *ledger.Ledger, ref string) (ledger.Employee, error) {
	emp, err := l.Employee(ctx, ref)
	if err == nil || !ledger.IsNotFound(err) {
		return emp, err
	}

	employees, err := l.Employees(ctx, true)
	if err != nil {
		return ledger.Employee{}, err
	}
	var matches []ledger.Employee
	for _, e := range employees {
		if strings.EqualFold(e.Name, strings.TrimSpace(ref)) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return ledger.Employee{}, &ledger.NotFoundError{Kind: "employee", Key: ref}
	case 1:
		return matches[0], nil
	default:
		return ledger.Employee{}, fmt.Errorf("%d employees named %q, use the id", len(matches), ref)
	}
}
