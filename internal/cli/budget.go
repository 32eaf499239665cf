package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetcore/pkg/domain"
)

func (a *app) budgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Import and inspect yearly budgets",
	}
	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import budgets from a JSON file, replacing budgets of the same year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			budgets, err := readBudgets(args[0])
			if err != nil {
				return err
			}
			n, err := a.svc.ImportBudgets(ctx, budgets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d budget(s)\n", n)
			return nil
		},
	}
	show := &cobra.Command{
		Use:   "show <year>",
		Short: "Print a budget with its items and totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			year, err := parseInt("year", args[0])
			if err != nil {
				return err
			}
			if err := a.open(ctx); err != nil {
				return err
			}
			budget, err := a.svc.Budget(ctx, year)
			if err != nil {
				return err
			}
			return writeBudget(cmd.OutOrStdout(), budget)
		},
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List budgets with their totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "YEAR\tITEMS\tREVENUE\tEXPENSE\tNET")
			for _, b := range a.svc.Budgets(ctx) {
				fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\n", b.Year, len(b.Items), b.TotalRevenue, b.TotalExpense, b.NetResult)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(importCmd, show, list)
	return cmd
}

// readBudgets accepts either a JSON array of budgets or a single budget.
func readBudgets(path string) ([]domain.Budget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading budgets: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var single domain.Budget
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return []domain.Budget{single}, nil
	}
	var budgets []domain.Budget
	if err := json.Unmarshal(data, &budgets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return budgets, nil
}

func writeBudget(w io.Writer, b domain.Budget) error {
	fmt.Fprintf(w, "Budget %d\n", b.Year)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tVALUE\tMINISTRIES")
	for _, item := range b.Items {
		kind := "expense"
		if item.IsRevenue {
			kind = "revenue"
		}
		names := make([]string, 0, len(item.Ministries))
		for _, m := range item.Ministries {
			names = append(names, string(m))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", item.ID, item.Name, kind, item.Value, strings.Join(names, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Revenue %.2f  Expense %.2f  Net %.2f\n", b.TotalRevenue, b.TotalExpense, b.NetResult)
	return err
}

func parseInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func parseAmount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}
