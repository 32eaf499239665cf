package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) changelogCommand() *cobra.Command {
	var itemID int
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Print the audit trail of applied changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tITEM\tOLD\tNEW\tACTOR\tTIMESTAMP")
			for _, l := range a.svc.ChangeLogs(ctx) {
				if itemID != 0 && l.BudgetItemID != itemID {
					continue
				}
				fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%s\t%s\n", l.ID, l.BudgetItemID, l.OldValue, l.NewValue, l.ActorName, l.Timestamp)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&itemID, "item", 0, "Only show records for this item id")
	return cmd
}
