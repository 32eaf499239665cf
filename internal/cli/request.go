package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetcore/pkg/domain"
)

func (a *app) requestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Submit and resolve change requests",
	}

	submit := &cobra.Command{
		Use:   "submit <year> <item-id> <new-value>",
		Short: "File a change request for an item of your ministry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			year, err := parseInt("year", args[0])
			if err != nil {
				return err
			}
			id, err := parseInt("item id", args[1])
			if err != nil {
				return err
			}
			value, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			if err := a.open(ctx); err != nil {
				return err
			}
			actor, err := a.actor(ctx)
			if err != nil {
				return err
			}
			budget, err := a.svc.Budget(ctx, year)
			if err != nil {
				return err
			}
			item, ok := budget.FindItem(id)
			if !ok {
				return domain.NotFoundError("budget item %d does not exist in %d", id, year)
			}
			change, err := a.svc.SubmitChangeRequest(ctx, actor, &item, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "change request %d submitted: %s %.2f -> %.2f\n",
				change.ID, change.BudgetItemName, change.OldValue, change.NewValue)
			return nil
		},
	}

	resolve := func(use, short, verb string, fn func(cmd *cobra.Command, actor *domain.User, id int) (domain.PendingChange, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <request-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				id, err := parseInt("request id", args[0])
				if err != nil {
					return err
				}
				if err := a.open(ctx); err != nil {
					return err
				}
				actor, err := a.actor(ctx)
				if err != nil {
					return err
				}
				change, err := fn(cmd, actor, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "change request %d %s\n", change.ID, verb)
				return nil
			},
		}
	}
	approve := resolve("approve", "Approve a pending request and apply it (prime minister only)", "approved",
		func(cmd *cobra.Command, actor *domain.User, id int) (domain.PendingChange, error) {
			return a.svc.ApproveRequest(cmd.Context(), actor, id)
		})
	reject := resolve("reject", "Reject a pending request (prime minister only)", "rejected",
		func(cmd *cobra.Command, actor *domain.User, id int) (domain.PendingChange, error) {
			return a.svc.RejectRequest(cmd.Context(), actor, id)
		})

	var statuses []string
	var mine bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List change requests, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			var changes []domain.PendingChange
			if mine {
				actor, err := a.actor(ctx)
				if err != nil {
					return err
				}
				changes = a.svc.PendingChangesFor(ctx, actor.ID)
			} else {
				changes = a.svc.PendingChanges(ctx)
			}
			want := make(map[domain.Status]bool, len(statuses))
			for _, s := range statuses {
				st := domain.Status(strings.ToUpper(strings.TrimSpace(s)))
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				want[st] = true
			}
			filtered := changes[:0]
			for _, c := range changes {
				if len(want) == 0 || want[c.Status] {
					filtered = append(filtered, c)
				}
			}
			return writeChanges(cmd.OutOrStdout(), filtered)
		},
	}
	list.Flags().StringSliceVar(&statuses, "status", nil, "Only show requests in these states (PENDING, APPROVED, REJECTED)")
	list.Flags().BoolVar(&mine, "mine", false, "Only show requests filed by the --as user")

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every approved or rejected request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			n, err := a.svc.CleanupResolved(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d resolved request(s)\n", n)
			return nil
		},
	}
	cmd.AddCommand(submit, approve, reject, list, cleanup)
	return cmd
}

func writeChanges(w io.Writer, changes []domain.PendingChange) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tYEAR\tITEM\tOLD\tNEW\tREQUESTER\tSTATUS\tSUBMITTED")
	for _, c := range changes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f\t%.2f\t%s\t%s\t%s\n",
			c.ID, c.BudgetItemYear, c.BudgetItemName, c.OldValue, c.NewValue, c.RequesterName, c.Status, c.SubmittedDate)
	}
	return tw.Flush()
}
