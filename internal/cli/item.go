package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgetcore/internal/core"
	"budgetcore/pkg/domain"
)

func (a *app) itemCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Create, edit or delete budget items",
	}

	var item domain.BudgetItem
	var ministries []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Add an item to an existing budget (Finance only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			actor, err := a.actor(ctx)
			if err != nil {
				return err
			}
			item.Ministries = item.Ministries[:0]
			for _, raw := range ministries {
				m, ok := domain.ParseMinistry(raw)
				if !ok {
					return domain.ValidationError(core.RuleMinistries, "unknown ministry %q", raw)
				}
				item.Ministries = append(item.Ministries, m)
			}
			created, err := a.svc.CreateBudgetItem(ctx, actor, item)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created item %d %q in %d with value %.2f\n", created.ID, created.Name, created.Year, created.Value)
			return nil
		},
	}
	create.Flags().IntVar(&item.Year, "year", 0, "Budget year")
	create.Flags().IntVar(&item.ID, "id", 0, "Item id, unique within the year")
	create.Flags().StringVar(&item.Name, "name", "", "Item name, unique within the year")
	create.Flags().Float64Var(&item.Value, "value", 0, "Amount")
	create.Flags().BoolVar(&item.IsRevenue, "revenue", false, "Mark the item as revenue")
	create.Flags().StringSliceVar(&ministries, "ministry", nil, "Responsible ministry (repeatable)")
	for _, name := range []string{"year", "id", "name", "ministry"} {
		_ = create.MarkFlagRequired(name)
	}

	edit := &cobra.Command{
		Use:   "edit <year> <item-id> <value>",
		Short: "Change an item value; non-Finance members file a change request instead",
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
			result, err := a.svc.UpdateItem(ctx, actor, year, id, value)
			if err != nil {
				return err
			}
			if result.Direct {
				fmt.Fprintf(cmd.OutOrStdout(), "item %d updated to %.2f\n", result.Item.ID, result.Item.Value)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "change request %d submitted for approval\n", result.Request.ID)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <year> <item-id>",
		Short: "Remove an unprotected item (Finance only)",
		Args:  cobra.ExactArgs(2),
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
			if err := a.open(ctx); err != nil {
				return err
			}
			actor, err := a.actor(ctx)
			if err != nil {
				return err
			}
			if err := a.svc.DeleteBudgetItem(ctx, actor, year, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d deleted from %d\n", id, year)
			return nil
		},
	}
	cmd.AddCommand(create, edit, del)
	return cmd
}
