package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"budgetcore/internal/core"
	"budgetcore/pkg/domain"
)

func (a *app) userCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage registered users",
	}
	var user domain.User
	var role, ministry string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			user.Role = domain.Role(role)
			user.Ministry = ""
			if ministry != "" {
				m, ok := domain.ParseMinistry(ministry)
				if !ok {
					return domain.ValidationError(core.RuleUser, "unknown ministry %q", ministry)
				}
				user.Ministry = m
			}
			created, err := a.dir.Register(ctx, user)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered user %d (%s, %s)\n", created.ID, created.Username, created.Role)
			return nil
		},
	}
	add.Flags().StringVar(&user.Username, "username", "", "Login name (4-20 characters)")
	add.Flags().StringVar(&user.FullName, "full-name", "", "Full name recorded in the audit log")
	add.Flags().StringVar(&role, "role", string(domain.RoleCitizen), "citizen, government_member or prime_minister")
	add.Flags().StringVar(&ministry, "ministry", "", "Ministry of a government member")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("full-name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tROLE\tMINISTRY")
			for _, u := range a.dir.Users(ctx) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.FullName, u.Role, u.Ministry)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}
