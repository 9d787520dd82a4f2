package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txns"},
		Short:   "Inspect draft operations",
	}

	list := &cobra.Command{
		Use:   "list <session-id>",
		Short: "List a session's operations; locked values are marked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unprocessed, _ := cmd.Flags().GetBool("unprocessed")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			txns, err := a.store.GetTransactions(cmd.Context(), args[0], service.TransactionFilter{
				UnprocessedOnly: unprocessed,
				Limit:           limit,
			})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			if len(txns) == 0 {
				a.println(cli.InfoStyle.Render("No operations found."))
				return nil
			}
			a.println(cli.RenderTransactions(txns))
			return nil
		},
	}
	list.Flags().Bool("unprocessed", false, "Only operations that can still change")
	list.Flags().Int("limit", 0, "Maximum number of operations to show")

	cmd.AddCommand(list)
	return cmd
}
