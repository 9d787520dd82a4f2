package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

func autofillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autofill <session-id>",
		Short: "Fill a session's operations from mapping rules",
		Long: `Evaluate the mapping rules against every unprocessed operation of a session.
Only empty fields are filled unless --overwrite is given; fields you set
yourself are never touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overwrite, _ := cmd.Flags().GetBool("overwrite")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).
				HandleInterrupts(cmd.Context(), "Auto-fill", "recon autofill "+args[0])

			txns, err := a.store.GetTransactions(ctx, args[0], service.TransactionFilter{UnprocessedOnly: true})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			if len(txns) == 0 {
				a.println(cli.InfoStyle.Render("Nothing to fill."))
				return nil
			}

			result, err := runAutoFill(ctx, a, txns, overwrite)
			if err != nil {
				return err
			}

			summary := fmt.Sprintf("Examined: %d\nFilled: %d operations, %d fields\nSkipped as changed: %d",
				result.Examined, result.Filled, result.FieldsFilled, result.Skipped)
			a.println(cli.RenderBox("Auto-fill complete", summary))

			common.LogDebug("Rule hits", common.Fields{"session": args[0], "rules": len(result.RuleHits)})
			if len(result.RuleHits) == 0 {
				return nil
			}
			ids := make([]int64, 0, len(result.RuleHits))
			for id := range result.RuleHits {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			rows := make([][]string, len(ids))
			for i, id := range ids {
				rows[i] = []string{strconv.FormatInt(id, 10), strconv.Itoa(result.RuleHits[id])}
			}
			a.println(cli.RenderTable([]string{"Rule", "Filled"}, rows))
			return nil
		},
	}
	cmd.Flags().Bool("overwrite", false, "Let rules replace values that are filled but not locked")
	return cmd
}
