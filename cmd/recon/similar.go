package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/service"
	"github.com/Veraticus/statement-reconciler/internal/similarity"
)

func similarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <transaction-id>",
		Short: "Show operations that look like a given one",
		Long: `Score the other unprocessed operations of the same session against one
operation and list those above the threshold, best first.

With --groups the argument is a session id and the whole session is
clustered into groups of similar operations.`,
		Args: cobra.ExactArgs(1),
		RunE: runSimilar,
	}

	cmd.Flags().Float64("min-score", -1, "Inclusion threshold in [0,100] (default from config)")
	cmd.Flags().String("field", "", "Exclude candidates that have this field locked")
	cmd.Flags().Bool("groups", false, "Cluster a whole session instead")

	return cmd
}

func runSimilar(cmd *cobra.Command, args []string) error {
	groups, _ := cmd.Flags().GetBool("groups")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	fieldName, _ := cmd.Flags().GetString("field")

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	opts := similarity.Options{CompanyTaxID: a.cfg.Company.TaxID, MinScore: a.cfg.Similarity.MinScore}
	if minScore >= 0 {
		opts.MinScore = minScore
	}
	if fieldName != "" {
		if opts.Field, err = model.ParseField(fieldName); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if groups {
		txns, err := a.store.GetTransactions(ctx, args[0], service.TransactionFilter{UnprocessedOnly: true})
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
		found := similarity.GroupSimilar(txns, opts)
		if len(found) == 0 {
			a.println(cli.InfoStyle.Render("No groups of similar operations."))
			return nil
		}
		for i, g := range found {
			a.println(cli.FormatTitle(fmt.Sprintf("Group %d: %d operations like %q", i+1, g.Size(), g.Seed.Description)))
			a.println(cli.SubtleStyle.Render(fmt.Sprintf("%s · %s · %s",
				g.Seed.ID, g.Seed.Date.Format("2006-01-02"), cli.FormatAmount(g.Seed))))
			a.println(cli.RenderSimilar(g.Members, nil))
		}
		return nil
	}

	target, err := a.store.GetTransactionByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load transaction: %w", err)
	}
	pool, err := a.store.GetTransactions(ctx, target.SessionID, service.TransactionFilter{UnprocessedOnly: true})
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	results := similarity.FindSimilar(*target, pool, opts)
	if len(results) == 0 {
		a.println(cli.InfoStyle.Render("No similar operations."))
		return nil
	}
	a.println(cli.FormatTitle(fmt.Sprintf("%d operations like %q", len(results), target.Description)))
	a.println(cli.RenderSimilar(results, nil))
	return nil
}
