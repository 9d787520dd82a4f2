package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/bulk"
	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/lock"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/similarity"
	"github.com/Veraticus/statement-reconciler/internal/undo"
)

var skipMessages = map[string]string{
	bulk.SkipIncomplete:     "Fill the required fields of this operation to offer the change to similar ones.",
	bulk.SkipNoCandidates:   "No similar operations in this session.",
	bulk.SkipAlreadyApplied: "Similar operations already have this value.",
	bulk.SkipDismissed:      "Similar operations left unchanged.",
	bulk.SkipNothingChosen:  "No operations chosen; nothing changed.",
	bulk.SkipAllStale:       "The chosen operations changed meanwhile; nothing applied.",
}

func editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <transaction-id> <field> <value>",
		Short: "Set a field on an operation and offer it to similar ones",
		Long: `Set one field of a draft operation. The value is locked so rules never
overwrite it. When the operation is fully categorized, similar operations of
the same session are offered the same value. The last change, bulk or
single, can be undone for a few seconds.

Fields: direction, counterparty, article, account, deal, department, currency.
An empty value clears a link.`,
		Args: cobra.ExactArgs(3),
		RunE: runEdit,
	}

	cmd.Flags().BoolP("yes", "y", false, "Apply to every similar operation without asking")
	cmd.Flags().Duration("undo-window", 0, "How long a change stays reversible (default from config)")

	return cmd
}

func runEdit(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	window, _ := cmd.Flags().GetDuration("undo-window")

	field, err := model.ParseField(args[1])
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if window <= 0 {
		window = a.cfg.Undo.Expiry
	}
	pending := undo.NewManager(a.store, undo.WithExpiry(window))
	coordinator := bulk.NewCoordinator(a.store, pending, similarity.Options{
		CompanyTaxID: a.cfg.Company.TaxID,
		MinScore:     a.cfg.Similarity.MinScore,
	})
	prompter := cli.NewPrompter(cmd.InOrStdin(), a.out)

	ctx := cmd.Context()
	edit, err := lock.NewTracker(a.store).Edit(ctx, args[0], field, args[2])
	if err != nil {
		return err
	}
	a.println(cli.FormatSuccess(fmt.Sprintf("%s set to %q %s", field.Label(), edit.Value, cli.LockIcon)))

	proposal, err := coordinator.Propose(ctx, edit)
	if err != nil {
		return err
	}
	if proposal.State() == bulk.StateSkipped {
		a.println(cli.SubtleStyle.Render(skipMessages[proposal.SkipReason]))
		return offerEditUndo(cmd, prompter, pending, edit, yes)
	}

	if !yes {
		apply, err := prompter.ChooseCandidates(ctx, proposal)
		if err != nil {
			return err
		}
		if !apply {
			a.println(cli.SubtleStyle.Render(skipMessages[proposal.SkipReason]))
			return offerEditUndo(cmd, prompter, pending, edit, yes)
		}
	}

	result, err := coordinator.Apply(ctx, proposal, edit.TransactionID)
	var stale *common.StaleRecordError
	switch {
	case errors.As(err, &stale):
		a.println(cli.FormatWarning(fmt.Sprintf("%d of %d operations changed meanwhile and were skipped",
			len(stale.StaleIDs), stale.Requested)))
	case err != nil:
		return err
	}
	if result.Action == nil {
		if msg, ok := skipMessages[proposal.SkipReason]; ok {
			a.println(cli.SubtleStyle.Render(msg))
		}
		return offerEditUndo(cmd, prompter, pending, edit, yes)
	}
	if yes {
		a.println(cli.FormatSuccess(result.Action.Description))
		return nil
	}

	_, err = prompter.OfferUndo(ctx, pending)
	return err
}

// offerEditUndo makes the direct edit itself reversible when no bulk change
// took its place. Non-interactive runs keep the edit.
func offerEditUndo(cmd *cobra.Command, prompter *cli.Prompter, pending *undo.Manager, edit lock.Edit, yes bool) error {
	if yes {
		return nil
	}
	pending.Register(edit.Description(), edit.Reversal(), edit.TransactionID)
	_, err := prompter.OfferUndo(cmd.Context(), pending)
	return err
}
