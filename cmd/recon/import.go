package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/config"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/ofx"
	"github.com/Veraticus/statement-reconciler/internal/pattern"
	"github.com/Veraticus/statement-reconciler/internal/service"
	"github.com/Veraticus/statement-reconciler/internal/similarity"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import OFX statements as draft sessions",
		Long: `Import bank statements from OFX or QFX files. Each file becomes one draft
session. Operation types are detected from the company tax id and the payment
purpose, then the mapping rules fill what they can.

Examples:
  # Import single file
  recon import ~/Downloads/statement_march.ofx

  # Import all statements in a directory
  recon import ~/Downloads/bank/*.ofx

  # Preview without saving
  recon import --dry-run statement.ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImport,
	}

	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().Bool("no-autofill", false, "Skip rule auto-fill after import")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noAutofill, _ := cmd.Flags().GetBool("no-autofill")

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cli.NewInterruptHandler(cmd.ErrOrStderr()).HandleInterrupts(cmd.Context(), "Import", "")
	parser := ofx.NewParser(a.cfg.Company.TaxID, a.cfg.Company.Name)

	for _, path := range files {
		txns, err := parseStatement(ctx, parser, path, a.cfg.Company)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			slog.Warn("No transactions found in file", "file", filepath.Base(path))
			continue
		}

		if dryRun {
			a.println(cli.FormatTitle(fmt.Sprintf("%s: %d operations (dry run)", filepath.Base(path), len(txns))))
			a.println(cli.RenderTransactions(txns))
			continue
		}

		session, err := saveSession(ctx, a.store, filepath.Base(path), txns)
		if err != nil {
			return err
		}
		a.println(cli.FormatSuccess(fmt.Sprintf("Imported %d operations from %s into session %s",
			len(txns), session.FileName, session.ID)))

		stored, err := a.store.GetTransactions(ctx, session.ID, service.TransactionFilter{})
		if err != nil {
			return fmt.Errorf("failed to reload session: %w", err)
		}
		common.LogInfo("Statement imported", common.Fields{
			"session":    session.ID,
			"file":       session.FileName,
			"operations": len(stored),
		})
		if dups := countDuplicates(stored); dups > 0 {
			common.LogWarn("Statement overlaps earlier imports", common.Fields{"session": session.ID, "duplicates": dups})
			a.println(cli.FormatWarning(fmt.Sprintf("%d operations were already imported in another session", dups)))
		}

		if noAutofill {
			continue
		}
		result, err := runAutoFill(ctx, a, stored, false)
		if err != nil {
			return err
		}
		a.println(cli.FormatInfo(fmt.Sprintf("Rules filled %d fields on %d operations", result.FieldsFilled, result.Filled)))
	}
	return nil
}

func expandFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		matches, err := filepath.Glob(config.ExpandPath(arg))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			slog.Warn("No files found matching pattern", "pattern", arg)
			continue
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

// parseStatement reads one OFX file and resolves the operation type of
// every line it can.
func parseStatement(ctx context.Context, parser *ofx.Parser, path string, company config.Company) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	for i := range txns {
		if txns[i].Direction.Resolved() {
			continue
		}
		guess := similarity.DetermineDirection(txns[i], company.CompanyTaxID())
		txns[i].Direction = guess.Direction
		slog.Debug("Detected operation type",
			"id", txns[i].ID,
			"direction", guess.Direction,
			"confidence", guess.Confidence,
			"reason", guess.Reason)
	}
	return txns, nil
}

func saveSession(ctx context.Context, store service.SessionStore, fileName string, txns []model.Transaction) (*model.ImportSession, error) {
	session := &model.ImportSession{
		ID:            uuid.NewString(),
		FileName:      fileName,
		Status:        model.SessionDraft,
		ImportedCount: len(txns),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	for i := range txns {
		txns[i].SessionID = session.ID
	}
	if err := store.SaveTransactions(ctx, txns); err != nil {
		return nil, fmt.Errorf("failed to save transactions: %w", err)
	}
	return session, nil
}

func countDuplicates(txns []model.Transaction) int {
	n := 0
	for _, t := range txns {
		if t.IsDuplicate {
			n++
		}
	}
	return n
}

// runAutoFill applies the rule set to txns with a progress bar.
func runAutoFill(ctx context.Context, a *app, txns []model.Transaction, overwrite bool) (pattern.FillResult, error) {
	cache, err := pattern.NewRegexCache(regexCacheSize)
	if err != nil {
		return pattern.FillResult{}, err
	}
	defer cache.Close()

	bar := cli.NewProgressBar(a.out, len(txns), "Applying rules...")
	filler := pattern.NewAutoFiller(a.store, a.store, cache)
	filler.Overwrite = overwrite
	filler.OnProgress = func(_, _ int) {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
	return filler.Apply(ctx, txns)
}
