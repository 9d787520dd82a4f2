package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage import sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	cmd.AddCommand(sessionsConfirmCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List import sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.store.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(sessions) == 0 {
				a.println(cli.InfoStyle.Render("No sessions yet. Use 'recon import' to create one."))
				return nil
			}

			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{
					s.ID,
					s.FileName,
					string(s.Status),
					strconv.Itoa(s.ImportedCount),
					s.CreatedAt.Format("2006-01-02 15:04"),
				}
			}
			a.println(cli.RenderTable([]string{"ID", "File", "Status", "Operations", "Imported"}, rows))
			return nil
		},
	}
}

func sessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			session, err := a.store.GetSession(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			txns, err := a.store.GetTransactions(ctx, session.ID, service.TransactionFilter{})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			a.println(cli.FormatTitle(fmt.Sprintf("%s (%s)", session.FileName, session.Status)))
			a.println(cli.SubtleStyle.Render(fmt.Sprintf("%s · imported %s · %d operations",
				session.ID, session.CreatedAt.Format("2006-01-02 15:04"), session.ImportedCount)))
			a.println(cli.RenderTransactions(txns))
			return nil
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and all its draft operations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if !yes {
				prompter := cli.NewPrompter(cmd.InOrStdin(), a.out)
				ok, err := prompter.Confirm(ctx, fmt.Sprintf("Delete session %s and its drafts?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					a.println(cli.FormatInfo("Nothing deleted."))
					return nil
				}
			}

			if err := a.store.DeleteSession(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			a.println(cli.FormatSuccess("Deleted session " + args[0]))
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	return cmd
}

func sessionsConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <session-id>",
		Short: "Finalize a session; its operations can no longer change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.store.ConfirmSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to confirm session: %w", err)
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("Confirmed %d operations", n)))
			return nil
		},
	}
}
