package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/statement-reconciler/internal/cli"
	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/pattern"
	"github.com/Veraticus/statement-reconciler/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage mapping rules",
		Long: `Mapping rules fill operation fields automatically on import and on
'recon autofill'. Rules are tried most recently used first; the first match
per field wins.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesEditCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesPreviewCmd())
	cmd.AddCommand(rulesCaptureCmd())
	cmd.AddCommand(rulesAliasCmd())

	return cmd
}

func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", string(model.RuleContains), "Match type (contains, equals, regex, alias)")
	cmd.Flags().String("source", string(model.SourceDescription), "Text to match (description, receiver, payer, inn)")
	cmd.Flags().String("pattern", "", "Pattern to look for")
	cmd.Flags().String("target", string(model.TargetArticle), "Field to fill (article, counterparty, account, operationType)")
	cmd.Flags().String("target-id", "", "Value to fill in")
	cmd.Flags().String("target-name", "", "Display name of the value")
}

// applyRuleFlags copies the flags the user set onto rule. With all set,
// every flag is copied including defaults.
func applyRuleFlags(cmd *cobra.Command, rule *model.MappingRule, all bool) {
	set := func(name string, dst *string) {
		if all || cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	ruleType, source, target := string(rule.Type), string(rule.SourceField), string(rule.TargetType)
	set("type", &ruleType)
	set("source", &source)
	set("target", &target)
	set("pattern", &rule.Pattern)
	set("target-id", &rule.TargetID)
	set("target-name", &rule.TargetName)
	rule.Type = model.RuleType(ruleType)
	rule.SourceField = model.SourceField(source)
	rule.TargetType = model.TargetType(target)
}

func parseRuleID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, common.NewUserError(fmt.Sprintf("invalid rule id %q", arg), err)
	}
	return id, nil
}

func renderRules(rules []model.MappingRule) string {
	rows := make([][]string, len(rules))
	for i, r := range rules {
		lastUsed := "never"
		if r.LastUsedAt != nil {
			lastUsed = r.LastUsedAt.Format("2006-01-02")
		}
		target := r.TargetID
		if r.TargetName != "" {
			target = fmt.Sprintf("%s (%s)", r.TargetName, r.TargetID)
		}
		id := "new"
		if r.ID != 0 {
			id = strconv.FormatInt(r.ID, 10)
		}
		rows[i] = []string{
			id,
			string(r.Type),
			string(r.SourceField),
			r.Pattern,
			string(r.TargetType),
			target,
			strconv.Itoa(r.UsageCount),
			lastUsed,
		}
	}
	return cli.RenderTable([]string{"ID", "Type", "Source", "Pattern", "Fills", "Value", "Uses", "Last used"}, rows)
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mapping rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			rules, err := a.store.ListRules(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rules) == 0 {
				a.println(cli.InfoStyle.Render("No rules yet. Use 'recon rules add' or 'recon rules capture'."))
				return nil
			}
			a.println(renderRules(rules))
			return nil
		},
	}
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a mapping rule",
		Long: `Add a mapping rule.

Examples:
  recon rules add --pattern "аренда офиса" --target article --target-id art-rent
  recon rules add --type regex --source receiver --pattern "^ООО\s+Ландлорд" \
    --target counterparty --target-id cp-17 --target-name "ООО Ландлорд"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			var rule model.MappingRule
			applyRuleFlags(cmd, &rule, true)
			if err := a.store.CreateRule(cmd.Context(), &rule); err != nil {
				return fmt.Errorf("failed to add rule: %w", err)
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("Added rule %d", rule.ID)))
			return nil
		},
	}
	addRuleFlags(cmd)
	return cmd
}

func rulesEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <rule-id>",
		Short: "Change a mapping rule; only given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			rule, err := a.store.GetRule(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load rule: %w", err)
			}
			applyRuleFlags(cmd, rule, false)
			if err := a.store.UpdateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to update rule: %w", err)
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("Updated rule %d", rule.ID)))
			return nil
		},
	}
	addRuleFlags(cmd)
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a mapping rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DeleteRule(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete rule: %w", err)
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("Deleted rule %d", id)))
			return nil
		},
	}
}

func rulesPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <session-id>",
		Short: "Show which operations a rule would fill, without saving anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			var rule model.MappingRule
			applyRuleFlags(cmd, &rule, true)
			if err := pattern.ValidateRule(&rule); err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := a.store.GetTransactions(ctx, args[0], service.TransactionFilter{UnprocessedOnly: true})
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			aliases, err := a.store.ListAliases(ctx)
			if err != nil {
				return fmt.Errorf("failed to load aliases: %w", err)
			}
			cache, err := pattern.NewRegexCache(regexCacheSize)
			if err != nil {
				return err
			}
			defer cache.Close()

			matcher := pattern.NewMatcher(cache, aliases)
			var hits []model.Transaction
			for _, txn := range pool {
				if matcher.Matches(txn, rule) {
					hits = append(hits, txn)
				}
			}

			fillable := matcher.CountMatches([]pattern.Rule{rule}, pool)
			a.println(cli.FormatInfo(fmt.Sprintf("Matches %d operations; %d can be filled", len(hits), fillable)))
			if len(hits) > 0 {
				a.println(cli.RenderTransactions(hits))
			}
			return nil
		},
	}
	addRuleFlags(cmd)
	return cmd
}

func rulesCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <transaction-id>",
		Short: "Create rules from a categorized operation",
		Long: `Derive contains-rules from an operation's counterparty, article and
account so similar lines are filled on the next import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			txn, err := a.store.GetTransactionByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load transaction: %w", err)
			}

			rules := pattern.RulesFromTransaction(*txn)
			if len(rules) == 0 {
				a.println(cli.InfoStyle.Render("Nothing to capture: set a counterparty, article or account first."))
				return nil
			}
			a.println(renderRules(rules))

			if !yes {
				ok, err := cli.NewPrompter(cmd.InOrStdin(), a.out).Confirm(ctx, fmt.Sprintf("Save %d rules?", len(rules)))
				if err != nil {
					return err
				}
				if !ok {
					a.println(cli.FormatInfo("No rules saved."))
					return nil
				}
			}

			for i := range rules {
				if err := a.store.CreateRule(ctx, &rules[i]); err != nil {
					return fmt.Errorf("failed to save rule: %w", err)
				}
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("Saved %d rules", len(rules))))
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Save without asking")
	return cmd
}

func rulesAliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage synonyms used by alias rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <canonical> <alias>",
		Short: "Register a synonym for a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.AddAlias(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("failed to add alias: %w", err)
			}
			a.println(cli.FormatSuccess(fmt.Sprintf("%q now also matches %q", args[0], args[1])))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered synonyms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			aliases, err := a.store.ListAliases(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list aliases: %w", err)
			}
			if len(aliases) == 0 {
				a.println(cli.InfoStyle.Render("No aliases yet."))
				return nil
			}

			canonical := make([]string, 0, len(aliases))
			for c := range aliases {
				canonical = append(canonical, c)
			}
			sort.Strings(canonical)
			rows := make([][]string, len(canonical))
			for i, c := range canonical {
				rows[i] = []string{c, strings.Join(aliases[c], ", ")}
			}
			a.println(cli.RenderTable([]string{"Pattern", "Also matches"}, rows))
			return nil
		},
	})

	return cmd
}
