package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/pattern"
)

const ruleColumns = `id, rule_type, source_field, pattern, target_type, target_id, target_name,
	usage_count, last_used_at, created_at, updated_at`

func scanRule(row rowScanner) (model.MappingRule, error) {
	var (
		rule                     model.MappingRule
		ruleType, source, target string
		lastUsed                 sql.NullTime
	)
	err := row.Scan(&rule.ID, &ruleType, &source, &rule.Pattern, &target, &rule.TargetID, &rule.TargetName,
		&rule.UsageCount, &lastUsed, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return rule, err
	}
	rule.Type = model.RuleType(ruleType)
	rule.SourceField = model.SourceField(source)
	rule.TargetType = model.TargetType(target)
	if lastUsed.Valid {
		t := lastUsed.Time
		rule.LastUsedAt = &t
	}
	return rule, nil
}

// CreateRule validates and stores a new mapping rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := pattern.ValidateRule(rule); err != nil {
		return err
	}

	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO mapping_rules (rule_type, source_field, pattern, target_type, target_id, target_name,
			usage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		string(rule.Type), string(rule.SourceField), rule.Pattern, string(rule.TargetType),
		rule.TargetID, rule.TargetName, now, now)
	if err != nil {
		return fmt.Errorf("failed to create mapping rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get mapping rule ID: %w", err)
	}
	rule.ID = id
	rule.UsageCount = 0
	rule.LastUsedAt = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// GetRule retrieves a mapping rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM mapping_rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns every rule in evaluation priority: most recently used
// first, then by usage count, then by id.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.MappingRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM mapping_rules
		ORDER BY last_used_at IS NULL, last_used_at DESC, usage_count DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.MappingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mapping rules: %w", err)
	}
	return rules, nil
}

// UpdateRule rewrites a rule's matching definition. Usage metadata is kept.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.MappingRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := pattern.ValidateRule(rule); err != nil {
		return err
	}

	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE mapping_rules
		SET rule_type = ?, source_field = ?, pattern = ?, target_type = ?, target_id = ?, target_name = ?,
			updated_at = ?
		WHERE id = ?`,
		string(rule.Type), string(rule.SourceField), rule.Pattern, string(rule.TargetType),
		rule.TargetID, rule.TargetName, now, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update mapping rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping rule %d: %w", rule.ID, common.ErrNotFound)
	}
	rule.UpdatedAt = now
	return nil
}

// DeleteRule removes a mapping rule.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM mapping_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mapping rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// IncrementRuleUsage bumps the usage counter and stamps the last use.
func (s *SQLiteStorage) IncrementRuleUsage(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mapping_rules SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment rule usage: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping rule %d: %w", id, common.ErrNotFound)
	}
	slog.Debug("Incremented rule usage", "rule_id", id)
	return nil
}

// AddAlias registers alias as a synonym of canonical.
func (s *SQLiteStorage) AddAlias(ctx context.Context, canonical, alias string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(canonical, "canonical"); err != nil {
		return err
	}
	if err := validateString(alias, "alias"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO aliases (canonical, alias) VALUES (?, ?)`,
		strings.TrimSpace(canonical), strings.TrimSpace(alias))
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

// ListAliases loads the alias table keyed by lower-cased canonical name.
func (s *SQLiteStorage) ListAliases(ctx context.Context) (model.AliasSet, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT canonical, alias FROM aliases ORDER BY canonical, alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	aliases := make(model.AliasSet)
	for rows.Next() {
		var canonical, alias string
		if err := rows.Scan(&canonical, &alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		key := strings.ToLower(canonical)
		aliases[key] = append(aliases[key], alias)
	}
	return aliases, rows.Err()
}
