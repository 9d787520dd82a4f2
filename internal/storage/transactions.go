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
	"github.com/Veraticus/statement-reconciler/internal/service"
)

const transactionColumns = `
	id, session_id, hash, date, amount, number, description,
	payer, payer_inn, payer_account, receiver, receiver_inn, receiver_account,
	currency, direction, counterparty_id, article_id, account_id, deal_id, department_id,
	locked_fields, is_duplicate, processed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn       model.Transaction
		direction string
		locked    int64
	)
	err := row.Scan(
		&txn.ID, &txn.SessionID, &txn.Hash, &txn.Date, &txn.Amount, &txn.Number, &txn.Description,
		&txn.Payer, &txn.PayerINN, &txn.PayerAccount, &txn.Receiver, &txn.ReceiverINN, &txn.ReceiverAccount,
		&txn.Currency, &direction, &txn.CounterpartyID, &txn.ArticleID, &txn.AccountID, &txn.DealID, &txn.DepartmentID,
		&locked, &txn.IsDuplicate, &txn.Processed, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return txn, err
	}
	txn.Direction = model.Direction(direction)
	txn.LockedFields = model.FieldSet(locked)
	return txn, nil
}

// SaveTransactions inserts draft transactions. A draft whose hash already
// exists in another session is flagged as a duplicate.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		dupStmt, err := tx.PrepareContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE hash = ? AND session_id != ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare duplicate check: %w", err)
		}
		defer func() { _ = dupStmt.Close() }()

		insStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = insStmt.Close() }()

		now := s.now()
		for i := range transactions {
			txn := &transactions[i]
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}

			var existing int
			if err := dupStmt.QueryRowContext(ctx, txn.Hash, txn.SessionID).Scan(&existing); err != nil {
				return fmt.Errorf("failed to check duplicate for %s: %w", txn.ID, err)
			}
			if existing > 0 {
				txn.IsDuplicate = true
			}
			if txn.CreatedAt.IsZero() {
				txn.CreatedAt = now
			}
			txn.UpdatedAt = now

			_, err := insStmt.ExecContext(ctx,
				txn.ID, txn.SessionID, txn.Hash, txn.Date, txn.Amount.String(), txn.Number, txn.Description,
				txn.Payer, txn.PayerINN, txn.PayerAccount, txn.Receiver, txn.ReceiverINN, txn.ReceiverAccount,
				txn.Currency, string(txn.Direction), txn.CounterpartyID, txn.ArticleID, txn.AccountID, txn.DealID, txn.DepartmentID,
				int64(txn.LockedFields), txn.IsDuplicate, txn.Processed, txn.CreatedAt, txn.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransactions returns the session's transactions, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, sessionID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	var (
		where = []string{"session_id = ?"}
		args  = []any{sessionID}
	)
	if filter.UnprocessedOnly {
		where = append(where, "processed = 0")
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, id ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTransactions(ctx, query, args...)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// UpdateTransaction writes changes to one unprocessed transaction. A direct
// user edit passes lock=true, which marks the written fields confirmed. An
// unlocked write never overwrites a confirmed field.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, id string, changes model.Changes, lock bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateChanges(changes); err != nil {
		return err
	}

	set, args := setClause(changes)
	mask := int64(changes.Fields())
	query := `UPDATE transactions SET ` + set + `, updated_at = ?`
	args = append(args, s.now())
	if lock {
		query += `, locked_fields = locked_fields | ? WHERE id = ? AND processed = 0`
		args = append(args, mask, id)
	} else {
		query += ` WHERE id = ? AND processed = 0 AND (locked_fields & ?) = 0`
		args = append(args, id, mask)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetTransactionByID(ctx, id); getErr != nil {
			return getErr
		}
		return &common.StaleRecordError{Operation: "update", StaleIDs: []string{id}, Requested: 1}
	}
	return nil
}

// BulkUpdate writes the same changes to every eligible id inside one
// database transaction. Ineligible rows are skipped, not fatal.
func (s *SQLiteStorage) BulkUpdate(ctx context.Context, ids []string, changes model.Changes) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids", ErrEmptySlice)
	}
	if err := validateChanges(changes); err != nil {
		return nil, err
	}

	set, setArgs := setClause(changes)
	mask := int64(changes.Fields())
	query := `UPDATE transactions SET ` + set + `, updated_at = ?
		WHERE id = ? AND processed = 0 AND (locked_fields & ?) = 0`

	var applied []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare bulk update: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := s.now()
		for _, id := range ids {
			args := append(append([]any{}, setArgs...), now, id, mask)
			result, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return fmt.Errorf("failed to update transaction %s: %w", id, err)
			}
			if n, _ := result.RowsAffected(); n == 1 {
				applied = append(applied, id)
			} else {
				slog.Warn("Skipped ineligible transaction in bulk update", "id", id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Restore writes captured values and lock bits back in one database
// transaction. Processed or missing rows are skipped, as are rows whose
// lock bits on the snapshot fields changed after the mutation.
func (s *SQLiteStorage) Restore(ctx context.Context, snapshots []model.FieldSnapshot) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: snapshots", ErrEmptySlice)
	}

	var restored []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		for _, snap := range snapshots {
			if err := validateChanges(snap.Previous); err != nil {
				return fmt.Errorf("snapshot for %s: %w", snap.TransactionID, err)
			}
			set, args := setClause(snap.Previous)
			mask := int64(snap.Previous.Fields())
			locks := int64(snap.PreviousLocks) & mask
			applied := int64(snap.AppliedLocks) & mask
			args = append(args, mask, locks, now, snap.TransactionID, mask, applied)

			result, err := tx.ExecContext(ctx, `UPDATE transactions SET `+set+`,
				locked_fields = (locked_fields & ~?) | ?, updated_at = ?
				WHERE id = ? AND processed = 0 AND (locked_fields & ?) = ?`, args...)
			if err != nil {
				return fmt.Errorf("failed to restore transaction %s: %w", snap.TransactionID, err)
			}
			if n, _ := result.RowsAffected(); n == 1 {
				restored = append(restored, snap.TransactionID)
			} else {
				slog.Warn("Skipped changed transaction in restore", "id", snap.TransactionID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// setClause renders "col = ?" pairs in field order so statements are stable.
func setClause(changes model.Changes) (string, []any) {
	parts := make([]string, 0, len(changes))
	args := make([]any, 0, len(changes))
	for _, f := range model.AllFields {
		v, ok := changes[f]
		if !ok {
			continue
		}
		parts = append(parts, f.Column()+" = ?")
		args = append(args, v)
	}
	return strings.Join(parts, ", "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
