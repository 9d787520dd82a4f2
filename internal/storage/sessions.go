package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
)

// CreateSession records a new import session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, session *model.ImportSession) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSession(session); err != nil {
		return err
	}
	if session.Status == "" {
		session.Status = model.SessionDraft
	}
	now := s.now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_sessions (id, file_name, status, imported_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.FileName, string(session.Status), session.ImportedCount,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves an import session by id, counting its drafts.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*model.ImportSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var (
		session model.ImportSession
		status  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.file_name, s.status,
			(SELECT COUNT(*) FROM transactions t WHERE t.session_id = s.id),
			s.created_at, s.updated_at
		FROM import_sessions s WHERE s.id = ?`, id).Scan(
		&session.ID, &session.FileName, &status, &session.ImportedCount,
		&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.Status = model.SessionStatus(status)
	return &session, nil
}

// ListSessions returns every session, newest first.
func (s *SQLiteStorage) ListSessions(ctx context.Context) ([]model.ImportSession, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.file_name, s.status,
			(SELECT COUNT(*) FROM transactions t WHERE t.session_id = s.id),
			s.created_at, s.updated_at
		FROM import_sessions s
		ORDER BY s.created_at DESC, s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.ImportSession
	for rows.Next() {
		var (
			session model.ImportSession
			status  string
		)
		if err := rows.Scan(&session.ID, &session.FileName, &status, &session.ImportedCount,
			&session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.Status = model.SessionStatus(status)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session together with its drafts.
func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete session transactions: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM import_sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("session %s: %w", id, common.ErrNotFound)
		}
		return nil
	})
}

// ConfirmSession finalizes a session: every draft becomes processed and
// immutable from then on.
func (s *SQLiteStorage) ConfirmSession(ctx context.Context, id string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(id, "id"); err != nil {
		return 0, err
	}

	var finalized int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		result, err := tx.ExecContext(ctx, `
			UPDATE import_sessions SET status = ?, updated_at = ? WHERE id = ?`,
			string(model.SessionProcessed), now, id)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("session %s: %w", id, common.ErrNotFound)
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE transactions SET processed = 1, updated_at = ?
			WHERE session_id = ? AND processed = 0`, now, id)
		if err != nil {
			return fmt.Errorf("failed to mark transactions processed: %w", err)
		}
		finalized, _ = result.RowsAffected()
		return nil
	})
	return int(finalized), err
}
