// Package storage provides the SQLite persistence layer for import sessions,
// draft transactions, mapping rules and aliases.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/go-playground/validator/v10"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidSession     = errors.New("invalid import session")
	ErrEmptyChanges       = errors.New("no fields to update")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single draft transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.Date.IsZero() {
		return common.NewValidationError("date", "missing date", ErrInvalidTransaction)
	}
	if err := validate.Struct(txn); err != nil {
		return fieldError(err, ErrInvalidTransaction)
	}
	return nil
}

// validateChanges rejects empty or unknown-field change sets.
func validateChanges(changes model.Changes) error {
	if len(changes) == 0 {
		return ErrEmptyChanges
	}
	for f, v := range changes {
		if !f.Valid() {
			return common.NewValidationError(f.String(), "unknown field", ErrInvalidTransaction)
		}
		if f == model.FieldDirection {
			if _, err := model.ParseDirection(v); err != nil {
				return common.NewValidationError(f.String(), err.Error(), ErrInvalidTransaction)
			}
		}
	}
	return nil
}

// validateSession validates an import session.
func validateSession(session *model.ImportSession) error {
	if session == nil {
		return fmt.Errorf("%w: session", ErrNilParameter)
	}
	if strings.TrimSpace(session.ID) == "" {
		return common.NewValidationError("id", "missing id", ErrInvalidSession)
	}
	if strings.TrimSpace(session.FileName) == "" {
		return common.NewValidationError("file_name", "missing file name", ErrInvalidSession)
	}
	return nil
}

// fieldError converts the first validator failure into a ValidationError.
func fieldError(err error, sentinel error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return common.NewValidationError(fe.Field(), "failed "+fe.Tag()+" check", sentinel)
	}
	return common.NewValidationError("", err.Error(), sentinel)
}
