package pattern

import (
	"errors"
	"strings"

	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid mapping rule")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRule rejects a rule before it is stored. Regex patterns are
// compiled here so an uncompilable pattern never reaches matching.
func ValidateRule(rule *Rule) error {
	if rule == nil {
		return common.NewValidationError("rule", "missing rule", ErrInvalidRule)
	}
	rule.Pattern = strings.TrimSpace(rule.Pattern)
	rule.TargetID = strings.TrimSpace(rule.TargetID)

	if err := validate.Struct(rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return common.NewValidationError(verrs[0].Field(), "failed "+verrs[0].Tag()+" check", ErrInvalidRule)
		}
		return common.NewValidationError("rule", err.Error(), ErrInvalidRule)
	}

	if rule.Type == model.RuleRegex {
		if _, err := common.CompileFold(rule.Pattern); err != nil {
			return common.NewValidationError("pattern", "regex does not compile", errors.Join(ErrInvalidRule, err))
		}
	}

	if rule.TargetType == model.TargetOperationType {
		d, err := model.ParseDirection(rule.TargetID)
		if err != nil || !d.Resolved() {
			return common.NewValidationError("target_id",
				"operation type must be income, expense or transfer", ErrInvalidRule)
		}
		rule.TargetID = string(d)
	}
	return nil
}
