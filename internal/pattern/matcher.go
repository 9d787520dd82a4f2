package pattern

import (
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/statement-reconciler/internal/model"
)

var _ Evaluator = (*MatcherImpl)(nil)

// MatcherImpl evaluates mapping rules. It is a pure query: nothing it does
// touches usage counters.
type MatcherImpl struct {
	regex   *RegexCache
	aliases model.AliasSet
}

// NewMatcher creates a matcher. Both arguments may be nil.
func NewMatcher(cache *RegexCache, aliases model.AliasSet) *MatcherImpl {
	return &MatcherImpl{regex: cache, aliases: aliases}
}

// Evaluate walks rules in caller order and keeps the first match for each
// target field.
func (m *MatcherImpl) Evaluate(txn model.Transaction, rules []Rule) []Match {
	var (
		matches []Match
		taken   model.FieldSet
	)
	for _, rule := range rules {
		field, err := rule.TargetType.Field()
		if err != nil || taken.Has(field) {
			continue
		}
		if !m.Matches(txn, rule) {
			continue
		}
		taken = taken.Add(field)
		matches = append(matches, Match{Rule: rule, Field: field, Value: rule.TargetID})
	}
	return matches
}

// CountMatches counts pool transactions that at least one rule would fill:
// unprocessed ones whose target field is not locked.
func (m *MatcherImpl) CountMatches(rules []Rule, pool []model.Transaction) int {
	count := 0
	for _, txn := range pool {
		if !txn.Eligible() {
			continue
		}
		for _, match := range m.Evaluate(txn, rules) {
			if !txn.IsLocked(match.Field) {
				count++
				break
			}
		}
	}
	return count
}

// Matches reports whether a single rule matches the transaction.
func (m *MatcherImpl) Matches(txn model.Transaction, rule Rule) bool {
	values := sourceValues(txn, rule)
	for _, v := range values {
		if v == "" {
			continue
		}
		if m.matchValue(v, rule) {
			return true
		}
	}
	return false
}

func (m *MatcherImpl) matchValue(value string, rule Rule) bool {
	switch rule.Type {
	case model.RuleContains:
		return containsFold(value, rule.Pattern)
	case model.RuleEquals:
		return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(rule.Pattern))
	case model.RuleRegex:
		re, err := m.regex.Compile(rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	case model.RuleAlias:
		value = strings.TrimSpace(value)
		for _, syn := range m.aliases.Synonyms(rule.Pattern) {
			if strings.EqualFold(value, strings.TrimSpace(syn)) {
				return true
			}
		}
	}
	return false
}

// sourceValues extracts the text a rule reads. For inn, substring and regex
// rules see both tax ids joined by a space; exact comparisons check each
// side separately.
func sourceValues(txn model.Transaction, rule Rule) []string {
	switch rule.SourceField {
	case model.SourceDescription:
		return []string{txn.Description}
	case model.SourcePayer:
		return []string{txn.Payer}
	case model.SourceReceiver:
		return []string{txn.Receiver}
	case model.SourceINN:
		if rule.Type == model.RuleEquals || rule.Type == model.RuleAlias {
			return []string{txn.PayerINN, txn.ReceiverINN}
		}
		return []string{strings.TrimSpace(txn.PayerINN + " " + txn.ReceiverINN)}
	}
	return nil
}

// inflections are word endings dropped from a single-word pattern so that
// "аренда" also finds "аренды" and "аренду".
const inflections = "аяоеёиыуюьй"

// containsFold is a case-insensitive substring test. A single-word pattern
// of five or more letters also matches by its stem.
func containsFold(value, pattern string) bool {
	v := strings.ToLower(value)
	p := strings.ToLower(strings.TrimSpace(pattern))
	if p == "" {
		return false
	}
	if strings.Contains(v, p) {
		return true
	}
	if strings.ContainsRune(p, ' ') || utf8.RuneCountInString(p) < 5 {
		return false
	}
	last, size := utf8.DecodeLastRuneInString(p)
	if !strings.ContainsRune(inflections, last) {
		return false
	}
	return strings.Contains(v, p[:len(p)-size])
}
