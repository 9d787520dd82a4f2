package similarity

import (
	"regexp"
	"strings"

	"github.com/Veraticus/statement-reconciler/internal/model"
)

// Confidence grades a direction guess.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DirectionGuess is the outcome of DetermineDirection.
type DirectionGuess struct {
	Direction  model.Direction
	Confidence Confidence
	Reason     string
}

// Keyword lists run from most to least specific. A pattern at index i of a
// list of n is worth n-i points.
var (
	incomeKeywords = mustCompileAll(
		`зачислен(?:ие|ия|ен|ены)?\s+(?:средств|денег|сумм)`,
		`зачислен(?:ие|ия|ен|ены)?\s+по\s+терминал`,
		`зачислен(?:ие|ия|ен|ены)?`,
		`поступлен(?:ие|ия|ен|ены)?\s+(?:средств|денег|сумм)`,
		`поступлен(?:ие|ия|ен|ены)?`,
		`возврат\s+(?:средств|денег|сумм)`,
		`возврат`,
		`возмещен(?:ие|ия|ен|ены)?`,
		`выручк[аи]\s+от\s+продаж`,
		`выручк[аи]`,
		`доход`,
		`оплат[аы]?\s+(?:от|от\s+покупател)`,
		`перечислен(?:ие|ия|ен|ены)?\s+(?:на|в)\s+сч[её]т`,
	)
	expenseKeywords = mustCompileAll(
		`комисси[яи]\s+за\s+операци`,
		`комисси[яи]\s+за`,
		`комисси[яи]`,
		`списан(?:ие|ия|ен|ены)?\s+(?:средств|денег|сумм)`,
		`списан(?:ие|ия|ен|ены)?`,
		`оплат[аы]?\s+(?:за|по)\s+(?:услуг|товар|поставк)`,
		`оплат[аы]?\s+(?:за|по)`,
		`платеж\s+(?:за|по)`,
		`перечислен(?:ие|ия|ен|ены)?\s+(?:за|по)\s+(?:услуг|товар|поставк)`,
		`перечислен(?:ие|ия|ен|ены)?\s+(?:за|по)`,
		`уплат[аы]?\s+(?:налог|штраф|пен)`,
		`уплат[аы]?`,
		`взнос`,
		`налог`,
		`штраф`,
		`пен[яи]`,
	)

	commissionOnOperations = regexp.MustCompile(`комисси[яи]\s+за\s+операци`)
	terminalCredit         = regexp.MustCompile(`зачислен(?:ие|ия|ен|ены)?\s+(?:средств\s+|денег\s+)?по\s+терминал`)
	expenseLead            = regexp.MustCompile(`^(?:комисси|списан)`)
	incomeLead             = regexp.MustCompile(`^(?:зачислен|поступлен)`)
	nonWord                = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaces                 = regexp.MustCompile(`\s+`)
)

// minDirectionMargin is how far one side must lead to decide.
const minDirectionMargin = 2

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = spaces.ReplaceAllString(t, " ")
	return nonWord.ReplaceAllString(t, "")
}

func keywordScore(text string, patterns []*regexp.Regexp) int {
	score := 0
	for i, re := range patterns {
		if re.MatchString(text) {
			score += len(patterns) - i
		}
	}
	return score
}

// DetectDirection guesses income or expense from a payment purpose. It
// returns DirectionUnresolved when the keywords do not clearly favor one
// side.
func DetectDirection(purpose string) model.Direction {
	text := normalizeText(purpose)
	if text == "" {
		return model.DirectionUnresolved
	}

	income := keywordScore(text, incomeKeywords)
	expense := keywordScore(text, expenseKeywords)

	if commissionOnOperations.MatchString(text) {
		expense += 10
	}
	if terminalCredit.MatchString(text) {
		income += 10
	}
	if expenseLead.MatchString(text) {
		expense += 5
	}
	if incomeLead.MatchString(text) {
		income += 5
	}

	switch {
	case income-expense >= minDirectionMargin:
		return model.DirectionIncome
	case expense-income >= minDirectionMargin:
		return model.DirectionExpense
	}
	return model.DirectionUnresolved
}

// DetermineDirection resolves a transaction's direction from the company's
// own tax id first, falling back to the payment purpose.
func DetermineDirection(txn model.Transaction, companyTaxID string) DirectionGuess {
	if companyTaxID != "" {
		payerIsCompany := txn.PayerINN == companyTaxID
		receiverIsCompany := txn.ReceiverINN == companyTaxID
		switch {
		case payerIsCompany && receiverIsCompany:
			return DirectionGuess{model.DirectionTransfer, ConfidenceHigh, "payer and receiver are the company"}
		case payerIsCompany:
			return DirectionGuess{model.DirectionExpense, ConfidenceHigh, "company is the payer"}
		case receiverIsCompany:
			return DirectionGuess{model.DirectionIncome, ConfidenceHigh, "company is the receiver"}
		}
	}

	if d := DetectDirection(txn.Description); d.Resolved() {
		return DirectionGuess{d, ConfidenceMedium, "payment purpose keywords"}
	}
	return DirectionGuess{model.DirectionUnresolved, ConfidenceLow, "no signal"}
}
