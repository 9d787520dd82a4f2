// Package similarity scores draft transactions against a target so one
// confirmed edit can be offered to the operations that look like it.
package similarity

import (
	"math"
	"sort"
	"time"

	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/shopspring/decimal"
)

// Component weights.
const (
	pointsAmountExact    = 30
	pointsAmountNear     = 15
	pointsSameDay        = 20
	pointsNearDay        = 10
	pointsSameMonth      = 5
	pointsCounterparty   = 25
	pointsDescriptionMax = 20
	pointsDirection      = 5

	// Two present descriptions that share less than this are unrelated.
	minDescriptionRatio = 0.3
	// Penalty for unrelated descriptions.
	unrelatedDescriptionPenalty = 40

	nearBusinessDays = 3
	nearCalendarDays = 30
)

var amountTolerance = decimal.NewFromFloat(0.01)

// Reason tags.
const (
	ReasonSameAmount         = "same amount"
	ReasonAmountNear         = "amount within 1%"
	ReasonSameDay            = "same day"
	ReasonDateNear           = "date within 3 days"
	ReasonDateMonth          = "date within 30 days"
	ReasonSameCounterparty   = "same counterparty INN"
	ReasonSelfTransfer       = "self-transfer INN"
	ReasonSameDescription    = "same description"
	ReasonSimilarDescription = "similar description"
	ReasonSameDirection      = "same direction"
)

// Options control a similarity search.
type Options struct {
	// CompanyTaxID identifies self-transfers. Optional.
	CompanyTaxID string
	// MinScore is the inclusion threshold in [0,100].
	MinScore float64
	// Field, when set, excludes candidates that have it locked.
	Field model.Field
}

type component struct {
	tag    string
	points float64
	order  int
}

// Score rates one candidate against the target without applying any
// threshold.
func Score(target, candidate model.Transaction, companyTaxID string) model.SimilarityResult {
	var (
		parts  []component
		review bool
		total  float64
	)
	add := func(order int, tag string, points float64) {
		if points > 0 {
			parts = append(parts, component{tag: tag, points: points, order: order})
			total += points
		}
	}

	tag, points := scoreAmount(target.Amount, candidate.Amount)
	add(0, tag, points)

	key1, key2 := counterpartyKey(target, companyTaxID), counterpartyKey(candidate, companyTaxID)
	switch {
	case key1 != "" && key1 == key2:
		tag = ReasonSameCounterparty
		if key1 == companyTaxID {
			tag = ReasonSelfTransfer
		}
		add(1, tag, pointsCounterparty)
	case key1 != "" && key2 != "":
		review = true
	}

	tag, points = scoreDate(target.Date, candidate.Date)
	add(2, tag, points)

	// A description that cleans down to nothing counts as missing.
	ca, cb := CleanDescription(target.Description), CleanDescription(candidate.Description)
	if ca != "" && cb != "" {
		r := cleanedRatio(ca, cb)
		if r >= minDescriptionRatio {
			tag = ReasonSimilarDescription
			if r >= 1 {
				tag = ReasonSameDescription
			}
			add(3, tag, pointsDescriptionMax*r)
		} else {
			total -= unrelatedDescriptionPenalty
			review = true
		}
	}

	if target.Direction.Resolved() && candidate.Direction.Resolved() {
		if target.Direction == candidate.Direction {
			add(4, ReasonSameDirection, pointsDirection)
		} else {
			review = true
		}
	}

	if target.EffectiveCurrency() != candidate.EffectiveCurrency() {
		review = true
	}

	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].points != parts[j].points {
			return parts[i].points > parts[j].points
		}
		return parts[i].order < parts[j].order
	})
	reasons := make([]string, len(parts))
	for i, p := range parts {
		reasons[i] = p.tag
	}

	return model.SimilarityResult{
		Candidate:      candidate,
		Score:          clampScore(total),
		MatchReasons:   reasons,
		RequiresReview: review,
		DirectionHint:  DetectDirection(candidate.Description),
	}
}

// FindSimilar returns the candidates scoring at least opts.MinScore against
// target, best first. Ties go to the more recent date, then to the smaller
// amount difference, then to the lower id, so the order is total. An empty
// pool yields an empty result.
func FindSimilar(target model.Transaction, candidates []model.Transaction, opts Options) []model.SimilarityResult {
	results := make([]model.SimilarityResult, 0)
	for _, c := range candidates {
		if c.ID == target.ID || c.Processed {
			continue
		}
		if opts.Field.Valid() && c.IsLocked(opts.Field) {
			continue
		}
		r := Score(target, c, opts.CompanyTaxID)
		if r.Score >= opts.MinScore {
			results = append(results, r)
		}
	}

	targetAmount := target.Amount.Abs()
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Candidate.Date.Equal(b.Candidate.Date) {
			return a.Candidate.Date.After(b.Candidate.Date)
		}
		da := a.Candidate.Amount.Abs().Sub(targetAmount).Abs()
		db := b.Candidate.Amount.Abs().Sub(targetAmount).Abs()
		if cmp := da.Cmp(db); cmp != 0 {
			return cmp < 0
		}
		return a.Candidate.ID < b.Candidate.ID
	})
	return results
}

func scoreAmount(a, b decimal.Decimal) (string, float64) {
	a, b = a.Abs(), b.Abs()
	if a.IsZero() || b.IsZero() {
		return "", 0
	}
	if a.Equal(b) {
		return ReasonSameAmount, pointsAmountExact
	}
	larger := decimal.Max(a, b)
	if a.Sub(b).Abs().LessThanOrEqual(larger.Mul(amountTolerance)) {
		return ReasonAmountNear, pointsAmountNear
	}
	return "", 0
}

func scoreDate(a, b time.Time) (string, float64) {
	if a.IsZero() || b.IsZero() {
		return "", 0
	}
	da, db := civilDay(a), civilDay(b)
	if db.Before(da) {
		da, db = db, da
	}
	calendarDays := int(db.Sub(da).Hours() / 24)
	switch {
	case calendarDays == 0:
		return ReasonSameDay, pointsSameDay
	case calendarDays > nearCalendarDays:
		return "", 0
	case businessDaysBetween(da, db) <= nearBusinessDays:
		return ReasonDateNear, pointsNearDay
	}
	return ReasonDateMonth, pointsSameMonth
}

// civilDay drops the clock so comparisons are by calendar date.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// businessDaysBetween counts weekdays in (from, to]. Payments booked over a
// weekend land on the next banking day.
func businessDaysBetween(from, to time.Time) int {
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// counterpartyKey picks the tax id of the other side of the operation.
func counterpartyKey(t model.Transaction, companyTaxID string) string {
	switch t.Direction {
	case model.DirectionExpense:
		return t.ReceiverINN
	case model.DirectionIncome:
		return t.PayerINN
	}
	if companyTaxID != "" {
		switch {
		case t.PayerINN == companyTaxID && t.ReceiverINN == companyTaxID:
			return companyTaxID
		case t.PayerINN == companyTaxID:
			return t.ReceiverINN
		case t.ReceiverINN == companyTaxID:
			return t.PayerINN
		}
	}
	if t.PayerINN != "" {
		return t.PayerINN
	}
	return t.ReceiverINN
}

func clampScore(v float64) float64 {
	v = math.Round(v*100) / 100
	return math.Max(0, math.Min(100, v))
}
