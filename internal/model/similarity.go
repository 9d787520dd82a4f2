package model

// SimilarityResult is one candidate scored against a target transaction.
type SimilarityResult struct {
	Candidate      Transaction
	DirectionHint  Direction
	MatchReasons   []string
	Score          float64
	RequiresReview bool
}

// ID returns the candidate identifier.
func (r SimilarityResult) ID() string {
	return r.Candidate.ID
}
