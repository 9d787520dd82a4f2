package similarity

import (
	"github.com/Veraticus/statement-reconciler/internal/model"
)

// Group is a cluster of similar transactions around a seed.
type Group struct {
	Seed    model.Transaction
	Members []model.SimilarityResult
}

// Size counts the seed and its members.
func (g Group) Size() int {
	return len(g.Members) + 1
}

// GroupSimilar clusters a session's transactions. Each transaction not yet
// grouped becomes a seed in input order and collects every remaining
// transaction that clears opts.MinScore against it. Singletons are dropped.
func GroupSimilar(txns []model.Transaction, opts Options) []Group {
	assigned := make(map[string]bool, len(txns))
	var groups []Group

	for i, seed := range txns {
		if assigned[seed.ID] || seed.Processed {
			continue
		}
		pool := make([]model.Transaction, 0, len(txns)-i)
		for _, c := range txns[i+1:] {
			if !assigned[c.ID] {
				pool = append(pool, c)
			}
		}
		members := FindSimilar(seed, pool, opts)
		if len(members) == 0 {
			continue
		}
		assigned[seed.ID] = true
		for _, m := range members {
			assigned[m.ID()] = true
		}
		groups = append(groups, Group{Seed: seed, Members: members})
	}
	return groups
}
