package engine

import (
	"math/rand/v2"
	"slices"
)

// TallyVotes picks the night victim from voter -> target entries. The most
// voted target wins; ties are broken uniformly at random.
func TallyVotes(votes map[string]string, rng *rand.Rand) (string, bool) {
	if len(votes) == 0 {
		return "", false
	}

	counts := make(map[string]int, len(votes))
	best := 0
	for _, target := range votes {
		counts[target]++
		best = max(best, counts[target])
	}

	tied := make([]string, 0, len(counts))
	for target, n := range counts {
		if n == best {
			tied = append(tied, target)
		}
	}
	slices.Sort(tied) // map order must not leak into a seeded draw

	return tied[rng.IntN(len(tied))], true
}

// LethalVotesComplete reports whether every alive member of the lethal group
// has a recorded vote. An empty group never completes.
func LethalVotesComplete(votes map[string]string, group []string) bool {
	if len(group) == 0 {
		return false
	}
	for _, id := range group {
		if _, ok := votes[id]; !ok {
			return false
		}
	}
	return true
}
