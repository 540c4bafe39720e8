package distribution

import (
	"sort"

	"github.com/rawblock/evalmesh/pkg/models"
)

// PreFilterByPreference scores every constraint-valid output as
// alpha*robustness + beta*novelty + gamma*diversity and returns the top-N
// outputIds, highest first. Used both by §4.1's pre_filter_for_human_selection
// and directly by callers that only need a ranked shortlist.
func PreFilterByPreference(scores []models.ContributionScore, weights models.PreferenceWeights, topN int) []string {
	w := weights.Normalized()

	type ranked struct {
		id    string
		score float64
	}
	var candidates []ranked
	for _, s := range scores {
		if !s.ConstraintValid {
			continue
		}
		score := w.Alpha*s.RobustnessContribution + w.Beta*s.NoveltyContribution + w.Gamma*s.DiversityContribution
		candidates = append(candidates, ranked{id: s.OutputID, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topN > len(candidates) || topN <= 0 {
		topN = len(candidates)
	}
	out := make([]string, topN)
	for i := 0; i < topN; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// ResolvePreference maps a named preference to its weight triple, or
// returns the custom weights normalized if name is empty/"custom".
func ResolvePreference(name string, custom *models.PreferenceWeights) models.PreferenceWeights {
	switch name {
	case "safe":
		return models.PreferenceSafe
	case "novel":
		return models.PreferenceNovel
	case "diverse":
		return models.PreferenceDiverse
	case "balanced":
		return models.PreferenceBalanced
	default:
		if custom != nil {
			return custom.Normalized()
		}
		return models.PreferenceBalanced
	}
}
