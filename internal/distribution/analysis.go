package distribution

import (
	"math"

	"github.com/rawblock/evalmesh/pkg/models"
)

// Analyze computes the global distribution statistics over a set of
// modes discovered by a Clusterer, plus the points that produced them
// (needed for the mean pairwise distance that defines coverage).
func Analyze(modes []models.Mode, points []Point) models.DistributionAnalysis {
	n := 0
	for _, m := range modes {
		n += len(m.Members)
	}

	entropy := 0.0
	for _, m := range modes {
		p := m.Density
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}

	coverage := meanPairwiseDistance(points)
	diversity := coverage / (entropy + 1)

	stability := 0.0
	if len(modes) > 0 {
		var sum float64
		for _, m := range modes {
			sum += m.Robustness
		}
		stability = sum / float64(len(modes))
	}

	return models.DistributionAnalysis{
		Modes:          modes,
		Entropy:        entropy,
		Coverage:       coverage,
		Diversity:      diversity,
		StabilityScore: stability,
		ModeCount:      len(modes),
	}
}

func meanPairwiseDistance(points []Point) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += euclidean(points[i].Embedding, points[j].Embedding)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
