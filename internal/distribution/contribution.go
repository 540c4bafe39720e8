package distribution

import (
	"math"
	"sort"

	"github.com/rawblock/evalmesh/pkg/models"
)

// ConstraintChecker validates an output against its declared schema and
// safety check (§4.2's constraintValid predicate). A nil checker treats
// every non-empty output as valid.
type ConstraintChecker func(outputID string, output []byte) bool

// ScoreContributions computes the per-output (robustness, novelty,
// diversity, constraintValid, total) tuple for every point in a
// distribution, per §4.2.
func ScoreContributions(
	points []Point,
	analysis models.DistributionAnalysis,
	weights models.ContributionWeights,
	outputs map[string][]byte,
	isValid ConstraintChecker,
) []models.ContributionScore {
	byID := make(map[string]Point, len(points))
	for _, p := range points {
		byID[p.OutputID] = p
	}

	dimNorm := math.Sqrt(float64(dim(points)))
	if dimNorm == 0 {
		dimNorm = 1
	}

	scores := make([]models.ContributionScore, 0, len(points))
	for _, p := range points {
		m := nearestMode(p.Embedding, analysis.Modes)

		robustness := 0.0
		if m != nil {
			d := euclidean(p.Embedding, m.Center)
			robustness = m.Density * m.Robustness * (1 - math.Min(d/dimNorm, 1))
		}

		novelty := noveltyScore(p, points, analysis.Modes)
		diversityScore := math.Min(meanPairwiseDistanceFrom(p, points)/2, 1)

		valid := len(output(outputs, p.OutputID)) > 0
		if isValid != nil {
			valid = valid && isValid(p.OutputID, output(outputs, p.OutputID))
		}

		total := 0.0
		if valid {
			total = weights.Robustness*robustness + weights.Novelty*novelty + weights.Diversity*diversityScore
		}

		scores = append(scores, models.ContributionScore{
			OutputID:               p.OutputID,
			RobustnessContribution: robustness,
			NoveltyContribution:    novelty,
			DiversityContribution:  diversityScore,
			ConstraintValid:        valid,
			TotalContribution:      total,
		})
	}
	return scores
}

func output(outputs map[string][]byte, id string) []byte { return outputs[id] }

func dim(points []Point) int {
	if len(points) == 0 {
		return 0
	}
	return len(points[0].Embedding)
}

func nearestMode(e []float64, modes []models.Mode) *models.Mode {
	if len(modes) == 0 {
		return nil
	}
	best := &modes[0]
	bestDist := euclidean(e, modes[0].Center)
	for i := 1; i < len(modes); i++ {
		d := euclidean(e, modes[i].Center)
		if d < bestDist {
			bestDist = d
			best = &modes[i]
		}
	}
	return best
}

// noveltyScore = (min_m d(e, center(m)) / 2) * (1 - localDensity_k(e)),
// k=5, localDensity = 1/(1 + meanKNN).
func noveltyScore(p Point, points []Point, modes []models.Mode) float64 {
	minModeDist := math.Inf(1)
	for _, m := range modes {
		d := euclidean(p.Embedding, m.Center)
		if d < minModeDist {
			minModeDist = d
		}
	}
	if math.IsInf(minModeDist, 1) {
		minModeDist = 0
	}

	const k = 5
	dists := make([]float64, 0, len(points)-1)
	for _, other := range points {
		if other.OutputID == p.OutputID {
			continue
		}
		dists = append(dists, euclidean(p.Embedding, other.Embedding))
	}
	sort.Float64s(dists)
	if len(dists) > k {
		dists = dists[:k]
	}
	meanKNN := 0.0
	if len(dists) > 0 {
		var sum float64
		for _, d := range dists {
			sum += d
		}
		meanKNN = sum / float64(len(dists))
	}
	localDensity := 1 / (1 + meanKNN)

	return (minModeDist / 2) * (1 - localDensity)
}

func meanPairwiseDistanceFrom(p Point, points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var sum float64
	var count int
	for _, other := range points {
		if other.OutputID == p.OutputID {
			continue
		}
		sum += euclidean(p.Embedding, other.Embedding)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
