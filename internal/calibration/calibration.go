// Package calibration implements the validator-calibration service of
// §4.5: grading validators by estimator quality rather than agreement.
package calibration

import (
	"math"
	"sync"

	"github.com/rawblock/evalmesh/pkg/models"
)

// HistoricalMean tracks a validator's running mean score, needed for
// PredictiveConsistency's "thereafter" branch.
type HistoricalMean struct {
	Mean  float64
	Count int
}

// ConsistencyAndUpdate folds a new score into the running mean and returns the
// predictive-consistency contribution for this observation.
func (h *HistoricalMean) ConsistencyAndUpdate(currentMean float64) float64 {
	var consistency float64
	if h.Count == 0 {
		consistency = 0.7
	} else {
		consistency = 1 - math.Min(math.Abs(currentMean-h.Mean)/100, 1)
	}
	h.Mean = (h.Mean*float64(h.Count) + currentMean) / float64(h.Count+1)
	h.Count++
	return consistency
}

// ValidatorSample is the per-validator input to Calibrate: its modes
// (for stability), its total contributions (for the variance term), and
// its raw scores/confidences (for manipulation resistance).
type ValidatorSample struct {
	Address             string
	Modes               []models.Mode
	TotalContributions  []float64
	Scores              []float64
	Confidences         []float64
	MethodID            string
	CurrentMeanScore    float64
}

// Calibrate computes ValidatorCalibrationMetrics for every sample, given
// the running historical means keyed by address (mutated in place) and
// the population-wide method-id counts needed for methodUniqueness.
func Calibrate(samples []ValidatorSample, histories map[string]*HistoricalMean) []models.ValidatorCalibrationMetrics {
	methodCounts := make(map[string]int)
	for _, s := range samples {
		methodCounts[s.MethodID]++
	}
	total := len(samples)

	out := make([]models.ValidatorCalibrationMetrics, 0, len(samples))
	for _, s := range samples {
		stability := stabilityScore(s.Modes, s.TotalContributions)
		manip := manipulationResistance(s.Scores, s.Confidences)

		hist, ok := histories[s.Address]
		if !ok {
			hist = &HistoricalMean{}
			histories[s.Address] = hist
		}
		consistency := hist.ConsistencyAndUpdate(s.CurrentMeanScore)

		uniqueness := 1.0
		if total > 0 {
			uniqueness = 1 - float64(methodCounts[s.MethodID])/float64(total)
		}

		score := 0.30*stability + 0.25*manip + 0.25*consistency + 0.20*uniqueness
		out = append(out, models.ValidatorCalibrationMetrics{
			ValidatorAddress:       s.Address,
			Stability:              stability,
			ManipulationResistance: manip,
			PredictiveConsistency:  consistency,
			MethodUniqueness:       uniqueness,
			CalibrationScore:       score,
			RewardMultiplier:       clamp(0.5+1.5*score, 0.1, 2.0),
		})
	}
	return out
}

// Store wraps Calibrate's historical-means map with a mutex, mirroring
// reputation.Store's shape, so one long-lived instance can serve
// successive calibration rounds across tasks without a caller having to
// thread the histories map itself.
type Store struct {
	mu        sync.Mutex
	histories map[string]*HistoricalMean
}

// NewStore returns an empty calibration store.
func NewStore() *Store {
	return &Store{histories: make(map[string]*HistoricalMean)}
}

// Calibrate runs Calibrate against this store's histories, serialized
// against concurrent callers.
func (s *Store) Calibrate(samples []ValidatorSample) []models.ValidatorCalibrationMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Calibrate(samples, s.histories)
}

func stabilityScore(modes []models.Mode, totalContributions []float64) float64 {
	var meanRobustness float64
	if len(modes) > 0 {
		var sum float64
		for _, m := range modes {
			sum += m.Robustness
		}
		meanRobustness = sum / float64(len(modes))
	}
	contribStability := 1 / (1 + variance(totalContributions))
	return (meanRobustness + contribStability) / 2
}

// manipulationResistance averages two diversity terms, each an
// increasing function of the standard deviation over the validator's
// scores/confidences: higher spread reads as less manipulable behavior.
func manipulationResistance(scores, confidences []float64) float64 {
	scoreDiv := diversityFromStdDev(scores, 50)
	confDiv := diversityFromStdDev(confidences, 1)
	return (scoreDiv + confDiv) / 2
}

func diversityFromStdDev(values []float64, scaleMax float64) float64 {
	if len(values) < 2 {
		return 0.5
	}
	sd := math.Sqrt(variance(values))
	return clamp(sd/scaleMax, 0, 1)
}

func variance(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	m := sum / float64(len(vs))
	var sq float64
	for _, v := range vs {
		sq += (v - m) * (v - m)
	}
	return sq / float64(len(vs))
}

// AnalyzeMethodDiversity computes the population-level diversity report
// of §4.5: diversityScore = H/H_max over the distribution of methodIds.
func AnalyzeMethodDiversity(methodIDs []string) models.MethodDiversityReport {
	dist := make(map[string]int)
	for _, id := range methodIDs {
		dist[id]++
	}
	total := len(methodIDs)

	entropy := 0.0
	for _, count := range dist {
		p := float64(count) / float64(total)
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	hMax := 0.0
	if len(dist) > 1 {
		hMax = math.Log2(float64(len(dist)))
	}
	diversityScore := 0.0
	if hMax > 0 {
		diversityScore = entropy / hMax
	}

	return models.MethodDiversityReport{
		TotalValidators: total,
		UniqueMethods:   len(dist),
		Distribution:    dist,
		DiversityScore:  diversityScore,
		RequirementMet:  len(dist) >= 2 && diversityScore >= 0.3,
	}
}

// ErrorSample is one validator's deviation-from-consensus observation
// within a methodId group, used by DetectCorrelatedErrors.
type ErrorSample struct {
	ValidatorAddress string
	MethodID         string
	Error            float64
}

// DetectCorrelatedErrors reports every validator sharing a methodId whose
// errors are both tightly clustered (var < 0.01) and consistently biased
// (mean > 0.1), per §4.5. It returns that set only: it does not change
// any calibration score, and no penalty is applied to the set. Grounded
// on the teacher's dependency-grouped evidence pattern
// in internal/heuristics/factor_graph.go, adapted here to avoid crediting
// a shared estimator bug as independent validator error.
func DetectCorrelatedErrors(samples []ErrorSample) map[string]bool {
	byMethod := make(map[string][]ErrorSample)
	for _, s := range samples {
		byMethod[s.MethodID] = append(byMethod[s.MethodID], s)
	}

	penalized := make(map[string]bool)
	for _, group := range byMethod {
		if len(group) < 2 {
			continue
		}
		errs := make([]float64, len(group))
		for i, g := range group {
			errs[i] = g.Error
		}
		if variance(errs) < 0.01 && mean(errs) > 0.1 {
			for _, g := range group {
				penalized[g.ValidatorAddress] = true
			}
		}
	}
	return penalized
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
