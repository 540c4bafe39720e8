// Package evaluation implements the evaluation engine of §4.1:
// orchestrating deterministic vs statistical modes and producing an
// EvaluationResult.
package evaluation

import (
	"math"
	"sort"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/internal/distribution"
	"github.com/rawblock/evalmesh/internal/replay"
	"github.com/rawblock/evalmesh/pkg/models"
)

// ReplayConfig is the subset of a network manifest needed by the
// deterministic path.
type ReplayConfig struct {
	Requirements      replay.Requirements
	ScoringModuleHash string
}

// EvaluateDeterministic implements §4.1's deterministic path: outputs
// failing replay validation are rejected (never slashed); the surviving
// output with highest consensus and highest average score wins.
func EvaluateDeterministic(taskID string, input []byte, outputs []models.TaskOutput, evaluations []models.ValidatorEvaluation, cfg ReplayConfig) models.EvaluationResult {
	survivors := make(map[string]bool)
	var seed string
	for _, out := range outputs {
		res := replay.ValidateReplay(out.Output, out.OutputID, out.Metadata.ReplayBundle, out.Metadata.StepTraceHash, out.Metadata.ExecutionEnv, input, cfg.Requirements)
		if res.Valid {
			survivors[out.OutputID] = true
			if out.Metadata.ReplayBundle != nil {
				seed = out.Metadata.ReplayBundle.RandomSeed
			}
		}
	}

	byOutput := groupByOutput(evaluations)

	type candidate struct {
		outputID   string
		consensus  float64
		avgScore   float64
		validators []string
	}
	var candidates []candidate
	for outputID, evals := range byOutput {
		if !survivors[outputID] {
			continue
		}
		total := len(evals)
		if total == 0 {
			continue
		}
		accept := 0
		var sum float64
		var addrs []string
		for _, e := range evals {
			if e.Score >= 50 {
				accept++
			}
			sum += e.Score
			addrs = append(addrs, e.ValidatorAddress)
		}
		candidates = append(candidates, candidate{
			outputID:   outputID,
			consensus:  float64(accept) / float64(total),
			avgScore:   sum / float64(total),
			validators: addrs,
		})
	}

	if len(candidates) == 0 {
		return models.EvaluationResult{TaskID: taskID, Mode: "deterministic"}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].consensus != candidates[j].consensus {
			return candidates[i].consensus > candidates[j].consensus
		}
		return candidates[i].avgScore > candidates[j].avgScore
	})

	winner := candidates[0]
	replayHash := replay.ReplayHash(input, seed, cfg.ScoringModuleHash)

	return models.EvaluationResult{
		TaskID:             taskID,
		WinningOutputID:    winner.outputID,
		FinalScore:         winner.avgScore,
		Confidence:         winner.consensus,
		AgreementScore:     winner.consensus,
		ReplayHash:         replayHash,
		ValidatorAddresses: winner.validators,
		Mode:               "deterministic",
	}
}

func groupByOutput(evaluations []models.ValidatorEvaluation) map[string][]models.ValidatorEvaluation {
	out := make(map[string][]models.ValidatorEvaluation)
	for _, e := range evaluations {
		out[e.OutputID] = append(out[e.OutputID], e)
	}
	return out
}

// CalibrationLookup resolves a validator's calibration score, used to
// weight per-validator contribution vectors in the statistical path.
type CalibrationLookup func(validatorAddress string) float64

// EvaluateStatisticalDistributionBased implements §4.1's preferred
// statistical path: each validator that supplied a methodConfig runs its
// own distribution analysis, and contribution vectors are aggregated
// weighted by calibration score.
func EvaluateStatisticalDistributionBased(taskID string, outputs []models.TaskOutput, evaluations []models.ValidatorEvaluation, calibration CalibrationLookup) models.EvaluationResult {
	methodIDs := make(map[string]bool)
	totals := make(map[string]float64) // outputId -> aggregated contribution
	weightSum := 0.0
	validatorAddrs := make(map[string]bool)
	outputContribValidators := make(map[string][]string)

	for _, e := range evaluations {
		if e.Contributions == nil || e.MethodConfig == nil {
			continue
		}
		methodIDs[e.MethodConfig.MethodID] = true
		validatorAddrs[e.ValidatorAddress] = true

		weight := calibration(e.ValidatorAddress)
		if weight <= 0 {
			weight = 0.01
		}
		totals[e.OutputID] += e.Contributions.TotalContribution * weight
		weightSum += weight
		outputContribValidators[e.OutputID] = append(outputContribValidators[e.OutputID], e.ValidatorAddress)
	}

	if len(totals) == 0 {
		return models.EvaluationResult{TaskID: taskID, Mode: "statistical"}
	}

	var bestOutput string
	bestScore := math.Inf(-1)
	for outputID, score := range totals {
		if score > bestScore {
			bestScore = score
			bestOutput = outputID
		}
	}

	methodDiversity := 0.0
	if len(validatorAddrs) > 0 {
		methodDiversity = float64(len(methodIDs)) / float64(len(validatorAddrs))
	}

	var confSum float64
	var confCount int
	for _, addr := range outputContribValidators[bestOutput] {
		confSum += calibration(addr)
		confCount++
	}
	confidence := 0.0
	if confCount > 0 {
		confidence = confSum / float64(confCount)
	}

	finalScore := math.Min(100, bestScore*100)

	allAddrs := make([]string, 0, len(validatorAddrs))
	for a := range validatorAddrs {
		allAddrs = append(allAddrs, a)
	}
	sort.Strings(allAddrs)

	return models.EvaluationResult{
		TaskID:             taskID,
		WinningOutputID:    bestOutput,
		FinalScore:         finalScore,
		Confidence:         confidence,
		MethodDiversity:    methodDiversity,
		ValidatorAddresses: allAddrs,
		Mode:               "statistical",
	}
}

// EvaluateStatisticalConsensusFallback implements §4.1's
// backward-compatible consensus path: weightedScore aggregates
// score*reputation*confidence*effectiveWeight per output; agreementScore
// derives from the score stdev.
func EvaluateStatisticalConsensusFallback(taskID string, evaluations []models.ValidatorEvaluation, reputationOf func(string) float64, effectiveWeightOf func(string) float64) models.EvaluationResult {
	byOutput := groupByOutput(evaluations)
	if len(byOutput) == 0 {
		return models.EvaluationResult{TaskID: taskID, Mode: "statistical"}
	}

	type scored struct {
		outputID       string
		weightedScore  float64
		agreementScore float64
		confidence     float64
		validators     []string
	}
	var results []scored
	for outputID, evals := range byOutput {
		var numerator, denom float64
		var scores []float64
		var confSum float64
		var addrs []string
		for _, e := range evals {
			rep := reputationOf(e.ValidatorAddress)
			ew := effectiveWeightOf(e.ValidatorAddress)
			w := rep * e.Confidence * ew
			numerator += e.Score * w
			denom += w
			scores = append(scores, e.Score)
			confSum += e.Confidence
			addrs = append(addrs, e.ValidatorAddress)
		}
		weightedScore := 0.0
		if denom > 0 {
			weightedScore = numerator / denom
		}
		stdev := stddev(scores)
		agreement := 1 - math.Min(stdev/100, 1)
		avgConf := confSum / float64(len(evals))

		results = append(results, scored{
			outputID:       outputID,
			weightedScore:  weightedScore,
			agreementScore: agreement,
			confidence:     agreement * avgConf,
			validators:     addrs,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].weightedScore > results[j].weightedScore
	})
	winner := results[0]

	return models.EvaluationResult{
		TaskID:             taskID,
		WinningOutputID:    winner.outputID,
		FinalScore:         winner.weightedScore,
		Confidence:         winner.confidence,
		AgreementScore:     winner.agreementScore,
		ValidatorAddresses: winner.validators,
		Mode:               "statistical",
	}
}

func stddev(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))
	var sq float64
	for _, v := range vs {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(vs)))
}

// EvaluateHumanInTheLoop implements §4.1's HITL step. selection must
// belong to the pre-filtered top-N; a userSelectionWeight outside
// (0, 0.5] is replaced by 0.1. baseScore is statistical.FinalScore, the
// statistical winner's score: the selected output's own score and its
// constraint validity are not consulted, so the boost applies to whichever
// output in topN is selected.
func EvaluateHumanInTheLoop(taskID string, statistical models.EvaluationResult, selection string, topN []string, userSelectionWeight float64) (models.EvaluationResult, error) {
	if !containsString(topN, selection) {
		return models.EvaluationResult{}, models.NewError(models.CodeHumanSelectionOutOfSet, "selection not in pre-filtered top-N", nil)
	}
	if userSelectionWeight <= 0 || userSelectionWeight > 0.5 {
		userSelectionWeight = 0.1
	}

	baseScore := statistical.FinalScore
	finalScore := math.Min(100, baseScore*(1+userSelectionWeight))

	out := statistical
	out.WinningOutputID = selection
	out.FinalScore = finalScore
	out.Mode = "human-in-the-loop"
	out.TaskID = taskID
	return out, nil
}

// PreFilterForHumanSelection implements §4.1's pre-filter entry point,
// delegating to the distribution package's preference-weighted ranking.
func PreFilterForHumanSelection(scores []models.ContributionScore, topN int, preferenceName string, custom *models.PreferenceWeights) []string {
	weights := distribution.ResolvePreference(preferenceName, custom)
	return distribution.PreFilterByPreference(scores, weights, topN)
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// HashInput canonicalizes and hashes a task's input payload, the H(input)
// referenced throughout §4.
func HashInput(input []byte) (string, error) {
	return canon.HashJSON(input)
}
