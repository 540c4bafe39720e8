// Package pipeline is the one call chain that wires the evaluation
// engine's surrounding integrity machinery together: signature
// verification, distribution analysis, calibration, aggregation,
// reputation, collusion, and adversarial scheduling. Everything here is
// itself built from already-specified packages; pipeline contributes no
// new scoring logic of its own, only the order of operations a task
// actually goes through.
package pipeline

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rawblock/evalmesh/internal/adversarial"
	"github.com/rawblock/evalmesh/internal/calibration"
	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/internal/collusion"
	"github.com/rawblock/evalmesh/internal/config"
	"github.com/rawblock/evalmesh/internal/distribution"
	"github.com/rawblock/evalmesh/internal/evaluation"
	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/internal/replay"
	"github.com/rawblock/evalmesh/internal/reputation"
	"github.com/rawblock/evalmesh/internal/signing"
	"github.com/rawblock/evalmesh/internal/taskstate"
	"github.com/rawblock/evalmesh/internal/workerpool"
	"github.com/rawblock/evalmesh/pkg/models"
)

// Deps bundles the services EvaluateTask drives, a subset of
// runtime.Runtime's fields. Kept separate from Runtime so the pipeline
// package never has to import the composition root.
type Deps struct {
	Crypto      ports.CryptoPort
	Clock       ports.Clock
	Rng         ports.Rng
	Pool        *workerpool.Pool
	Reputation  *reputation.Service
	Calibration *calibration.Store
	Graph       *collusion.Graph
}

// Outcome is everything one call to EvaluateTask produces, beyond the
// EvaluationResult itself, for a caller that wants to persist or log the
// surrounding machinery's output.
type Outcome struct {
	Evaluation       models.EvaluationResult
	Calibration      []models.ValidatorCalibrationMetrics
	MethodDiversity  models.MethodDiversityReport
	Adversarial      map[string]adversarial.Decision
	CollusionEvents  []models.CollusionEvent
	RejectedForSignature []string
}

// EvaluateTask runs one task's full evaluation pipeline: verify
// signatures, embed and cluster each distinct method configuration's
// outputs, score contributions against the recomputed (not
// self-reported) distribution, calibrate validators, aggregate a winner,
// then update reputation, scan for collusion, and schedule adversarial
// tests off the result. secretKey is the process's validator-id
// encryption key, used only to build the collusion graph's encrypted
// identities.
func EvaluateTask(ctx context.Context, deps *Deps, manifest config.NetworkManifest, secretKey []byte, task *models.Task, outputs []models.TaskOutput, rawEvaluations []models.ValidatorEvaluation) (Outcome, error) {
	valid, err := signing.FilterValidSignatures(deps.Crypto, task.NetworkID, task.TaskID, rawEvaluations, manifest.MinValidators)
	if err != nil {
		return Outcome{}, err
	}
	rejected := addressesDroppedBySignature(rawEvaluations, valid)

	outputBytes := make(map[string][]byte, len(outputs))
	for _, o := range outputs {
		outputBytes[o.OutputID] = o.Output
	}

	perMethod, err := runDistributionAnalysis(ctx, deps.Pool, deps.Rng, outputs, outputBytes, valid)
	if err != nil {
		return Outcome{}, models.NewError(models.CodeInternal, "distribution analysis failed", err)
	}

	// A validator's own Contributions are a free manipulation vector once
	// payment depends on them; the network recomputes every figure from
	// the shared distribution analysis before anything downstream trusts
	// it.
	verified := attachRecomputedContributions(valid, perMethod)

	calibrationSamples := buildCalibrationSamples(verified, perMethod)
	calibrationMetrics := deps.Calibration.Calibrate(calibrationSamples)
	calibrationByAddr := make(map[string]float64, len(calibrationMetrics))
	for _, m := range calibrationMetrics {
		calibrationByAddr[m.ValidatorAddress] = m.CalibrationScore
	}
	calibrationLookup := func(address string) float64 {
		if v, ok := calibrationByAddr[address]; ok {
			return v
		}
		return 0.5
	}

	methodIDs := make([]string, 0, len(verified))
	for _, e := range verified {
		if e.MethodConfig != nil {
			methodIDs = append(methodIDs, e.MethodConfig.MethodID)
		}
	}
	diversity := calibration.AnalyzeMethodDiversity(methodIDs)

	result := aggregate(task, outputs, verified, manifest, calibrationLookup)

	now := deps.Clock.Now()
	correlated := calibration.DetectCorrelatedErrors(buildErrorSamples(verified, result))
	adversarialDecisions := make(map[string]adversarial.Decision, len(verified))
	for _, e := range verified {
		wasSuccessful := e.OutputID == result.WinningOutputID
		update := deps.Reputation.UpdateReputation(e.ValidatorAddress, wasSuccessful, false, now)

		outputDiversity := 0.0
		if e.DistributionAnalysis != nil {
			outputDiversity = e.DistributionAnalysis.Diversity
		}
		deps.Reputation.UpdateRiskVector(e.ValidatorAddress, wasSuccessful, outputDiversity, nil, nil, now)

		adversarialDecisions[e.ValidatorAddress] = adversarial.ShouldInject(update.New, update.Change, correlated[e.ValidatorAddress], deps.Rng)
	}
	for _, addr := range rejected {
		deps.Reputation.UpdateReputation(addr, false, true, now)
	}

	events := scanCollusion(deps.Graph, manifest.NetworkID, task.TaskID, secretKey, verified, now)

	target := models.StatusConsensusReached
	if len(events) > 0 {
		target = models.StatusChallenged
	}
	if reached, _, _ := taskstate.ConsensusCheck(verified, manifest.ConsensusThreshold, manifest.MinValidators); reached {
		if taskstate.CanTransition(task.Status, target) {
			_ = taskstate.Transition(task, target, "")
		}
	}

	return Outcome{
		Evaluation:           result,
		Calibration:          calibrationMetrics,
		MethodDiversity:      diversity,
		Adversarial:          adversarialDecisions,
		CollusionEvents:      events,
		RejectedForSignature: rejected,
	}, nil
}

// methodResult is one distinct methodId's distribution analysis, shared
// by every validator that configured that exact method.
type methodResult struct {
	analysis models.DistributionAnalysis
	scores   map[string]models.ContributionScore
}

// runDistributionAnalysis embeds and clusters outputs once per distinct
// methodId actually used by a validator this round, dispatched across
// the worker pool so no per-task lock is held while the CPU-bound
// embedding/clustering work runs, per the concurrency model embedding
// and clustering are specified to honor.
func runDistributionAnalysis(ctx context.Context, pool *workerpool.Pool, rng ports.Rng, outputs []models.TaskOutput, outputBytes map[string][]byte, evals []models.ValidatorEvaluation) (map[string]methodResult, error) {
	configs := make(map[string]*models.ValidatorMethodConfig)
	for i := range evals {
		if mc := evals[i].MethodConfig; mc != nil {
			configs[mc.MethodID] = mc
		}
	}

	results := make(map[string]methodResult, len(configs))
	var mu sync.Mutex
	jobs := make([]func() error, 0, len(configs))
	for methodID, mc := range configs {
		methodID, mc := methodID, mc
		jobs = append(jobs, func() error {
			embedder := resolveEmbedder(mc.EmbeddingMethod)
			points := make([]distribution.Point, 0, len(outputs))
			for _, o := range outputs {
				vec, err := embedder.Embed(o.Output)
				if err != nil {
					return err
				}
				points = append(points, distribution.Point{OutputID: o.OutputID, Embedding: vec})
			}
			clusterer := distribution.NewClusterer(mc.ClusteringAlgorithm, rng)
			modes := clusterer.Cluster(points)
			analysis := distribution.Analyze(modes, points)
			scores := distribution.ScoreContributions(points, analysis, mc.ContributionWeights, outputBytes, nil)

			byOutput := make(map[string]models.ContributionScore, len(scores))
			for _, s := range scores {
				byOutput[s.OutputID] = s
			}

			mu.Lock()
			results[methodID] = methodResult{analysis: analysis, scores: byOutput}
			mu.Unlock()
			return nil
		})
	}
	if err := pool.RunAll(ctx, jobs); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveEmbedder picks the embedder for a validator's declared method.
// Only hash-based embedding runs without an external inference service;
// sentence-transformers and openai-embeddings need a concrete Infer/Call
// hook that a headless composition root has no operator-supplied way to
// provide, so they fall back to the same deterministic embedder
// OpenAIEmbedder itself falls back to on a live-call failure.
func resolveEmbedder(method models.EmbeddingMethod) distribution.Embedder {
	switch method {
	case models.EmbeddingHashBased, "":
		return distribution.NewHashEmbedder()
	default:
		return distribution.NewHashEmbedder()
	}
}

func attachRecomputedContributions(valid []models.ValidatorEvaluation, perMethod map[string]methodResult) []models.ValidatorEvaluation {
	out := make([]models.ValidatorEvaluation, len(valid))
	copy(out, valid)
	for i := range out {
		mc := out[i].MethodConfig
		if mc == nil {
			continue
		}
		m, ok := perMethod[mc.MethodID]
		if !ok {
			continue
		}
		if score, ok := m.scores[out[i].OutputID]; ok {
			s := score
			out[i].Contributions = &s
		}
		analysis := m.analysis
		out[i].DistributionAnalysis = &analysis
	}
	return out
}

func buildCalibrationSamples(verified []models.ValidatorEvaluation, perMethod map[string]methodResult) []calibration.ValidatorSample {
	samples := make([]calibration.ValidatorSample, 0, len(verified))
	for _, e := range verified {
		if e.MethodConfig == nil || e.DistributionAnalysis == nil {
			continue
		}
		m := perMethod[e.MethodConfig.MethodID]
		totals := make([]float64, 0, len(m.scores))
		for _, s := range m.scores {
			totals = append(totals, s.TotalContribution)
		}
		samples = append(samples, calibration.ValidatorSample{
			Address:            e.ValidatorAddress,
			Modes:              e.DistributionAnalysis.Modes,
			TotalContributions: totals,
			Scores:             []float64{e.Score},
			Confidences:        []float64{e.Confidence},
			MethodID:           e.MethodConfig.MethodID,
			CurrentMeanScore:   e.Score,
		})
	}
	return samples
}

func buildErrorSamples(verified []models.ValidatorEvaluation, result models.EvaluationResult) []calibration.ErrorSample {
	samples := make([]calibration.ErrorSample, 0, len(verified))
	for _, e := range verified {
		if e.MethodConfig == nil {
			continue
		}
		samples = append(samples, calibration.ErrorSample{
			ValidatorAddress: e.ValidatorAddress,
			MethodID:         e.MethodConfig.MethodID,
			Error:            math.Abs(e.Score-result.FinalScore) / 100,
		})
	}
	return samples
}

// aggregate picks the deterministic path when any output carries replay
// evidence, and the distribution-weighted statistical path otherwise, per
// §4.1's mode selection.
func aggregate(task *models.Task, outputs []models.TaskOutput, verified []models.ValidatorEvaluation, manifest config.NetworkManifest, calibrationLookup evaluation.CalibrationLookup) models.EvaluationResult {
	for _, o := range outputs {
		if o.Metadata.ReplayBundle != nil {
			cfg := evaluation.ReplayConfig{
				Requirements:      replay.Requirements{SeedRequired: true},
				ScoringModuleHash: canon.Hash([]byte(manifest.NetworkID)),
			}
			return evaluation.EvaluateDeterministic(task.TaskID, task.Input, outputs, verified, cfg)
		}
	}
	return evaluation.EvaluateStatisticalDistributionBased(task.TaskID, outputs, verified, calibrationLookup)
}

func scanCollusion(graph *collusion.Graph, networkID, taskID string, secretKey []byte, verified []models.ValidatorEvaluation, now time.Time) []models.CollusionEvent {
	for i := 0; i < len(verified); i++ {
		for j := i + 1; j < len(verified); j++ {
			a := models.EncryptedValidatorId(canon.EncryptValidatorID(verified[i].ValidatorAddress, secretKey))
			b := models.EncryptedValidatorId(canon.EncryptValidatorID(verified[j].ValidatorAddress, secretKey))
			graph.RecordOutcome(a, b, verified[i].Score, verified[j].Score)
		}
	}

	var events []models.CollusionEvent
	for _, group := range graph.DiscoverGroups() {
		if !graph.GroupIsFlagged(group) {
			continue
		}
		events = append(events, collusion.BuildEvent(networkID, taskID, group, models.SeverityHigh, models.PenaltyCollusionEvidence, now))
	}
	return events
}

func addressesDroppedBySignature(raw, valid []models.ValidatorEvaluation) []string {
	keep := make(map[string]bool, len(valid))
	for _, e := range valid {
		keep[e.ValidatorAddress+"|"+e.OutputID] = true
	}
	var dropped []string
	for _, e := range raw {
		if !keep[e.ValidatorAddress+"|"+e.OutputID] {
			dropped = append(dropped, e.ValidatorAddress)
		}
	}
	return dropped
}
