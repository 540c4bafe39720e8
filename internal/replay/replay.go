// Package replay implements the deterministic replay service of §4.3:
// validating that a TaskOutput's ReplayBundle and StepTraceHash are
// bit-exact reconstructions of a deterministic computation.
package replay

import (
	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

// Requirements is the config-driven per-manifest policy controlling which
// replay checks are mandatory.
type Requirements struct {
	Required             bool // bundle must exist
	SeedRequired         bool // non-empty seed
	IntermediateHashing  bool // step trace required
	ExecutionEnvRequired bool // env hash required and matches
}

// Result is returned by ValidateReplay.
type Result struct {
	Valid  bool
	Reason string
}

// ValidateReplay checks a TaskOutput's replay evidence against
// taskInput, per the bullet list in §4.3. Failures are reported, never
// panicked: a failing output is rejected without slashing.
func ValidateReplay(output []byte, outputID string, bundle *models.ReplayBundle, stepTrace *models.StepTraceHash, executionEnv []byte, taskInput []byte, req Requirements) Result {
	if req.Required && bundle == nil {
		return Result{Valid: false, Reason: "replay bundle required but absent"}
	}
	if bundle == nil {
		return Result{Valid: true}
	}

	wantOutputID, err := canon.HashJSON(output)
	if err != nil {
		// output may not be JSON; fall back to raw hash.
		wantOutputID = canon.Hash(output)
	}
	if outputID != wantOutputID {
		return Result{Valid: false, Reason: "outputId does not match H(output)"}
	}

	inputHash, err := canon.HashJSON(taskInput)
	if err != nil {
		inputHash = canon.Hash(taskInput)
	}
	if inputHash != bundle.TaskInputHash {
		return Result{Valid: false, Reason: "taskInputHash mismatch"}
	}

	if bundle.Temperature != 0 {
		return Result{Valid: false, Reason: "temperature must be 0 for deterministic replay"}
	}

	if req.SeedRequired && bundle.RandomSeed == "" {
		return Result{Valid: false, Reason: "randomSeed required but missing"}
	}

	if req.ExecutionEnvRequired {
		if len(executionEnv) == 0 {
			return Result{Valid: false, Reason: "executionEnv required but missing"}
		}
		envHash, err := canon.HashJSON(executionEnv)
		if err != nil {
			envHash = canon.Hash(executionEnv)
		}
		if envHash != bundle.ExecutionEnvHash {
			return Result{Valid: false, Reason: "executionEnvHash mismatch"}
		}
	}

	if stepTrace != nil {
		recomputed := canon.HashConcat(stepTrace.StepHashes...)
		if recomputed != stepTrace.TraceHash {
			return Result{Valid: false, Reason: "step-trace hash mismatch"}
		}
	} else if req.IntermediateHashing {
		return Result{Valid: false, Reason: "intermediate hashing required but step trace absent"}
	}

	return Result{Valid: true}
}

// ReplayHash computes H(input_sorted ‖ seed ‖ scoringModuleHash), the
// value EvaluationResult.ReplayHash carries for the deterministic path.
func ReplayHash(input []byte, seed string, scoringModuleHash string) string {
	canonical, err := canon.Canonicalize(input)
	if err != nil {
		canonical = input
	}
	return canon.HashConcat(string(canonical), seed, scoringModuleHash)
}
