package calibration

import (
	"testing"

	"github.com/rawblock/evalmesh/pkg/models"
)

func TestCalibrate_StableConsistentValidatorScoresHigh(t *testing.T) {
	histories := make(map[string]*HistoricalMean)
	samples := []ValidatorSample{
		{
			Address:            "0xaaa",
			Modes:              []models.Mode{{Robustness: 0.9}, {Robustness: 0.8}},
			TotalContributions: []float64{0.5, 0.55, 0.52},
			Scores:             []float64{70, 72},
			Confidences:        []float64{0.8, 0.82},
			MethodID:           "m1",
			CurrentMeanScore:   71,
		},
		{
			Address:            "0xbbb",
			Modes:              []models.Mode{{Robustness: 0.2}},
			TotalContributions: []float64{0.1, 0.9, 0.05},
			Scores:             []float64{20, 95},
			Confidences:        []float64{0.1, 0.95},
			MethodID:           "m2",
			CurrentMeanScore:   57,
		},
	}

	out := Calibrate(samples, histories)
	if len(out) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(out))
	}

	var stable, erratic models.ValidatorCalibrationMetrics
	for _, m := range out {
		if m.ValidatorAddress == "0xaaa" {
			stable = m
		} else {
			erratic = m
		}
	}
	if stable.Stability <= erratic.Stability {
		t.Errorf("expected 0xaaa's tightly clustered modes/contributions to score more stable: stable=%f erratic=%f", stable.Stability, erratic.Stability)
	}
	if stable.RewardMultiplier < 0.1 || stable.RewardMultiplier > 2.0 {
		t.Errorf("RewardMultiplier out of bounds: %f", stable.RewardMultiplier)
	}
}

func TestCalibrate_MethodUniquenessPenalizesCrowdedMethod(t *testing.T) {
	histories := make(map[string]*HistoricalMean)
	samples := []ValidatorSample{
		{Address: "0x1", MethodID: "shared", CurrentMeanScore: 50},
		{Address: "0x2", MethodID: "shared", CurrentMeanScore: 50},
		{Address: "0x3", MethodID: "unique", CurrentMeanScore: 50},
	}
	out := Calibrate(samples, histories)

	byAddr := make(map[string]models.ValidatorCalibrationMetrics)
	for _, m := range out {
		byAddr[m.ValidatorAddress] = m
	}
	if byAddr["0x3"].MethodUniqueness <= byAddr["0x1"].MethodUniqueness {
		t.Errorf("expected the only validator on 'unique' to score higher uniqueness than those sharing 'shared'")
	}
}

func TestCalibrate_PersistsHistoryAcrossCalls(t *testing.T) {
	histories := make(map[string]*HistoricalMean)
	first := []ValidatorSample{{Address: "0xaaa", MethodID: "m1", CurrentMeanScore: 50}}
	Calibrate(first, histories)

	if histories["0xaaa"].Count != 1 {
		t.Fatalf("expected history count 1 after first call, got %d", histories["0xaaa"].Count)
	}

	second := []ValidatorSample{{Address: "0xaaa", MethodID: "m1", CurrentMeanScore: 90}}
	out := Calibrate(second, histories)
	if out[0].PredictiveConsistency >= 0.7 {
		t.Errorf("expected a large mean jump (50->90) to reduce PredictiveConsistency below the no-history default, got %f", out[0].PredictiveConsistency)
	}
}

func TestAnalyzeMethodDiversity_RequirementMetWithTwoEvenMethods(t *testing.T) {
	report := AnalyzeMethodDiversity([]string{"a", "a", "b", "b"})
	if !report.RequirementMet {
		t.Errorf("expected diversity requirement met with 2 evenly distributed methods")
	}
	if report.UniqueMethods != 2 {
		t.Errorf("expected 2 unique methods, got %d", report.UniqueMethods)
	}
}

func TestAnalyzeMethodDiversity_SingleMethodFailsRequirement(t *testing.T) {
	report := AnalyzeMethodDiversity([]string{"a", "a", "a"})
	if report.RequirementMet {
		t.Errorf("expected diversity requirement unmet with only one method")
	}
	if report.DiversityScore != 0 {
		t.Errorf("expected zero diversity score for a single method, got %f", report.DiversityScore)
	}
}

func TestDetectCorrelatedErrors_FlagsTightlyClusteredBiasedGroup(t *testing.T) {
	samples := []ErrorSample{
		{ValidatorAddress: "0x1", MethodID: "shared-bug", Error: 0.15},
		{ValidatorAddress: "0x2", MethodID: "shared-bug", Error: 0.16},
		{ValidatorAddress: "0x3", MethodID: "independent", Error: 0.9},
	}
	penalized := DetectCorrelatedErrors(samples)
	if !penalized["0x1"] || !penalized["0x2"] {
		t.Errorf("expected both validators sharing a biased, low-variance methodId to be penalized")
	}
	if penalized["0x3"] {
		t.Errorf("did not expect the lone independent-method validator to be penalized")
	}
}

func TestDetectCorrelatedErrors_DoesNotFlagSingleValidatorPerMethod(t *testing.T) {
	samples := []ErrorSample{
		{ValidatorAddress: "0x1", MethodID: "m1", Error: 0.5},
		{ValidatorAddress: "0x2", MethodID: "m2", Error: 0.5},
	}
	penalized := DetectCorrelatedErrors(samples)
	if len(penalized) != 0 {
		t.Errorf("expected no penalties when every methodId has only one validator, got %v", penalized)
	}
}

func TestStore_CalibrateRetainsHistoryBetweenRounds(t *testing.T) {
	store := NewStore()
	store.Calibrate([]ValidatorSample{{Address: "0xaaa", MethodID: "m1", CurrentMeanScore: 50}})
	out := store.Calibrate([]ValidatorSample{{Address: "0xaaa", MethodID: "m1", CurrentMeanScore: 50}})
	if out[0].PredictiveConsistency < 0.99 {
		t.Errorf("expected identical repeated mean scores to be fully consistent, got %f", out[0].PredictiveConsistency)
	}
}
