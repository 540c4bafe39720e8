// Package adversarial implements the adversarial testing scheduler of
// §4.7: injection-rate policy, test-type selection, and pass/fail/severity
// grading.
package adversarial

import (
	"math"
	"strings"

	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/pkg/models"
)

const (
	globalRate  = 0.075
	jitterRange = 0.05
	rateCap     = 0.20
)

// Decision is the output of ShouldInject.
type Decision struct {
	Rate     float64
	Inject   bool
	TestType models.AdversarialTestType
}

// ShouldInject computes the injection rate and rolls the dice using rng,
// per §4.7's multiplicative-boost formula capped at 0.20.
func ShouldInject(reputation, reputationChange float64, isCorrelated bool, rng ports.Rng) Decision {
	jitter := (rng.Float64()*2 - 1) * jitterRange
	rate := globalRate + jitter

	if reputation >= 80 {
		rate *= 1.5
	}
	if reputationChange >= 2 {
		rate *= 2.0
	}
	if isCorrelated {
		rate *= 3.0
	}
	if rate > rateCap {
		rate = rateCap
	}
	if rate < 0 {
		rate = 0
	}

	inject := rng.Float64() < rate
	testType := selectTestType(reputation, isCorrelated, rng)

	return Decision{Rate: rate, Inject: inject, TestType: testType}
}

func selectTestType(reputation float64, isCorrelated bool, rng ports.Rng) models.AdversarialTestType {
	switch {
	case isCorrelated:
		return models.TestCorrelationTest
	case reputation >= 80:
		if rng.Intn(2) == 0 {
			return models.TestManipulationAttempt
		}
		return models.TestDistributionShift
	default:
		roll := rng.Float64()
		switch {
		case roll < 0.30:
			return models.TestKnownBadOutput
		case roll < 0.60:
			return models.TestEdgeCase
		case roll < 0.80:
			return models.TestDistributionShift
		default:
			return models.TestManipulationAttempt
		}
	}
}

// Grade evaluates a validator's response to an injected test and returns
// the completed AdversarialTestResult, per §4.7's pass rules and
// severity/penalty/boost mapping.
func Grade(testID string, testType models.AdversarialTestType, score, confidence float64, reasoning string) models.AdversarialTestResult {
	lower := strings.ToLower(reasoning)
	var passed bool

	switch testType {
	case models.TestKnownBadOutput:
		passed = score < 30 && confidence < 0.5
	case models.TestEdgeCase:
		passed = score >= 40 && score <= 80
	case models.TestDistributionShift:
		passed = confidence < 0.7 || strings.Contains(lower, "shift")
	case models.TestManipulationAttempt:
		passed = score < 50 || strings.Contains(lower, "manipulation")
	case models.TestCorrelationTest:
		passed = strings.Contains(lower, "correlation")
	}

	if passed {
		return models.AdversarialTestResult{
			TestID:   testID,
			TestType: testType,
			Passed:   true,
			Severity: "low",
			RiskBoost: boostFor("low", testType),
		}
	}

	severity := severityFor(testType)
	return models.AdversarialTestResult{
		TestID:      testID,
		TestType:    testType,
		Passed:      false,
		Severity:    severity,
		RiskPenalty: penaltyFor(severity, testType),
	}
}

func severityFor(testType models.AdversarialTestType) string {
	switch testType {
	case models.TestKnownBadOutput:
		return "high"
	case models.TestEdgeCase:
		return "medium"
	case models.TestDistributionShift:
		return "high"
	case models.TestManipulationAttempt:
		return "critical"
	case models.TestCorrelationTest:
		return "critical"
	default:
		return "low"
	}
}

func isCriticalFamily(testType models.AdversarialTestType) bool {
	return testType == models.TestManipulationAttempt || testType == models.TestCorrelationTest
}

func penaltyFor(severity string, testType models.AdversarialTestType) float64 {
	base := map[string]float64{"low": 2, "medium": 5, "high": 10, "critical": 20}[severity]
	if isCriticalFamily(testType) {
		return base * 1.5
	}
	return base
}

func boostFor(severity string, testType models.AdversarialTestType) float64 {
	base := map[string]float64{"low": 1, "medium": 2, "high": 3, "critical": 5}[severity]
	if isCriticalFamily(testType) {
		return base * 2
	}
	return base
}

// RateCapped reports whether rate was clamped at the 0.20 ceiling, a
// boundary condition called out explicitly by §8's testable properties.
func RateCapped(rate float64) bool {
	return math.Abs(rate-rateCap) < 1e-9
}
