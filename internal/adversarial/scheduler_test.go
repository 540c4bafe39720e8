package adversarial

import (
	"testing"

	"github.com/rawblock/evalmesh/pkg/models"
)

type scriptedRng struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (s *scriptedRng) Float64() float64 {
	v := s.floats[s.fi%len(s.floats)]
	s.fi++
	return v
}

func (s *scriptedRng) Intn(n int) int {
	v := s.ints[s.ii%len(s.ints)]
	s.ii++
	return v % n
}

func TestShouldInject_RateCappedAtTwentyPercent(t *testing.T) {
	rng := &scriptedRng{floats: []float64{1.0, 0.01}, ints: []int{0}}
	d := ShouldInject(85, 3, true, rng)
	if !RateCapped(d.Rate) {
		t.Fatalf("expected rate capped at 0.20, got %v", d.Rate)
	}
	if d.TestType != models.TestCorrelationTest {
		t.Fatalf("expected correlation-test selection for correlated validator, got %v", d.TestType)
	}
}

func TestGrade_KnownBadOutputPassRule(t *testing.T) {
	res := Grade("t1", models.TestKnownBadOutput, 20, 0.3, "")
	if !res.Passed {
		t.Fatalf("expected pass for low score+confidence on known-bad-output")
	}
}

func TestGrade_ManipulationFailureIsCritical(t *testing.T) {
	res := Grade("t2", models.TestManipulationAttempt, 90, 0.9, "nothing unusual")
	if res.Passed {
		t.Fatalf("expected failure")
	}
	if res.Severity != "critical" {
		t.Fatalf("expected critical severity, got %s", res.Severity)
	}
	if res.RiskPenalty != 30 {
		t.Fatalf("expected penalty 20*1.5=30, got %v", res.RiskPenalty)
	}
}
