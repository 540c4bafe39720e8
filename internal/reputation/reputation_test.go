package reputation

import (
	"testing"
	"time"

	"github.com/rawblock/evalmesh/pkg/models"
)

func TestUpdateReputation_SuccessRecoversLowReputationFaster(t *testing.T) {
	store := NewStore()
	svc := NewService(store)
	now := time.Now()

	store.WithLock("val1", now, func(rec *models.ValidatorReputationMetrics) {
		rec.Reputation = 30
	})

	res := svc.UpdateReputation("val1", true, false, now)
	want := 30.0 + 1 + (50-30)*0.1
	if res.New != want {
		t.Fatalf("expected reputation %v, got %v", want, res.New)
	}
}

func TestUpdateReputation_BansAfterConsecutiveFailures(t *testing.T) {
	store := NewStore()
	svc := NewService(store)
	now := time.Now()

	var last models.ReputationUpdateResult
	for i := 0; i < 5; i++ {
		last = svc.UpdateReputation("val2", false, false, now)
	}
	if !last.WasBanned {
		t.Fatalf("expected ban after 5 consecutive failures")
	}
}

func TestReputationBoundedToRange(t *testing.T) {
	store := NewStore()
	svc := NewService(store)
	now := time.Now()
	for i := 0; i < 50; i++ {
		svc.UpdateReputation("val3", true, false, now)
	}
	rec := store.GetOrCreate("val3", now)
	if rec.Reputation < 0 || rec.Reputation > 100 {
		t.Fatalf("reputation out of bounds: %v", rec.Reputation)
	}
}

func TestEffectiveWeight_Bounded(t *testing.T) {
	rv := models.RiskVector{Reliability: 0.9, Surprisal: 0.8, AdversarialResistance: 0.7}
	w := EffectiveWeight(rv, nil)
	if w < 0 || w > 1 {
		t.Fatalf("effective weight out of [0,1]: %v", w)
	}
}
