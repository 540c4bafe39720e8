// Package reputation implements the validator reputation service of
// §4.4: risk vector updates, task-conditioned reputation, temporal
// decay, ban policy, and the effective-weight computation consumed by
// the evaluation engine's consensus-based fallback.
package reputation

import (
	"math"
	"sync"
	"time"

	"github.com/rawblock/evalmesh/pkg/models"
)

const (
	smoothingAlpha   = 0.1
	surprisalCap     = 100
	banThreshold     = 20
	banConsecutive   = 5
	defaultBanDays   = 7
)

// Store is a sharded, per-validator-mutex map of reputation records, per
// §5's "Reputation map is a sharded, per-validator mutex" requirement.
type Store struct {
	mu      sync.Mutex
	byShard []*shard
}

type shard struct {
	mu      sync.Mutex
	records map[string]*models.ValidatorReputationMetrics
}

const shardCount = 16

// NewStore creates an empty, sharded reputation store.
func NewStore() *Store {
	s := &Store{byShard: make([]*shard, shardCount)}
	for i := range s.byShard {
		s.byShard[i] = &shard{records: make(map[string]*models.ValidatorReputationMetrics)}
	}
	return s
}

func (s *Store) shardFor(address string) *shard {
	var h uint32
	for i := 0; i < len(address); i++ {
		h = h*31 + uint32(address[i])
	}
	return s.byShard[h%shardCount]
}

// GetOrCreate returns the record for address, creating it at reputation
// 50 if absent.
func (s *Store) GetOrCreate(address string, now time.Time) *models.ValidatorReputationMetrics {
	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[address]
	if !ok {
		rec = models.NewValidatorReputationMetrics(address, now)
		sh.records[address] = rec
	}
	return rec
}

// WithLock runs fn with exclusive access to address's record, the unit
// of serialization guaranteed by §5 ("reputation updates for a single
// validator are totally ordered").
func (s *Store) WithLock(address string, now time.Time, fn func(*models.ValidatorReputationMetrics)) {
	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[address]
	if !ok {
		rec = models.NewValidatorReputationMetrics(address, now)
		sh.records[address] = rec
	}
	fn(rec)
}

// Service implements the public operations of §4.4.
type Service struct {
	store *Store
}

// NewService wraps a Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// ValidateEvaluation checks a ValidatorEvaluation against the consensus
// view, deciding whether it should be rejected, penalized, or trigger a
// ban.
func (s *Service) ValidateEvaluation(validatorAddress string, agreedWithConsensus bool, now time.Time) models.EvaluationValidationResult {
	rec := s.store.GetOrCreate(validatorAddress, now)
	if rec.IsBanned && rec.BanUntil != nil && now.Before(*rec.BanUntil) {
		return models.EvaluationValidationResult{
			Valid:        false,
			Reason:       "validator is banned",
			ShouldReject: true,
		}
	}
	if agreedWithConsensus {
		return models.EvaluationValidationResult{Valid: true}
	}
	return models.EvaluationValidationResult{
		Valid:             true,
		ShouldReject:      false,
		ReputationPenalty: 5,
	}
}

// UpdateReputation applies the success/failure/rejection deltas of
// §4.4's reputation update rules and returns the before/after snapshot.
func (s *Service) UpdateReputation(address string, wasSuccessful bool, wasRejected bool, now time.Time) models.ReputationUpdateResult {
	var result models.ReputationUpdateResult

	s.store.WithLock(address, now, func(rec *models.ValidatorReputationMetrics) {
		old := rec.Reputation

		switch {
		case wasRejected:
			rec.Rejected++
			rec.ConsecutiveFailures++
			rec.Reputation -= 10
			result.WasRejected = true
		case wasSuccessful:
			rec.Successful++
			rec.ConsecutiveFailures = 0
			delta := 1.0
			if old < 50 {
				delta += (50 - old) * 0.1
			}
			rec.Reputation += delta
		default:
			rec.Failed++
			rec.ConsecutiveFailures++
			rec.Reputation -= 5
		}

		rec.Reputation = clamp(rec.Reputation, 0, 100)

		if rec.Reputation < banThreshold || rec.ConsecutiveFailures >= banConsecutive {
			until := now.Add(defaultBanDays * 24 * time.Hour)
			rec.IsBanned = true
			rec.BanUntil = &until
			result.WasBanned = true
			result.BanUntil = &until
		} else if rec.IsBanned && rec.BanUntil != nil && !now.Before(*rec.BanUntil) {
			rec.IsBanned = false
			rec.BanUntil = nil
		}

		result.Old = old
		result.New = rec.Reputation
		result.Change = rec.Reputation - old
	})

	return result
}

// ReputationMultiplier returns reputation/50 clamped to [0,2], the
// payment-weighting multiplier derived from a validator's current
// reputation.
func (s *Service) ReputationMultiplier(address string, now time.Time) float64 {
	rec := s.store.GetOrCreate(address, now)
	return clamp(rec.Reputation/50, 0, 2)
}

// EffectiveWeight computes the geometric mean of {reliability, surprisal,
// adversarialResistance}, biased by explorationBias/reliabilityBias, per
// §4.4. networkState is treated as opaque per §9's Open Questions.
func EffectiveWeight(rv models.RiskVector, state *models.NetworkState) float64 {
	product := rv.Reliability * rv.Surprisal * rv.AdversarialResistance
	if product < 0 {
		product = 0
	}
	weight := math.Cbrt(product)

	if state != nil {
		if state.ExplorationBias > 0.5 {
			weight = clamp(weight+0.1*rv.Exploration, 0, 1)
		}
		if state.ReliabilityBias > 0.5 {
			weight = clamp(weight+0.1*rv.Reliability, 0, 1)
		}
	}
	return clamp(weight, 0, 1)
}

// UpdateRiskVector applies the exponential-smoothing updates of §4.4 to
// address's risk vector in place, given the outcome of one evaluation.
func (s *Service) UpdateRiskVector(address string, wasSuccessful bool, outputDiversity float64, adversarialPass *bool, networkState *models.NetworkState, now time.Time) {
	s.store.WithLock(address, now, func(rec *models.ValidatorReputationMetrics) {
		rv := &rec.RiskVector

		if wasSuccessful {
			rv.Reliability += smoothingAlpha * 0.1
		} else {
			rv.Reliability -= smoothingAlpha * 0.2
		}

		rv.Diversity = smoothingAlpha*outputDiversity + (1-smoothingAlpha)*rv.Diversity

		rec.SurprisalHistory = pushRing(rec.SurprisalHistory, outputDiversity, surprisalCap)
		rec.AverageSurprisal = mean(rec.SurprisalHistory)
		if rec.AverageSurprisal < 0.3 {
			penalty := math.Min((0.3-rec.AverageSurprisal)*10, 20)
			rv.Surprisal = clamp(rv.Surprisal-penalty/100, 0, 1)
		} else {
			rv.Surprisal = clamp(rv.Surprisal+smoothingAlpha*0.05, 0, 1)
		}

		if adversarialPass != nil {
			if *adversarialPass {
				rv.AdversarialResistance += smoothingAlpha * 0.1
			} else {
				rv.AdversarialResistance -= smoothingAlpha * 0.2
			}
		}

		if networkState != nil && networkState.ExplorationBias > 0.5 {
			rv.Exploration += smoothingAlpha * 0.1
		}

		total := rec.TotalValidations()
		if total >= 10 {
			rv.TemporalStability = float64(rec.Successful) / float64(total)
		} else {
			rv.TemporalStability = 0.5
		}

		rv.Clamp()
	})
}

// TaskConditionedKey builds the composite key used by the
// TaskConditioned map.
func TaskConditionedKey(networkID, taskType string) string { return networkID + "|" + taskType }

// UpdateTaskConditioned applies the same success/failure deltas within
// one (networkId, taskType) bucket, independent of the validator's
// global reputation, and refreshes its temporal decay.
func (s *Service) UpdateTaskConditioned(address, networkID, taskType string, wasSuccessful bool, now time.Time) {
	s.store.WithLock(address, now, func(rec *models.ValidatorReputationMetrics) {
		key := TaskConditionedKey(networkID, taskType)
		tc, ok := rec.TaskConditioned[key]
		if !ok {
			tc = &models.TaskConditionedReputation{NetworkID: networkID, TaskType: taskType, Reputation: 50, TemporalDecay: 1}
			rec.TaskConditioned[key] = tc
		}
		if wasSuccessful {
			tc.Successful++
			delta := 1.0
			if tc.Reputation < 50 {
				delta += (50 - tc.Reputation) * 0.1
			}
			tc.Reputation = clamp(tc.Reputation+delta, 0, 100)
		} else {
			tc.Failed++
			tc.Reputation = clamp(tc.Reputation-5, 0, 100)
		}
		days := now.Sub(tc.LastActivity).Hours() / 24
		if !tc.LastActivity.IsZero() {
			tc.TemporalDecay = math.Pow(0.95, days)
		}
		tc.LastActivity = now
	})
}

// ApplyTemporalDecay applies the global ≥24h decay rule: reputation
// loses (1-decay)*5 once a validator has been inactive for at least 7
// days, where decay = 0.95^daysSinceLastUpdate.
func (s *Service) ApplyTemporalDecay(address string, lastActivity time.Time, now time.Time) {
	s.store.WithLock(address, now, func(rec *models.ValidatorReputationMetrics) {
		if now.Sub(rec.LastDecayUpdate) < 24*time.Hour {
			return
		}
		days := now.Sub(lastActivity).Hours() / 24
		rec.TemporalDecay = math.Pow(0.95, days)
		if days >= 7 {
			rec.Reputation = clamp(rec.Reputation-(1-rec.TemporalDecay)*5, 0, 100)
		}
		rec.LastDecayUpdate = now

		if rec.IsBanned && rec.BanUntil != nil && !now.Before(*rec.BanUntil) {
			rec.IsBanned = false
			rec.BanUntil = nil
		}
	})
}

func pushRing(ring []float64, v float64, cap int) []float64 {
	ring = append(ring, v)
	if len(ring) > cap {
		ring = ring[len(ring)-cap:]
	}
	return ring
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
