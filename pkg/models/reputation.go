package models

import "time"

// RiskVector is the seven-dimensional [0,1]^7 characterization of a
// validator's behavior. Bounds are enforced by a runtime invariant
// checker after every update.
type RiskVector struct {
	Exploration            float64
	Consistency            float64
	Reliability            float64
	Diversity              float64
	Surprisal              float64
	TemporalStability      float64
	AdversarialResistance  float64
}

// Clamp pins every dimension into [0,1].
func (r *RiskVector) Clamp() {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	r.Exploration = clamp(r.Exploration)
	r.Consistency = clamp(r.Consistency)
	r.Reliability = clamp(r.Reliability)
	r.Diversity = clamp(r.Diversity)
	r.Surprisal = clamp(r.Surprisal)
	r.TemporalStability = clamp(r.TemporalStability)
	r.AdversarialResistance = clamp(r.AdversarialResistance)
}

// TaskConditionedReputation is keyed by (networkId, taskType) and accrues
// independent success/failure accounting from the validator's global
// reputation.
type TaskConditionedReputation struct {
	NetworkID      string
	TaskType       string
	Reputation     float64
	Successful     int
	Failed         int
	TemporalDecay  float64
	LastActivity   time.Time
}

// ValidatorReputationMetrics is the full per-validator reputation record.
// Global invariant: Reputation in [0,100]; every RiskVector dimension in
// [0,1]; TotalValidations == Successful+Failed+Rejected.
type ValidatorReputationMetrics struct {
	ValidatorAddress       string
	Reputation             float64 // starts at 50
	Successful             int
	Failed                 int
	Rejected               int
	ConsecutiveFailures    int
	IsBanned               bool
	BanUntil               *time.Time
	RiskVector             RiskVector
	TaskConditioned        map[string]*TaskConditionedReputation // key: networkId+"|"+taskType
	SurprisalHistory       []float64 // ring buffer, cap 100
	AverageSurprisal       float64
	TemporalDecay          float64
	LastDecayUpdate        time.Time
}

// TotalValidations returns Successful+Failed+Rejected, the global
// invariant's right-hand side.
func (m *ValidatorReputationMetrics) TotalValidations() int {
	return m.Successful + m.Failed + m.Rejected
}

// NewValidatorReputationMetrics returns the zero-state record for a newly
// seen validator: reputation 50, full temporal decay, neutral risk
// vector.
func NewValidatorReputationMetrics(address string, now time.Time) *ValidatorReputationMetrics {
	return &ValidatorReputationMetrics{
		ValidatorAddress: address,
		Reputation:       50,
		RiskVector: RiskVector{
			TemporalStability: 0.5,
		},
		TaskConditioned:  make(map[string]*TaskConditionedReputation),
		SurprisalHistory: make([]float64, 0, 100),
		TemporalDecay:    1.0,
		LastDecayUpdate:  now,
	}
}

// ReputationUpdateResult is returned by update_reputation.
type ReputationUpdateResult struct {
	Old         float64
	New         float64
	Change      float64
	WasRejected bool
	WasBanned   bool
	BanUntil    *time.Time
}

// EvaluationValidationResult is returned by validate_evaluation.
type EvaluationValidationResult struct {
	Valid              bool
	Reason             string
	ShouldReject       bool
	ReputationPenalty  float64
	ShouldBan          bool
	BanDuration        time.Duration
}

// NetworkState is the externally supplied, under-specified struct
// consumed by effective_weight. Its precise computation is out of scope;
// it is treated as an opaque input per §9's Open Questions.
type NetworkState struct {
	ExplorationBias  float64
	ReliabilityBias  float64
	CurrentEntropy   float64
	TaskDifficulty   float64
}
