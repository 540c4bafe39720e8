package collusion

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/evalmesh/internal/canon"
	"github.com/rawblock/evalmesh/pkg/models"
)

// NetworkSizeTier buckets a network by validator count for the
// size-adaptive SPC policy of §4.6.
type NetworkSizeTier int

const (
	TierSmall  NetworkSizeTier = iota // N <= 10
	TierMedium                        // 11 <= N <= 20
	TierLarge                         // N > 20
)

func Tier(networkSize int) NetworkSizeTier {
	switch {
	case networkSize <= 10:
		return TierSmall
	case networkSize <= 20:
		return TierMedium
	default:
		return TierLarge
	}
}

// RejectionRound is one validator's per-round rejection-rate deviation
// input to the SPC policy.
type RejectionRound struct {
	ValidatorAddress string
	RejectionRate    float64
	DisagreedWithMajority bool
	UserID           string
}

// PenaltyConfig externalizes the SPC penalty magnitudes per §9's Open
// Questions ("Penalty magnitudes... are protocol-policy numbers; expose
// as configuration rather than burn-in").
type PenaltyConfig struct {
	Soft      float64
	Partial   float64
	Challenge float64
}

// DefaultPenaltyConfig mirrors the illustrative figures in §9.
var DefaultPenaltyConfig = PenaltyConfig{Soft: 2, Partial: 5, Challenge: 0}

// EvaluateSPC applies the network-size-adaptive policy of §4.6 to one
// network's recent rounds, returning the penalty tier for each
// implicated validator. userRedoCount > 4 marks the task ambiguous and
// suppresses all penalties for it (the user-retry guard).
func EvaluateSPC(tier NetworkSizeTier, networkMedianRejection float64, rounds map[string][]RejectionRound, userRedoCount int) map[string]models.PenaltyType {
	out := make(map[string]models.PenaltyType)
	if userRedoCount > 4 {
		return out
	}

	switch tier {
	case TierSmall:
		for addr, history := range rounds {
			consecutive := 0
			for _, r := range history {
				delta := math.Abs(r.RejectionRate - networkMedianRejection)
				if delta > 0.3 {
					consecutive++
				} else {
					consecutive = 0
				}
			}
			if consecutive >= 3 {
				out[addr] = models.PenaltySoft
			}
		}
	case TierMedium:
		for addr, history := range rounds {
			disagreeRounds := 0
			distinctUsers := make(map[string]bool)
			for _, r := range history {
				if r.DisagreedWithMajority {
					disagreeRounds++
					distinctUsers[r.UserID] = true
				}
			}
			if disagreeRounds >= 3 && len(distinctUsers) >= 2 {
				out[addr] = models.PenaltyPartial
			}
		}
	case TierLarge:
		// No penalty for mere disagreement; only consistency-failure or
		// collusion-evidence signals apply, decided by the caller using
		// ConsistencyFailure/CollusionEvidence below.
	}
	return out
}

// ConsistencyFailure implements §4.6(a): score std-dev > 30 across >= 5
// tasks for one validator.
func ConsistencyFailure(scores []float64) bool {
	if len(scores) < 5 {
		return false
	}
	return math.Sqrt(variance(scores)) > 30
}

// CollusionEvidence implements §4.6(b): a validator with >=95% agreement
// with >=2 other validators over >=5 shared tasks each.
func CollusionEvidence(agreementCounts map[models.EncryptedValidatorId]models.EdgeStats) bool {
	qualifying := 0
	for _, stats := range agreementCounts {
		if stats.TasksTogether >= 5 && stats.AgreementRate() >= 0.95 {
			qualifying++
		}
	}
	return qualifying >= 2
}

// ResolveLargeNetworkPenalty applies dependency-grouped evidence fusion
// (supplemented per SPEC_FULL.md, grounded on the teacher's
// factor_graph.go max-per-group pattern): when both a consistency
// failure and collusion evidence fire for the same validator in the same
// scan, only the stronger tier is reported, avoiding double-counting one
// underlying behavior as two penalties.
func ResolveLargeNetworkPenalty(hasConsistencyFailure, hasCollusionEvidence bool) models.PenaltyType {
	if hasCollusionEvidence {
		return models.PenaltyCollusionEvidence
	}
	if hasConsistencyFailure {
		return models.PenaltyChallenge
	}
	return models.PenaltyNone
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

// BuildEvent materializes a CollusionEvent for a flagged group, computing
// PatternHash and AuditHash. AuditHash follows the teacher's
// llr_engine.go createEdge convention: SHA-256 over a pipe-delimited
// payload, giving every flagged group a tamper-evident fingerprint
// independent of PatternHash.
func BuildEvent(networkID, taskID string, group []models.EncryptedValidatorId, severity models.CollusionSeverity, penalty models.PenaltyType, now time.Time) models.CollusionEvent {
	sorted := append([]models.EncryptedValidatorId{}, group...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	members := make([]string, len(sorted))
	for i, m := range sorted {
		members[i] = string(m)
	}
	patternHash := canon.HashConcat(members...)
	auditHash := canon.HashConcat(networkID, "|", taskID, "|", patternHash, "|", string(severity), "|", string(penalty))

	return models.CollusionEvent{
		EventID:             uuid.New().String(),
		NetworkID:           networkID,
		TaskID:              taskID,
		EncryptedValidators: sorted,
		PatternHash:         patternHash,
		AuditHash:           auditHash,
		Severity:            severity,
		PenaltyType:         penalty,
		DetectedAt:          now,
		Metadata:            map[string]string{},
	}
}
