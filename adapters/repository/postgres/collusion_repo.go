package postgres

import (
	"context"
	"fmt"

	"github.com/rawblock/evalmesh/pkg/models"
)

// CollusionRepository implements ports.CollusionRepository against
// Postgres, persisting both detected events and the per-validator
// collusion score used by EvaluateSPC/ResolveLargeNetworkPenalty callers.
type CollusionRepository struct {
	store *Store
}

// NewCollusionRepository wraps a connected Store.
func NewCollusionRepository(store *Store) *CollusionRepository {
	return &CollusionRepository{store: store}
}

func (r *CollusionRepository) RecordEvent(ctx context.Context, e models.CollusionEvent) error {
	members := make([]string, len(e.EncryptedValidators))
	for i, m := range e.EncryptedValidators {
		members[i] = string(m)
	}

	tx, err := r.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record event: %w", err)
	}
	defer tx.Rollback(ctx)

	sql := `
		INSERT INTO collusion_events (event_id, network_id, task_id, encrypted_validators, pattern_hash, audit_hash, severity, penalty_type, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING;
	`
	if _, err := tx.Exec(ctx, sql, e.EventID, e.NetworkID, nullableString(e.TaskID), members, e.PatternHash, e.AuditHash, e.Severity, e.PenaltyType, e.DetectedAt); err != nil {
		return fmt.Errorf("record collusion event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record event: %w", err)
	}
	return nil
}

func (r *CollusionRepository) RecordUserRejection(ctx context.Context, networkID, taskID, validatorAddress string) error {
	// User-rejection accounting feeds the SPC userRedoCount guard; tracked
	// as a zero-penalty, low-severity event row so the audit trail stays
	// in one table rather than splitting rejection history out separately.
	sql := `
		INSERT INTO collusion_events (event_id, network_id, task_id, encrypted_validators, pattern_hash, audit_hash, severity, penalty_type, detected_at)
		VALUES (gen_random_uuid()::text, $1, $2, ARRAY[$3]::text[], '', '', $4, '', NOW());
	`
	if _, err := r.store.pool.Exec(ctx, sql, networkID, taskID, validatorAddress, models.SeverityLow); err != nil {
		return fmt.Errorf("record user rejection: %w", err)
	}
	return nil
}

func (r *CollusionRepository) GetCollusionScore(ctx context.Context, validatorAddress, networkID string) (float64, error) {
	var score float64
	sql := `SELECT score FROM collusion_scores WHERE validator_address = $1 AND network_id = $2`
	err := r.store.pool.QueryRow(ctx, sql, validatorAddress, networkID).Scan(&score)
	if err != nil {
		return 0, nil // unseen validator carries no collusion history yet.
	}
	return score, nil
}

func (r *CollusionRepository) SetCollusionScore(ctx context.Context, validatorAddress, networkID string, score float64) error {
	sql := `
		INSERT INTO collusion_scores (validator_address, network_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (validator_address, network_id) DO UPDATE SET score = EXCLUDED.score;
	`
	if _, err := r.store.pool.Exec(ctx, sql, validatorAddress, networkID, score); err != nil {
		return fmt.Errorf("set collusion score: %w", err)
	}
	return nil
}

func (r *CollusionRepository) ListHighRiskValidators(ctx context.Context, networkID string, minScore float64) ([]string, error) {
	sql := `SELECT validator_address FROM collusion_scores WHERE network_id = $1 AND score >= $2`
	rows, err := r.store.pool.Query(ctx, sql, networkID, minScore)
	if err != nil {
		return nil, fmt.Errorf("list high risk validators: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan high risk validator: %w", err)
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
