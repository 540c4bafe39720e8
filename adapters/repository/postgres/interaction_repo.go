package postgres

import (
	"context"
	"fmt"

	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/pkg/models"
)

// InteractionRepository implements ports.ValidatorInteractionRepository,
// persisting the pairwise co-occurrence counts that seed collusion.Graph
// on startup.
type InteractionRepository struct {
	store *Store
}

// NewInteractionRepository wraps a connected Store.
func NewInteractionRepository(store *Store) *InteractionRepository {
	return &InteractionRepository{store: store}
}

// canonicalPair orders two encrypted ids min(A,B) first, matching the
// ordering internal/collusion.Graph uses for its in-memory edges.
func canonicalPair(a, b models.EncryptedValidatorId) (models.EncryptedValidatorId, models.EncryptedValidatorId) {
	if a <= b {
		return a, b
	}
	return b, a
}

func (r *InteractionRepository) AppendInteraction(ctx context.Context, networkID string, a, b models.EncryptedValidatorId, agreed bool) error {
	lo, hi := canonicalPair(a, b)

	agreements, disagreements := 0, 1
	if agreed {
		agreements, disagreements = 1, 0
	}

	sql := `
		INSERT INTO validator_interactions (network_id, validator_a, validator_b, tasks_together, agreements, disagreements)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (network_id, validator_a, validator_b) DO UPDATE SET
			tasks_together = validator_interactions.tasks_together + 1,
			agreements     = validator_interactions.agreements + EXCLUDED.agreements,
			disagreements  = validator_interactions.disagreements + EXCLUDED.disagreements;
	`
	if _, err := r.store.pool.Exec(ctx, sql, networkID, string(lo), string(hi), agreements, disagreements); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

func (r *InteractionRepository) HighAgreementPairs(ctx context.Context, networkID string, minRate float64, minShared int) ([]ports.PairStats, error) {
	sql := `
		SELECT validator_a, validator_b, tasks_together, agreements, disagreements
		FROM validator_interactions
		WHERE network_id = $1
		  AND tasks_together >= $2
		  AND agreements::float8 / NULLIF(tasks_together, 0) >= $3;
	`
	rows, err := r.store.pool.Query(ctx, sql, networkID, minShared, minRate)
	if err != nil {
		return nil, fmt.Errorf("high agreement pairs: %w", err)
	}
	defer rows.Close()

	var out []ports.PairStats
	for rows.Next() {
		var a, b string
		var stats models.EdgeStats
		if err := rows.Scan(&a, &b, &stats.TasksTogether, &stats.Agreements, &stats.Disagreements); err != nil {
			return nil, fmt.Errorf("scan pair stats: %w", err)
		}
		out = append(out, ports.PairStats{
			A:     models.EncryptedValidatorId(a),
			B:     models.EncryptedValidatorId(b),
			Stats: stats,
		})
	}
	return out, rows.Err()
}
