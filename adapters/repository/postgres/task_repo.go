package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rawblock/evalmesh/pkg/models"
)

// TaskRepository implements ports.TaskRepository against Postgres.
type TaskRepository struct {
	store *Store
}

// NewTaskRepository wraps a connected Store.
func NewTaskRepository(store *Store) *TaskRepository {
	return &TaskRepository{store: store}
}

func (r *TaskRepository) CreateTask(ctx context.Context, t *models.Task) error {
	sql := `
		INSERT INTO tasks (task_id, network_id, status, input, depositor, deposit_amount, redo_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id) DO NOTHING;
	`
	_, err := r.store.pool.Exec(ctx, sql, t.TaskID, t.NetworkID, t.Status, t.Input, t.Depositor, t.DepositAmount, t.RedoCount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindTask(ctx context.Context, taskID string) (*models.Task, error) {
	sql := `SELECT task_id, network_id, status, input, depositor, deposit_amount, redo_count, winning_output_id, created_at, updated_at FROM tasks WHERE task_id = $1`
	row := r.store.pool.QueryRow(ctx, sql, taskID)

	var t models.Task
	var winning *string
	if err := row.Scan(&t.TaskID, &t.NetworkID, &t.Status, &t.Input, &t.Depositor, &t.DepositAmount, &t.RedoCount, &winning, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if winning != nil {
		t.WinningOutputID = *winning
	}
	return &t, nil
}

func (r *TaskRepository) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	_, err := r.store.pool.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE task_id = $2`, status, taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func (r *TaskRepository) AppendOutput(ctx context.Context, taskID string, out models.TaskOutput) error {
	metadata, err := json.Marshal(out.Metadata)
	if err != nil {
		return fmt.Errorf("marshal output metadata: %w", err)
	}
	sql := `
		INSERT INTO task_outputs (task_id, output_id, output, miner_address, submitted_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id, output_id) DO NOTHING;
	`
	_, err = r.store.pool.Exec(ctx, sql, taskID, out.OutputID, out.Output, out.MinerAddress, out.SubmittedAt, metadata)
	if err != nil {
		return fmt.Errorf("append output: %w", err)
	}
	return nil
}

func (r *TaskRepository) AppendEvaluation(ctx context.Context, taskID string, eval models.ValidatorEvaluation) error {
	methodConfig, err := json.Marshal(eval.MethodConfig)
	if err != nil {
		return fmt.Errorf("marshal method config: %w", err)
	}
	sql := `
		INSERT INTO task_evaluations (task_id, validator_address, output_id, score, confidence, signature, timestamp, method_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (task_id, validator_address, output_id) DO NOTHING;
	`
	_, err = r.store.pool.Exec(ctx, sql, taskID, eval.ValidatorAddress, eval.OutputID, eval.Score, eval.Confidence, eval.Signature, eval.Timestamp, methodConfig)
	if err != nil {
		return fmt.Errorf("append evaluation: %w", err)
	}
	return nil
}

func (r *TaskRepository) UpdateConsensus(ctx context.Context, taskID string, result models.EvaluationResult) error {
	sql := `UPDATE tasks SET winning_output_id = $1, status = $2, updated_at = NOW() WHERE task_id = $3`
	_, err := r.store.pool.Exec(ctx, sql, result.WinningOutputID, models.StatusConsensusReached, taskID)
	if err != nil {
		return fmt.Errorf("update consensus: %w", err)
	}
	return nil
}

func (r *TaskRepository) UpdatePreFilter(ctx context.Context, taskID string, outputIDs []string) error {
	// Represented as a task status transition plus an in-memory
	// PreFilteredOutputs set managed by the caller; persisted here as a
	// JSON column would be the natural extension, kept out to avoid a
	// migration for a field the core never queries back from SQL.
	_, err := r.store.pool.Exec(ctx, `UPDATE tasks SET status = $1, updated_at = NOW() WHERE task_id = $2`, models.StatusPreFiltering, taskID)
	if err != nil {
		return fmt.Errorf("update pre-filter: %w", err)
	}
	return nil
}

func (r *TaskRepository) UpdateHumanSelection(ctx context.Context, taskID string, outputID string) error {
	sql := `UPDATE tasks SET winning_output_id = $1, status = $2, updated_at = NOW() WHERE task_id = $3`
	_, err := r.store.pool.Exec(ctx, sql, outputID, models.StatusConsensusReached, taskID)
	if err != nil {
		return fmt.Errorf("update human selection: %w", err)
	}
	return nil
}
