// Package ports defines the interfaces the core consumes. Concrete
// adapters (Postgres, S3, Azure Blob, the EIP-191 crypto port) live under
// adapters/ and are wired in only at the composition root in
// cmd/engine/main.go. No core package imports an adapter package.
package ports

import (
	"context"
	"time"

	"github.com/rawblock/evalmesh/pkg/models"
)

// TaskRepository creates/finds/updates tasks and appends their outputs
// and evaluations.
type TaskRepository interface {
	CreateTask(ctx context.Context, t *models.Task) error
	FindTask(ctx context.Context, taskID string) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	AppendOutput(ctx context.Context, taskID string, out models.TaskOutput) error
	AppendEvaluation(ctx context.Context, taskID string, eval models.ValidatorEvaluation) error
	UpdateConsensus(ctx context.Context, taskID string, result models.EvaluationResult) error
	UpdatePreFilter(ctx context.Context, taskID string, outputIDs []string) error
	UpdateHumanSelection(ctx context.Context, taskID string, outputID string) error
}

// CollusionRepository records detected events and user-rejection
// accounting, and tracks per-(validator, network) collusion scores.
type CollusionRepository interface {
	RecordEvent(ctx context.Context, e models.CollusionEvent) error
	RecordUserRejection(ctx context.Context, networkID, taskID, validatorAddress string) error
	GetCollusionScore(ctx context.Context, validatorAddress, networkID string) (float64, error)
	SetCollusionScore(ctx context.Context, validatorAddress, networkID string, score float64) error
	ListHighRiskValidators(ctx context.Context, networkID string, minScore float64) ([]string, error)
}

// ValidatorInteractionRepository persists pairwise interaction history
// used to build the co-occurrence graph.
type ValidatorInteractionRepository interface {
	AppendInteraction(ctx context.Context, networkID string, a, b models.EncryptedValidatorId, agreed bool) error
	HighAgreementPairs(ctx context.Context, networkID string, minRate float64, minShared int) ([]PairStats, error)
}

// PairStats is one result row from HighAgreementPairs.
type PairStats struct {
	A, B  models.EncryptedValidatorId
	Stats models.EdgeStats
}

// StorageProvider uploads/downloads/pins content by content-address.
// UploadTaskState is primary; the database is a cache in front of it.
type StorageProvider interface {
	Upload(ctx context.Context, key string, data []byte) (cid string, err error)
	Download(ctx context.Context, cid string) ([]byte, error)
	Pin(ctx context.Context, cid string) error
	UploadTaskState(ctx context.Context, t *models.Task) (cid string, err error)
}

// BlockchainProvider deploys/reads/writes contracts and fetches
// validator info from chain. Out of scope per spec.md §1; specified only
// by this interface.
type BlockchainProvider interface {
	FetchValidatorInfo(ctx context.Context, address string) (reputationOnChain float64, err error)
	AnchorTask(ctx context.Context, taskID string, resultHash string) error
	DeployContract(ctx context.Context, bytecode []byte, args ...any) (address string, err error)
}

// CryptoPort is the signature boundary. All EIP-191 work funnels through
// this interface so the core never imports a curve library directly.
type CryptoPort interface {
	VerifyEIP191(address, signature, message string) (bool, error)
	ParseSignature(signature string) (r, s []byte, v byte, err error)
	AggregateSignatures(message string, sigs []string) (hash string, aggregated []string, err error)
	RecoverEIP191(signature, message string) (address string, err error)
}

// Clock is the sole time source for the core; decay and TTL math derives
// from it so tests can inject deterministic time.
type Clock interface {
	Now() time.Time
}

// Rng is the sole randomness source for the core (adversarial injection
// rolls, k-means++ seeding); injected so probabilistic logic stays
// deterministic under test.
type Rng interface {
	Float64() float64 // uniform [0,1)
	Intn(n int) int
}

// SchemaValidator validates a task's input/output payload against the
// JSON Schema attached to its network manifest (§6.3).
type SchemaValidator interface {
	ValidateInput(networkID string, payload []byte) error
	ValidateOutput(networkID string, payload []byte) error
}
