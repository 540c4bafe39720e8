package models

import "time"

// TaskStatus is one state in the monotonic lifecycle of §4.8. Transitions
// are engine-initiated only.
type TaskStatus string

const (
	StatusSubmitted       TaskStatus = "submitted"
	StatusMining          TaskStatus = "mining"
	StatusEvaluating      TaskStatus = "evaluating"
	StatusPreFiltering    TaskStatus = "pre-filtering"
	StatusUserSelecting   TaskStatus = "user-selecting"
	StatusConsensusReached TaskStatus = "consensus-reached"
	StatusPaid            TaskStatus = "paid"
	StatusChallenged      TaskStatus = "challenged"
	StatusTimedOut        TaskStatus = "timed-out"
	StatusUserRejected    TaskStatus = "user-rejected"
)

// Task is owned by the engine. Status never rewinds except via explicit
// user-rejection, which spawns a new Task rather than retrying this one.
type Task struct {
	TaskID         string
	NetworkID      string
	Status         TaskStatus
	Input          []byte
	Depositor      string
	DepositAmount  float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RedoCount      int
	PreFilteredOutputs []string
	WinningOutputID    string
}

// TaskOutputMetadata carries the optional deterministic-replay evidence a
// miner may attach to an output.
type TaskOutputMetadata struct {
	Seed               string          `json:"seed,omitempty"`
	ReplayBundle       *ReplayBundle   `json:"replayBundle,omitempty"`
	StepTraceHash      *StepTraceHash  `json:"stepTraceHash,omitempty"`
	ExecutionEnv       []byte          `json:"executionEnv,omitempty"`
	IntermediateHashes []string        `json:"intermediateHashes,omitempty"`
}

// TaskOutput is owned by its Task. OutputID is the canonical content hash
// of Output; duplicate OutputIDs within a task are rejected.
type TaskOutput struct {
	OutputID      string
	Output        []byte
	MinerAddress  string
	SubmittedAt   time.Time
	Metadata      TaskOutputMetadata
}

// ReplayBundle is the minimal pinned record sufficient to recompute a
// deterministic output. For deterministic mode Temperature must be 0 and
// RandomSeed must be set.
type ReplayBundle struct {
	TaskInputHash     string  `json:"taskInputHash"`
	ModelID           string  `json:"modelId"`
	ModelVersionHash  string  `json:"modelVersionHash"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"topP"`
	TopK              int     `json:"topK"`
	MaxTokens         int     `json:"maxTokens"`
	RandomSeed        string  `json:"randomSeed"`
	ExecutionEnvHash  string  `json:"executionEnvHash"`
}

// StepTraceHash is optional but validated if present: TraceHash must equal
// H(concat(StepHashes)).
type StepTraceHash struct {
	TraceHash  string   `json:"traceHash"`
	StepHashes []string `json:"stepHashes"`
}

// ValidatorMethodConfig names the estimator a validator used to produce
// its distribution analysis and contribution scores for one output set.
type ValidatorMethodConfig struct {
	EmbeddingMethod       EmbeddingMethod       `json:"embeddingMethod"`
	ClusteringAlgorithm   ClusteringAlgorithm   `json:"clusteringAlgorithm"`
	ContributionWeights   ContributionWeights   `json:"contributionWeights"`
	MethodID              string                `json:"methodId"`
}

// ContributionWeights are the (robustness, novelty, diversity) weights
// applied when composing a ContributionScore's total.
type ContributionWeights struct {
	Robustness float64 `json:"robustness"`
	Novelty    float64 `json:"novelty"`
	Diversity  float64 `json:"diversity"`
}

// ValidatorEvaluation records exactly one (taskId, validatorAddress,
// outputId) scoring; duplicates are rejected by the repository layer.
type ValidatorEvaluation struct {
	ValidatorAddress     string
	OutputID             string
	Score                float64
	Confidence           float64
	Timestamp            time.Time
	Signature            string
	MethodConfig         *ValidatorMethodConfig
	DistributionAnalysis *DistributionAnalysis
	Contributions        *ContributionScore
	Reasoning             string
}

// EvaluationResult is the output of every public evaluate_* operation in
// §4.1.
type EvaluationResult struct {
	TaskID            string
	WinningOutputID   string
	FinalScore        float64
	Confidence        float64
	AgreementScore     float64
	MethodDiversity    float64
	ReplayHash         string
	ValidatorAddresses []string
	Mode               string // "deterministic" | "statistical" | "human-in-the-loop"
}
