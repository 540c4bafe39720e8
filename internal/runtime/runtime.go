// Package runtime bundles the engine's ports and services into one
// wired Runtime, the composition root's product. A CLI or job-queue
// front end built on top of this module constructs a Runtime once at
// startup and drives it per incoming task.
package runtime

import (
	"context"
	"fmt"

	"github.com/rawblock/evalmesh/internal/calibration"
	"github.com/rawblock/evalmesh/internal/collusion"
	"github.com/rawblock/evalmesh/internal/config"
	"github.com/rawblock/evalmesh/internal/events"
	"github.com/rawblock/evalmesh/internal/pipeline"
	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/internal/reputation"
	"github.com/rawblock/evalmesh/internal/workerpool"
	"github.com/rawblock/evalmesh/pkg/models"
)

// Runtime holds every long-lived dependency the evaluation, reputation,
// and collusion services need across the lifetime of the process.
type Runtime struct {
	Config      config.Engine
	Manifests   map[string]config.NetworkManifest
	TaskRepo    ports.TaskRepository
	Collusion   ports.CollusionRepository
	Interaction ports.ValidatorInteractionRepository
	Storage     ports.StorageProvider // nil if no backend could be wired
	Crypto      ports.CryptoPort
	Schema      ports.SchemaValidator
	Clock       ports.Clock
	Rng         ports.Rng
	Reputation  *reputation.Service
	Calibration *calibration.Store
	Graph       *collusion.Graph
	Pool        *workerpool.Pool
	Bus         *events.Bus
}

// EvaluateTask resolves task's network manifest and drives the full
// evaluation pipeline against it: signature filtering, distribution
// analysis, calibration, aggregation, reputation and collusion updates,
// and adversarial scheduling. This is the composition root's single
// entry point for turning a task's collected evaluations into a result.
func (r *Runtime) EvaluateTask(ctx context.Context, task *models.Task, outputs []models.TaskOutput, evaluations []models.ValidatorEvaluation) (pipeline.Outcome, error) {
	manifest, err := r.ManifestFor(task.NetworkID)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	deps := &pipeline.Deps{
		Crypto:      r.Crypto,
		Clock:       r.Clock,
		Rng:         r.Rng,
		Pool:        r.Pool,
		Reputation:  r.Reputation,
		Calibration: r.Calibration,
		Graph:       r.Graph,
	}
	return pipeline.EvaluateTask(ctx, deps, manifest, []byte(r.Config.ValidatorSecretKey), task, outputs, evaluations)
}

// ManifestFor looks up a network's tunables, returning an error tagged
// InvalidInput if the network was never registered.
func (r *Runtime) ManifestFor(networkID string) (config.NetworkManifest, error) {
	m, ok := r.Manifests[networkID]
	if !ok {
		return config.NetworkManifest{}, models.NewError(models.CodeInvalidInput, fmt.Sprintf("network %q has no registered manifest", networkID), nil)
	}
	return m, nil
}

// PublishValidatorBanned reports a ban decision on the event bus so
// subscribers (audit logging, alerting) observe it without the
// reputation service importing events directly.
func (r *Runtime) PublishValidatorBanned(ctx context.Context, validatorAddress, networkID, reason string) {
	r.Bus.Publish(events.Event{
		Kind: events.KindValidatorBanned,
		Payload: map[string]string{
			"validatorAddress": validatorAddress,
			"networkId":        networkID,
			"reason":           reason,
		},
	})
}

// PublishCollusionFlagged reports a discovered and flagged collusion
// group on the event bus.
func (r *Runtime) PublishCollusionFlagged(ctx context.Context, group []string, networkID string) {
	r.Bus.Publish(events.Event{
		Kind: events.KindCollusionFlagged,
		Payload: map[string]any{
			"group":     group,
			"networkId": networkID,
		},
	})
}
