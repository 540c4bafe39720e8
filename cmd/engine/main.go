package main

import (
	"context"
	"log"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/rawblock/evalmesh/adapters/crypto"
	"github.com/rawblock/evalmesh/adapters/repository/postgres"
	"github.com/rawblock/evalmesh/adapters/schema"
	"github.com/rawblock/evalmesh/adapters/storage/azblob"
	"github.com/rawblock/evalmesh/adapters/storage/s3"
	"github.com/rawblock/evalmesh/internal/calibration"
	"github.com/rawblock/evalmesh/internal/collusion"
	"github.com/rawblock/evalmesh/internal/config"
	"github.com/rawblock/evalmesh/internal/events"
	"github.com/rawblock/evalmesh/internal/ports"
	"github.com/rawblock/evalmesh/internal/reputation"
	"github.com/rawblock/evalmesh/internal/runtime"
	"github.com/rawblock/evalmesh/internal/sysclock"
	"github.com/rawblock/evalmesh/internal/workerpool"
)

func main() {
	log.Println("Starting Evalmesh decentralized evaluation and reputation engine...")

	cfg := config.Load()
	ctx := context.Background()

	var taskRepo ports.TaskRepository
	var collusionRepo ports.CollusionRepository
	var interactionRepo ports.ValidatorInteractionRepository

	dbStore, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persistence. Error: %v", err)
	} else {
		defer dbStore.Close()
		if err := dbStore.InitSchema(ctx, "adapters/repository/postgres/schema.sql"); err != nil {
			log.Printf("Warning: schema init failed: %v", err)
		}
		taskRepo = postgres.NewTaskRepository(dbStore)
		collusionRepo = postgres.NewCollusionRepository(dbStore)
		interactionRepo = postgres.NewInteractionRepository(dbStore)
	}

	var storageProvider ports.StorageProvider
	switch cfg.StorageBackend {
	case "azblob":
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			log.Printf("Warning: Failed to build Azure credential, continuing without content storage: %v", err)
			break
		}
		provider, err := azblob.New(cfg.AzureContainerURL, cred)
		if err != nil {
			log.Printf("Warning: Failed to create Azure Blob storage client: %v", err)
			break
		}
		storageProvider = provider
		log.Println("Content storage backend: azblob")
	default:
		provider, err := s3.New(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			log.Printf("Warning: Failed to create S3 storage client, continuing without content storage: %v", err)
			break
		}
		storageProvider = provider
		log.Println("Content storage backend: s3")
	}
	if storageProvider == nil {
		log.Println("WARNING: No content storage backend available — task-state snapshots will not be persisted off-database")
	}

	manifests, err := config.LoadManifests(cfg.ManifestDir)
	if err != nil {
		log.Fatalf("FATAL: failed to load network manifests: %v", err)
	}
	log.Printf("Loaded %d network manifests from %s", len(manifests), cfg.ManifestDir)

	bus := events.New(1000)
	bus.Subscribe(func(e events.Event) {
		if e.Kind == events.KindValidatorBanned {
			log.Printf("[Events] validator banned: %v", e.Payload)
		}
	})

	rt := &runtime.Runtime{
		Config:      cfg,
		Manifests:   manifests,
		TaskRepo:    taskRepo,
		Collusion:   collusionRepo,
		Interaction: interactionRepo,
		Storage:     storageProvider,
		Crypto:      crypto.New(),
		Schema:      schema.New(),
		Clock:       sysclock.Real{},
		Rng:         sysclock.NewMathRand(time.Now().UnixNano()),
		Reputation:  reputation.NewService(reputation.NewStore()),
		Calibration: calibration.NewStore(),
		Graph:       collusion.NewGraph(),
		Pool:        workerpool.New(4),
		Bus:         bus,
	}

	log.Println("Evalmesh engine initialized:")
	log.Printf("  reputation service: ready (16-shard store)")
	log.Printf("  calibration store: ready")
	log.Printf("  collusion graph: ready")
	log.Printf("  worker pool: width=4")
	log.Printf("  crypto port: eip191")
	log.Printf("  schema validator: ready")
	log.Printf("  event bus: capacity=1000")

	// The engine is a library invoked per task (rt.EvaluateTask runs the
	// full signature/distribution/calibration/reputation/collusion
	// pipeline) rather than a long-running request server (§1 scopes
	// HTTP/P2P transport out); main's job ends at successful wiring. A
	// CLI or job-queue consumer built on top of this composition root
	// calls rt.EvaluateTask per incoming task.
	serve(rt)
}

// serve is the hook a CLI or job-queue front end replaces with its own
// loop; the composition root's contract ends at producing a wired
// Runtime whose EvaluateTask method is ready to call.
func serve(rt *runtime.Runtime) {
	log.Println("Evalmesh engine ready.")
}
