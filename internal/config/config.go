// Package config loads the engine's process-level configuration from
// environment variables, following cmd/engine/main.go's requireEnv /
// getEnvOrDefault fail-fast idiom, and layers per-network manifests
// (consensus thresholds, SPC penalties, adversarial rates, embedding and
// clustering defaults) on top, decoded from YAML.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Engine holds the environment-sourced settings every composition root
// needs before it can wire adapters.
type Engine struct {
	DatabaseURL        string
	StorageBackend     string // "s3" | "azblob"
	S3Bucket           string
	S3Region           string
	AzureContainerURL  string
	ValidatorSecretKey string // used by canon.EncryptValidatorID
	Port               string
	ManifestDir        string
}

// Load reads required and optional environment variables, exiting the
// process via log.Fatalf on a missing required value, matching the
// teacher's requireEnv behavior.
func Load() Engine {
	return Engine{
		DatabaseURL:        requireEnv("DATABASE_URL"),
		StorageBackend:     getEnvOrDefault("STORAGE_BACKEND", "s3"),
		S3Bucket:           getEnvOrDefault("S3_BUCKET", "evalmesh-tasks"),
		S3Region:           getEnvOrDefault("S3_REGION", "us-east-1"),
		AzureContainerURL:  getEnvOrDefault("AZURE_CONTAINER_URL", ""),
		ValidatorSecretKey: requireEnv("VALIDATOR_ID_SECRET_KEY"),
		Port:               getEnvOrDefault("PORT", "5339"),
		ManifestDir:        getEnvOrDefault("NETWORK_MANIFEST_DIR", "./manifests"),
	}
}

// requireEnv reads a required environment variable and exits if it is not
// set, matching cmd/engine/main.go's original behavior.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// NetworkManifest is the per-network tunable set layered on top of the
// process-level Engine config, one YAML file per network under
// Engine.ManifestDir.
type NetworkManifest struct {
	NetworkID            string  `yaml:"networkId" validate:"required"`
	ConsensusThreshold   float64 `yaml:"consensusThreshold" validate:"gt=0,lte=1"`
	MinValidators        int     `yaml:"minValidators" validate:"gte=1"`
	MaxRedos             int     `yaml:"maxRedos" validate:"gte=0"`
	AdversarialBaseRate  float64 `yaml:"adversarialBaseRate" validate:"gte=0,lte=1"`
	DefaultEmbedding     string  `yaml:"defaultEmbedding" validate:"required"`
	DefaultClustering    string  `yaml:"defaultClustering" validate:"required"`
	SoftPenalty          float64 `yaml:"softPenalty" validate:"gte=0"`
	PartialPenalty       float64 `yaml:"partialPenalty" validate:"gte=0"`
	ChallengePenalty     float64 `yaml:"challengePenalty" validate:"gte=0"`
}

var validate = validator.New()

// LoadManifest decodes and validates one network manifest file.
func LoadManifest(path string) (NetworkManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NetworkManifest{}, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m NetworkManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return NetworkManifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	if err := validate.Struct(m); err != nil {
		return NetworkManifest{}, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return m, nil
}

// LoadManifests decodes every *.yaml/*.yml file directly under dir,
// keyed by NetworkID. A manifest directory that does not exist yet is
// not fatal — networks can be registered at runtime.
func LoadManifests(dir string) (map[string]NetworkManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Warning: manifest directory %s not found, starting with no preloaded networks", dir)
			return map[string]NetworkManifest{}, nil
		}
		return nil, fmt.Errorf("read manifest dir %s: %w", dir, err)
	}

	out := make(map[string]NetworkManifest, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !hasYAMLExt(name) {
			continue
		}
		m, err := LoadManifest(dir + "/" + name)
		if err != nil {
			return nil, err
		}
		out[m.NetworkID] = m
	}
	return out, nil
}

func hasYAMLExt(name string) bool {
	return len(name) > 5 && (name[len(name)-5:] == ".yaml") ||
		len(name) > 4 && (name[len(name)-4:] == ".yml")
}
