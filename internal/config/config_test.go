package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadManifest_ValidatesRequiredFields(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "net1.yaml", `
networkId: net1
consensusThreshold: 0.66
minValidators: 3
maxRedos: 3
adversarialBaseRate: 0.075
defaultEmbedding: hash
defaultClustering: simple-threshold
softPenalty: 2
partialPenalty: 5
challengePenalty: 0
`)

	manifests, err := LoadManifests(dir)
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	m, ok := manifests["net1"]
	if !ok {
		t.Fatalf("expected net1 manifest to be loaded")
	}
	if m.MinValidators != 3 {
		t.Errorf("MinValidators = %d, want 3", m.MinValidators)
	}
}

func TestLoadManifest_RejectsOutOfRangeThreshold(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "bad.yaml", `
networkId: bad
consensusThreshold: 1.5
minValidators: 3
maxRedos: 3
adversarialBaseRate: 0.075
defaultEmbedding: hash
defaultClustering: simple-threshold
`)

	if _, err := LoadManifests(dir); err == nil {
		t.Fatalf("expected validation error for consensusThreshold > 1")
	}
}

func TestLoadManifests_MissingDirIsNotFatal(t *testing.T) {
	manifests, err := LoadManifests(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("expected no error for missing manifest dir, got %v", err)
	}
	if len(manifests) != 0 {
		t.Errorf("expected empty manifest set, got %d", len(manifests))
	}
}
