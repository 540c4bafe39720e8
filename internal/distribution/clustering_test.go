package distribution

import (
	"math"
	"testing"

	"github.com/rawblock/evalmesh/pkg/models"
)

type fixedRng struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (f *fixedRng) Float64() float64 {
	v := f.floats[f.fi%len(f.floats)]
	f.fi++
	return v
}

func (f *fixedRng) Intn(n int) int {
	v := f.ints[f.ii%len(f.ints)]
	f.ii++
	if v >= n {
		v = 0
	}
	return v
}

func samplePoints() []Point {
	return []Point{
		{OutputID: "a", Embedding: []float64{0, 0}},
		{OutputID: "b", Embedding: []float64{0.01, 0}},
		{OutputID: "c", Embedding: []float64{10, 10}},
		{OutputID: "d", Embedding: []float64{10.01, 10}},
	}
}

func allMembers(modes []models.Mode) map[string]int {
	count := make(map[string]int)
	for _, m := range modes {
		for _, id := range m.Members {
			count[id]++
		}
	}
	return count
}

func assertPartition(t *testing.T, modes []models.Mode, points []Point) {
	t.Helper()
	count := allMembers(modes)
	if len(count) != len(points) {
		t.Fatalf("expected %d distinct members across modes, got %d", len(points), len(count))
	}
	for id, c := range count {
		if c != 1 {
			t.Fatalf("outputId %s appears in %d modes, want exactly 1", id, c)
		}
	}
}

func TestSimpleThresholdClusterer_Partitions(t *testing.T) {
	points := samplePoints()
	modes := SimpleThresholdClusterer{}.Cluster(points)
	assertPartition(t, modes, points)
}

func TestDBSCANClusterer_NoisePointsAreSingletons(t *testing.T) {
	points := samplePoints()
	modes := DBSCANClusterer{Eps: 0.5}.Cluster(points)
	assertPartition(t, modes, points)
	if len(modes) < 2 {
		t.Fatalf("expected at least 2 modes for two well-separated pairs, got %d", len(modes))
	}
}

func TestKMeansClusterer_Partitions(t *testing.T) {
	points := samplePoints()
	rng := &fixedRng{floats: []float64{0.1, 0.5, 0.9}, ints: []int{0, 2}}
	modes := KMeansClusterer{Rng: rng}.Cluster(points)
	assertPartition(t, modes, points)
}

func TestHierarchicalClusterer_Partitions(t *testing.T) {
	points := samplePoints()
	modes := HierarchicalClusterer{}.Cluster(points)
	assertPartition(t, modes, points)
}

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder()
	v1, err := e.Embed([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := e.Embed([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("hash embedding not deterministic at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
	var sumSq float64
	for _, x := range v1 {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 1e-9 {
		t.Fatalf("hash embedding not L2-normalized: norm=%v", norm)
	}
}

func TestAnalyze_EntropyZeroForSingleMode(t *testing.T) {
	points := []Point{
		{OutputID: "a", Embedding: []float64{0, 0}},
		{OutputID: "b", Embedding: []float64{0.01, 0}},
	}
	modes := []models.Mode{{ModeID: "m0", Members: []string{"a", "b"}, Density: 1.0, Robustness: 1.0}}
	analysis := Analyze(modes, points)
	if math.Abs(analysis.Entropy) > 1e-9 {
		t.Fatalf("expected zero entropy for a single mode, got %v", analysis.Entropy)
	}
}
