package distribution

import (
	"math"
	"sort"

	"github.com/rawblock/evalmesh/pkg/models"
)

// Point is one embedded output fed to a clustering algorithm.
type Point struct {
	OutputID  string
	Embedding []float64
}

// Clusterer groups points into modes. Every algorithm guarantees every
// outputId appears in exactly one returned Mode.
type Clusterer interface {
	Cluster(points []Point) []models.Mode
	Algorithm() models.ClusteringAlgorithm
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func centroid(pts []Point) []float64 {
	if len(pts) == 0 {
		return nil
	}
	dim := len(pts[0].Embedding)
	c := make([]float64, dim)
	for _, p := range pts {
		for i, v := range p.Embedding {
			c[i] += v
		}
	}
	for i := range c {
		c[i] /= float64(len(pts))
	}
	return c
}

func buildMode(id string, pts []Point) models.Mode {
	center := centroid(pts)
	members := make([]string, len(pts))
	var sumSq, mean float64
	dists := make([]float64, len(pts))
	for i, p := range pts {
		members[i] = p.OutputID
		dists[i] = euclidean(p.Embedding, center)
		mean += dists[i]
	}
	if len(pts) > 0 {
		mean /= float64(len(pts))
	}
	for _, d := range dists {
		sumSq += (d - mean) * (d - mean)
	}
	variance := 0.0
	if len(pts) > 0 {
		variance = sumSq / float64(len(pts))
	}
	return models.Mode{
		ModeID:     id,
		Center:     center,
		Members:    members,
		Robustness: 1 / (1 + variance),
	}
}

// finalizeDensities sets Density = |members|/n on every mode in place.
func finalizeDensities(modes []models.Mode, n int) {
	if n == 0 {
		return
	}
	for i := range modes {
		modes[i].Density = float64(len(modes[i].Members)) / float64(n)
	}
}

// --- simple-threshold ---

// SimpleThresholdClusterer is the greedy seed-and-grow strategy: any
// unassigned point with cosine similarity >= 0.7 to a cluster's seed
// joins that cluster.
type SimpleThresholdClusterer struct{}

func (SimpleThresholdClusterer) Algorithm() models.ClusteringAlgorithm {
	return models.ClusteringSimpleThreshold
}

func (SimpleThresholdClusterer) Cluster(points []Point) []models.Mode {
	assigned := make([]bool, len(points))
	var modes []models.Mode
	for i := range points {
		if assigned[i] {
			continue
		}
		seed := points[i]
		members := []Point{seed}
		assigned[i] = true
		for j := i + 1; j < len(points); j++ {
			if assigned[j] {
				continue
			}
			if cosineSimilarity(seed.Embedding, points[j].Embedding) >= 0.7 {
				members = append(members, points[j])
				assigned[j] = true
			}
		}
		modes = append(modes, buildMode(modeID(len(modes)), members))
	}
	finalizeDensities(modes, len(points))
	return modes
}

// --- dbscan ---

// DBSCANClusterer implements density-based clustering with
// eps=0.5, minPts=max(2, floor(sqrt(n))). Noise points are wrapped as
// singleton clusters so every output is represented.
type DBSCANClusterer struct {
	Eps float64
}

func (DBSCANClusterer) Algorithm() models.ClusteringAlgorithm { return models.ClusteringDBSCAN }

func (d DBSCANClusterer) Cluster(points []Point) []models.Mode {
	eps := d.Eps
	if eps <= 0 {
		eps = 0.5
	}
	n := len(points)
	minPts := int(math.Max(2, math.Floor(math.Sqrt(float64(n)))))

	neighbors := func(i int) []int {
		var out []int
		for j := range points {
			if i == j {
				continue
			}
			if euclidean(points[i].Embedding, points[j].Embedding) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	labels := make([]int, n) // 0 = unvisited, -1 = noise, >0 = cluster id
	visited := make([]bool, n)
	clusterID := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		nbrs := neighbors(i)
		if len(nbrs)+1 < minPts {
			labels[i] = -1
			continue
		}
		clusterID++
		labels[i] = clusterID
		seeds := append([]int{}, nbrs...)
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if !visited[j] {
				visited[j] = true
				jn := neighbors(j)
				if len(jn)+1 >= minPts {
					seeds = append(seeds, jn...)
				}
			}
			if labels[j] <= 0 {
				labels[j] = clusterID
			}
		}
	}

	byCluster := make(map[int][]Point)
	for i, l := range labels {
		if l == -1 {
			// noise -> singleton
			byCluster[-(i + 1)] = []Point{points[i]}
			continue
		}
		byCluster[l] = append(byCluster[l], points[i])
	}

	keys := make([]int, 0, len(byCluster))
	for k := range byCluster {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var modes []models.Mode
	for _, k := range keys {
		modes = append(modes, buildMode(modeID(len(modes)), byCluster[k]))
	}
	finalizeDensities(modes, n)
	return modes
}

// --- kmeans ---

// KMeansClusterer implements k-means with k-means++ initialization,
// k=min(10, max(2, ceil(sqrt(n/2)))), converging when the max centroid
// shift drops below 1e-3 or after 100 iterations.
type KMeansClusterer struct {
	Rng interface {
		Float64() float64
		Intn(n int) int
	}
}

func (KMeansClusterer) Algorithm() models.ClusteringAlgorithm { return models.ClusteringKMeans }

func (k KMeansClusterer) Cluster(points []Point) []models.Mode {
	n := len(points)
	if n == 0 {
		return nil
	}
	kk := int(math.Min(10, math.Max(2, math.Ceil(math.Sqrt(float64(n)/2)))))
	if kk > n {
		kk = n
	}

	centers := kMeansPlusPlusInit(points, kk, k.Rng)
	assignment := make([]int, n)

	for iter := 0; iter < 100; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				d := euclidean(p.Embedding, center)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		newCenters := make([][]float64, kk)
		counts := make([]int, kk)
		dim := len(points[0].Embedding)
		for c := range newCenters {
			newCenters[c] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignment[i]
			counts[c]++
			for d, v := range p.Embedding {
				newCenters[c][d] += v
			}
		}
		maxShift := 0.0
		for c := range newCenters {
			if counts[c] == 0 {
				newCenters[c] = centers[c]
				continue
			}
			for d := range newCenters[c] {
				newCenters[c][d] /= float64(counts[c])
			}
			maxShift = math.Max(maxShift, euclidean(newCenters[c], centers[c]))
		}
		centers = newCenters
		if !changed || maxShift < 1e-3 {
			break
		}
	}

	byCluster := make(map[int][]Point)
	for i, c := range assignment {
		byCluster[c] = append(byCluster[c], points[i])
	}
	var modes []models.Mode
	for c := 0; c < kk; c++ {
		if members, ok := byCluster[c]; ok && len(members) > 0 {
			modes = append(modes, buildMode(modeID(len(modes)), members))
		}
	}
	finalizeDensities(modes, n)
	return modes
}

func kMeansPlusPlusInit(points []Point, k int, rng interface {
	Float64() float64
	Intn(n int) int
}) [][]float64 {
	n := len(points)
	first := rng.Intn(n)
	centers := [][]float64{points[first].Embedding}

	for len(centers) < k {
		distSq := make([]float64, n)
		var total float64
		for i, p := range points {
			minD := math.Inf(1)
			for _, c := range centers {
				d := euclidean(p.Embedding, c)
				if d < minD {
					minD = d
				}
			}
			distSq[i] = minD * minD
			total += distSq[i]
		}
		if total == 0 {
			centers = append(centers, points[rng.Intn(n)].Embedding)
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := n - 1
		for i, d := range distSq {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centers = append(centers, points[chosen].Embedding)
	}
	return centers
}

// --- hierarchical ---

// HierarchicalClusterer implements agglomerative clustering with average
// linkage, stopping at k=min(n, max(2, ceil(sqrt(n)))).
type HierarchicalClusterer struct{}

func (HierarchicalClusterer) Algorithm() models.ClusteringAlgorithm {
	return models.ClusteringHierarchical
}

func (HierarchicalClusterer) Cluster(points []Point) []models.Mode {
	n := len(points)
	if n == 0 {
		return nil
	}
	targetK := int(math.Min(float64(n), math.Max(2, math.Ceil(math.Sqrt(float64(n))))))

	clusters := make([][]Point, n)
	for i, p := range points {
		clusters[i] = []Point{p}
	}

	avgLinkage := func(a, b []Point) float64 {
		var sum float64
		for _, pa := range a {
			for _, pb := range b {
				sum += euclidean(pa.Embedding, pb.Embedding)
			}
		}
		return sum / float64(len(a)*len(b))
	}

	for len(clusters) > targetK {
		bestI, bestJ := 0, 1
		bestDist := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := avgLinkage(clusters[i], clusters[j])
				if d < bestDist {
					bestDist = d
					bestI, bestJ = i, j
				}
			}
		}
		merged := append(append([]Point{}, clusters[bestI]...), clusters[bestJ]...)
		next := make([][]Point, 0, len(clusters)-1)
		for idx, c := range clusters {
			if idx == bestI || idx == bestJ {
				continue
			}
			next = append(next, c)
		}
		next = append(next, merged)
		clusters = next
	}

	var modes []models.Mode
	for _, c := range clusters {
		modes = append(modes, buildMode(modeID(len(modes)), c))
	}
	finalizeDensities(modes, n)
	return modes
}

func modeID(ordinal int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "mode-" + string(letters[ordinal%len(letters)]) + itoa(ordinal/len(letters))
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// NewClusterer resolves an algorithm name to its implementation.
func NewClusterer(algo models.ClusteringAlgorithm, rng interface {
	Float64() float64
	Intn(n int) int
}) Clusterer {
	switch algo {
	case models.ClusteringDBSCAN:
		return DBSCANClusterer{Eps: 0.5}
	case models.ClusteringKMeans:
		return KMeansClusterer{Rng: rng}
	case models.ClusteringHierarchical:
		return HierarchicalClusterer{}
	default:
		return SimpleThresholdClusterer{}
	}
}
