package clustering

import (
	"math"
	"math/rand"

	"cluster-intelligence-be/pkg/similarity"
)

type kmeansResult struct {
	assignments []int
	centroids   [][]float32
	iterations  int
	converged   bool
}

// seedPlusPlus picks k initial centroids. The first is uniform; each next one
// is drawn with probability proportional to its squared distance to the
// nearest centroid chosen so far.
func seedPlusPlus(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vectors)
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, cloneVector(vectors[rng.Intn(n)]))

	nearest := make([]float64, n)
	for i := range nearest {
		nearest[i] = math.Inf(1)
	}

	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		total := 0.0
		for i, v := range vectors {
			if d := similarity.SquaredDistance(v, last); d < nearest[i] {
				nearest[i] = d
			}
			total += nearest[i]
		}

		// All points coincide with a centroid already.
		if total == 0 {
			centroids = append(centroids, cloneVector(vectors[rng.Intn(n)]))
			continue
		}

		target := rng.Float64() * total
		pick := n - 1
		acc := 0.0
		for i, d := range nearest {
			acc += d
			if acc >= target && d > 0 {
				pick = i
				break
			}
		}
		centroids = append(centroids, cloneVector(vectors[pick]))
	}
	return centroids
}

// runKMeans performs Lloyd iterations until no centroid moves more than
// threshold or maxIter is reached.
func runKMeans(vectors [][]float32, k, maxIter int, threshold float64, rng *rand.Rand) kmeansResult {
	centroids := seedPlusPlus(vectors, k, rng)
	assignments := make([]int, len(vectors))
	dim := len(vectors[0])

	res := kmeansResult{}
	for iter := 1; iter <= maxIter; iter++ {
		res.iterations = iter

		for i, v := range vectors {
			assignments[i] = nearestCentroid(v, centroids)
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}

		maxShift := 0.0
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue // keeps its previous position
			}
			next := make([]float32, dim)
			for d := range next {
				next[d] = float32(sums[c][d] / float64(counts[c]))
			}
			if shift := similarity.EuclideanDistance(centroids[c], next); shift > maxShift {
				maxShift = shift
			}
			centroids[c] = next
		}

		if maxShift < threshold {
			res.converged = true
			break
		}
	}

	// Final assignment against the settled centroids.
	for i, v := range vectors {
		assignments[i] = nearestCentroid(v, centroids)
	}
	res.assignments = assignments
	res.centroids = centroids
	return res
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := similarity.SquaredDistance(v, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// cohesion is 1/(1+mean pairwise distance); a singleton is perfectly cohesive.
func cohesion(members [][]float32) float64 {
	if len(members) < 2 {
		return 1.0
	}
	sum := 0.0
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += similarity.EuclideanDistance(members[i], members[j])
			pairs++
		}
	}
	return 1.0 / (1.0 + sum/float64(pairs))
}

func meanDistance(members [][]float32, centroid []float32) float64 {
	if len(members) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range members {
		sum += similarity.EuclideanDistance(m, centroid)
	}
	return sum / float64(len(members))
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
