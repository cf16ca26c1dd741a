// Package analytics holds the stateless models behind the API: k-means
// clustering of standardized features and a seasonal ARIMA forecaster.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidInput marks errors caused by the caller's data or parameters
// rather than by a model failing.
var ErrInvalidInput = errors.New("invalid input")

// Clustering defaults.
const (
	DefaultClusters = 5
	DefaultSeed     = 42

	kmeansRestarts = 10
	kmeansMaxIter  = 300
	kmeansTol      = 1e-4
)

// Standardize rescales each column to zero mean and unit population
// variance. Non-finite cells are treated as zero; constant columns become zero.
func Standardize(features [][]float64) [][]float64 {
	if len(features) == 0 {
		return nil
	}
	cols := len(features[0])
	out := make([][]float64, len(features))
	for i, row := range features {
		out[i] = make([]float64, cols)
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out[i][j] = v
			}
		}
	}

	column := make([]float64, len(out))
	for j := range cols {
		for i := range out {
			column[i] = out[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		for i := range out {
			if std == 0 {
				out[i][j] = 0
				continue
			}
			out[i][j] = (out[i][j] - mean) / std
		}
	}
	return out
}

// Cluster standardizes features and labels every row with one of k clusters.
// The result is deterministic for a given input and seed.
func Cluster(features [][]float64, k int, seed uint64) ([]int, error) {
	if err := validateFeatures(features, k); err != nil {
		return nil, err
	}
	return KMeans(Standardize(features), k, seed)
}

// KMeans runs k-means++ seeded Lloyd iterations several times and keeps the
// labelling with the lowest inertia.
func KMeans(points [][]float64, k int, seed uint64) ([]int, error) {
	if err := validateFeatures(points, k); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // reproducible model seed
	tol := kmeansTol * meanVariance(points)

	var (
		best        []int
		bestInertia = math.Inf(1)
	)
	for range kmeansRestarts {
		centers := seedCenters(points, k, rng)
		labels, inertia := lloyd(points, centers, tol)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}
	return best, nil
}

func validateFeatures(features [][]float64, k int) error {
	if k < 1 {
		return fmt.Errorf("%w: cluster count must be at least 1, got %d", ErrInvalidInput, k)
	}
	if len(features) < k {
		return fmt.Errorf("%w: %d rows cannot form %d clusters", ErrInvalidInput, len(features), k)
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidInput, i, len(row), width)
		}
	}
	return nil
}

func meanVariance(points [][]float64) float64 {
	cols := len(points[0])
	if cols == 0 {
		return 0
	}
	column := make([]float64, len(points))
	var sum float64
	for j := range cols {
		for i := range points {
			column[i] = points[i][j]
		}
		_, std := stat.PopMeanStdDev(column, nil)
		sum += std * std
	}
	return sum / float64(cols)
}

// seedCenters picks k initial centers with the k-means++ rule: each next
// center is sampled with probability proportional to its squared distance
// from the nearest chosen center.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}

	for len(centers) < k {
		total := floats.Sum(dist)
		var next int
		if total == 0 {
			next = rng.IntN(len(points))
		} else {
			target := rng.Float64() * total
			next = len(points) - 1
			for i, d := range dist {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
		}
		c := clone(points[next])
		centers = append(centers, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final labels and inertia.
func lloyd(points, centers [][]float64, tol float64) ([]int, float64) {
	k := len(centers)
	dim := len(points[0])
	labels := make([]int, len(points))
	counts := make([]int, k)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	for range kmeansMaxIter {
		assign(points, centers, labels)

		for c := range k {
			counts[c] = 0
			for j := range sums[c] {
				sums[c][j] = 0
			}
		}
		for i, p := range points {
			counts[labels[i]]++
			floats.Add(sums[labels[i]], p)
		}

		var shift float64
		for c := range k {
			if counts[c] == 0 {
				// Re-seed an empty cluster at the point farthest from its center.
				far := farthestPoint(points, centers, labels)
				shift += sqDist(centers[c], points[far])
				copy(centers[c], points[far])
				labels[far] = c
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			copy(centers[c], sums[c])
		}
		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centers, labels)
	return labels, inertia
}

// assign labels each point with its nearest center (lowest index on ties)
// and returns the summed squared distance.
func assign(points, centers [][]float64, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		inertia += bestDist
	}
	return inertia
}

func farthestPoint(points, centers [][]float64, labels []int) int {
	far, farDist := 0, -1.0
	for i, p := range points {
		if d := sqDist(p, centers[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(p []float64) []float64 {
	return append([]float64(nil), p...)
}
