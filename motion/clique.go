// Package motion implements §4.6's two-stage motion estimator: greedy
// maximum-clique inlier selection over a rigid pairwise-distance
// compatibility graph, followed by Levenberg-Marquardt refinement of the
// rigid motion with a Tukey-biweight robust loss.
package motion

import (
	"github.com/Simsdebims/fovis/match"
)

// CliqueOptions configures stage 1.
type CliqueOptions struct {
	InlierThreshold      float64 // clique-inlier-threshold, meters, default 0.1
	MinFeaturesForEstimate int   // default 10
}

// DefaultCliqueOptions returns §6's stage-1 defaults.
func DefaultCliqueOptions() CliqueOptions {
	return CliqueOptions{InlierThreshold: 0.1, MinFeaturesForEstimate: 10}
}

// SelectInliers builds the rigid-distance compatibility graph over
// matches and greedily finds an approximate maximum clique: repeatedly
// pick the highest-degree remaining vertex, intersect its neighbor set
// with the candidate set, and iterate until the candidate set is empty.
// It returns the indices (into matches) of the selected clique, or nil
// if it is smaller than MinFeaturesForEstimate.
func SelectInliers(matches []match.Match, opts CliqueOptions) []int {
	n := len(matches)
	if n < opts.MinFeaturesForEstimate {
		return nil
	}

	adjacency := make([][]bool, n)
	for i := range adjacency {
		adjacency[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		pi := matches[i]
		for j := i + 1; j < n; j++ {
			pj := matches[j]
			dRef := pi.RefXYZ.Sub(pj.RefXYZ).Norm()
			dCur := pi.CurXYZ.Sub(pj.CurXYZ).Norm()
			d := dRef - dCur
			if d < 0 {
				d = -d
			}
			if d < opts.InlierThreshold {
				adjacency[i][j] = true
				adjacency[j][i] = true
			}
		}
	}

	// candidates is indexed 0..n-1, not a map, so the degree scan below
	// always visits vertices in the same order and ties resolve to the
	// lowest index regardless of map iteration order (§5 determinism).
	candidates := make([]bool, n)
	for i := range candidates {
		candidates[i] = true
	}
	remaining := n

	var clique []int
	for remaining > 0 {
		// pick the candidate with the highest degree within candidates,
		// breaking ties by lowest index.
		best, bestDegree := -1, -1
		for v := 0; v < n; v++ {
			if !candidates[v] {
				continue
			}
			degree := 0
			for u := 0; u < n; u++ {
				if u != v && candidates[u] && adjacency[v][u] {
					degree++
				}
			}
			if degree > bestDegree {
				best, bestDegree = v, degree
			}
		}
		if best == -1 {
			break
		}
		clique = append(clique, best)
		candidates[best] = false
		remaining--
		for v := 0; v < n; v++ {
			if candidates[v] && !adjacency[best][v] {
				candidates[v] = false
				remaining--
			}
		}
	}

	if len(clique) < opts.MinFeaturesForEstimate {
		return nil
	}
	return clique
}
