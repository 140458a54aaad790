package pareto

// Package pareto computes the non-dominated frontier over declared
// objectives. All values are normalized so that higher is better before
// any comparison.

import (
	"sort"

	"github.com/samber/lo"

	"github.com/icscript/optimized-builds/model"
)

// Objective is one frontier dimension with an explicit direction.
type Objective struct {
	Metric   string
	Maximize bool
	Primary  bool
}

// Point combines one build record with its raw objective values. Derived
// on demand from the manifest, never persisted.
type Point struct {
	Record model.BuildRecord
	// Raw metric values, direction as measured
	Values map[string]float64
}

// Seq returns the point's sequence id, the display tie-break.
func (p Point) Seq() int {
	return p.Record.Seq
}

// Split separates points carrying every declared objective from incomplete
// ones. Incomplete points are never compared with partial data; they are
// reported separately.
func Split(points []Point, objectives []Objective) (complete, incomplete []Point) {
	hasAll := func(p Point, _ int) bool {
		for _, o := range objectives {
			if _, ok := p.Values[o.Metric]; !ok {
				return false
			}
		}
		return true
	}
	complete = lo.Filter(points, hasAll)
	incomplete = lo.Filter(points, func(p Point, i int) bool { return !hasAll(p, i) })
	return complete, incomplete
}

// Frontier returns the points dominated by no other point, ordered by
// sequence id (earliest-built first). Points with identical objective
// vectors all stay on the frontier. Callers pass complete points only.
func Frontier(points []Point, objectives []Objective) []Point {
	vectors := make([][]float64, len(points))
	for i, p := range points {
		vectors[i] = normalize(p, objectives)
	}

	var frontier []Point
	for i := range points {
		dominated := false
		for j := range points {
			if i == j {
				continue
			}
			if dominates(vectors[j], vectors[i]) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, points[i])
		}
	}

	sort.Slice(frontier, func(i, j int) bool {
		return frontier[i].Seq() < frontier[j].Seq()
	})
	return frontier
}

// dominates reports whether a is at least as good as b on every objective
// and strictly better on at least one. Equal vectors dominate nothing.
func dominates(a, b []float64) bool {
	strict := false
	for i := range a {
		if a[i] < b[i] {
			return false
		}
		if a[i] > b[i] {
			strict = true
		}
	}
	return strict
}

func normalize(p Point, objectives []Objective) []float64 {
	vec := make([]float64, len(objectives))
	for i, o := range objectives {
		v := p.Values[o.Metric]
		if !o.Maximize {
			v = -v
		}
		vec[i] = v
	}
	return vec
}
