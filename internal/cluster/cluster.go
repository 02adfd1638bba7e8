// Package cluster groups a question's answers into equivalence classes
// under a similarity strategy.
package cluster

import (
	"github.com/waoai/confidis/internal/model"
	"github.com/waoai/confidis/internal/similarity"
)

// Compute partitions answers into clusters of mutually-similar indices.
// An answer joins the first existing cluster containing any member within
// distance 1 of it (distances are already normalized into [0,1], so
// "similar enough" is simply not-maximally-different); it opens a new
// cluster otherwise. Order within a cluster and across clusters preserves
// insertion order; cluster ordering is not observable to callers beyond
// that stability.
//
// Every new answer is checked against every member of every existing
// cluster before it's judged unplaceable, not just a single representative,
// since the underlying distance need not be transitive.
func Compute(answers []model.Answer, eq similarity.Equalifier) [][]int {
	clusters := make([][]int, 0)
	for i, a := range answers {
		placed := false
		for ci, members := range clusters {
			for _, mi := range members {
				if eq.Distance(answers[mi], a) < 1 {
					clusters[ci] = append(clusters[ci], i)
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}
	return clusters
}
