package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waoai/confidis/internal/model"
	"github.com/waoai/confidis/internal/similarity"
)

func TestComputeExact(t *testing.T) {
	answers := []model.Answer{
		model.NewAnswer("a", "s1"),
		model.NewAnswer("a", "s2"),
		model.NewAnswer("a", "s3"),
		model.NewAnswer("w", "s4"),
	}
	clusters := Compute(answers, similarity.Exact{})
	assert.Len(t, clusters, 2)
	assert.Equal(t, []int{0, 1, 2}, clusters[0])
	assert.Equal(t, []int{3}, clusters[1])
}

func TestComputeEmpty(t *testing.T) {
	clusters := Compute(nil, similarity.Exact{})
	assert.Empty(t, clusters)
}

func TestComputeSingleton(t *testing.T) {
	answers := []model.Answer{model.NewAnswer("only", "s1")}
	clusters := Compute(answers, similarity.Exact{})
	assert.Equal(t, [][]int{{0}}, clusters)
}
