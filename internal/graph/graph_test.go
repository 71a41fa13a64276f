package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackforge/stackforge/internal/models"
)

func indexOf(addrs []string, want string) int {
	for i, a := range addrs {
		if a == want {
			return i
		}
	}
	return -1
}

func TestBuild(t *testing.T) {
	tmpl := models.DefaultTemplate()
	g := Build(tmpl)

	t.Run("one node per resource", func(t *testing.T) {
		assert.Len(t, g.Nodes, 8)
		require.NotNil(t, g.Stats)
		assert.Equal(t, 8, g.Stats.TotalNodes)
		assert.Equal(t, 1, g.Stats.ResourcesByKind["instance"])
		assert.Equal(t, 1, g.Stats.ResourcesByKind["bucket"])
	})

	t.Run("explicit dependency wins over reference", func(t *testing.T) {
		var found *models.Edge
		for i := range g.Edges {
			e := g.Edges[i]
			if e.Source == "instance.ci_server" && e.Target == "key_pair.ci_admin" {
				found = &g.Edges[i]
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, "depends_on", found.Type)
	})

	t.Run("bucket chain edges present", func(t *testing.T) {
		want := []models.Edge{
			{Source: "bucket.artifacts", Target: "random_suffix.artifacts_id", Type: "reference"},
			{Source: "bucket_ownership.artifacts", Target: "bucket.artifacts", Type: "reference"},
			{Source: "bucket_access.artifacts", Target: "bucket_ownership.artifacts", Type: "reference"},
		}
		for _, e := range want {
			assert.Contains(t, g.Edges, e)
		}
	})
}

func TestOrder(t *testing.T) {
	t.Run("dependencies come first", func(t *testing.T) {
		ordered, err := Order(models.DefaultTemplate())
		require.NoError(t, err)
		require.Len(t, ordered, 8)

		var addrs []string
		for _, r := range ordered {
			addrs = append(addrs, r.Address())
		}

		assert.Less(t, indexOf(addrs, "key_pair.ci_admin"), indexOf(addrs, "instance.ci_server"))
		assert.Less(t, indexOf(addrs, "image.ci_base"), indexOf(addrs, "instance.ci_server"))
		assert.Less(t, indexOf(addrs, "rule_set.ci_server"), indexOf(addrs, "instance.ci_server"))
		assert.Less(t, indexOf(addrs, "random_suffix.artifacts_id"), indexOf(addrs, "bucket.artifacts"))
		assert.Less(t, indexOf(addrs, "bucket.artifacts"), indexOf(addrs, "bucket_ownership.artifacts"))
		assert.Less(t, indexOf(addrs, "bucket_ownership.artifacts"), indexOf(addrs, "bucket_access.artifacts"))
	})

	t.Run("order is deterministic", func(t *testing.T) {
		first, err := Order(models.DefaultTemplate())
		require.NoError(t, err)
		second, err := Order(models.DefaultTemplate())
		require.NoError(t, err)

		for i := range first {
			assert.Equal(t, first[i].Address(), second[i].Address())
		}
	})

	t.Run("cycle is rejected", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.DependsOn[models.Address(models.KindKeyPair, "ci_admin")] = []string{
			models.Address(models.KindInstance, "ci_server"),
		}

		_, err := Order(tmpl)
		assert.ErrorContains(t, err, "cycle")
	})

	t.Run("unknown dependency is rejected", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.DependsOn["bucket.artifacts"] = []string{"instance.ghost"}

		_, err := Order(tmpl)
		assert.ErrorContains(t, err, "unknown resource")
	})
}
