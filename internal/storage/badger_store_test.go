package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) Store {
	t.Helper()
	store, err := NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(deployment, address string) *Record {
	now := time.Now().UTC()
	return &Record{
		Deployment:  deployment,
		Address:     address,
		Kind:        "instance",
		ProviderID:  "i-abc123",
		Attributes:  map[string]string{"state": "running"},
		DesiredHash: "deadbeef",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save and get roundtrip", func(t *testing.T) {
		store := newStore(t)
		in := record("ci-build", "instance.ci_server")
		require.NoError(t, store.SaveResource(ctx, in))

		out, err := store.GetResource(ctx, "ci-build", "instance.ci_server")
		require.NoError(t, err)
		assert.Equal(t, in.ProviderID, out.ProviderID)
		assert.Equal(t, in.DesiredHash, out.DesiredHash)
		assert.Equal(t, in.Attributes, out.Attributes)
	})

	t.Run("missing resource returns ErrNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetResource(ctx, "ci-build", "instance.ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list is scoped to deployment and sorted", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveResource(ctx, record("ci-build", "instance.ci_server")))
		require.NoError(t, store.SaveResource(ctx, record("ci-build", "bucket.artifacts")))
		require.NoError(t, store.SaveResource(ctx, record("other", "instance.web")))

		recs, err := store.ListResources(ctx, "ci-build")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "bucket.artifacts", recs[0].Address)
		assert.Equal(t, "instance.ci_server", recs[1].Address)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveResource(ctx, record("ci-build", "instance.ci_server")))
		require.NoError(t, store.DeleteResource(ctx, "ci-build", "instance.ci_server"))

		_, err := store.GetResource(ctx, "ci-build", "instance.ci_server")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save overwrites in place", func(t *testing.T) {
		store := newStore(t)
		in := record("ci-build", "instance.ci_server")
		require.NoError(t, store.SaveResource(ctx, in))

		in.Version = 2
		in.DesiredHash = "cafef00d"
		require.NoError(t, store.SaveResource(ctx, in))

		out, err := store.GetResource(ctx, "ci-build", "instance.ci_server")
		require.NoError(t, err)
		assert.Equal(t, int64(2), out.Version)
		assert.Equal(t, "cafef00d", out.DesiredHash)
	})
}

func TestBadgerStoreOnDisk(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	store, err := NewBadgerStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveResource(ctx, record("ci-build", "instance.ci_server")))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	out, err := reopened.GetResource(ctx, "ci-build", "instance.ci_server")
	require.NoError(t, err)
	assert.Equal(t, "i-abc123", out.ProviderID)
}
