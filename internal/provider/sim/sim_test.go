package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackforge/stackforge/internal/provider"
)

func TestResolveImage(t *testing.T) {
	ctx := context.Background()

	t.Run("most recent wins", func(t *testing.T) {
		p := New()
		img, err := p.ResolveImage(ctx, provider.ImageFilter{
			Owner:       "canonical",
			NamePattern: "ubuntu-24.04-server-*",
			MostRecent:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, "ubuntu-24.04-server-20250514", img.Name)
	})

	t.Run("multiple matches without most-recent is ambiguous", func(t *testing.T) {
		p := New()
		_, err := p.ResolveImage(ctx, provider.ImageFilter{
			Owner:       "canonical",
			NamePattern: "ubuntu-24.04-server-*",
		})
		assert.ErrorIs(t, err, provider.ErrAmbiguousImage)
	})

	t.Run("no match fails", func(t *testing.T) {
		p := New()
		_, err := p.ResolveImage(ctx, provider.ImageFilter{
			Owner:       "canonical",
			NamePattern: "debian-*",
			MostRecent:  true,
		})
		assert.ErrorIs(t, err, provider.ErrNoImage)
	})

	t.Run("owner filter applies", func(t *testing.T) {
		p := New()
		p.SeedImage(provider.Image{
			ID: "img-evil", Name: "ubuntu-24.04-server-20259999",
			Owner: "untrusted", CreatedAt: time.Now(),
		})
		img, err := p.ResolveImage(ctx, provider.ImageFilter{
			Owner:       "canonical",
			NamePattern: "ubuntu-24.04-server-*",
			MostRecent:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, "canonical", img.Owner)
	})
}

func TestKeyPairs(t *testing.T) {
	ctx := context.Background()
	p := New()

	info, err := p.ImportKeyPair(ctx, "ci-server-key", "ssh-rsa AAAA...")
	require.NoError(t, err)
	assert.Equal(t, "ci-server-key", info.Name)

	t.Run("static name collides", func(t *testing.T) {
		_, err := p.ImportKeyPair(ctx, "ci-server-key", "ssh-rsa BBBB...")
		assert.ErrorIs(t, err, provider.ErrNameConflict)
	})

	t.Run("delete then reimport", func(t *testing.T) {
		require.NoError(t, p.DeleteKeyPair(ctx, "ci-server-key"))
		_, err := p.ImportKeyPair(ctx, "ci-server-key", "ssh-rsa CCCC...")
		assert.NoError(t, err)
	})
}

func TestInstancePreconditions(t *testing.T) {
	ctx := context.Background()
	p := New()

	t.Run("missing key pair", func(t *testing.T) {
		_, err := p.CreateInstance(ctx, provider.InstanceSpec{
			Name: "ci", KeyName: "nope", RuleSetID: "nope",
		})
		assert.ErrorIs(t, err, provider.ErrPrecondition)
	})

	t.Run("all preconditions met", func(t *testing.T) {
		_, err := p.ImportKeyPair(ctx, "k", "ssh-rsa AAAA...")
		require.NoError(t, err)
		rs, err := p.CreateRuleSet(ctx, provider.RuleSetSpec{Name: "sg"})
		require.NoError(t, err)

		info, err := p.CreateInstance(ctx, provider.InstanceSpec{
			Name: "ci", Size: "t3.medium", KeyName: "k", RuleSetID: rs.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "running", info.State)
		assert.NotEmpty(t, info.PublicIP)
	})
}

func TestBucketOrdering(t *testing.T) {
	ctx := context.Background()
	p := New()

	t.Run("ownership requires bucket", func(t *testing.T) {
		err := p.PutOwnershipControls(ctx, provider.OwnershipSpec{Bucket: "nope"})
		assert.ErrorIs(t, err, provider.ErrPrecondition)
	})

	t.Run("access requires ownership", func(t *testing.T) {
		_, err := p.CreateBucket(ctx, "b1")
		require.NoError(t, err)

		err = p.PutAccessPolicy(ctx, provider.AccessSpec{Bucket: "b1"})
		assert.ErrorIs(t, err, provider.ErrPrecondition)
	})

	t.Run("full chain yields a private bucket", func(t *testing.T) {
		_, err := p.CreateBucket(ctx, "b2")
		require.NoError(t, err)
		require.NoError(t, p.PutOwnershipControls(ctx, provider.OwnershipSpec{
			Bucket: "b2", ObjectOwnership: "ObjectWriter",
		}))
		require.NoError(t, p.PutAccessPolicy(ctx, provider.AccessSpec{
			Bucket:                "b2",
			BlockPublicACLs:       true,
			BlockPublicPolicy:     true,
			IgnorePublicACLs:      true,
			RestrictPublicBuckets: true,
		}))

		info, err := p.GetBucket(ctx, "b2")
		require.NoError(t, err)
		assert.True(t, info.Private)
		assert.Equal(t, "ObjectWriter", info.ObjectOwnership)
	})

	t.Run("duplicate bucket name collides", func(t *testing.T) {
		_, err := p.CreateBucket(ctx, "b2")
		assert.ErrorIs(t, err, provider.ErrNameConflict)
	})
}

func TestCallCounting(t *testing.T) {
	ctx := context.Background()
	p := New()

	assert.Equal(t, 0, p.Calls("CreateBucket"))
	_, _ = p.CreateBucket(ctx, "b")
	_, _ = p.CreateBucket(ctx, "b")
	assert.Equal(t, 2, p.Calls("CreateBucket"))
}
