// Package sim is an in-memory provider used for tests and local runs. It
// mimics the ordering and naming rules of a real control plane: key names
// must be unique, instances require their key and rule set to exist, and a
// bucket's ownership controls must precede its access policy.
package sim

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackforge/stackforge/internal/provider"
)

type bucketState struct {
	ownership string
	private   bool
	hasAccess bool
}

// Provider holds all simulated cloud state behind one mutex.
type Provider struct {
	mu        sync.Mutex
	catalog   []provider.Image
	keys      map[string]provider.KeyPairInfo
	ruleSets  map[string]provider.RuleSetSpec
	instances map[string]provider.InstanceInfo
	buckets   map[string]*bucketState
	calls     map[string]int
	// creation order of provider resources, by name, for ordering checks
	created []string
}

// New returns a provider with an image catalog seeded so that default
// lookups resolve.
func New() *Provider {
	p := &Provider{
		keys:      make(map[string]provider.KeyPairInfo),
		ruleSets:  make(map[string]provider.RuleSetSpec),
		instances: make(map[string]provider.InstanceInfo),
		buckets:   make(map[string]*bucketState),
		calls:     make(map[string]int),
	}
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{
		"ubuntu-24.04-server-20250110",
		"ubuntu-24.04-server-20250302",
		"ubuntu-24.04-server-20250514",
	} {
		p.catalog = append(p.catalog, provider.Image{
			ID:        "img-" + uuid.NewString()[:8],
			Name:      name,
			Owner:     "canonical",
			CreatedAt: base.AddDate(0, i, 0),
		})
	}
	return p
}

// SeedImage adds a catalog entry.
func (p *Provider) SeedImage(img provider.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.catalog = append(p.catalog, img)
}

// Calls returns how many times the named operation has run.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// CreationOrder returns provider resource names in the order they were
// created.
func (p *Provider) CreationOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.created...)
}

func (p *Provider) ResolveImage(ctx context.Context, f provider.ImageFilter) (*provider.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["ResolveImage"]++

	var matches []provider.Image
	for _, img := range p.catalog {
		if f.Owner != "" && img.Owner != f.Owner {
			continue
		}
		ok, err := path.Match(f.NamePattern, img.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, img)
		}
	}
	if len(matches) == 0 {
		return nil, provider.ErrNoImage
	}
	if len(matches) > 1 {
		if !f.MostRecent {
			return nil, provider.ErrAmbiguousImage
		}
		sort.Slice(matches, func(i, j int) bool {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		})
	}
	img := matches[0]
	return &img, nil
}

func (p *Provider) ImportKeyPair(ctx context.Context, name, publicKey string) (*provider.KeyPairInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["ImportKeyPair"]++

	if _, exists := p.keys[name]; exists {
		return nil, provider.ErrNameConflict
	}
	info := provider.KeyPairInfo{
		ID:          "key-" + uuid.NewString()[:8],
		Name:        name,
		Fingerprint: publicKey[:min(16, len(publicKey))],
	}
	p.keys[name] = info
	p.created = append(p.created, name)
	return &info, nil
}

func (p *Provider) DeleteKeyPair(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["DeleteKeyPair"]++

	if _, exists := p.keys[name]; !exists {
		return provider.ErrNotFound
	}
	delete(p.keys, name)
	return nil
}

func (p *Provider) CreateRuleSet(ctx context.Context, spec provider.RuleSetSpec) (*provider.RuleSetInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateRuleSet"]++

	id := "rs-" + uuid.NewString()[:8]
	p.ruleSets[id] = spec
	p.created = append(p.created, spec.Name)
	return &provider.RuleSetInfo{ID: id, Name: spec.Name}, nil
}

func (p *Provider) DeleteRuleSet(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["DeleteRuleSet"]++

	if _, exists := p.ruleSets[id]; !exists {
		return provider.ErrNotFound
	}
	delete(p.ruleSets, id)
	return nil
}

// RuleSet returns a created rule set by ID, for assertions on stored rules.
func (p *Provider) RuleSet(id string) (provider.RuleSetSpec, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	spec, ok := p.ruleSets[id]
	return spec, ok
}

func (p *Provider) CreateInstance(ctx context.Context, spec provider.InstanceSpec) (*provider.InstanceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateInstance"]++

	if _, exists := p.keys[spec.KeyName]; !exists {
		return nil, provider.ErrPrecondition
	}
	if _, exists := p.ruleSets[spec.RuleSetID]; !exists {
		return nil, provider.ErrPrecondition
	}
	info := provider.InstanceInfo{
		ID:         "i-" + uuid.NewString()[:8],
		Name:       spec.Name,
		PublicIP:   "203.0.113.10",
		State:      "running",
		LaunchedAt: time.Now().UTC(),
	}
	p.instances[info.ID] = info
	p.created = append(p.created, spec.Name)
	return &info, nil
}

func (p *Provider) TerminateInstance(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["TerminateInstance"]++

	if _, exists := p.instances[id]; !exists {
		return provider.ErrNotFound
	}
	delete(p.instances, id)
	return nil
}

func (p *Provider) CreateBucket(ctx context.Context, name string) (*provider.BucketInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["CreateBucket"]++

	if _, exists := p.buckets[name]; exists {
		return nil, provider.ErrNameConflict
	}
	p.buckets[name] = &bucketState{}
	p.created = append(p.created, name)
	return &provider.BucketInfo{Name: name}, nil
}

func (p *Provider) DeleteBucket(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["DeleteBucket"]++

	if _, exists := p.buckets[name]; !exists {
		return provider.ErrNotFound
	}
	delete(p.buckets, name)
	return nil
}

func (p *Provider) PutOwnershipControls(ctx context.Context, spec provider.OwnershipSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["PutOwnershipControls"]++

	b, exists := p.buckets[spec.Bucket]
	if !exists {
		return provider.ErrPrecondition
	}
	b.ownership = spec.ObjectOwnership
	p.created = append(p.created, spec.Bucket+"/ownership")
	return nil
}

func (p *Provider) PutAccessPolicy(ctx context.Context, spec provider.AccessSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["PutAccessPolicy"]++

	b, exists := p.buckets[spec.Bucket]
	if !exists || b.ownership == "" {
		return provider.ErrPrecondition
	}
	b.hasAccess = true
	b.private = spec.BlockPublicACLs && spec.BlockPublicPolicy &&
		spec.IgnorePublicACLs && spec.RestrictPublicBuckets
	p.created = append(p.created, spec.Bucket+"/access")
	return nil
}

func (p *Provider) GetBucket(ctx context.Context, name string) (*provider.BucketInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["GetBucket"]++

	b, exists := p.buckets[name]
	if !exists {
		return nil, provider.ErrNotFound
	}
	return &provider.BucketInfo{
		Name:            name,
		ObjectOwnership: b.ownership,
		Private:         b.hasAccess && b.private,
	}, nil
}
