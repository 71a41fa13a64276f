// Package engine walks a plan in dependency order and provisions each
// resource through the provider, recording state as it goes. A step failure
// aborts the whole run; there are no retries or partial-failure semantics.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stackforge/stackforge/internal/events"
	"github.com/stackforge/stackforge/internal/graph"
	"github.com/stackforge/stackforge/internal/keys"
	"github.com/stackforge/stackforge/internal/models"
	"github.com/stackforge/stackforge/internal/plan"
	"github.com/stackforge/stackforge/internal/provider"
	"github.com/stackforge/stackforge/internal/storage"
)

// Engine provisions templates through a provider and records the result.
type Engine struct {
	store storage.Store
	cloud provider.Provider
	pub   *events.Publisher
	log   *zap.Logger

	tracer trace.Tracer
	// one apply or destroy at a time per deployment
	opMu sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(e *Engine) { e.pub = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an engine over a state store and a provider.
func New(store storage.Store, cloud provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		cloud:  cloud,
		log:    zap.NewNop(),
		tracer: otel.Tracer("stackforge/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result summarizes one apply run.
type Result struct {
	Deployment string           `json:"deployment"`
	Applied    []storage.Record `json:"applied"`
	Unchanged  int              `json:"unchanged"`
}

// Plan computes the ordered step list without touching the provider.
func (e *Engine) Plan(ctx context.Context, t *models.Template) (*plan.Plan, error) {
	return plan.Compute(ctx, t, e.store)
}

// Resources returns the recorded state of a deployment.
func (e *Engine) Resources(ctx context.Context, deployment string) ([]*storage.Record, error) {
	return e.store.ListResources(ctx, deployment)
}

// Apply provisions every resource the plan marks for creation, in order.
// Re-applying an unchanged template performs no provider calls.
func (e *Engine) Apply(ctx context.Context, t *models.Template) (*Result, error) {
	e.acquireOpLock(t.Deployment)
	defer e.releaseOpLock(t.Deployment)

	ctx, span := e.tracer.Start(ctx, "engine.apply",
		trace.WithAttributes(attribute.String("deployment", t.Deployment)))
	defer span.End()

	p, err := plan.Compute(ctx, t, e.store)
	if err != nil {
		applyTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &Result{Deployment: t.Deployment}
	for _, step := range p.Steps {
		if step.Action == plan.ActionNoop {
			res.Unchanged++
			continue
		}
		rec, err := e.applyStep(ctx, t, step)
		if err != nil {
			applyTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("apply %s: %w", step.Address, err)
		}
		res.Applied = append(res.Applied, *rec)
	}

	applyTotal.WithLabelValues("ok").Inc()
	e.log.Info("apply complete",
		zap.String("deployment", t.Deployment),
		zap.Int("applied", len(res.Applied)),
		zap.Int("unchanged", res.Unchanged))
	return res, nil
}

func (e *Engine) applyStep(ctx context.Context, t *models.Template, step plan.Step) (*storage.Record, error) {
	ctx, span := e.tracer.Start(ctx, "engine.step",
		trace.WithAttributes(attribute.String("address", step.Address)))
	defer span.End()

	start := time.Now()
	res, ok := t.Lookup(step.Address)
	if !ok {
		return nil, fmt.Errorf("planned resource %s not in template", step.Address)
	}

	var (
		providerID string
		attrs      map[string]string
		err        error
	)
	switch spec := res.Spec.(type) {
	case models.ImageLookup:
		providerID, attrs, err = e.applyImage(ctx, spec)
	case models.KeyPair:
		providerID, attrs, err = e.applyKeyPair(ctx, spec)
	case models.RuleSet:
		providerID, attrs, err = e.applyRuleSet(ctx, spec)
	case models.Instance:
		providerID, attrs, err = e.applyInstance(ctx, t.Deployment, spec)
	case models.RandomSuffix:
		providerID, attrs, err = e.applySuffix(spec)
	case models.Bucket:
		providerID, attrs, err = e.applyBucket(ctx, t.Deployment, spec)
	case models.BucketOwnership:
		providerID, attrs, err = e.applyOwnership(ctx, t.Deployment, spec)
	case models.BucketAccess:
		providerID, attrs, err = e.applyAccess(ctx, t.Deployment, spec)
	default:
		err = fmt.Errorf("unsupported resource kind %s", res.Kind)
	}
	if err != nil {
		return nil, err
	}
	stepDuration.WithLabelValues(string(res.Kind)).Observe(time.Since(start).Seconds())
	resourcesProvisioned.WithLabelValues(string(res.Kind)).Inc()

	now := time.Now().UTC()
	rec := &storage.Record{
		Deployment:  t.Deployment,
		Address:     step.Address,
		Kind:        string(res.Kind),
		ProviderID:  providerID,
		Attributes:  attrs,
		DesiredHash: models.DesiredHash(res.Spec),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev, err := e.store.GetResource(ctx, t.Deployment, step.Address); err == nil {
		rec.Version = prev.Version + 1
		rec.CreatedAt = prev.CreatedAt
	}
	if err := e.store.SaveResource(ctx, rec); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	e.publish(ctx, events.Event{
		Event:      "resource.provisioned",
		Deployment: t.Deployment,
		Address:    step.Address,
		ProviderID: providerID,
	})
	return rec, nil
}

func (e *Engine) applyImage(ctx context.Context, spec models.ImageLookup) (string, map[string]string, error) {
	img, err := e.cloud.ResolveImage(ctx, provider.ImageFilter{
		Owner:       spec.Owner,
		NamePattern: spec.NamePattern,
		MostRecent:  spec.MostRecent,
	})
	if err != nil {
		return "", nil, fmt.Errorf("resolve image: %w", err)
	}
	return img.ID, map[string]string{
		"name":  img.Name,
		"owner": img.Owner,
	}, nil
}

func (e *Engine) applyKeyPair(ctx context.Context, spec models.KeyPair) (string, map[string]string, error) {
	mat, err := keys.Generate(spec.Bits)
	if err != nil {
		return "", nil, err
	}
	if spec.PrivateKeyPath != "" {
		if err := keys.WritePrivate(spec.PrivateKeyPath, mat); err != nil {
			return "", nil, err
		}
	}
	info, err := e.cloud.ImportKeyPair(ctx, spec.KeyName, mat.PublicAuthorizedKey)
	if err != nil {
		return "", nil, fmt.Errorf("import key pair: %w", err)
	}
	return info.ID, map[string]string{
		"key_name":         info.Name,
		"fingerprint":      mat.Fingerprint,
		"private_key_path": spec.PrivateKeyPath,
	}, nil
}

func (e *Engine) applyRuleSet(ctx context.Context, spec models.RuleSet) (string, map[string]string, error) {
	pspec := provider.RuleSetSpec{
		Name:        spec.GroupName,
		Description: spec.Description,
	}
	for _, r := range spec.Ingress {
		pspec.Ingress = append(pspec.Ingress, provider.RuleSpec(r))
	}
	for _, r := range spec.Egress {
		pspec.Egress = append(pspec.Egress, provider.RuleSpec(r))
	}
	info, err := e.cloud.CreateRuleSet(ctx, pspec)
	if err != nil {
		return "", nil, fmt.Errorf("create rule set: %w", err)
	}
	return info.ID, map[string]string{"group_name": info.Name}, nil
}

func (e *Engine) applyInstance(ctx context.Context, deployment string, spec models.Instance) (string, map[string]string, error) {
	imgRec, err := e.dependencyRecord(ctx, deployment, spec.Image)
	if err != nil {
		return "", nil, err
	}
	keyRec, err := e.dependencyRecord(ctx, deployment, spec.KeyPair)
	if err != nil {
		return "", nil, err
	}
	rsRec, err := e.dependencyRecord(ctx, deployment, spec.RuleSet)
	if err != nil {
		return "", nil, err
	}
	info, err := e.cloud.CreateInstance(ctx, provider.InstanceSpec{
		Name:      spec.Name,
		Size:      spec.Size,
		ImageID:   imgRec.ProviderID,
		KeyName:   keyRec.Attributes["key_name"],
		RuleSetID: rsRec.ProviderID,
		UserData:  spec.UserData,
		Tags:      spec.Tags,
	})
	if err != nil {
		return "", nil, fmt.Errorf("create instance: %w", err)
	}
	return info.ID, map[string]string{
		"public_ip": info.PublicIP,
		"state":     info.State,
		"size":      spec.Size,
	}, nil
}

func (e *Engine) applySuffix(spec models.RandomSuffix) (string, map[string]string, error) {
	buf := make([]byte, spec.ByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("random suffix: %w", err)
	}
	value := hex.EncodeToString(buf)
	return value, map[string]string{"hex": value}, nil
}

func (e *Engine) applyBucket(ctx context.Context, deployment string, spec models.Bucket) (string, map[string]string, error) {
	sfxRec, err := e.dependencyRecord(ctx, deployment, spec.Suffix)
	if err != nil {
		return "", nil, err
	}
	name := spec.NamePrefix + "-" + sfxRec.Attributes["hex"]
	info, err := e.cloud.CreateBucket(ctx, name)
	if err != nil {
		return "", nil, fmt.Errorf("create bucket: %w", err)
	}
	return info.Name, map[string]string{"name": info.Name}, nil
}

func (e *Engine) applyOwnership(ctx context.Context, deployment string, spec models.BucketOwnership) (string, map[string]string, error) {
	bucketRec, err := e.dependencyRecord(ctx, deployment, spec.Bucket)
	if err != nil {
		return "", nil, err
	}
	err = e.cloud.PutOwnershipControls(ctx, provider.OwnershipSpec{
		Bucket:          bucketRec.ProviderID,
		ObjectOwnership: spec.ObjectOwnership,
	})
	if err != nil {
		return "", nil, fmt.Errorf("put ownership controls: %w", err)
	}
	return bucketRec.ProviderID, map[string]string{
		"bucket":           bucketRec.ProviderID,
		"object_ownership": spec.ObjectOwnership,
	}, nil
}

func (e *Engine) applyAccess(ctx context.Context, deployment string, spec models.BucketAccess) (string, map[string]string, error) {
	bucketRec, err := e.dependencyRecord(ctx, deployment, spec.Bucket)
	if err != nil {
		return "", nil, err
	}
	err = e.cloud.PutAccessPolicy(ctx, provider.AccessSpec{
		Bucket:                bucketRec.ProviderID,
		BlockPublicACLs:       spec.BlockPublicACLs,
		BlockPublicPolicy:     spec.BlockPublicPolicy,
		IgnorePublicACLs:      spec.IgnorePublicACLs,
		RestrictPublicBuckets: spec.RestrictPublicBuckets,
	})
	if err != nil {
		return "", nil, fmt.Errorf("put access policy: %w", err)
	}
	return bucketRec.ProviderID, map[string]string{
		"bucket":  bucketRec.ProviderID,
		"private": fmt.Sprintf("%t", spec.Private()),
	}, nil
}

// Destroy tears down recorded resources in reverse dependency order.
func (e *Engine) Destroy(ctx context.Context, t *models.Template) error {
	e.acquireOpLock(t.Deployment)
	defer e.releaseOpLock(t.Deployment)

	ctx, span := e.tracer.Start(ctx, "engine.destroy",
		trace.WithAttributes(attribute.String("deployment", t.Deployment)))
	defer span.End()

	ordered, err := graph.Order(t)
	if err != nil {
		return err
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		res := ordered[i]
		rec, err := e.store.GetResource(ctx, t.Deployment, res.Address())
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read state for %s: %w", res.Address(), err)
		}
		if err := e.destroyResource(ctx, res, rec); err != nil {
			return fmt.Errorf("destroy %s: %w", res.Address(), err)
		}
		if err := e.store.DeleteResource(ctx, t.Deployment, res.Address()); err != nil {
			return fmt.Errorf("delete state for %s: %w", res.Address(), err)
		}
		e.publish(ctx, events.Event{
			Event:      "resource.destroyed",
			Deployment: t.Deployment,
			Address:    res.Address(),
			ProviderID: rec.ProviderID,
		})
	}
	return nil
}

func (e *Engine) destroyResource(ctx context.Context, res models.Resource, rec *storage.Record) error {
	switch spec := res.Spec.(type) {
	case models.Instance:
		return ignoreNotFound(e.cloud.TerminateInstance(ctx, rec.ProviderID))
	case models.RuleSet:
		return ignoreNotFound(e.cloud.DeleteRuleSet(ctx, rec.ProviderID))
	case models.KeyPair:
		if spec.PrivateKeyPath != "" {
			if err := os.Remove(spec.PrivateKeyPath); err != nil && !os.IsNotExist(err) {
				e.log.Warn("remove private key file", zap.Error(err))
			}
		}
		return ignoreNotFound(e.cloud.DeleteKeyPair(ctx, spec.KeyName))
	case models.Bucket:
		return ignoreNotFound(e.cloud.DeleteBucket(ctx, rec.ProviderID))
	default:
		// images, suffixes, and bucket sub-settings have no provider
		// object of their own to delete
		return nil
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, provider.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Engine) dependencyRecord(ctx context.Context, deployment, address string) (*storage.Record, error) {
	rec, err := e.store.GetResource(ctx, deployment, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("dependency %s not recorded", address)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.pub.PublishEvent(ctx, ev); err != nil {
		e.log.Warn("publish event failed", zap.String("address", ev.Address), zap.Error(err))
	}
}

// acquireOpLock ensures only one op per deployment at a time.
func (e *Engine) acquireOpLock(deployment string) {
	v, _ := e.opMu.LoadOrStore(deployment, &sync.Mutex{})
	v.(*sync.Mutex).Lock()
}

// releaseOpLock releases the op lock.
func (e *Engine) releaseOpLock(deployment string) {
	v, ok := e.opMu.Load(deployment)
	if !ok {
		return
	}
	v.(*sync.Mutex).Unlock()
}
