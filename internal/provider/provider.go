// Package provider defines the cloud control-plane boundary the engine
// provisions through. Implementations own catalog queries, key registration,
// and resource CRUD; the engine only sequences them.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNameConflict is returned when a resource name is already taken.
	ErrNameConflict = errors.New("name already in use")
	// ErrNoImage is returned when an image lookup matches nothing.
	ErrNoImage = errors.New("no image matches filter")
	// ErrAmbiguousImage is returned when an image lookup matches more than
	// one image and most-recent selection is not requested.
	ErrAmbiguousImage = errors.New("image filter matches multiple images")
	// ErrPrecondition is returned when a resource is created out of its
	// required order, such as an access policy before ownership controls.
	ErrPrecondition = errors.New("precondition not met")
)

// ImageFilter selects a machine image from the catalog.
type ImageFilter struct {
	Owner       string
	NamePattern string
	MostRecent  bool
}

// Image is a catalog entry.
type Image struct {
	ID        string
	Name      string
	Owner     string
	CreatedAt time.Time
}

// KeyPairInfo describes a registered public key.
type KeyPairInfo struct {
	ID          string
	Name        string
	Fingerprint string
}

// RuleSetSpec declares a network rule set.
type RuleSetSpec struct {
	Name        string
	Description string
	Ingress     []RuleSpec
	Egress      []RuleSpec
}

// RuleSpec is one allow rule.
type RuleSpec struct {
	Protocol string
	FromPort int
	ToPort   int
	Origins  []string
}

// RuleSetInfo describes a created rule set.
type RuleSetInfo struct {
	ID   string
	Name string
}

// InstanceSpec declares a compute instance.
type InstanceSpec struct {
	Name      string
	Size      string
	ImageID   string
	KeyName   string
	RuleSetID string
	UserData  string
	Tags      map[string]string
}

// InstanceInfo describes a launched instance.
type InstanceInfo struct {
	ID         string
	Name       string
	PublicIP   string
	State      string
	LaunchedAt time.Time
}

// BucketInfo describes a bucket and its effective settings.
type BucketInfo struct {
	Name            string
	ObjectOwnership string
	Private         bool
}

// OwnershipSpec sets the object-ownership rule on a bucket.
type OwnershipSpec struct {
	Bucket          string
	ObjectOwnership string
}

// AccessSpec sets the public-access policy on a bucket.
type AccessSpec struct {
	Bucket                string
	BlockPublicACLs       bool
	BlockPublicPolicy     bool
	IgnorePublicACLs      bool
	RestrictPublicBuckets bool
}

// Provider is the control-plane surface the engine provisions through.
type Provider interface {
	ResolveImage(ctx context.Context, f ImageFilter) (*Image, error)

	ImportKeyPair(ctx context.Context, name, publicKey string) (*KeyPairInfo, error)
	DeleteKeyPair(ctx context.Context, name string) error

	CreateRuleSet(ctx context.Context, spec RuleSetSpec) (*RuleSetInfo, error)
	DeleteRuleSet(ctx context.Context, id string) error

	CreateInstance(ctx context.Context, spec InstanceSpec) (*InstanceInfo, error)
	TerminateInstance(ctx context.Context, id string) error

	CreateBucket(ctx context.Context, name string) (*BucketInfo, error)
	DeleteBucket(ctx context.Context, name string) error
	PutOwnershipControls(ctx context.Context, spec OwnershipSpec) error
	PutAccessPolicy(ctx context.Context, spec AccessSpec) error
	GetBucket(ctx context.Context, name string) (*BucketInfo, error)
}
