// Package models defines the resource records that make up a deployment
// template and the graph structures derived from them. Shared between the
// engine, storage, and API layers.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ResourceKind identifies the type of a declared resource.
type ResourceKind string

const (
	KindImage           ResourceKind = "image"
	KindKeyPair         ResourceKind = "key_pair"
	KindRuleSet         ResourceKind = "rule_set"
	KindInstance        ResourceKind = "instance"
	KindRandomSuffix    ResourceKind = "random_suffix"
	KindBucket          ResourceKind = "bucket"
	KindBucketOwnership ResourceKind = "bucket_ownership"
	KindBucketAccess    ResourceKind = "bucket_access"
)

// Address returns the canonical "kind.name" identifier used for references
// between resources and as the storage key for provisioned state.
func Address(kind ResourceKind, name string) string {
	return string(kind) + "." + name
}

// ImageLookup selects a machine image from the provider catalog by owner and
// name pattern. Resolution must match exactly one image or fail.
type ImageLookup struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	NamePattern string `json:"name_pattern"`
	MostRecent  bool   `json:"most_recent"`
}

func (i ImageLookup) Address() string { return Address(KindImage, i.Name) }

// KeyPair declares a generated asymmetric key pair. The public half is
// registered with the provider under KeyName; the private half is written in
// PEM form to PrivateKeyPath.
type KeyPair struct {
	Name           string `json:"name"`
	KeyName        string `json:"key_name"`
	Bits           int    `json:"bits"`
	PrivateKeyPath string `json:"private_key_path"`
}

func (k KeyPair) Address() string { return Address(KindKeyPair, k.Name) }

// Rule is a single network allow rule. FromPort and ToPort are ignored when
// Protocol is "all".
type Rule struct {
	Protocol string   `json:"protocol"`
	FromPort int      `json:"from_port"`
	ToPort   int      `json:"to_port"`
	Origins  []string `json:"origins"`
}

// AllowsAll reports whether the rule grants every protocol, port, and origin.
func (r Rule) AllowsAll() bool {
	if r.Protocol != "all" {
		return false
	}
	for _, o := range r.Origins {
		if o == "0.0.0.0/0" {
			return true
		}
	}
	return false
}

// RuleSet is an ordered collection of allow rules. Any matching rule grants
// access; there are no deny rules.
type RuleSet struct {
	Name        string `json:"name"`
	GroupName   string `json:"group_name"`
	Description string `json:"description"`
	Ingress     []Rule `json:"ingress"`
	Egress      []Rule `json:"egress"`
}

func (r RuleSet) Address() string { return Address(KindRuleSet, r.Name) }

// Instance binds an image, size class, rule set, key pair, and bootstrap
// script into one compute instance declaration. Reference fields hold the
// address of the referenced resource.
type Instance struct {
	Name     string            `json:"name"`
	Size     string            `json:"size"`
	Image    string            `json:"image"`
	KeyPair  string            `json:"key_pair"`
	RuleSet  string            `json:"rule_set"`
	UserData string            `json:"user_data,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

func (i Instance) Address() string { return Address(KindInstance, i.Name) }

// RandomSuffix declares an opaque random value generated once and then held
// stable across re-evaluations. ByteLength bytes render as twice as many hex
// characters.
type RandomSuffix struct {
	Name       string `json:"name"`
	ByteLength int    `json:"byte_length"`
}

func (s RandomSuffix) Address() string { return Address(KindRandomSuffix, s.Name) }

// Bucket declares an object-storage bucket named NamePrefix plus the rendered
// value of the referenced suffix.
type Bucket struct {
	Name       string `json:"name"`
	NamePrefix string `json:"name_prefix"`
	Suffix     string `json:"suffix"`
}

func (b Bucket) Address() string { return Address(KindBucket, b.Name) }

// BucketOwnership sets the object-ownership rule on a bucket. It must be
// applied after the bucket exists and before the access policy.
type BucketOwnership struct {
	Name            string `json:"name"`
	Bucket          string `json:"bucket"`
	ObjectOwnership string `json:"object_ownership"`
}

func (o BucketOwnership) Address() string { return Address(KindBucketOwnership, o.Name) }

// BucketAccess sets the public-access policy on a bucket. Ownership holds the
// address of the ownership-controls record that must be applied first.
type BucketAccess struct {
	Name                  string `json:"name"`
	Bucket                string `json:"bucket"`
	Ownership             string `json:"ownership"`
	BlockPublicACLs       bool   `json:"block_public_acls"`
	BlockPublicPolicy     bool   `json:"block_public_policy"`
	IgnorePublicACLs      bool   `json:"ignore_public_acls"`
	RestrictPublicBuckets bool   `json:"restrict_public_buckets"`
}

func (a BucketAccess) Address() string { return Address(KindBucketAccess, a.Name) }

// Private reports whether the access policy blocks every public access path.
func (a BucketAccess) Private() bool {
	return a.BlockPublicACLs && a.BlockPublicPolicy &&
		a.IgnorePublicACLs && a.RestrictPublicBuckets
}

// Template is a full deployment description: every resource the provisioner
// should hold in existence, plus any explicit ordering edges beyond the ones
// implied by references.
type Template struct {
	Deployment string `json:"deployment"`

	Images     []ImageLookup     `json:"images,omitempty"`
	KeyPairs   []KeyPair         `json:"key_pairs,omitempty"`
	RuleSets   []RuleSet         `json:"rule_sets,omitempty"`
	Instances  []Instance        `json:"instances,omitempty"`
	Suffixes   []RandomSuffix    `json:"suffixes,omitempty"`
	Buckets    []Bucket          `json:"buckets,omitempty"`
	Ownerships []BucketOwnership `json:"ownerships,omitempty"`
	Accesses   []BucketAccess    `json:"accesses,omitempty"`

	// DependsOn maps a resource address to addresses that must be applied
	// before it, in addition to reference-implied edges.
	DependsOn map[string][]string `json:"depends_on,omitempty"`
}

// Resource is the view of a template entry the graph and engine operate on.
type Resource struct {
	Kind ResourceKind
	Name string
	// References holds addresses this resource reads from, in declaration
	// order. They become implicit dependency edges.
	References []string
	// Spec is the underlying declaration, used for desired-state hashing
	// and by the engine's per-kind apply steps.
	Spec any
}

// Address returns the resource's canonical identifier.
func (r Resource) Address() string { return Address(r.Kind, r.Name) }

// Resources flattens the template into a single list, declaration order
// preserved within each kind.
func (t *Template) Resources() []Resource {
	var out []Resource
	for _, v := range t.Images {
		out = append(out, Resource{Kind: KindImage, Name: v.Name, Spec: v})
	}
	for _, v := range t.KeyPairs {
		out = append(out, Resource{Kind: KindKeyPair, Name: v.Name, Spec: v})
	}
	for _, v := range t.RuleSets {
		out = append(out, Resource{Kind: KindRuleSet, Name: v.Name, Spec: v})
	}
	for _, v := range t.Instances {
		refs := []string{v.Image, v.KeyPair, v.RuleSet}
		out = append(out, Resource{Kind: KindInstance, Name: v.Name, References: refs, Spec: v})
	}
	for _, v := range t.Suffixes {
		out = append(out, Resource{Kind: KindRandomSuffix, Name: v.Name, Spec: v})
	}
	for _, v := range t.Buckets {
		out = append(out, Resource{Kind: KindBucket, Name: v.Name, References: []string{v.Suffix}, Spec: v})
	}
	for _, v := range t.Ownerships {
		out = append(out, Resource{Kind: KindBucketOwnership, Name: v.Name, References: []string{v.Bucket}, Spec: v})
	}
	for _, v := range t.Accesses {
		refs := []string{v.Bucket, v.Ownership}
		out = append(out, Resource{Kind: KindBucketAccess, Name: v.Name, References: refs, Spec: v})
	}
	return out
}

// Lookup returns the resource with the given address.
func (t *Template) Lookup(address string) (Resource, bool) {
	for _, r := range t.Resources() {
		if r.Address() == address {
			return r, true
		}
	}
	return Resource{}, false
}

// Validate checks that the template names a deployment, that addresses are
// unique, and that every reference resolves to a declared resource.
func (t *Template) Validate() error {
	if t.Deployment == "" {
		return fmt.Errorf("template: deployment name required")
	}
	seen := make(map[string]bool)
	for _, r := range t.Resources() {
		if r.Name == "" {
			return fmt.Errorf("template: %s resource with empty name", r.Kind)
		}
		addr := r.Address()
		if seen[addr] {
			return fmt.Errorf("template: duplicate resource %s", addr)
		}
		seen[addr] = true
	}
	for _, r := range t.Resources() {
		for _, ref := range r.References {
			if ref == "" {
				return fmt.Errorf("template: %s has an empty reference", r.Address())
			}
			if !seen[ref] {
				return fmt.Errorf("template: %s references unknown resource %s", r.Address(), ref)
			}
		}
		for _, dep := range t.DependsOn[r.Address()] {
			if !seen[dep] {
				return fmt.Errorf("template: %s depends on unknown resource %s", r.Address(), dep)
			}
		}
	}
	return nil
}

// DesiredHash returns a stable hash of a resource declaration, used to decide
// whether recorded state still matches the desired state.
func DesiredHash(spec any) string {
	data, err := json.Marshal(spec)
	if err != nil {
		// Resource specs are plain structs; marshal cannot fail for them.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
