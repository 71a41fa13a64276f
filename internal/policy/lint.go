// Package policy runs structural checks over a template. Findings are
// advisory output; they never block an apply.
package policy

import (
	"fmt"
	"strings"

	"github.com/stackforge/stackforge/internal/models"
)

// Severity grades a finding.
type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityWarn  Severity = "WARN"
)

// Finding is one policy check result.
type Finding struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Address  string   `json:"address"`
	Message  string   `json:"message"`
}

// Rule identifiers, stable for tooling that filters on them.
const (
	RuleIngressPorts   = "SF001"
	RuleEgressAll      = "SF002"
	RuleBucketPrivate  = "SF003"
	RuleBucketOrder    = "SF004"
	RuleInstanceKeyDep = "SF005"
	RuleBucketSuffix   = "SF006"
	RulePlaintextKey   = "SF101"
	RuleStaticKeyName  = "SF102"
)

// allowedIngressPorts is the closed set of inbound ports the deployment may
// expose: administrative shell, service UI, secure service.
var allowedIngressPorts = map[int]bool{22: true, 8080: true, 443: true}

// Lint evaluates every check against the template and returns all findings,
// errors first.
func Lint(t *models.Template) []Finding {
	var errs, warns []Finding
	add := func(f Finding) {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		} else {
			warns = append(warns, f)
		}
	}

	for _, rs := range t.RuleSets {
		checkRuleSet(rs, add)
	}
	for _, kp := range t.KeyPairs {
		checkKeyPair(kp, add)
	}
	for _, inst := range t.Instances {
		checkInstance(t, inst, add)
	}
	for _, b := range t.Buckets {
		checkBucketSuffix(t, b, add)
	}
	for _, a := range t.Accesses {
		checkBucketAccess(t, a, add)
	}

	return append(errs, warns...)
}

// Errors returns only the ERROR-severity findings.
func Errors(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

func checkRuleSet(rs models.RuleSet, add func(Finding)) {
	addr := rs.Address()
	for _, r := range rs.Ingress {
		if r.Protocol != "tcp" || r.FromPort != r.ToPort || !allowedIngressPorts[r.FromPort] {
			add(Finding{
				RuleID:   RuleIngressPorts,
				Severity: SeverityError,
				Address:  addr,
				Message:  fmt.Sprintf("ingress rule %s %d-%d is outside the allowed ports (22, 8080, 443)", r.Protocol, r.FromPort, r.ToPort),
			})
		}
	}
	allOut := false
	for _, r := range rs.Egress {
		if r.AllowsAll() {
			allOut = true
		}
	}
	if !allOut {
		add(Finding{
			RuleID:   RuleEgressAll,
			Severity: SeverityError,
			Address:  addr,
			Message:  "egress must allow all outbound traffic",
		})
	}
}

func checkKeyPair(kp models.KeyPair, add func(Finding)) {
	addr := kp.Address()
	if kp.PrivateKeyPath != "" {
		add(Finding{
			RuleID:   RulePlaintextKey,
			Severity: SeverityWarn,
			Address:  addr,
			Message:  fmt.Sprintf("private key is written unencrypted to %q", kp.PrivateKeyPath),
		})
	}
	if kp.KeyName != "" && !strings.Contains(kp.KeyName, "${") {
		add(Finding{
			RuleID:   RuleStaticKeyName,
			Severity: SeverityWarn,
			Address:  addr,
			Message:  fmt.Sprintf("key name %q is static; re-use across deployments will collide", kp.KeyName),
		})
	}
}

func checkInstance(t *models.Template, inst models.Instance, add func(Finding)) {
	addr := inst.Address()
	if inst.KeyPair == "" {
		add(Finding{
			RuleID:   RuleInstanceKeyDep,
			Severity: SeverityError,
			Address:  addr,
			Message:  "instance does not reference a key pair",
		})
		return
	}
	if _, ok := t.Lookup(inst.KeyPair); !ok {
		add(Finding{
			RuleID:   RuleInstanceKeyDep,
			Severity: SeverityError,
			Address:  addr,
			Message:  fmt.Sprintf("instance references missing key pair %s", inst.KeyPair),
		})
	}
}

func checkBucketSuffix(t *models.Template, b models.Bucket, add func(Finding)) {
	addr := b.Address()
	if b.Suffix == "" {
		add(Finding{
			RuleID:   RuleBucketSuffix,
			Severity: SeverityError,
			Address:  addr,
			Message:  "bucket name has no random suffix; the name is not globally unique",
		})
		return
	}
	res, ok := t.Lookup(b.Suffix)
	if !ok {
		add(Finding{
			RuleID:   RuleBucketSuffix,
			Severity: SeverityError,
			Address:  addr,
			Message:  fmt.Sprintf("bucket references missing suffix %s", b.Suffix),
		})
		return
	}
	if sfx, ok := res.Spec.(models.RandomSuffix); !ok || sfx.ByteLength != 16 {
		add(Finding{
			RuleID:   RuleBucketSuffix,
			Severity: SeverityError,
			Address:  addr,
			Message:  "bucket suffix must be 16 random bytes (32 hex characters)",
		})
	}
}

func checkBucketAccess(t *models.Template, a models.BucketAccess, add func(Finding)) {
	addr := a.Address()
	if !a.Private() {
		add(Finding{
			RuleID:   RuleBucketPrivate,
			Severity: SeverityError,
			Address:  addr,
			Message:  "bucket access must block all public access paths",
		})
	}
	if a.Ownership == "" {
		add(Finding{
			RuleID:   RuleBucketOrder,
			Severity: SeverityError,
			Address:  addr,
			Message:  "access policy must be ordered after ownership controls",
		})
		return
	}
	if _, ok := t.Lookup(a.Ownership); !ok {
		add(Finding{
			RuleID:   RuleBucketOrder,
			Severity: SeverityError,
			Address:  addr,
			Message:  fmt.Sprintf("access policy references missing ownership controls %s", a.Ownership),
		})
	}
}
