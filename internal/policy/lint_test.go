package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackforge/stackforge/internal/models"
)

func ruleIDs(findings []Finding) []string {
	var out []string
	for _, f := range findings {
		out = append(out, f.RuleID)
	}
	return out
}

func TestLint(t *testing.T) {
	t.Run("default template has warnings but no errors", func(t *testing.T) {
		findings := Lint(models.DefaultTemplate())

		assert.Empty(t, Errors(findings))
		ids := ruleIDs(findings)
		assert.Contains(t, ids, RulePlaintextKey)
		assert.Contains(t, ids, RuleStaticKeyName)
	})

	t.Run("plaintext key path is flagged", func(t *testing.T) {
		findings := Lint(models.DefaultTemplate())
		var found bool
		for _, f := range findings {
			if f.RuleID == RulePlaintextKey {
				found = true
				assert.Equal(t, SeverityWarn, f.Severity)
				assert.Contains(t, f.Message, "unencrypted")
			}
		}
		assert.True(t, found)
	})

	t.Run("extra ingress port is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.RuleSets[0].Ingress = append(tmpl.RuleSets[0].Ingress, models.Rule{
			Protocol: "tcp", FromPort: 3306, ToPort: 3306, Origins: []string{"0.0.0.0/0"},
		})

		errs := Errors(Lint(tmpl))
		require.Len(t, errs, 1)
		assert.Equal(t, RuleIngressPorts, errs[0].RuleID)
		assert.Contains(t, errs[0].Message, "3306")
	})

	t.Run("port range is an error even inside the allowed set", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.RuleSets[0].Ingress[0] = models.Rule{
			Protocol: "tcp", FromPort: 22, ToPort: 443, Origins: []string{"0.0.0.0/0"},
		}

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleIngressPorts)
	})

	t.Run("missing all-outbound egress is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.RuleSets[0].Egress = nil

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleEgressAll)
	})

	t.Run("public bucket access is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.Accesses[0].BlockPublicPolicy = false

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleBucketPrivate)
	})

	t.Run("access without ownership ordering is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.Accesses[0].Ownership = ""

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleBucketOrder)
	})

	t.Run("instance without key pair is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.Instances[0].KeyPair = ""

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleInstanceKeyDep)
	})

	t.Run("bucket without suffix is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.Buckets[0].Suffix = ""

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleBucketSuffix)
	})

	t.Run("short suffix is an error", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.Suffixes[0].ByteLength = 4

		assert.Contains(t, ruleIDs(Errors(Lint(tmpl))), RuleBucketSuffix)
	})

	t.Run("errors sort before warnings", func(t *testing.T) {
		tmpl := models.DefaultTemplate()
		tmpl.RuleSets[0].Egress = nil

		findings := Lint(tmpl)
		require.NotEmpty(t, findings)
		assert.Equal(t, SeverityError, findings[0].Severity)
	})
}
