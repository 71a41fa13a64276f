package models

// ciBootstrap is the opaque bootstrap script handed to the instance as
// metadata and run once at first boot.
const ciBootstrap = `#!/bin/bash
set -euo pipefail
apt-get update -y
apt-get install -y openjdk-17-jre-headless
wget -q -O /usr/share/keyrings/jenkins-keyring.asc https://pkg.jenkins.io/debian-stable/jenkins.io-2023.key
echo "deb [signed-by=/usr/share/keyrings/jenkins-keyring.asc] https://pkg.jenkins.io/debian-stable binary/" > /etc/apt/sources.list.d/jenkins.list
apt-get update -y
apt-get install -y jenkins
systemctl enable --now jenkins
`

// DefaultTemplate returns the built-in CI build deployment: one CI server
// instance behind a three-port rule set, a generated administrative key pair,
// and a private artifact bucket with a random name suffix.
func DefaultTemplate() *Template {
	return &Template{
		Deployment: "ci-build",
		Images: []ImageLookup{{
			Name:        "ci_base",
			Owner:       "canonical",
			NamePattern: "ubuntu-24.04-server-*",
			MostRecent:  true,
		}},
		KeyPairs: []KeyPair{{
			Name:           "ci_admin",
			KeyName:        "ci-server-key",
			Bits:           4096,
			PrivateKeyPath: "ci-server-key.pem",
		}},
		RuleSets: []RuleSet{{
			Name:        "ci_server",
			GroupName:   "ci-server-sg",
			Description: "CI server access",
			Ingress: []Rule{
				{Protocol: "tcp", FromPort: 22, ToPort: 22, Origins: []string{"0.0.0.0/0"}},
				{Protocol: "tcp", FromPort: 8080, ToPort: 8080, Origins: []string{"0.0.0.0/0"}},
				{Protocol: "tcp", FromPort: 443, ToPort: 443, Origins: []string{"0.0.0.0/0"}},
			},
			Egress: []Rule{
				{Protocol: "all", Origins: []string{"0.0.0.0/0"}},
			},
		}},
		Instances: []Instance{{
			Name:     "ci_server",
			Size:     "t3.medium",
			Image:    Address(KindImage, "ci_base"),
			KeyPair:  Address(KindKeyPair, "ci_admin"),
			RuleSet:  Address(KindRuleSet, "ci_server"),
			UserData: ciBootstrap,
			Tags:     map[string]string{"Name": "ci-server"},
		}},
		Suffixes: []RandomSuffix{{
			Name:       "artifacts_id",
			ByteLength: 16,
		}},
		Buckets: []Bucket{{
			Name:       "artifacts",
			NamePrefix: "ci-build-artifacts",
			Suffix:     Address(KindRandomSuffix, "artifacts_id"),
		}},
		Ownerships: []BucketOwnership{{
			Name:            "artifacts",
			Bucket:          Address(KindBucket, "artifacts"),
			ObjectOwnership: "ObjectWriter",
		}},
		Accesses: []BucketAccess{{
			Name:                  "artifacts",
			Bucket:                Address(KindBucket, "artifacts"),
			Ownership:             Address(KindBucketOwnership, "artifacts"),
			BlockPublicACLs:       true,
			BlockPublicPolicy:     true,
			IgnorePublicACLs:      true,
			RestrictPublicBuckets: true,
		}},
		DependsOn: map[string][]string{
			Address(KindInstance, "ci_server"): {Address(KindKeyPair, "ci_admin")},
		},
	}
}
