// Package keys generates the administrative key pair registered with the
// provider. The private half is PEM-encoded and written to local disk, which
// the policy linter flags as a finding.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// Material is one generated key pair.
type Material struct {
	// PrivatePEM is the PKCS#1 PEM encoding of the private key.
	PrivatePEM []byte
	// PublicAuthorizedKey is the OpenSSH authorized_keys form of the
	// public half, as registered with the provider.
	PublicAuthorizedKey string
	// Fingerprint is the SHA256 fingerprint of the public key.
	Fingerprint string
}

// Generate creates a new RSA key pair of the given size.
func Generate(bits int) (*Material, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("keys: %d bits is below the 2048-bit minimum", bits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	pub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}

	return &Material{
		PrivatePEM:          pemBytes,
		PublicAuthorizedKey: string(ssh.MarshalAuthorizedKey(pub)),
		Fingerprint:         ssh.FingerprintSHA256(pub),
	}, nil
}

// WritePrivate writes the private key to path with owner-only permissions,
// creating parent directories as needed.
func WritePrivate(path string, m *Material) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, m.PrivatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}
