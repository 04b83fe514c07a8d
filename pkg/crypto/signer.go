package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// Signer produces detached signatures over canonical artifact bytes.
// One signer instance wraps exactly one keypair; key rotation means
// constructing a new signer, never replacing the key in place.
type Signer interface {
	// Sign returns an ASN.1 DER encoded signature over data.
	Sign(data []byte) ([]byte, error)
	// PublicKey returns the PKIX (SubjectPublicKeyInfo) DER encoding of
	// the verification key, so an independently constructed verifier can
	// rebuild the key from bytes alone.
	PublicKey() ([]byte, error)
}

// ECDSASigner signs with ECDSA over the NIST P-256 curve and SHA-256.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

// NewECDSASigner creates a signer with a fresh random P-256 keypair.
func NewECDSASigner() (*ECDSASigner, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &ECDSASigner{key: key}, nil
}

// NewECDSASignerFromPKCS8 creates a signer from an existing PKCS#8 private
// key, e.g. one loaded from secure storage.
func NewECDSASignerFromPKCS8(der []byte) (*ECDSASigner, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid PKCS#8 key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS#8 key is %T, want *ecdsa.PrivateKey", parsed)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("unsupported curve %s, want P-256", key.Curve.Params().Name)
	}
	return &ECDSASigner{key: key}, nil
}

// Sign hashes data with SHA-256 and returns the ASN.1 DER signature.
func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	return sig, nil
}

// PublicKey exports the verification key as PKIX DER.
func (s *ECDSASigner) PublicKey() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key export failed: %w", err)
	}
	return der, nil
}

// ExportPrivateKey exports the private key in PKCS#8 form for storage.
func (s *ECDSASigner) ExportPrivateKey() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(s.key)
	if err != nil {
		return nil, fmt.Errorf("private key export failed: %w", err)
	}
	return der, nil
}

// SigningKey exposes the underlying key for callers that need to sign in
// another envelope format (e.g. a JWT presentation of an artifact).
func (s *ECDSASigner) SigningKey() *ecdsa.PrivateKey {
	return s.key
}
