package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// VerifySignature checks a detached base64 ECDSA P-256 signature over data
// against a base64 PKIX public key. Decode and parse failures are returned
// as errors; a well-formed but non-matching signature is (false, nil).
func VerifySignature(publicKeyB64, signatureB64 string, data []byte) (bool, error) {
	pubDER, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false, fmt.Errorf("invalid public key base64: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false, fmt.Errorf("invalid signature base64: %w", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return false, fmt.Errorf("invalid PKIX public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return false, fmt.Errorf("public key is %T, want *ecdsa.PublicKey", parsed)
	}

	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sig), nil
}

// ParsePublicKey decodes a base64 PKIX encoding into an ECDSA public key.
func ParsePublicKey(publicKeyB64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("invalid public key base64: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid PKIX public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want *ecdsa.PublicKey", parsed)
	}
	return pub, nil
}
