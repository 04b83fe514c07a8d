// Package presentation renders an issued artifact as a compact signed token
// a counterparty can carry and validate offline. The token reuses the
// issuer's P-256 signing key (ES256) and binds the artifact id, the claim
// summary, and the data commitment; the token's validity window is the
// artifact's rights window.
package presentation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
)

// ErrNotIssued is returned when a token is requested for an artifact that is
// not in the Issued state.
var ErrNotIssued = errors.New("artifact not issued")

// ArtifactClaims extends the registered JWT claims with the artifact's
// claim summary. The full artifact stays in the registry; the token carries
// only the aggregated scalar and the commitment that binds it.
type ArtifactClaims struct {
	jwt.RegisteredClaims
	ClaimType  domain.ClaimType `json:"claimType"`
	MetricName string           `json:"metricName"`
	Value      float64          `json:"value"`
	Unit       string           `json:"unit"`
	Commitment string           `json:"commitment"`
	Purpose    string           `json:"purpose"`
}

// BuildToken signs an ES256 presentation token for an issued artifact.
func BuildToken(signer *crypto.ECDSASigner, artifact *domain.UsageRightArtifact) (string, error) {
	if artifact.State != domain.StateIssued {
		return "", fmt.Errorf("cannot present artifact %s in state %s: %w", artifact.ArtifactID, artifact.State, ErrNotIssued)
	}

	now := time.Now().UTC()
	claims := ArtifactClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        strings.ReplaceAll(uuid.NewString(), "-", ""),
			Issuer:    artifact.IssuerID,
			Subject:   artifact.ArtifactID,
			Audience:  jwt.ClaimStrings{artifact.Rights.CounterpartyID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(artifact.Rights.ValidFrom),
			ExpiresAt: jwt.NewNumericDate(artifact.Rights.ValidTo),
		},
		ClaimType:  artifact.Claim.Type,
		MetricName: artifact.Claim.MetricName,
		Value:      artifact.Claim.Value,
		Unit:       artifact.Claim.Unit,
		Commitment: artifact.DataCommitment,
		Purpose:    artifact.Rights.Purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(signer.SigningKey())
	if err != nil {
		return "", fmt.Errorf("sign presentation token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a presentation token and validates its ES256
// signature against the issuer's base64 PKIX public key.
func ValidateToken(tokenString, publicKeyB64 string) (*ArtifactClaims, error) {
	pub, err := crypto.ParsePublicKey(publicKeyB64)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &ArtifactClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return pub, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse presentation token: %w", err)
	}

	claims, ok := token.Claims.(*ArtifactClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
