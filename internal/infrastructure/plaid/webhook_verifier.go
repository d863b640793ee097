package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// maxWebhookAge bounds how old a signed webhook may be before it is rejected
// as a possible replay.
const maxWebhookAge = 5 * time.Minute

// KeyFetcher fetches the JWK for a signature key id. *Client implements it.
type KeyFetcher interface {
	GetWebhookVerificationKey(ctx context.Context, keyID string) (*WebhookVerificationKey, error)
}

// WebhookVerifier validates the Plaid-Verification header: an ES256 JWT whose
// claims carry a SHA-256 of the raw request body. Keys are fetched by key id
// and cached for the process lifetime (Plaid rotates kids, not key contents).
type WebhookVerifier struct {
	keys KeyFetcher

	mu    sync.Mutex
	cache map[string]*ecdsa.PublicKey

	now func() time.Time
}

func NewWebhookVerifier(keys KeyFetcher) *WebhookVerifier {
	return &WebhookVerifier{
		keys:  keys,
		cache: make(map[string]*ecdsa.PublicKey),
		now:   time.Now,
	}
}

type webhookClaims struct {
	Iat               int64  `json:"iat"`
	RequestBodySHA256 string `json:"request_body_sha256"`
}

// Verify checks the signed JWT against the raw body. Any failure (missing
// header, key fetch failure, signature mismatch, stale token, body hash
// mismatch) is a verification error; the webhook boundary maps it to 401.
func (v *WebhookVerifier) Verify(ctx context.Context, body []byte, signedJWT string) error {
	if signedJWT == "" {
		return fmt.Errorf("missing verification header")
	}

	parts := strings.Split(signedJWT, ".")
	if len(parts) != 3 {
		return fmt.Errorf("invalid token format")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("failed to decode token header: %w", err)
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return fmt.Errorf("failed to unmarshal token header: %w", err)
	}
	if header.Alg != "ES256" {
		return fmt.Errorf("unexpected signing algorithm %q", header.Alg)
	}
	if header.Kid == "" {
		return fmt.Errorf("token header has no key id")
	}

	key, err := v.publicKey(ctx, header.Kid)
	if err != nil {
		return fmt.Errorf("failed to fetch verification key: %w", err)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(signature) != 64 {
		return fmt.Errorf("invalid ES256 signature length %d", len(signature))
	}

	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if !ecdsa.Verify(key, digest[:], r, s) {
		return fmt.Errorf("invalid signature")
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("failed to decode claims: %w", err)
	}
	var claims webhookClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return fmt.Errorf("failed to unmarshal claims: %w", err)
	}

	if v.now().Sub(time.Unix(claims.Iat, 0)) > maxWebhookAge {
		return fmt.Errorf("webhook token issued too long ago")
	}

	bodyDigest := sha256.Sum256(body)
	bodyHex := hex.EncodeToString(bodyDigest[:])
	if subtle.ConstantTimeCompare([]byte(bodyHex), []byte(claims.RequestBodySHA256)) != 1 {
		return fmt.Errorf("request body hash mismatch")
	}

	return nil
}

func (v *WebhookVerifier) publicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	v.mu.Lock()
	if key, ok := v.cache[kid]; ok {
		v.mu.Unlock()
		return key, nil
	}
	v.mu.Unlock()

	jwk, err := v.keys.GetWebhookVerificationKey(ctx, kid)
	if err != nil {
		return nil, err
	}
	key, err := parseJWK(jwk)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[kid] = key
	v.mu.Unlock()
	return key, nil
}

func parseJWK(jwk *WebhookVerificationKey) (*ecdsa.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", jwk.Kty, jwk.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key X coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key Y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}
