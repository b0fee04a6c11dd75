package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
)

const AudienceGateway = "faucet:gateway"

// DefaultTokenTTL bounds tokens minted by IssueToken
const DefaultTokenTTL = 5 * time.Minute

// JWTTokenizer implements the Authenticator interface with HS256 tokens
// signed by the shared bot secret
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(secret string) ports.Authenticator {
	return &JWTTokenizer{secret: []byte(secret), ttl: DefaultTokenTTL, now: time.Now}
}

// IssueToken mints a gateway token for identity
func (j *JWTTokenizer) IssueToken(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity is required")
	}

	now := j.now()
	claims := GatewayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			Audience:  jwt.ClaimStrings{AudienceGateway},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// IdentityFromToken validates a gateway token and returns its subject
func (j *JWTTokenizer) IdentityFromToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &GatewayClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithAudience(AudienceGateway), jwt.WithExpirationRequired(), jwt.WithTimeFunc(j.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}

	if !token.Valid {
		return "", core.ErrUnauthorized
	}

	claims, ok := token.Claims.(*GatewayClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", core.ErrUnauthorized)
	}

	return claims.Subject, nil
}
