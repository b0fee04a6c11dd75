package tokenizer

import "github.com/golang-jwt/jwt/v5"

// GatewayClaims are the claims of a token minted for a messaging gateway.
// The subject is the requester identity.
type GatewayClaims struct {
	jwt.RegisteredClaims
}
