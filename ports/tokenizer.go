package ports

// Authenticator resolves a gateway bearer token to the requester identity.
type Authenticator interface {
	IdentityFromToken(token string) (string, error)
	// IssueToken is used by gateways and tests to mint a token for an identity.
	IssueToken(identity string) (string, error)
}
