package oauth2

// ResponseType represents the OAuth 2.0 response type requested at the
// provider's authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Example: /api/permission/oauth2/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// The raw verifier travels only in the token exchange.
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier (if PKCE)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access token.
	// Token request includes: refresh_token, client_id, client_secret
	// The provider may or may not rotate the refresh token.
	RefreshTokenGrant GrantType = "refresh_token"
)

// ErrorCode is the "error" member of a token endpoint error response (RFC 6749 5.2).
type ErrorCode string

const (
	// InvalidGrantError means the code or refresh token is expired, revoked or
	// was issued to another client. For a refresh it means the user has to
	// authorize again.
	InvalidGrantError  ErrorCode = "invalid_grant"
	InvalidClientError ErrorCode = "invalid_client"
	InvalidRequest     ErrorCode = "invalid_request"
)
