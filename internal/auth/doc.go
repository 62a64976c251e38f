// Package auth provides token signing and verification for conduit-gateway.
//
// # Authentication Methods
//
// The package supports one credential type:
//
//   - JWT Tokens: Clients authenticate with HS256-signed JWTs carrying a
//     "sub" claim naming the user. Tokens are signed with the configured
//     jwt_secret, resolved once at startup.
//
// In the development environment the gateway may mint a token on the fly for
// a plaintext user identifier; see the stream endpoint in internal/gateway.
//
// # Verification vs Decoding
//
// Verify and VerifyClaims check the signature and expiry. Decode and
// DecodeSubject deliberately skip signature verification: they exist so the
// gateway can log which user owns a session without re-verifying on every
// log line. Decoded claims must never gate an action.
//
// # Setup Tokens
//
// The setup flow signs richer claim sets (projectId, loginToken,
// integrationName) via SignClaims and verifies them with VerifyClaims.
package auth
