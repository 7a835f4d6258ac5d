// Package auth provides authentication and authorization for dialgate.
//
// # Credential Shapes
//
// Two bearer credential shapes are accepted on the Authorization header:
//
//   - JWT Tokens: HS256-signed tokens whose "sub" claim names the principal.
//     Signed with the configured auth.jwt_secret.
//
//   - API Tokens: Opaque tokens of the form dg_<principalID>_<secret>.
//     The secret verifies against a bcrypt hash stored with the principal,
//     so a database leak never exposes usable credentials.
//
// # Principal System
//
// All identities are principals with:
//
//   - ID: Unique identifier
//   - Role: "admin", "operator", or "caller"
//   - Permissions: fine-grained grants beyond the role
//
// Principals live in the sqlite store; the Authenticator resolves a verified
// credential into a Principal and the transports attach it to the request
// context with WithAuth. Capability handlers read it back with FromContext.
//
// # Transport Integration
//
// ExtractBearerToken pulls the raw credential off an Authorization header;
// how a failed authentication is rendered on the wire belongs to the
// transport (the HTTP adapter answers with a protocol Unauthorized envelope,
// the stream adapter checks a credential carried in initialize params).
// Role checks happen inside capability handlers, not in middleware.
package auth
