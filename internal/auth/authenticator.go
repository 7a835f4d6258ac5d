// ABOUTME: Bearer credential authentication combining JWT and opaque API tokens.
// ABOUTME: API tokens look like dg_<principal>_<secret> and verify against a bcrypt hash.

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APITokenPrefix marks an opaque API token as opposed to a JWT.
const APITokenPrefix = "dg_"

// ErrPrincipalNotFound indicates no principal record exists for the id.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrPrincipalDisabled indicates the principal exists but may not authenticate.
var ErrPrincipalDisabled = errors.New("principal disabled")

// PrincipalRecord is what the directory knows about a principal.
type PrincipalRecord struct {
	ID          string
	Role        string
	Permissions []string
	Disabled    bool
	// TokenHash is the bcrypt hash of the principal's API token secret,
	// empty when the principal only authenticates via JWT.
	TokenHash string
}

// Directory looks up principals by id. The sqlite store implements it.
type Directory interface {
	GetPrincipal(ctx context.Context, id string) (*PrincipalRecord, error)
}

// Authenticator turns a raw bearer credential into a Principal. It accepts
// two credential shapes: HS256 JWTs and opaque API tokens of the form
// dg_<principalID>_<secret>.
type Authenticator struct {
	verifier  TokenVerifier
	directory Directory
}

// NewAuthenticator wires a token verifier and a principal directory.
func NewAuthenticator(verifier TokenVerifier, directory Directory) *Authenticator {
	return &Authenticator{verifier: verifier, directory: directory}
}

// Authenticate verifies the credential and resolves the principal.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	if strings.HasPrefix(credential, APITokenPrefix) {
		return a.authenticateAPIToken(ctx, credential)
	}

	principalID, err := a.verifier.Verify(credential)
	if err != nil {
		return nil, err
	}
	return a.resolve(ctx, principalID)
}

func (a *Authenticator) authenticateAPIToken(ctx context.Context, token string) (*Principal, error) {
	principalID, secret, err := SplitAPIToken(token)
	if err != nil {
		return nil, err
	}

	record, err := a.directory.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if record.Disabled {
		return nil, ErrPrincipalDisabled
	}
	if record.TokenHash == "" {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.TokenHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	return &Principal{ID: record.ID, Role: record.Role, Permissions: record.Permissions}, nil
}

func (a *Authenticator) resolve(ctx context.Context, principalID string) (*Principal, error) {
	record, err := a.directory.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if record.Disabled {
		return nil, ErrPrincipalDisabled
	}
	return &Principal{ID: record.ID, Role: record.Role, Permissions: record.Permissions}, nil
}

// SplitAPIToken parses dg_<principalID>_<secret> into its parts. The secret
// may itself contain underscores; only the first two separators count.
func SplitAPIToken(token string) (principalID, secret string, err error) {
	rest := strings.TrimPrefix(token, APITokenPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed api token", ErrInvalidToken)
	}
	return parts[0], parts[1], nil
}

// HashAPISecret produces the bcrypt hash stored alongside a principal when an
// API token is minted.
func HashAPISecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api secret: %w", err)
	}
	return string(hash), nil
}
