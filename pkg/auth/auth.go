// Package auth identifies the callers of the HTTP API: end users through an
// OpenID Connect bearer token and the engine through a shared service key.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc"
)

const DefaultAdminRole = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Caller is an authenticated end user.
type Caller struct {
	UserID string
	Roles  []string
	Admin  bool
}

type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*Caller, error)
}

type claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Role    string   `json:"role"`
	Groups  []string `json:"groups"`
}

func (c claims) roles() []string {
	roles := make([]string, 0, len(c.Roles)+len(c.Groups)+1)
	roles = append(roles, c.Roles...)
	roles = append(roles, c.Groups...)

	if c.Role != "" {
		roles = append(roles, c.Role)
	}

	return roles
}

// OIDC verifies tokens issued by the product's identity provider.
type OIDC struct {
	verifier  *oidc.IDTokenVerifier
	adminRole string
}

// NewOIDC discovers the issuer's keys. audience may be empty when the issuer
// mints access tokens for several clients.
func NewOIDC(ctx context.Context, issuer, audience, adminRole string) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer %s: %w", issuer, err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
	})

	return NewOIDCWithVerifier(verifier, adminRole), nil
}

func NewOIDCWithVerifier(verifier *oidc.IDTokenVerifier, adminRole string) *OIDC {
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}

	return &OIDC{verifier: verifier, adminRole: adminRole}
}

func (o *OIDC) Authenticate(ctx context.Context, rawToken string) (*Caller, error) {
	if rawToken == "" {
		return nil, ErrMissingToken
	}

	token, err := o.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	var c claims

	err = token.Claims(&c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	roles := c.roles()

	return &Caller{
		UserID: c.Subject,
		Roles:  roles,
		Admin: slices.ContainsFunc(roles, func(role string) bool {
			return strings.EqualFold(role, o.adminRole)
		}),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// ServiceKey checks the key the engine presents on service-context calls.
// With no key configured every call is refused.
type ServiceKey struct {
	key []byte
}

func NewServiceKey(key string) *ServiceKey {
	return &ServiceKey{key: []byte(key)}
}

func (s *ServiceKey) Configured() bool {
	return len(s.key) > 0
}

func (s *ServiceKey) Valid(presented string) bool {
	if !s.Configured() || presented == "" {
		return false
	}

	return subtle.ConstantTimeCompare(s.key, []byte(presented)) == 1
}
