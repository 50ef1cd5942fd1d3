package authz

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the immutable per-request caller context. It is built exactly
// once by the authentication middleware and threaded through the call chain;
// nothing downstream mutates it.
type Identity struct {
	UserID     uuid.UUID
	CompanyID  uuid.UUID
	CoarseRole string
	// Impersonation is set when the request was authenticated as a platform
	// operator acting through an active session. UserID/CompanyID/CoarseRole
	// above already refer to the target user in that case.
	Impersonation *ImpersonationClaim
}

// ImpersonationClaim carries the session linkage for an impersonated request.
type ImpersonationClaim struct {
	SessionID  uuid.UUID
	OperatorID uuid.UUID
}

// Impersonated reports whether the request is flowing through an
// impersonation session.
func (id *Identity) Impersonated() bool {
	return id != nil && id.Impersonation != nil
}

type contextKey struct{}

// WithIdentity attaches the identity to the context.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// IdentityFromContext returns the request identity, nil if unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(contextKey{}).(*Identity)
	return ident
}
