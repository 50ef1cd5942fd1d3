package authz

import (
	"context"

	"fieldops/internal/model"
	"fieldops/pkg/apperror"
)

// Gate is the single enforcement point for protected operations. Handlers
// and middleware go through Check; domain code never re-implements
// permission logic inline.
type Gate struct {
	resolver *Resolver
}

// NewGate builds the gate on top of the resolver.
func NewGate(resolver *Resolver) *Gate {
	return &Gate{resolver: resolver}
}

// Check authorizes the identity for the permission key.
//
// A missing identity fails with AuthenticationRequired. The platform-operator
// coarse role, and only that role value, bypasses permission checks
// unconditionally. Otherwise the key must be in the resolved set; a resolver
// failure counts as a deny, never an allow.
func (g *Gate) Check(ctx context.Context, ident *Identity, permissionKey string) error {
	if ident == nil {
		return apperror.AuthenticationRequired("authentication required")
	}

	if ident.CoarseRole == model.CoarseRolePlatformOperator {
		return nil
	}

	set, err := g.resolver.Resolve(ctx, ident.UserID)
	if err != nil {
		denials.WithLabelValues(permissionKey).Inc()
		return apperror.Wrap(apperror.KindPermissionDenied, "missing permission '"+permissionKey+"'", err)
	}
	if !set.Has(permissionKey) {
		denials.WithLabelValues(permissionKey).Inc()
		return apperror.PermissionDenied(permissionKey)
	}
	return nil
}
