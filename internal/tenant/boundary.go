// Package tenant holds the ownership-validation primitives every domain
// repository calls before touching tenant-owned records.
package tenant

import (
	"github.com/google/uuid"

	"fieldops/pkg/apperror"
)

// Owned is implemented by every tenant-owned record.
type Owned interface {
	OwnerCompanyID() uuid.UUID
}

// RequireContext fails when no tenant context is attached to the request.
// That is a broken middleware chain upstream, not bad input, so the error is
// an internal configuration defect that should alert operators.
func RequireContext(companyID uuid.UUID) error {
	if companyID == uuid.Nil {
		return apperror.InternalConfiguration("tenant context missing from request")
	}
	return nil
}

// RequireIdentifier parses value as an opaque identifier. Format-checked, not
// merely non-empty, so malformed identifiers never reach constructed queries.
func RequireIdentifier(value, fieldName string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperror.Newf(apperror.KindInvalidArgument, "invalid %s", fieldName)
	}
	return id, nil
}

// ScopeAndValidate returns the record only when it exists and belongs to the
// caller's tenant. A record owned by another tenant yields the same NotFound
// as true absence, so cross-tenant existence cannot be probed. Repositories
// already filter by company in the query; this is the after-fetch check.
func ScopeAndValidate[T any, PT interface {
	*T
	Owned
}](record PT, companyID uuid.UUID, resourceName string) (PT, error) {
	if record == nil || record.OwnerCompanyID() != companyID {
		return nil, apperror.NotFound(resourceName)
	}
	return record, nil
}
