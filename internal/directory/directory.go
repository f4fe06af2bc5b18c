// Package directory exposes the read-only lookups this service needs from the
// corporate directory database. Employee, service and card registration are
// managed by the admin application; the authentication server only reads.
package directory

import (
	"context"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// EmployeeDirectory resolves employees and their registered card keys.
type EmployeeDirectory interface {
	EmployeeByNumber(ctx context.Context, empNo string) (domain.Employee, error)
	// PublicKeyByEmployee returns the uncompressed X9.62 public key registered
	// for the employee's card.
	PublicKeyByEmployee(ctx context.Context, empNo string) ([]byte, error)
}

// ServiceDirectory resolves registered relying services.
type ServiceDirectory interface {
	ServiceByClientID(ctx context.Context, clientID string) (domain.Service, error)
	// ServiceByClientAndRedirect succeeds only when redirectURI is registered
	// for the client.
	ServiceByClientAndRedirect(ctx context.Context, clientID, redirectURI string) (domain.Service, error)
}
