package auth

import (
	"context"

	"github.com/mmynk/hisaab/internal/models"
)

// Authenticator verifies who a caller is. The auth service depends on this
// interface so credential schemes can change without touching handlers.
type Authenticator interface {
	// Register creates a new user account with the given email and credential.
	// Returns ErrEmailExists when the email is taken.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate verifies the user's credentials and returns the user.
	// Every failure is reported as ErrInvalidCredentials.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks the credential before it is stored.
	ValidateCredential(credential string) error
}
