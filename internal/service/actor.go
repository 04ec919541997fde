package service

import (
	"context"
	"strings"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID        string `json:"id" yaml:"id"`
	FirstName string `json:"first_name" yaml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name"`
	Role      string `json:"role" yaml:"role"`
}

// FullName joins first and last name.
func (a *Actor) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func authenticated(a *Actor) bool {
	return a != nil && a.ID != ""
}

// IdentityClientInterface resolves users from the identity provider.
type IdentityClientInterface interface {
	// GetUser returns the user with the given id, or a NOT_FOUND error.
	GetUser(ctx context.Context, userID string) (*Actor, error)
	// GetUsersWithRole returns the ids of users holding role.
	GetUsersWithRole(ctx context.Context, role string) ([]string, error)
}
