// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SystemUserID is the acting user recorded for jobs not triggered by a person.
const SystemUserID int64 = 0

// Actor identifies who performs an operation and on behalf of which company.
// Identity is asserted upstream (gateway / ERP session); this service only carries it.
type Actor struct {
	CompanyID int64
	UserID    int64
	UserName  string
}

// IsSystem reports whether the actor is the background system user.
func (a *Actor) IsSystem() bool {
	return a == nil || a.UserID == SystemUserID
}

type actorContextKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor returns Actor from context.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorContextKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetUserID returns acting user ID from context, or SystemUserID.
func GetUserID(ctx context.Context) int64 {
	if a := GetActor(ctx); a != nil {
		return a.UserID
	}
	return SystemUserID
}

// GetCompanyID returns company ID from context or 0.
func GetCompanyID(ctx context.Context) int64 {
	if a := GetActor(ctx); a != nil {
		return a.CompanyID
	}
	return 0
}
