// Package tx provides transaction management abstractions.
// Domain services depend on this interface; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// RunInSavepoint executes fn inside a savepoint of the active transaction
	// (or a fresh transaction when none is active). A failure inside fn rolls
	// back only to the savepoint, leaving the enclosing work intact.
	RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}
