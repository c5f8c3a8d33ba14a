package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orvit/internal/core/tx"
	"orvit/pkg/logger"
)

var tracer = otel.Tracer("orvit/tx")

var _ tx.Manager = (*TxManager)(nil)

// defaultStatementTimeout bounds every statement of a ledger transaction.
const defaultStatementTimeout = 30 * time.Second

// TxManager runs ledger work in pgx transactions carried by the context.
// Repositories call GetQuerier and transparently join the active transaction.
type TxManager struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewTxManager creates a transaction manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool, statementTimeout: defaultStatementTimeout}
}

var savepointSeq atomic.Uint64

type txKey struct{}

// Tx is the transaction stored in context.
type Tx struct {
	pgx.Tx
}

// RunInTransaction runs fn in a read-committed transaction. A transaction
// already in ctx is joined, so fn's failure fails the outer unit of work.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "tx.run", trace.WithAttributes(attribute.Bool("tx.savepoint", false)))
	defer span.End()

	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}
	return m.begin(ctx, fn)
}

// RunInSavepoint runs fn under a savepoint of the transaction in ctx, or in
// a new transaction when there is none. Postgres aborts the whole
// transaction on any failed statement; the savepoint confines a failure of
// fn to fn's own writes.
func (m *TxManager) RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "tx.run", trace.WithAttributes(attribute.Bool("tx.savepoint", true)))
	defer span.End()

	existing := m.GetTx(ctx)
	if existing == nil {
		return m.begin(ctx, fn)
	}

	name := fmt.Sprintf("grni_sp_%d", savepointSeq.Add(1))
	if _, err := existing.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := existing.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		return err
	}
	if _, err := existing.Exec(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (m *TxManager) begin(ctx context.Context, fn func(ctx context.Context) error) error {
	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if m.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", m.statementTimeout.Milliseconds())
		if _, err := pgTx.Exec(ctx, stmt); err != nil {
			_ = pgTx.Rollback(ctx)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx})); err != nil {
		// Roll back even when ctx is already cancelled.
		if rbErr := pgTx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTx returns the transaction in ctx, or nil.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is satisfied by both pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the active transaction, or the pool outside one.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}
