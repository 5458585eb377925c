package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

type txKey struct{}

type undoKey struct{}

type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager runs a unit of work atomically.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlTxManager struct {
	db *sql.DB
}

// NewTxManager creates a new TxManager for the given database.
func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db}
}

// WithTx runs fn inside a transaction carried by ctx. A call nested in an
// outer WithTx joins the outer transaction instead of opening a second one, so
// only the outermost call commits.
func (m *sqlTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}

	return tx.Commit()
}

// GetTx returns the transaction carried by ctx, or db when there is none.
func GetTx(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// OnRollback registers undo to run when the passthrough unit of work carried by
// ctx fails. It is a no-op under a SQL transaction or outside any unit of work.
func OnRollback(ctx context.Context, undo func()) {
	log, ok := ctx.Value(undoKey{}).(*undoLog)
	if !ok {
		return
	}
	log.mu.Lock()
	log.fns = append(log.fns, undo)
	log.mu.Unlock()
}

// passthroughTxManager runs fn without a transaction. It backs the in-memory
// repositories, which serialize access themselves and register their undo
// steps through OnRollback.
type passthroughTxManager struct{}

// NewPassthroughTxManager creates a TxManager that calls fn directly.
func NewPassthroughTxManager() TxManager {
	return passthroughTxManager{}
}

// WithTx runs fn and, when it fails, replays the registered undo steps newest
// first. Nested calls join the outer unit of work.
func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	log := &undoLog{}
	if err := fn(context.WithValue(ctx, undoKey{}, log)); err != nil {
		log.mu.Lock()
		fns := log.fns
		log.mu.Unlock()
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
		return err
	}
	return nil
}
