package db

import (
	"context"
	"database/sql"
	"time"
)

// DefaultStoreTimeout bounds a single storage interaction.
var DefaultStoreTimeout = 10 * time.Second

const (
	// DefaultNumTxRetries is how often a transaction that failed with a
	// busy or locked error is retried.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay is the base retry delay. Each attempt
	// waits a random 50%-150% of it, doubled per attempt.
	DefaultInitialRetryDelay = 40 * time.Millisecond

	// DefaultMaxRetryDelay caps the retry delay.
	DefaultMaxRetryDelay = 3 * time.Second
)

// TxOptions controls what kind of transaction is started.
type TxOptions interface {
	// ReadOnly returns true if the transaction should be read-only.
	ReadOnly() bool
}

// BaseTxOptions is the TxOptions implementation the package hands out.
type BaseTxOptions struct {
	readOnly bool
}

// ReadOnly implements TxOptions.
func (a *BaseTxOptions) ReadOnly() bool {
	return a.readOnly
}

// ReadTxOption returns options for a read-only transaction.
func ReadTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: true}
}

// WriteTxOption returns options for a read-write transaction.
func WriteTxOption() *BaseTxOptions {
	return &BaseTxOptions{}
}

// BatchedTx runs several operations on Q atomically.
type BatchedTx[Q any] interface {
	ExecTx(ctx context.Context, txOptions TxOptions,
		txBody func(Q) error) error
}

// QueryCreator binds a query set to a transaction.
type QueryCreator[Q any] func(*sql.Tx) Q

// BatchedQuerier can run queries directly or start a transaction.
type BatchedQuerier interface {
	Querier

	BeginTx(ctx context.Context, options TxOptions) (*sql.Tx, error)
}

// BaseDB pairs the connection with its non-transactional queries.
type BaseDB struct {
	*sql.DB

	*Queries
}

// NewBaseDB wraps db.
func NewBaseDB(db *sql.DB) *BaseDB {
	return &BaseDB{
		DB:      db,
		Queries: New(db),
	}
}

// BeginTx maps TxOptions onto sql.TxOptions.
func (s *BaseDB) BeginTx(ctx context.Context, opts TxOptions) (*sql.Tx,
	error) {

	return s.DB.BeginTx(ctx, &sql.TxOptions{
		ReadOnly: opts.ReadOnly(),
	})
}

// Executor returns a retrying transaction executor over the full query
// set.
func (s *BaseDB) Executor(
	opts ...TxExecutorOption) *TransactionExecutor[*Queries] {

	return NewTransactionExecutor[*Queries](
		s, s.Queries.WithTx, nil, opts...,
	)
}
