package db

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

type txExecutorOptions struct {
	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

func defaultTxExecutorOptions() *txExecutorOptions {
	return &txExecutorOptions{
		numRetries:        DefaultNumTxRetries,
		initialRetryDelay: DefaultInitialRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
	}
}

// retryDelay returns 50%-150% of the initial delay, doubled per attempt and
// capped at the max.
func (t *txExecutorOptions) retryDelay(attempt int) time.Duration {
	if t.initialRetryDelay <= 0 {
		return 0
	}

	jitter := time.Duration(rand.Int64N(int64(t.initialRetryDelay)))
	delay := t.initialRetryDelay/2 + jitter

	for i := 0; i < attempt && delay < t.maxRetryDelay; i++ {
		delay *= 2
	}

	return min(delay, t.maxRetryDelay)
}

// TxExecutorOption tweaks a TransactionExecutor.
type TxExecutorOption func(*txExecutorOptions)

// WithTxRetries sets how often a busy transaction is retried.
func WithTxRetries(numRetries int) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.numRetries = numRetries
	}
}

// WithTxRetryDelay sets the initial retry delay.
func WithTxRetryDelay(delay time.Duration) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.initialRetryDelay = delay
	}
}

// TransactionExecutor runs a body against Q inside a transaction, retrying
// on SQLite busy and locked errors.
type TransactionExecutor[Q any] struct {
	BatchedQuerier

	createQuery QueryCreator[Q]
	opts        *txExecutorOptions
	log         *slog.Logger
}

// NewTransactionExecutor creates an executor. A nil logger means
// slog.Default().
func NewTransactionExecutor[Q any](db BatchedQuerier,
	createQuery QueryCreator[Q], log *slog.Logger,
	opts ...TxExecutorOption) *TransactionExecutor[Q] {

	txOpts := defaultTxExecutorOptions()
	for _, opt := range opts {
		opt(txOpts)
	}
	if log == nil {
		log = slog.Default()
	}

	return &TransactionExecutor[Q]{
		BatchedQuerier: db,
		createQuery:    createQuery,
		opts:           txOpts,
		log:            log,
	}
}

// ExecTx runs txBody in a transaction and commits it.
func (t *TransactionExecutor[Q]) ExecTx(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error) error {

	for i := 0; i < t.opts.numRetries; i++ {
		retry, err := t.attempt(ctx, txOptions, txBody)
		if !retry {
			return err
		}

		delay := t.opts.retryDelay(i)
		t.log.DebugContext(ctx, "Retrying busy transaction",
			"attempt_number", i, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return ErrRetriesExceeded
}

// attempt runs one transaction. It reports whether the failure is worth
// retrying.
func (t *TransactionExecutor[Q]) attempt(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error) (bool, error) {

	tx, err := t.BeginTx(ctx, txOptions)
	if err != nil {
		err = MapSQLError(err)
		return IsSerializationOrDeadlockError(err), err
	}

	// No-op after a successful commit.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := txBody(t.createQuery(tx)); err != nil {
		err = MapSQLError(err)
		return IsSerializationOrDeadlockError(err), err
	}

	if err := tx.Commit(); err != nil {
		err = MapSQLError(err)
		return IsSerializationOrDeadlockError(err), err
	}

	return false, nil
}

var _ BatchedTx[*Queries] = (*TransactionExecutor[*Queries])(nil)
