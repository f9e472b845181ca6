package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// DefaultTransactionTimeout bounds a change-set when the caller gives none.
const DefaultTransactionTimeout = 5 * time.Second

type TransactionFunc func(ctx mongo.SessionContext) error

// TransactionManager runs change-sets that must commit together, such as a
// ticket and the activity counter it was issued from.
type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client  *mongo.Client
	timeout time.Duration
}

// NewTransactionManager needs a replica set or sharded deployment. The
// timeout covers the whole transaction including driver retries.
func NewTransactionManager(client *mongo.Client, timeout time.Duration) TransactionManager {
	if timeout <= 0 {
		timeout = DefaultTransactionTimeout
	}
	return &mongoTransactionManager{client: client, timeout: timeout}
}

// ExecuteTransaction returns fn's own error unwrapped, so callers can match
// their sentinel errors with errors.Is. Transient commit failures are retried
// by the driver until the timeout.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	ctx, cancel := WithTimeout(ctx, m.timeout)
	defer cancel()

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority()).
		SetMaxCommitTime(&m.timeout)

	var fnErr error
	err := m.client.UseSession(ctx, func(sessCtx mongo.SessionContext) error {
		_, err := sessCtx.WithTransaction(sessCtx, func(txCtx mongo.SessionContext) (any, error) {
			fnErr = fn(txCtx)
			return nil, fnErr
		}, txOpts)
		return err
	})

	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("transaction did not commit within %s: %w", m.timeout, err)
	default:
		return fmt.Errorf("transaction failed: %w", err)
	}
}
