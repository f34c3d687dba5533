package domain

import (
	"context"
)

// AccountRepository defines the interface for account data access operations.
// This follows the Repository pattern to abstract data persistence logic.
type AccountRepository interface {
	// GetByID retrieves an account by its unique identifier.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// LockForUpdate acquires an exclusive row lock on every listed account for
	// the duration of the surrounding transaction and returns them keyed by id.
	// Locks are always acquired in ascending id order regardless of the order
	// of ids in the slice, so concurrent transfers over the same accounts can
	// never form a circular wait. Returns an AccountsNotFoundError listing the
	// missing ids if any account doesn't exist.
	// Must be called within a transaction context.
	LockForUpdate(ctx context.Context, ids []int64) (map[int64]*Account, error)

	// Save persists the account's current balance. Only valid while the
	// account's row lock is held by the calling transaction.
	Save(ctx context.Context, account *Account) error
}

// TransactionRepository defines the interface for the append-only ledger of
// committed transfers.
type TransactionRepository interface {
	// Create persists a new ledger entry and returns its assigned id.
	Create(ctx context.Context, transaction *Transaction) (int64, error)

	// GetByID retrieves a ledger entry by its unique identifier.
	// Returns ErrTransactionNotFound if the entry doesn't exist.
	GetByID(ctx context.Context, id int64) (*Transaction, error)

	// GetByIdempotencyKey retrieves a ledger entry by its idempotency key.
	// Used to dedup retried transfer requests.
	// Returns nil if no entry is found with the given key.
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*Transaction, error)

	// Remove deletes a ledger entry. Administrative operation, never part of
	// the transfer hot path. Returns ErrTransactionNotFound if absent.
	Remove(ctx context.Context, id int64) error
}

// TransactionManager defines the interface for managing database transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NotificationPublisher publishes transfer notifications to external systems
// (e.g. RabbitMQ). It is invoked strictly after commit; a delivery failure
// must never affect the committed transfer.
type NotificationPublisher interface {
	PublishMoneyTransferred(ctx context.Context, event *MoneyTransferredEvent) error
}
