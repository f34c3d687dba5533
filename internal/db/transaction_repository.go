package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/walletd/transfer-service/internal/domain"
	"github.com/walletd/transfer-service/internal/money"
)

// ErrDuplicateIdempotencyKey is returned when an insert collides with an
// existing ledger entry carrying the same idempotency key.
var ErrDuplicateIdempotencyKey = errors.New("transaction with idempotency key already exists")

// TransactionRepository implements domain.TransactionRepository using
// PostgreSQL. The transactions table is the append-only ledger of committed
// transfers; entries are immutable once created.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{
		pool: pool,
	}
}

// Create persists a new ledger entry and returns its assigned id.
func (r *TransactionRepository) Create(ctx context.Context, transaction *domain.Transaction) (int64, error) {
	query := `
		INSERT INTO transactions (
			sender_id, receiver_id, amount, commission_fee,
			status, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING id
	`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query,
			transaction.SenderID,
			transaction.ReceiverID,
			transaction.Amount.Cents(),
			transaction.CommissionFee.Cents(),
			string(transaction.Status),
			transaction.IdempotencyKey,
			transaction.CreatedAt,
		)
	} else {
		row = r.pool.QueryRow(ctx, query,
			transaction.SenderID,
			transaction.ReceiverID,
			transaction.Amount.Cents(),
			transaction.CommissionFee.Cents(),
			string(transaction.Status),
			transaction.IdempotencyKey,
			transaction.CreatedAt,
		)
	}

	var id int64
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, transaction.IdempotencyKey)
		}
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	return id, nil
}

// GetByID retrieves a ledger entry by its unique identifier.
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `
		SELECT id, sender_id, receiver_id, amount, commission_fee,
		       status, COALESCE(idempotency_key, ''), created_at
		FROM transactions
		WHERE id = $1
	`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id)
	} else {
		row = r.pool.QueryRow(ctx, query, id)
	}

	transaction, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return transaction, nil
}

// GetByIdempotencyKey retrieves a ledger entry by its idempotency key.
// Returns nil if no entry carries the given key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Transaction, error) {
	query := `
		SELECT id, sender_id, receiver_id, amount, commission_fee,
		       status, COALESCE(idempotency_key, ''), created_at
		FROM transactions
		WHERE idempotency_key = $1
	`

	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, idempotencyKey)
	} else {
		row = r.pool.QueryRow(ctx, query, idempotencyKey)
	}

	transaction, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No transaction found with this idempotency key
		}
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return transaction, nil
}

// Remove deletes a ledger entry. Administrative operation, never part of the
// transfer hot path.
func (r *TransactionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM transactions WHERE id = $1`

	var err error
	var rowsAffected int64

	if tx := getTx(ctx); tx != nil {
		result, execErr := tx.Exec(ctx, query, id)
		err = execErr
		rowsAffected = result.RowsAffected()
	} else {
		result, execErr := r.pool.Exec(ctx, query, id)
		err = execErr
		rowsAffected = result.RowsAffected()
	}

	if err != nil {
		return fmt.Errorf("failed to remove transaction: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// scanTransaction reads one ledger row, converting stored minor units into
// Money value objects.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var transaction domain.Transaction
	var amountCents, commissionCents int64
	var status string

	err := row.Scan(
		&transaction.ID,
		&transaction.SenderID,
		&transaction.ReceiverID,
		&amountCents,
		&commissionCents,
		&status,
		&transaction.IdempotencyKey,
		&transaction.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := money.FromCents(amountCents)
	if err != nil {
		return nil, fmt.Errorf("stored amount for transaction %d is invalid: %w", transaction.ID, err)
	}
	commission, err := money.FromCents(commissionCents)
	if err != nil {
		return nil, fmt.Errorf("stored commission for transaction %d is invalid: %w", transaction.ID, err)
	}

	transaction.Amount = amount
	transaction.CommissionFee = commission
	transaction.Status = domain.TransactionStatus(status)

	return &transaction, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
