package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/walletd/transfer-service/internal/domain"
	"github.com/walletd/transfer-service/internal/money"
)

// AccountRepository implements domain.AccountRepository using PostgreSQL.
// Balances are stored as integer minor units (cents).
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool: pool,
	}
}

// GetByID retrieves an account by its unique identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `
		SELECT id, balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	// Use transaction if available, otherwise use pool
	var row pgx.Row
	if tx := getTx(ctx); tx != nil {
		row = tx.QueryRow(ctx, query, id)
	} else {
		row = r.pool.QueryRow(ctx, query, id)
	}

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.AccountNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// LockForUpdate acquires an exclusive row lock on every listed account using
// SELECT ... FOR UPDATE, one id at a time in ascending order. Taking the locks
// in a single canonical order across all callers rules out circular waits
// between concurrent transfers over the same accounts.
// This method MUST be called within a transaction context; the locks are held
// until that transaction commits or rolls back.
func (r *AccountRepository) LockForUpdate(ctx context.Context, ids []int64) (map[int64]*domain.Account, error) {
	query := `
		SELECT id, balance, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	accounts := make(map[int64]*domain.Account, len(sorted))
	var missing []int64

	for _, id := range sorted {
		var row pgx.Row
		if tx := getTx(ctx); tx != nil {
			row = tx.QueryRow(ctx, query, id)
		} else {
			row = r.pool.QueryRow(ctx, query, id)
		}

		account, err := scanAccount(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				missing = append(missing, id)
				continue
			}
			return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
		}
		accounts[id] = account
	}

	if len(missing) > 0 {
		return nil, &domain.AccountsNotFoundError{IDs: missing}
	}

	return accounts, nil
}

// Save persists the account's current balance. Only meaningful while the
// calling transaction holds the account's row lock.
func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2,
		    updated_at = $3
		WHERE id = $1
	`

	var err error
	var rowsAffected int64

	// Use transaction if available, otherwise use pool
	if tx := getTx(ctx); tx != nil {
		result, execErr := tx.Exec(ctx, query,
			account.ID,
			account.Balance.Cents(),
			account.UpdatedAt,
		)
		err = execErr
		rowsAffected = result.RowsAffected()
	} else {
		result, execErr := r.pool.Exec(ctx, query,
			account.ID,
			account.Balance.Cents(),
			account.UpdatedAt,
		)
		err = execErr
		rowsAffected = result.RowsAffected()
	}

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	if rowsAffected == 0 {
		return &domain.AccountNotFoundError{ID: account.ID}
	}

	return nil
}

// scanAccount reads one account row, converting the stored minor units into
// the Money value object.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var balanceCents int64

	err := row.Scan(
		&account.ID,
		&balanceCents,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balance, err := money.FromCents(balanceCents)
	if err != nil {
		return nil, fmt.Errorf("stored balance for account %d is invalid: %w", account.ID, err)
	}
	account.Balance = balance

	return &account, nil
}
