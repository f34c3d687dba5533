package domain

import (
	"errors"
	"fmt"

	"github.com/walletd/transfer-service/internal/money"
)

var (
	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInsufficientBalance is returned when the sender cannot cover the
	// transfer amount plus commission.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned when the transfer amount is not strictly
	// positive or exceeds the configured maximum.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSameAccount is returned when sender and receiver are the same account.
	ErrSameAccount = errors.New("sender and receiver must be different accounts")

	// ErrTransactionNotFound is returned when a ledger entry doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// AccountNotFoundError reports which account id was missing.
// It matches ErrAccountNotFound under errors.Is.
type AccountNotFoundError struct {
	ID int64
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %d not found", e.ID)
}

func (e *AccountNotFoundError) Is(target error) bool {
	return target == ErrAccountNotFound
}

// AccountsNotFoundError reports every missing id from a bulk lock, in
// ascending order. It matches ErrAccountNotFound under errors.Is.
type AccountsNotFoundError struct {
	IDs []int64
}

func (e *AccountsNotFoundError) Error() string {
	return fmt.Sprintf("accounts not found: %v", e.IDs)
}

func (e *AccountsNotFoundError) Is(target error) bool {
	return target == ErrAccountNotFound
}

// Contains reports whether the given id is among the missing ids.
func (e *AccountsNotFoundError) Contains(id int64) bool {
	for _, missing := range e.IDs {
		if missing == id {
			return true
		}
	}
	return false
}

// InsufficientBalanceError carries the required and available amounts so the
// boundary can report both. It matches ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	AccountID int64
	Required  money.Money
	Available money.Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %d has insufficient balance: required %s, available %s",
		e.AccountID, e.Required, e.Available)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
