package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/walletd/transfer-service/internal/money"
)

const (
	// DefaultCommissionPercent is the share of every transfer retained by the
	// system, as a percentage of the transfer amount.
	DefaultCommissionPercent = 1.5

	// DefaultMaxAmountCents bounds a single transfer (999999.99 in major units).
	DefaultMaxAmountCents = 99999999
)

// TransferConfig carries the tunable limits of the transfer engine.
// Zero values fall back to the defaults above.
type TransferConfig struct {
	MaxAmount         money.Money // Upper bound for a single transfer amount
	CommissionPercent float64     // Commission rate as a percentage
}

// TransferService handles the business logic for money transfers.
// It coordinates between repositories and ensures transactional consistency.
type TransferService struct {
	accounts          AccountRepository
	transactions      TransactionRepository
	txManager         TransactionManager
	publisher         NotificationPublisher
	maxAmount         money.Money
	commissionPercent float64
}

// NewTransferService creates a new instance of TransferService.
// Pass nil for publisher if no notifications should be emitted.
func NewTransferService(
	accounts AccountRepository,
	transactions TransactionRepository,
	txManager TransactionManager,
	publisher NotificationPublisher,
	cfg TransferConfig,
) *TransferService {
	maxAmount := cfg.MaxAmount
	if maxAmount.IsZero() {
		maxAmount, _ = money.FromCents(DefaultMaxAmountCents)
	}
	commissionPercent := cfg.CommissionPercent
	if commissionPercent == 0 {
		commissionPercent = DefaultCommissionPercent
	}

	return &TransferService{
		accounts:          accounts,
		transactions:      transactions,
		txManager:         txManager,
		publisher:         publisher,
		maxAmount:         maxAmount,
		commissionPercent: commissionPercent,
	}
}

// Transfer moves money from sender to receiver, deducting the commission from
// the sender on top of the transfer amount.
//
// The transfer is executed atomically within a database transaction:
//  1. Validate the request (positive bounded amount, distinct accounts)
//  2. Check for an existing transfer with the same idempotency key
//  3. Lock both accounts in ascending id order
//  4. Validate the sender covers amount plus commission
//  5. Debit sender, credit receiver
//  6. Append the completed ledger entry
//  7. Commit
//
// A transfer has exactly two terminal outcomes: committed (ledger entry
// exists, balances updated) or aborted (no entry, no balance change). After a
// successful commit the notification is published on a separate goroutine;
// its failure is logged and never rolls back the transfer.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	// Retried requests return the original outcome without executing again.
	// Concurrent retries that pass this check race to the unique constraint
	// on the idempotency key inside the transaction.
	if req.IdempotencyKey != "" {
		existing, err := s.transactions.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			sender, err := s.accounts.GetByID(ctx, req.SenderID)
			if err != nil {
				return nil, fmt.Errorf("failed to get sender account: %w", err)
			}
			return &TransferResult{Transaction: existing, SenderNewBalance: sender.Balance}, nil
		}
	}

	var result *TransferResult
	var event *MoneyTransferredEvent

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		// LockForUpdate acquires row locks in ascending id order regardless of
		// sender/receiver roles, so two opposite-direction transfers between
		// the same pair of accounts cannot deadlock.
		accounts, err := s.accounts.LockForUpdate(txCtx, []int64{req.SenderID, req.ReceiverID})
		if err != nil {
			var missing *AccountsNotFoundError
			if errors.As(err, &missing) {
				// Sender is reported first when both accounts are missing.
				if missing.Contains(req.SenderID) {
					return &AccountNotFoundError{ID: req.SenderID}
				}
				return &AccountNotFoundError{ID: req.ReceiverID}
			}
			return fmt.Errorf("failed to lock accounts: %w", err)
		}

		sender := accounts[req.SenderID]
		receiver := accounts[req.ReceiverID]

		commission, err := req.Amount.Percentage(s.commissionPercent)
		if err != nil {
			return fmt.Errorf("failed to compute commission: %w", err)
		}
		totalDebit := req.Amount.Add(commission)

		if sender.Balance.LessThan(totalDebit) {
			return &InsufficientBalanceError{
				AccountID: sender.ID,
				Required:  totalDebit,
				Available: sender.Balance,
			}
		}

		newSenderBalance, err := sender.Balance.Subtract(totalDebit)
		if err != nil {
			// Unreachable after the balance check above; a negative result
			// here is a logic defect, not a user error.
			return fmt.Errorf("failed to debit sender account: %w", err)
		}
		newReceiverBalance := receiver.Balance.Add(req.Amount)

		now := time.Now()
		sender.Balance = newSenderBalance
		sender.UpdatedAt = now
		receiver.Balance = newReceiverBalance
		receiver.UpdatedAt = now

		if err := s.accounts.Save(txCtx, sender); err != nil {
			return fmt.Errorf("failed to save sender account: %w", err)
		}
		if err := s.accounts.Save(txCtx, receiver); err != nil {
			return fmt.Errorf("failed to save receiver account: %w", err)
		}

		transaction := &Transaction{
			SenderID:       req.SenderID,
			ReceiverID:     req.ReceiverID,
			Amount:         req.Amount,
			CommissionFee:  commission,
			Status:         TransactionStatusCompleted,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
		}
		id, err := s.transactions.Create(txCtx, transaction)
		if err != nil {
			return fmt.Errorf("failed to create transaction record: %w", err)
		}
		transaction.ID = id

		result = &TransferResult{
			Transaction:      transaction,
			SenderNewBalance: newSenderBalance,
		}
		event = &MoneyTransferredEvent{
			EventID:            uuid.New().String(),
			EventType:          EventTypeMoneyTransferred,
			TransactionID:      id,
			SenderID:           req.SenderID,
			ReceiverID:         req.ReceiverID,
			Amount:             req.Amount.Decimal(),
			CommissionFee:      commission.Decimal(),
			SenderNewBalance:   newSenderBalance.Decimal(),
			ReceiverNewBalance: newReceiverBalance.Decimal(),
			Timestamp:          now.UTC().Format(time.RFC3339),
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	// Publish after (and only after) a successful commit. Delivery is
	// fire-and-forget relative to the transfer's success: a transient broker
	// failure must not make the already-committed transfer appear to fail.
	if s.publisher != nil {
		go func(ev *MoneyTransferredEvent) {
			if err := s.publisher.PublishMoneyTransferred(context.Background(), ev); err != nil {
				log.Printf("warning: failed to publish transfer notification for transaction %d: %v",
					ev.TransactionID, err)
			}
		}(event)
	}

	return result, nil
}

// GetTransaction retrieves a ledger entry by id.
func (s *TransferService) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	transaction, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// RemoveTransaction deletes a ledger entry. Administrative operation, outside
// the transfer hot path.
func (s *TransferService) RemoveTransaction(ctx context.Context, id int64) error {
	return s.transactions.Remove(ctx, id)
}

// GetAccount retrieves the current state of an account.
func (s *TransferService) GetAccount(ctx context.Context, id int64) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// validateRequest validates the transfer request parameters.
func (s *TransferService) validateRequest(req TransferRequest) error {
	if req.SenderID == req.ReceiverID {
		return ErrSameAccount
	}
	if req.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if req.Amount.GreaterThan(s.maxAmount) {
		return fmt.Errorf("%w: amount %s exceeds maximum %s", ErrInvalidAmount, req.Amount, s.maxAmount)
	}
	return nil
}
