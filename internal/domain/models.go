package domain

import (
	"time"

	"github.com/walletd/transfer-service/internal/money"
)

// Account represents a wallet account in the system.
// This is the core domain entity that holds the account balance.
// The balance is mutated only by committed transfers, under the account's
// row lock inside a transfer's atomic scope.
type Account struct {
	ID        int64       // Unique identifier of the account
	Balance   money.Money // Current account balance in minor units
	CreatedAt time.Time   // Timestamp when the account was created
	UpdatedAt time.Time   // Timestamp of the last account update
}

// Transaction is an immutable ledger entry created exactly once per committed
// transfer. A failing transfer leaves no entry at all.
type Transaction struct {
	ID             int64             // Assigned by the ledger on insert
	SenderID       int64             // Account ID of the sender (debited)
	ReceiverID     int64             // Account ID of the receiver (credited)
	Amount         money.Money       // Amount transferred to the receiver
	CommissionFee  money.Money       // Commission retained by the system
	Status         TransactionStatus // Current status of the transaction
	IdempotencyKey string            // Client-supplied deduplication token
	CreatedAt      time.Time         // Timestamp when the transaction was recorded
}

// TransactionStatus represents the possible states of a ledger entry.
type TransactionStatus string

const (
	// TransactionStatusPending indicates a transaction that has not settled.
	TransactionStatusPending TransactionStatus = "pending"

	// TransactionStatusCompleted indicates a committed transfer. The transfer
	// flow only ever records completed transactions.
	TransactionStatusCompleted TransactionStatus = "completed"

	// TransactionStatusFailed indicates a transaction that did not settle.
	TransactionStatusFailed TransactionStatus = "failed"
)

// TransferRequest is the input to a transfer. It is transient and never
// persisted as-is.
type TransferRequest struct {
	SenderID       int64       // Debited account, from the caller's authenticated identity
	ReceiverID     int64       // Credited account, must differ from SenderID
	Amount         money.Money // Strictly positive, bounded by the configured maximum
	IdempotencyKey string      // Dedups network retries of the same logical request
}

// TransferResult is the outcome of a committed transfer.
type TransferResult struct {
	Transaction      *Transaction // The ledger entry created for this transfer
	SenderNewBalance money.Money  // Sender balance after debit of amount plus commission
}

// MoneyTransferredEvent is the notification payload delivered to the private
// topic of each involved account after a transfer commits. All monetary
// fields are decimal (major units); delivery is at-least-once and the
// transfer's correctness never depends on it.
type MoneyTransferredEvent struct {
	EventID            string  `json:"event_id"`
	EventType          string  `json:"event_type"`
	TransactionID      int64   `json:"transaction_id"`
	SenderID           int64   `json:"sender_id"`
	ReceiverID         int64   `json:"receiver_id"`
	Amount             float64 `json:"amount"`
	CommissionFee      float64 `json:"commission_fee"`
	SenderNewBalance   float64 `json:"sender_new_balance"`
	ReceiverNewBalance float64 `json:"receiver_new_balance"`
	Timestamp          string  `json:"timestamp"` // ISO-8601
}

// EventTypeMoneyTransferred is the event type carried by MoneyTransferredEvent.
const EventTypeMoneyTransferred = "money.transferred"
