package api

import (
	"time"

	"github.com/walletd/transfer-service/internal/domain"
)

// transferRequestBody is the JSON body of POST /api/transfers.
// The sender is taken from the caller's authenticated identity, never from
// the body.
type transferRequestBody struct {
	ReceiverID int64   `json:"receiver_id"`
	Amount     float64 `json:"amount"`
}

// transactionPayload exposes a ledger entry with every monetary field in
// both decimal and minor-unit form.
type transactionPayload struct {
	ID                 int64   `json:"id"`
	SenderID           int64   `json:"sender_id"`
	ReceiverID         int64   `json:"receiver_id"`
	Amount             float64 `json:"amount"`
	AmountCents        int64   `json:"amount_cents"`
	CommissionFee      float64 `json:"commission_fee"`
	CommissionFeeCents int64   `json:"commission_fee_cents"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`
}

// transferResponse is the success body of POST /api/transfers.
type transferResponse struct {
	Message         string             `json:"message"`
	Transaction     transactionPayload `json:"transaction"`
	NewBalance      float64            `json:"new_balance"`
	NewBalanceCents int64              `json:"new_balance_cents"`
}

// accountResponse is the body of GET /api/accounts/{id}.
type accountResponse struct {
	ID           int64   `json:"id"`
	Balance      float64 `json:"balance"`
	BalanceCents int64   `json:"balance_cents"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	ErrorID string `json:"error_id"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Set only for INSUFFICIENT_BALANCE
	RequiredCents  *int64 `json:"required_cents,omitempty"`
	AvailableCents *int64 `json:"available_cents,omitempty"`
}

// newTransactionPayload converts a ledger entry to its API representation.
func newTransactionPayload(t *domain.Transaction) transactionPayload {
	return transactionPayload{
		ID:                 t.ID,
		SenderID:           t.SenderID,
		ReceiverID:         t.ReceiverID,
		Amount:             t.Amount.Decimal(),
		AmountCents:        t.Amount.Cents(),
		CommissionFee:      t.CommissionFee.Decimal(),
		CommissionFeeCents: t.CommissionFee.Cents(),
		Status:             string(t.Status),
		CreatedAt:          t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
