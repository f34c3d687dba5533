package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/walletd/transfer-service/internal/domain"
	"github.com/walletd/transfer-service/internal/money"
)

// TransferService is the part of the domain service the HTTP layer depends on.
type TransferService interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	RemoveTransaction(ctx context.Context, id int64) error
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

// Server exposes the transfer service over HTTP.
type Server struct {
	service TransferService
}

// NewServer creates a new Server.
func NewServer(service TransferService) *Server {
	return &Server{
		service: service,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.With(requireAccount).Post("/transfers", s.handleTransfer)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Delete("/transactions/{id}", s.handleRemoveTransaction)
		r.Get("/accounts/{id}", s.handleGetAccount)
	})

	return r
}

// handleTransfer executes a money transfer from the authenticated account.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := accountIDFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing authenticated account")
		return
	}

	idempotencyKey := r.Header.Get(headerIdempotencyKey)
	if idempotencyKey == "" {
		sendError(w, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", headerIdempotencyKey+" header is required")
		return
	}

	var body transferRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to parse request body")
		return
	}
	if body.ReceiverID == 0 {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "receiver_id is required")
		return
	}
	if body.Amount <= 0 {
		sendError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", "amount must be positive")
		return
	}

	amount, err := money.FromDecimal(body.Amount)
	if err != nil {
		sendError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error())
		return
	}

	result, err := s.service.Transfer(r.Context(), domain.TransferRequest{
		SenderID:       senderID,
		ReceiverID:     body.ReceiverID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, transferResponse{
		Message:         "Transfer completed successfully",
		Transaction:     newTransactionPayload(result.Transaction),
		NewBalance:      result.SenderNewBalance.Decimal(),
		NewBalanceCents: result.SenderNewBalance.Cents(),
	})
}

// handleGetTransaction retrieves one ledger entry.
func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	transaction, err := s.service.GetTransaction(r.Context(), id)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, newTransactionPayload(transaction))
}

// handleRemoveTransaction deletes one ledger entry. Administrative operation.
func (s *Server) handleRemoveTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := s.service.RemoveTransaction(r.Context(), id); err != nil {
		sendDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetAccount reports an account's current balance.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	account, err := s.service.GetAccount(r.Context(), id)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, accountResponse{
		ID:           account.ID,
		Balance:      account.Balance.Decimal(),
		BalanceCents: account.Balance.Cents(),
	})
}

// parseIDParam reads the {id} route parameter. Writes the error response
// itself and returns false when the parameter is not a positive integer.
func parseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// sendDomainError maps domain errors to HTTP status codes.
// Anything outside the domain taxonomy is treated as a transient store
// failure: the atomic scope guarantees nothing partial was applied, so the
// caller may safely retry.
func sendDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientBalanceError

	switch {
	case errors.As(err, &insufficient):
		required := insufficient.Required.Cents()
		available := insufficient.Available.Cents()
		sendJSON(w, http.StatusUnprocessableEntity, errorResponse{
			ErrorID:        uuid.New().String(),
			Code:           "INSUFFICIENT_BALANCE",
			Message:        err.Error(),
			RequiredCents:  &required,
			AvailableCents: &available,
		})
	case errors.Is(err, domain.ErrAccountNotFound):
		sendError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrTransactionNotFound):
		sendError(w, http.StatusNotFound, "TRANSACTION_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		sendError(w, http.StatusUnprocessableEntity, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrSameAccount):
		sendError(w, http.StatusUnprocessableEntity, "SAME_ACCOUNT", err.Error())
	default:
		log.Printf("transfer request failed with non-domain error: %v", err)
		sendError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "temporary failure, please retry")
	}
}

// sendError sends an error response in the expected format.
func sendError(w http.ResponseWriter, statusCode int, code, message string) {
	sendJSON(w, statusCode, errorResponse{
		ErrorID: uuid.New().String(),
		Code:    code,
		Message: message,
	})
}

// sendJSON writes a JSON response with the given status code.
func sendJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
