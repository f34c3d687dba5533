package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/walletd/transfer-service/internal/api"
	"github.com/walletd/transfer-service/internal/db"
	"github.com/walletd/transfer-service/internal/domain"
	"github.com/walletd/transfer-service/internal/events"
	"github.com/walletd/transfer-service/internal/money"
)

// TestTransferIntegration is a full end-to-end integration test.
// It spins up PostgreSQL and RabbitMQ containers, runs migrations,
// starts the HTTP server, executes a transfer, and verifies the event
// was published to RabbitMQ.
func TestTransferIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start PostgreSQL container
	postgresContainer, dbURL := startPostgresContainer(t, ctx)
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}()

	// Start RabbitMQ container
	rabbitContainer, rabbitURL := startRabbitMQContainer(t, ctx)
	defer func() {
		if err := rabbitContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}()

	// Initialize database pool
	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()

	// Run migrations
	runMigrations(t, ctx, pool)

	// Create test accounts: sender 1000.00, receiver 500.00
	senderID := createTestAccount(t, ctx, pool, 100000)
	receiverID := createTestAccount(t, ctx, pool, 50000)

	// Initialize RabbitMQ publisher
	exchange := "wallet.transfers"
	publisher, err := events.NewRabbitMQPublisher(rabbitURL, exchange)
	if err != nil {
		t.Fatalf("failed to create rabbitmq publisher: %v", err)
	}
	defer publisher.Close()

	// Create domain service and HTTP server
	accountRepo := db.NewAccountRepository(pool.Pool)
	transactionRepo := db.NewTransactionRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)
	transferService := domain.NewTransferService(
		accountRepo, transactionRepo, txManager, publisher, domain.TransferConfig{})
	server := httptest.NewServer(api.NewServer(transferService).Routes())
	defer server.Close()

	// Setup RabbitMQ consumer bound to the sender's routing key
	eventChan := make(chan map[string]interface{}, 2)
	stopConsumer := startEventConsumer(t, rabbitURL, exchange, events.AccountRoutingKey(senderID), eventChan)
	defer stopConsumer()

	// Give consumer a moment to start
	time.Sleep(500 * time.Millisecond)

	// Execute transfer over HTTP: 100.50, commission 1.5% -> 1.51
	idempotencyKey := uuid.New().String()
	transfer := func() map[string]interface{} {
		body := fmt.Sprintf(`{"receiver_id": %d, "amount": 100.50}`, receiverID)
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/transfers", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("failed to build request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Account-ID", fmt.Sprintf("%d", senderID))
		req.Header.Set("X-Idempotency-Key", idempotencyKey)

		httpResp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("transfer request failed: %v", err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", httpResp.StatusCode)
		}

		var resp map[string]interface{}
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode transfer response: %v", err)
		}
		return resp
	}

	resp := transfer()

	transaction, ok := resp["transaction"].(map[string]interface{})
	if !ok {
		t.Fatal("transaction is not an object")
	}
	transactionID := transaction["id"].(float64)
	if transactionID == 0 {
		t.Error("expected non-zero transaction id")
	}
	if transaction["commission_fee_cents"].(float64) != 151 {
		t.Errorf("expected commission 151 cents, got %v", transaction["commission_fee_cents"])
	}
	if transaction["status"] != "completed" {
		t.Errorf("expected status completed, got %v", transaction["status"])
	}
	// 100000 - 10050 - 151
	if resp["new_balance_cents"].(float64) != 89799 {
		t.Errorf("expected sender balance 89799 cents, got %v", resp["new_balance_cents"])
	}

	// Verify balances in the database
	assertBalance(t, ctx, pool, senderID, 89799)
	assertBalance(t, ctx, pool, receiverID, 60050)

	// Wait for the event to be published and consumed
	select {
	case event := <-eventChan:
		if event["event_type"] != "money.transferred" {
			t.Errorf("expected event_type 'money.transferred', got %v", event["event_type"])
		}
		if event["transaction_id"].(float64) != transactionID {
			t.Errorf("expected transaction_id %v, got %v", transactionID, event["transaction_id"])
		}
		if event["sender_id"].(float64) != float64(senderID) {
			t.Errorf("expected sender_id %d, got %v", senderID, event["sender_id"])
		}
		if event["receiver_id"].(float64) != float64(receiverID) {
			t.Errorf("expected receiver_id %d, got %v", receiverID, event["receiver_id"])
		}
		if event["amount"].(float64) != 100.50 {
			t.Errorf("expected amount 100.50, got %v", event["amount"])
		}
		if event["commission_fee"].(float64) != 1.51 {
			t.Errorf("expected commission_fee 1.51, got %v", event["commission_fee"])
		}
		if event["sender_new_balance"].(float64) != 897.99 {
			t.Errorf("expected sender_new_balance 897.99, got %v", event["sender_new_balance"])
		}
		if event["receiver_new_balance"].(float64) != 600.50 {
			t.Errorf("expected receiver_new_balance 600.50, got %v", event["receiver_new_balance"])
		}
		if event["event_id"] == "" {
			t.Error("expected non-empty event_id")
		}
		if _, err := time.Parse(time.RFC3339, event["timestamp"].(string)); err != nil {
			t.Errorf("timestamp is not RFC3339: %v", event["timestamp"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event to be published")
	}

	// Idempotency: repeat with the same key, balances must not change
	resp2 := transfer()
	transaction2 := resp2["transaction"].(map[string]interface{})
	if transaction2["id"].(float64) != transactionID {
		t.Errorf("idempotent call returned different transaction id: %v vs %v",
			transactionID, transaction2["id"])
	}
	assertBalance(t, ctx, pool, senderID, 89799)
	assertBalance(t, ctx, pool, receiverID, 60050)
}

// startPostgresContainer starts a PostgreSQL testcontainer and returns the connection URL.
func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())
	return container, dbURL
}

// startRabbitMQContainer starts a RabbitMQ testcontainer and returns the AMQP URL.
func startRabbitMQContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForLog("Server startup complete"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start rabbitmq container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get rabbitmq host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatalf("failed to get rabbitmq port: %v", err)
	}

	rabbitURL := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
	return container, rabbitURL
}

// runMigrations runs the database migrations.
func runMigrations(t *testing.T, ctx context.Context, pool *db.Pool) {
	// Run migration SQL directly (same as migration files)
	migrations := []string{
		// 001_create_accounts_table.up.sql
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			balance BIGINT NOT NULL CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		// 002_create_transactions_table.up.sql
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			sender_id BIGINT NOT NULL REFERENCES accounts(id),
			receiver_id BIGINT NOT NULL REFERENCES accounts(id),
			amount BIGINT NOT NULL CHECK (amount >= 0),
			commission_fee BIGINT NOT NULL CHECK (commission_fee >= 0),
			status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
			idempotency_key VARCHAR(255) UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_sender_created ON transactions(sender_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_transactions_receiver_created ON transactions(receiver_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
		CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);`,
	}

	for i, migration := range migrations {
		if _, err := pool.Pool.Exec(ctx, migration); err != nil {
			t.Fatalf("failed to run migration %d: %v", i+1, err)
		}
	}
}

// createTestAccount inserts an account with the given balance and returns its id.
func createTestAccount(t *testing.T, ctx context.Context, pool *db.Pool, balanceCents int64) int64 {
	var id int64
	query := `INSERT INTO accounts (balance, created_at, updated_at) VALUES ($1, NOW(), NOW()) RETURNING id`
	if err := pool.Pool.QueryRow(ctx, query, balanceCents).Scan(&id); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return id
}

// assertBalance checks an account's balance directly in the database.
func assertBalance(t *testing.T, ctx context.Context, pool *db.Pool, accountID, wantCents int64) {
	t.Helper()
	var balance int64
	query := `SELECT balance FROM accounts WHERE id = $1`
	if err := pool.Pool.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		t.Fatalf("failed to read balance for account %d: %v", accountID, err)
	}

	got, err := money.FromCents(balance)
	if err != nil {
		t.Fatalf("stored balance is invalid: %v", err)
	}
	if got.Cents() != wantCents {
		t.Errorf("expected account %d balance %d cents, got %d", accountID, wantCents, got.Cents())
	}
}

// startEventConsumer starts a RabbitMQ consumer that listens for events and sends them to the channel.
func startEventConsumer(t *testing.T, rabbitURL, exchange, routingKey string, eventChan chan map[string]interface{}) func() {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		t.Fatalf("failed to connect to rabbitmq: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		t.Fatalf("failed to open channel: %v", err)
	}

	// Declare exchange
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to declare exchange: %v", err)
	}

	// Declare exclusive queue for testing
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to declare queue: %v", err)
	}

	// Bind queue to exchange with routing key
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to bind queue: %v", err)
	}

	// Start consuming
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		t.Fatalf("failed to start consuming: %v", err)
	}

	// Consume messages in background
	go func() {
		for msg := range msgs {
			var event map[string]interface{}
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				t.Logf("failed to unmarshal event: %v", err)
				continue
			}
			eventChan <- event
		}
	}()

	// Return cleanup function
	return func() {
		ch.Close()
		conn.Close()
	}
}
