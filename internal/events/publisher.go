package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/walletd/transfer-service/internal/domain"
)

// RabbitMQPublisher implements domain.NotificationPublisher on top of a
// RabbitMQ topic exchange. Each committed transfer is published once per
// involved account on the private routing key "account.<id>", so a consumer
// subscribed to a single account's topic sees every transfer that touches it.
//
// Delivery is at-least-once and strictly post-commit; the transfer engine
// never waits on, or fails because of, the broker.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string

	// amqp channels are not safe for concurrent publishes
	mu sync.Mutex
}

// NewRabbitMQPublisher connects to RabbitMQ and declares the topic exchange.
func NewRabbitMQPublisher(url, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Printf("RabbitMQ publisher initialized: exchange=%s", exchange)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

// PublishMoneyTransferred delivers the transfer notification to the private
// topic of each involved account.
func (p *RabbitMQPublisher) PublishMoneyTransferred(ctx context.Context, event *domain.MoneyTransferredEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKeys := []string{
		AccountRoutingKey(event.SenderID),
		AccountRoutingKey(event.ReceiverID),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range routingKeys {
		err := p.channel.PublishWithContext(ctx,
			p.exchange, // exchange
			key,        // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.EventID,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish to %s: %w", key, err)
		}
	}

	return nil
}

// Close closes the RabbitMQ connection and channel.
func (p *RabbitMQPublisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("error closing channel: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AccountRoutingKey returns the private topic routing key for one account.
func AccountRoutingKey(accountID int64) string {
	return fmt.Sprintf("account.%d", accountID)
}
