// rocketshoes-cartservice/notify/publisher.go

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/norun9/rocketshoes-cartservice/cart"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	ExchangeName = "storefront.notifications"
	ExchangeType = "topic"

	publishTimeout = 5 * time.Second
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// SetupConn dials RabbitMQ and declares the notification exchange.
func SetupConn(url string, log logrus.FieldLogger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	// Simple retry logic for container startup
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warnf("Failed to connect to RabbitMQ (attempt %d): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "could not open channel")
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, errors.Wrap(err, "could not declare exchange")
	}

	return conn, ch, nil
}

// Publisher sends notifications to the RabbitMQ exchange. Publish failures
// are logged and dropped.
type Publisher struct {
	ch  Channel
	log logrus.FieldLogger
}

// NewPublisher creates a publisher on ch.
func NewPublisher(ch Channel, log logrus.FieldLogger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

// RoutingKey is <topic>.<level>, e.g. cart.error.
func RoutingKey(n cart.Notification) string {
	return fmt.Sprintf("%s.%s", n.Topic, n.Level)
}

// Notify publishes n as JSON under RoutingKey(n). Publish failures are
// logged and dropped.
func (p *Publisher) Notify(ctx context.Context, n cart.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		p.log.WithError(err).Error("notify: could not marshal notification")
		return
	}

	// Publishing is not tied to request cancellation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx,
		ExchangeName,  // exchange
		RoutingKey(n), // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		p.log.WithError(err).WithField("routing_key", RoutingKey(n)).Warn("notify: publish failed")
	}
}
