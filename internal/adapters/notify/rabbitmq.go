package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pet-care-tracker/internal/domain/reminders"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const RoutingKeyReminder = "appointment.reminder"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitNotifier publica cada recordatorio en un exchange topic para que un
// worker externo lo entregue como push/email.
type RabbitNotifier struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      publisher
	exchange string
	log      zerolog.Logger
}

func NewRabbitNotifier(uri, exchange string, log zerolog.Logger) (*RabbitNotifier, error) {
	log = log.With().Str("module", "notify").Logger()

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange %q: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("rabbitmq notifier ready")
	return &RabbitNotifier{
		conn:     conn,
		channel:  ch,
		pub:      ch,
		exchange: exchange,
		log:      log,
	}, nil
}

func (n *RabbitNotifier) Notify(ctx context.Context, msg reminders.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = n.pub.PublishWithContext(ctx, n.exchange, RoutingKeyReminder, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.AppointmentID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (n *RabbitNotifier) Close() error {
	if n == nil {
		return nil
	}
	if n.channel != nil {
		if err := n.channel.Close(); err != nil {
			n.log.Warn().Err(err).Msg("rabbitmq channel close")
		}
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
