package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
)

// DefaultExchange is the topic exchange alerts are published to.
const DefaultExchange = "ledger.alerts"

// Alert is the message body published for a high or critical audit event.
// Encrypted request metadata is left out of the payload.
type Alert struct {
	EventID      string          `json:"eventID"`
	Timestamp    time.Time       `json:"timestamp"`
	Kind         string          `json:"kind"`
	Severity     string          `json:"severity"`
	ActorID      *string         `json:"actorID,omitempty"`
	TenantID     *string         `json:"tenantID,omitempty"`
	Action       string          `json:"action"`
	ResourceKind string          `json:"resourceKind"`
	ResourceID   string          `json:"resourceID"`
	Details      json.RawMessage `json:"details,omitempty"`
	Checksum     string          `json:"checksum"`
}

// AlertFromEvent copies the publishable fields of event.
func AlertFromEvent(event domain.AuditEvent) Alert {
	return Alert{
		EventID:      event.EventID,
		Timestamp:    event.Timestamp,
		Kind:         string(event.Kind),
		Severity:     event.Severity.String(),
		ActorID:      event.ActorID,
		TenantID:     event.TenantID,
		Action:       event.Action,
		ResourceKind: event.ResourceKind,
		ResourceID:   event.ResourceID,
		Details:      event.Details,
		Checksum:     event.Checksum,
	}
}

// RoutingKey is audit.<severity>.<kind>, so consumers can bind on audit.critical.#.
func RoutingKey(event domain.AuditEvent) string {
	return fmt.Sprintf("audit.%s.%s", event.Severity, event.Kind)
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes alerts to a durable topic exchange.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	declared bool
}

var _ portssvc.AlertSink = (*AMQPSink)(nil)

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPSink dials the broker with a bounded timeout and opens a channel.
func NewAMQPSink(amqpURL, exchange string) (*AMQPSink, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return newAMQPSink(conn, ch, exchange), nil
}

func newAMQPSink(conn *amqp.Connection, ch channel, exchange string) *AMQPSink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}
}

// Deliver publishes one alert. A failed publish reopens the channel once and retries.
func (s *AMQPSink) Deliver(ctx context.Context, event domain.AuditEvent) error {
	body, err := json.Marshal(AlertFromEvent(event))
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", event.EventID, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.Timestamp,
		Body:         body,
	}
	key := RoutingKey(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.publish(ctx, key, msg)
	if err == nil {
		return nil
	}
	middleware.GetLoggerFromCtx(ctx).Warn("Alert publish failed; reopening channel",
		slog.String("exchange", s.exchange),
		slog.String("routing_key", key),
		slog.String("error", err.Error()))
	if reopenErr := s.reopen(); reopenErr != nil {
		return fmt.Errorf("publish alert %s: %w", event.EventID, multierr.Combine(err, reopenErr))
	}
	if err := s.publish(ctx, key, msg); err != nil {
		return fmt.Errorf("publish alert %s: %w", event.EventID, err)
	}
	return nil
}

func (s *AMQPSink) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if !s.declared {
		if err := s.ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		s.declared = true
	}
	return s.ch.PublishWithContext(ctx, s.exchange, key, false, false, msg)
}

func (s *AMQPSink) reopen() error {
	if s.conn == nil {
		return errors.New("no amqp connection to reopen a channel on")
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return err
	}
	_ = s.ch.Close()
	s.ch = ch
	s.declared = false
	return nil
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.ch != nil {
		err = multierr.Append(err, s.ch.Close())
	}
	if s.conn != nil {
		err = multierr.Append(err, s.conn.Close())
	}
	return err
}
