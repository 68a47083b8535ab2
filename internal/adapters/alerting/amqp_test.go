package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable).Error(0)
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func criticalEvent() domain.AuditEvent {
	tenant := "t1"
	return domain.AuditEvent{
		EventID:      "evt-1",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:         domain.EventTransactionRetryExhausted,
		Severity:     domain.SeverityCritical,
		TenantID:     &tenant,
		Action:       "ledger.transfer",
		ResourceKind: "transaction",
		ResourceID:   "txn-1",
		Details:      json.RawMessage(`{"attempts":4}`),
		RequestIP:    "ciphertext",
		Checksum:     "abc",
	}
}

func TestAMQPSink_PublishesPersistentAlert(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", DefaultExchange, "topic", true).Return(nil).Once()
	ch.On("PublishWithContext", DefaultExchange, "audit.critical.TransactionRetryExhausted", mock.Anything).Return(nil).Twice()
	sink := newAMQPSink(nil, ch, "")

	require.NoError(t, sink.Deliver(context.Background(), criticalEvent()))
	require.NoError(t, sink.Deliver(context.Background(), criticalEvent()))
	ch.AssertExpectations(t)

	msg := ch.Calls[1].Arguments.Get(2).(amqp.Publishing)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)

	var alert Alert
	require.NoError(t, json.Unmarshal(msg.Body, &alert))
	assert.Equal(t, "critical", alert.Severity)
	assert.Equal(t, "t1", *alert.TenantID)
	assert.NotContains(t, string(msg.Body), "ciphertext")
}

func TestAMQPSink_FailureWithoutConnectionIsReported(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "alerts", "topic", true).Return(nil)
	ch.On("PublishWithContext", "alerts", mock.Anything, mock.Anything).Return(errors.New("channel closed"))
	sink := newAMQPSink(nil, ch, "alerts")

	err := sink.Deliver(context.Background(), criticalEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestFanoutSink_CombinesFailures(t *testing.T) {
	failing := sinkFunc(func(context.Context, domain.AuditEvent) error { return errors.New("down") })
	var delivered int
	counting := sinkFunc(func(context.Context, domain.AuditEvent) error { delivered++; return nil })

	err := FanoutSink{failing, counting, NewLogSink(nil)}.Deliver(context.Background(), criticalEvent())
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, delivered, "later sinks still receive the alert")
}

type sinkFunc func(context.Context, domain.AuditEvent) error

func (f sinkFunc) Deliver(ctx context.Context, event domain.AuditEvent) error {
	return f(ctx, event)
}
