package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-payment/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/eventbus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBus captures messages handed to the bus
type recordingBus struct {
	messages []*eventbus.Message
	err      error
}

func (b *recordingBus) Publish(ctx context.Context, msg *eventbus.Message) error {
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func publishedPayment(status domain.PaymentStatus) *domain.Payment {
	at := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)
	return &domain.Payment{
		ID:              9,
		BookingID:       42,
		TransactionHash: "0xab00000000000000000000000000000000000000000000000000000000000001",
		ContractAddress: "0xc0ffee0000000000000000000000000000000001",
		Amount:          decimal.RequireFromString("1.5"),
		Currency:        "ETH",
		PayerAddress:    "0xabcdef0123456789abcdef0123456789abcdef01",
		Status:          status,
		BlockNumber:     436,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestBusEventPublisher_ConfirmedPayload(t *testing.T) {
	bus := &recordingBus{}
	at := time.Date(2030, 1, 10, 12, 0, 5, 0, time.UTC)
	p := NewBusEventPublisher(bus, &EventPublisherConfig{Now: func() time.Time { return at }})

	require.NoError(t, p.PublishPaymentConfirmed(context.Background(), publishedPayment(domain.PaymentStatusConfirmed)))
	require.Len(t, bus.messages, 1)

	msg := bus.messages[0]
	assert.Equal(t, domain.TopicPaymentConfirmed, msg.Topic)
	assert.Equal(t, "42", msg.Key)
	assert.Equal(t, "payment-service", msg.Headers[eventbus.HeaderSource])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, float64(42), body["bookingId"])
	assert.Equal(t, "0xab00000000000000000000000000000000000000000000000000000000000001", body["transactionId"])
	assert.Equal(t, "1.5", body["amount"])
	assert.Equal(t, float64(436), body["blockNumber"])
	assert.Equal(t, "2030-01-10T12:00:05Z", body["timestamp"])
}

func TestBusEventPublisher_FailedPayload(t *testing.T) {
	bus := &recordingBus{}
	p := NewBusEventPublisher(bus, &EventPublisherConfig{ServiceName: "payments"})

	payment := publishedPayment(domain.PaymentStatusFailed)
	code, msg := string(domain.CodeTransactionFailed), "transaction reverted"
	payment.ErrorCode, payment.ErrorMessage = &code, &msg

	require.NoError(t, p.PublishPaymentFailed(context.Background(), payment))
	require.Len(t, bus.messages, 1)
	assert.Equal(t, domain.TopicPaymentFailed, bus.messages[0].Topic)
	assert.Equal(t, "payments", bus.messages[0].Headers[eventbus.HeaderSource])

	var evt domain.PaymentFailedEvent
	require.NoError(t, json.Unmarshal(bus.messages[0].Value, &evt))
	assert.Equal(t, int64(42), evt.BookingID)
	assert.Equal(t, "transaction reverted", evt.Reason)
	assert.Equal(t, domain.CodeTransactionFailed, evt.Code)
}

func TestBusEventPublisher_WrapsBusError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewBusEventPublisher(&recordingBus{err: boom}, nil)

	err := p.PublishPaymentConfirmed(context.Background(), publishedPayment(domain.PaymentStatusConfirmed))
	assert.ErrorIs(t, err, boom)
}
