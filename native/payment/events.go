package payment

import (
	"encoding/hex"
	"strconv"

	"ecomchain/core/types"
	"ecomchain/crypto"
)

const (
	EventTypePaymentCreated = "payment.created"
	EventTypePaymentSettled = "payment.settled"
	EventTypePaymentClosed  = "payment.closed"
)

// CreatedEvent is emitted when a payment enters Pending.
type CreatedEvent struct {
	Ref     [32]byte
	Payment *Payment
}

func (CreatedEvent) EventType() string { return EventTypePaymentCreated }

func (e CreatedEvent) Event() *types.Event { return newPaymentEvent(EventTypePaymentCreated, e.Ref, e.Payment) }

// SettledEvent is emitted when a payment leaves Pending.
type SettledEvent struct {
	Ref     [32]byte
	Payment *Payment
}

func (SettledEvent) EventType() string { return EventTypePaymentSettled }

func (e SettledEvent) Event() *types.Event { return newPaymentEvent(EventTypePaymentSettled, e.Ref, e.Payment) }

// ClosedEvent is emitted when a payment record is destroyed.
type ClosedEvent struct {
	Ref     [32]byte
	Payment *Payment
}

func (ClosedEvent) EventType() string { return EventTypePaymentClosed }

func (e ClosedEvent) Event() *types.Event { return newPaymentEvent(EventTypePaymentClosed, e.Ref, e.Payment) }

func newPaymentEvent(eventType string, ref [32]byte, p *Payment) *types.Event {
	attrs := map[string]string{"ref": "0x" + hex.EncodeToString(ref[:])}
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["paymentId"] = p.IDString()
	attrs["owner"] = crypto.FormatAddress(p.Owner)
	attrs["amount"] = strconv.FormatUint(p.Amount, 10)
	attrs["method"] = p.Method.String()
	attrs["status"] = p.Status.String()
	if p.TxSignature != "" {
		attrs["txSignature"] = p.TxSignature
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
