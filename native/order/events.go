package order

import (
	"encoding/hex"

	"ecomchain/core/types"
	"ecomchain/crypto"
)

const (
	EventTypeOrderPlaced   = "order.placed"
	EventTypeOrderTracking = "order.tracking"
	EventTypeOrderClosed   = "order.closed"
)

type PlacedEvent struct {
	Ref   [32]byte
	Order *Order
}

func (PlacedEvent) EventType() string { return EventTypeOrderPlaced }

func (e PlacedEvent) Event() *types.Event { return newOrderEvent(EventTypeOrderPlaced, e.Ref, e.Order) }

// TrackingEvent is emitted whenever the shipment stage advances.
type TrackingEvent struct {
	Ref      [32]byte
	Order    *Order
	Previous Tracking
}

func (TrackingEvent) EventType() string { return EventTypeOrderTracking }

func (e TrackingEvent) Event() *types.Event {
	evt := newOrderEvent(EventTypeOrderTracking, e.Ref, e.Order)
	evt.Attributes["previous"] = e.Previous.String()
	return evt
}

type ClosedEvent struct {
	Ref   [32]byte
	Order *Order
}

func (ClosedEvent) EventType() string { return EventTypeOrderClosed }

func (e ClosedEvent) Event() *types.Event { return newOrderEvent(EventTypeOrderClosed, e.Ref, e.Order) }

func newOrderEvent(eventType string, ref [32]byte, o *Order) *types.Event {
	attrs := map[string]string{"ref": "0x" + hex.EncodeToString(ref[:])}
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["orderId"] = o.IDString()
	attrs["placer"] = crypto.FormatAddress(o.Placer)
	attrs["paymentRef"] = "0x" + hex.EncodeToString(o.PaymentRef[:])
	attrs["status"] = o.Status.String()
	attrs["tracking"] = o.Tracking.String()
	return &types.Event{Type: eventType, Attributes: attrs}
}
