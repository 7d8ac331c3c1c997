package order

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status of the order record itself. Placement is the only status; shipment
// progress lives in Tracking.
type Status uint8

const (
	StatusPlaced Status = iota
)

func (s Status) String() string {
	if s == StatusPlaced {
		return "placed"
	}
	return "unknown"
}

// Tracking is the shipment stage. Values are ordered; an order may only move
// to a strictly later stage.
type Tracking uint8

const (
	TrackingNone Tracking = iota
	TrackingInTransit
	TrackingShipped
	TrackingOutForDelivery
	TrackingDelivered
)

func (t Tracking) Valid() bool { return t <= TrackingDelivered }

func (t Tracking) String() string {
	switch t {
	case TrackingNone:
		return "none"
	case TrackingInTransit:
		return "in_transit"
	case TrackingShipped:
		return "shipped"
	case TrackingOutForDelivery:
		return "out_for_delivery"
	case TrackingDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

// ParseTracking accepts the tracking names used by clients. Separators and
// case are ignored, so "InTransit", "in_transit" and "in-transit" all match.
func ParseTracking(value string) (Tracking, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	switch normalized {
	case "none", "booked":
		return TrackingNone, nil
	case "intransit":
		return TrackingInTransit, nil
	case "shipped":
		return TrackingShipped, nil
	case "outfordelivery":
		return TrackingOutForDelivery, nil
	case "delivered":
		return TrackingDelivered, nil
	default:
		return 0, fmt.Errorf("order: unknown tracking %q", value)
	}
}

// Order records the fulfilment of a payment.
type Order struct {
	ID         [16]byte
	Status     Status
	Tracking   Tracking
	PaymentRef [32]byte
	PaymentID  [16]byte
	Placer     [20]byte
	Deposit    uint64
	CreatedAt  int64
	UpdatedAt  int64
}

// Clone returns a copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func (o *Order) IDString() string {
	if o == nil {
		return ""
	}
	return uuid.UUID(o.ID).String()
}
