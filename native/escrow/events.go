package escrow

import (
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"ecomchain/core/types"
	"ecomchain/crypto"
)

const (
	EventTypeEscrowCreated     = "escrow.created"
	EventTypeEscrowFunded      = "escrow.funded"
	EventTypeEscrowReleased    = "escrow.released"
	EventTypeEscrowRefunded    = "escrow.refunded"
	EventTypeEscrowClosed      = "escrow.closed"
	EventTypeEscrowForceClosed = "escrow.force_closed"
	EventTypeVaultViolation    = "escrow.vault_violation"
)

// CreatedEvent is emitted when an escrow is opened against a payment.
type CreatedEvent struct {
	Ref    [32]byte
	Escrow *Escrow
}

func (CreatedEvent) EventType() string { return EventTypeEscrowCreated }

func (e CreatedEvent) Event() *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e.Ref, e.Escrow) }

// FundedEvent is emitted when the vault receives the escrow amount.
type FundedEvent struct {
	Ref    [32]byte
	Escrow *Escrow
}

func (FundedEvent) EventType() string { return EventTypeEscrowFunded }

func (e FundedEvent) Event() *types.Event { return newEscrowEvent(EventTypeEscrowFunded, e.Ref, e.Escrow) }

// ReleasedEvent is emitted when the seller withdraws the vault.
type ReleasedEvent struct {
	Ref    [32]byte
	Escrow *Escrow
}

func (ReleasedEvent) EventType() string { return EventTypeEscrowReleased }

func (e ReleasedEvent) Event() *types.Event { return newEscrowEvent(EventTypeEscrowReleased, e.Ref, e.Escrow) }

// RefundedEvent is emitted when locked funds return to the funder.
type RefundedEvent struct {
	Ref    [32]byte
	Escrow *Escrow
}

func (RefundedEvent) EventType() string { return EventTypeEscrowRefunded }

func (e RefundedEvent) Event() *types.Event { return newEscrowEvent(EventTypeEscrowRefunded, e.Ref, e.Escrow) }

// ClosedEvent is emitted when the escrow record and its vault are destroyed.
type ClosedEvent struct {
	Ref    [32]byte
	Escrow *Escrow
	Forced bool
}

func (e ClosedEvent) EventType() string {
	if e.Forced {
		return EventTypeEscrowForceClosed
	}
	return EventTypeEscrowClosed
}

func (e ClosedEvent) Event() *types.Event { return newEscrowEvent(e.EventType(), e.Ref, e.Escrow) }

// VaultViolationEvent reports a vault whose balance disagrees with the escrow
// status. It is raised by audits and never by a successful transition.
type VaultViolationEvent struct {
	Ref      [32]byte
	Escrow   *Escrow
	Expected uint64
	Actual   uint64
}

func (VaultViolationEvent) EventType() string { return EventTypeVaultViolation }

func (e VaultViolationEvent) Event() *types.Event {
	evt := newEscrowEvent(EventTypeVaultViolation, e.Ref, e.Escrow)
	evt.Attributes["expected"] = strconv.FormatUint(e.Expected, 10)
	evt.Attributes["actual"] = strconv.FormatUint(e.Actual, 10)
	return evt
}

func newEscrowEvent(eventType string, ref [32]byte, e *Escrow) *types.Event {
	attrs := map[string]string{"ref": "0x" + hex.EncodeToString(ref[:])}
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["owner"] = crypto.FormatAddress(e.Owner)
	attrs["buyer"] = crypto.FormatAddress(e.Buyer)
	attrs["seller"] = crypto.FormatAddress(e.Seller)
	attrs["vault"] = crypto.FormatAddress(e.Vault)
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["status"] = e.Status.String()
	attrs["releaseFund"] = strconv.FormatBool(e.ReleaseFund)
	attrs["paymentRef"] = "0x" + hex.EncodeToString(e.PaymentRef[:])
	attrs["paymentId"] = uuid.UUID(e.PaymentID).String()
	if e.RefundAfter > 0 {
		attrs["refundAfter"] = strconv.FormatInt(e.RefundAfter, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
