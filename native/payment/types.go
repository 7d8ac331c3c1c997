package payment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Method tags how a payment is funded. Only MethodNative is custodied by the
// escrow engine.
type Method uint8

const (
	MethodNative Method = iota
	MethodToken
)

// Status is the settlement state of a payment.
type Status uint8

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
)

// Payment is a ledger entry recording an amount owed and its settlement.
type Payment struct {
	ID          [16]byte
	Owner       [20]byte
	Product     [20]byte
	Amount      uint64
	Method      Method
	Status      Status
	TxSignature string
	Deposit     uint64
	CreatedAt   int64
	UpdatedAt   int64
}

// Clone returns a copy of the payment.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// IDString renders the identifier in canonical UUID form.
func (p *Payment) IDString() string {
	if p == nil {
		return ""
	}
	return uuid.UUID(p.ID).String()
}

// Settled reports whether the payment left Pending.
func (p *Payment) Settled() bool {
	return p != nil && p.Status != StatusPending
}

func (m Method) Valid() bool { return m == MethodNative || m == MethodToken }

func (m Method) String() string {
	switch m {
	case MethodNative:
		return "native"
	case MethodToken:
		return "token"
	default:
		return "unknown"
	}
}

// ParseMethod accepts the method names used over RPC. An empty hint selects
// native custody.
func ParseMethod(hint string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "native", "sol":
		return MethodNative, nil
	case "token", "spl":
		return MethodToken, nil
	default:
		return 0, fmt.Errorf("payment: unknown method %q", hint)
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
