package escrow

import "fmt"

// Status represents the custody lifecycle of an escrow.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFundsReceived
	StatusSwapSuccess
	StatusRefunded
)

// Escrow binds a payment to a buyer and seller and tracks the funds held in
// its vault. Buyer, seller, amount and the payment binding never change after
// Open. PaymentRef names the owner's payment slot; PaymentID pins the payment
// that occupied it at Open, since the slot is reused once closed.
type Escrow struct {
	Owner       [20]byte
	Buyer       [20]byte
	Seller      [20]byte
	Amount      uint64
	Status      Status
	ReleaseFund bool
	PaymentRef  [32]byte
	PaymentID   [16]byte
	Vault       [20]byte
	Funder      [20]byte
	Deposit     uint64
	CreatedAt   int64
	UpdatedAt   int64
	FundedAt    int64
	RefundAfter int64
}

// Clone returns a copy of the escrow so callers can mutate it freely.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// Terminal reports whether the escrow has finished custody.
func (e *Escrow) Terminal() bool {
	return e != nil && (e.Status == StatusSwapSuccess || e.Status == StatusRefunded)
}

// CheckInvariant verifies that the release flag is raised exactly while funds
// are held.
func (e *Escrow) CheckInvariant() error {
	if e == nil {
		return fmt.Errorf("escrow: nil escrow")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("escrow: invalid status %d", e.Status)
	}
	if e.ReleaseFund != (e.Status == StatusFundsReceived) {
		return fmt.Errorf("escrow: release flag %t inconsistent with status %s", e.ReleaseFund, e.Status)
	}
	return nil
}

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusFundsReceived, StatusSwapSuccess, StatusRefunded:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFundsReceived:
		return "funds_received"
	case StatusSwapSuccess:
		return "swap_success"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}
