package state

import (
	"fmt"

	"ecomchain/native/escrow"
	"ecomchain/native/order"
	"ecomchain/native/payment"
)

type storedPayment struct {
	ID          [16]byte
	Owner       [20]byte
	Product     [20]byte
	Amount      uint64
	Method      uint8
	Status      uint8
	TxSignature string
	Deposit     uint64
	CreatedAt   uint64
	UpdatedAt   uint64
}

type storedEscrow struct {
	Owner       [20]byte
	Buyer       [20]byte
	Seller      [20]byte
	Amount      uint64
	Status      uint8
	ReleaseFund bool
	PaymentRef  [32]byte
	PaymentID   [16]byte
	Vault       [20]byte
	Funder      [20]byte
	Deposit     uint64
	CreatedAt   uint64
	UpdatedAt   uint64
	FundedAt    uint64
	RefundAfter uint64
}

type storedOrder struct {
	ID         [16]byte
	Status     uint8
	Tracking   uint8
	PaymentRef [32]byte
	PaymentID  [16]byte
	Placer     [20]byte
	Deposit    uint64
	CreatedAt  uint64
	UpdatedAt  uint64
}

func toUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// PaymentGet loads the payment stored at ref.
func (m *Manager) PaymentGet(ref [32]byte) (*payment.Payment, bool, error) {
	var stored storedPayment
	ok, err := m.KVGet(paymentKey(ref), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &payment.Payment{
		ID:          stored.ID,
		Owner:       stored.Owner,
		Product:     stored.Product,
		Amount:      stored.Amount,
		Method:      payment.Method(stored.Method),
		Status:      payment.Status(stored.Status),
		TxSignature: stored.TxSignature,
		Deposit:     stored.Deposit,
		CreatedAt:   int64(stored.CreatedAt),
		UpdatedAt:   int64(stored.UpdatedAt),
	}, true, nil
}

func (m *Manager) PaymentPut(ref [32]byte, p *payment.Payment) error {
	if p == nil {
		return fmt.Errorf("state: nil payment")
	}
	return m.KVPut(paymentKey(ref), storedPayment{
		ID:          p.ID,
		Owner:       p.Owner,
		Product:     p.Product,
		Amount:      p.Amount,
		Method:      uint8(p.Method),
		Status:      uint8(p.Status),
		TxSignature: p.TxSignature,
		Deposit:     p.Deposit,
		CreatedAt:   toUnix(p.CreatedAt),
		UpdatedAt:   toUnix(p.UpdatedAt),
	})
}

func (m *Manager) PaymentDelete(ref [32]byte) error { return m.KVDelete(paymentKey(ref)) }

// EscrowGet loads the escrow stored at ref.
func (m *Manager) EscrowGet(ref [32]byte) (*escrow.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := m.KVGet(escrowKey(ref), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &escrow.Escrow{
		Owner:       stored.Owner,
		Buyer:       stored.Buyer,
		Seller:      stored.Seller,
		Amount:      stored.Amount,
		Status:      escrow.Status(stored.Status),
		ReleaseFund: stored.ReleaseFund,
		PaymentRef:  stored.PaymentRef,
		PaymentID:   stored.PaymentID,
		Vault:       stored.Vault,
		Funder:      stored.Funder,
		Deposit:     stored.Deposit,
		CreatedAt:   int64(stored.CreatedAt),
		UpdatedAt:   int64(stored.UpdatedAt),
		FundedAt:    int64(stored.FundedAt),
		RefundAfter: int64(stored.RefundAfter),
	}, true, nil
}

func (m *Manager) EscrowPut(ref [32]byte, esc *escrow.Escrow) error {
	if esc == nil {
		return fmt.Errorf("state: nil escrow")
	}
	return m.KVPut(escrowKey(ref), storedEscrow{
		Owner:       esc.Owner,
		Buyer:       esc.Buyer,
		Seller:      esc.Seller,
		Amount:      esc.Amount,
		Status:      uint8(esc.Status),
		ReleaseFund: esc.ReleaseFund,
		PaymentRef:  esc.PaymentRef,
		PaymentID:   esc.PaymentID,
		Vault:       esc.Vault,
		Funder:      esc.Funder,
		Deposit:     esc.Deposit,
		CreatedAt:   toUnix(esc.CreatedAt),
		UpdatedAt:   toUnix(esc.UpdatedAt),
		FundedAt:    toUnix(esc.FundedAt),
		RefundAfter: toUnix(esc.RefundAfter),
	})
}

func (m *Manager) EscrowDelete(ref [32]byte) error { return m.KVDelete(escrowKey(ref)) }

// EscrowRefs lists the reference of every stored escrow in key order.
func (m *Manager) EscrowRefs() ([][32]byte, error) {
	var refs [][32]byte
	err := m.overlay.Iterate(escrowPrefix, func(key, _ []byte) bool {
		if len(key) != len(escrowPrefix)+32 {
			return true
		}
		var ref [32]byte
		copy(ref[:], key[len(escrowPrefix):])
		refs = append(refs, ref)
		return true
	})
	return refs, err
}

// OrderGet loads the order stored at ref.
func (m *Manager) OrderGet(ref [32]byte) (*order.Order, bool, error) {
	var stored storedOrder
	ok, err := m.KVGet(orderKey(ref), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &order.Order{
		ID:         stored.ID,
		Status:     order.Status(stored.Status),
		Tracking:   order.Tracking(stored.Tracking),
		PaymentRef: stored.PaymentRef,
		PaymentID:  stored.PaymentID,
		Placer:     stored.Placer,
		Deposit:    stored.Deposit,
		CreatedAt:  int64(stored.CreatedAt),
		UpdatedAt:  int64(stored.UpdatedAt),
	}, true, nil
}

func (m *Manager) OrderPut(ref [32]byte, o *order.Order) error {
	if o == nil {
		return fmt.Errorf("state: nil order")
	}
	return m.KVPut(orderKey(ref), storedOrder{
		ID:         o.ID,
		Status:     uint8(o.Status),
		Tracking:   uint8(o.Tracking),
		PaymentRef: o.PaymentRef,
		PaymentID:  o.PaymentID,
		Placer:     o.Placer,
		Deposit:    o.Deposit,
		CreatedAt:  toUnix(o.CreatedAt),
		UpdatedAt:  toUnix(o.UpdatedAt),
	})
}

func (m *Manager) OrderDelete(ref [32]byte) error { return m.KVDelete(orderKey(ref)) }
