package core

import (
	"context"

	"ecomchain/core/types"
	"ecomchain/native/common"
	"ecomchain/native/escrow"
	"ecomchain/native/order"
	"ecomchain/native/payment"
)

// CreatePayment opens a Pending payment in owner's slot.
func (n *Node) CreatePayment(ctx context.Context, owner [20]byte, amount uint64, method payment.Method, product [20]byte) (*payment.Payment, Receipt, error) {
	var (
		created *payment.Payment
		outcome common.Outcome
	)
	receipt, err := n.apply(ctx, "create_payment", func(tx *txn) error {
		var err error
		created, outcome, err = tx.payments.Create(owner, amount, method, product)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	receipt.Outcome = outcome
	return created, receipt, nil
}

// OpenEscrow binds an escrow to owner's pending payment.
func (n *Node) OpenEscrow(ctx context.Context, owner, buyer, seller [20]byte, amount uint64, paymentRef [32]byte) (*escrow.Escrow, Receipt, error) {
	var (
		opened  *escrow.Escrow
		outcome common.Outcome
	)
	receipt, err := n.apply(ctx, "create_escrow", func(tx *txn) error {
		var err error
		opened, outcome, err = tx.escrows.Open(owner, buyer, seller, amount, paymentRef)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	receipt.Outcome = outcome
	return opened, receipt, nil
}

// DepositEscrow funds the escrow vault from source.
func (n *Node) DepositEscrow(ctx context.Context, escrowRef, paymentRef [32]byte, caller, source [20]byte) (Receipt, error) {
	return n.apply(ctx, "deposit_escrow", func(tx *txn) error {
		return tx.escrows.Deposit(escrowRef, paymentRef, caller, source)
	})
}

// WithdrawEscrow releases the vault to the seller. The transition's TxRef is
// recorded on the payment as its settlement signature.
func (n *Node) WithdrawEscrow(ctx context.Context, escrowRef, paymentRef [32]byte, caller, destination [20]byte) (Receipt, error) {
	return n.apply(ctx, "withdraw_escrow", func(tx *txn) error {
		return tx.escrows.Withdraw(escrowRef, paymentRef, caller, destination, Receipt{TxRef: tx.ref}.TxRefHex())
	})
}

// RefundEscrow returns funds to the funder once the refund window is open.
func (n *Node) RefundEscrow(ctx context.Context, escrowRef, paymentRef [32]byte, caller [20]byte) (Receipt, error) {
	return n.apply(ctx, "refund_escrow", func(tx *txn) error {
		return tx.escrows.Refund(escrowRef, paymentRef, caller)
	})
}

func (n *Node) CloseEscrow(ctx context.Context, escrowRef [32]byte, caller [20]byte) (Receipt, error) {
	return n.apply(ctx, "close_escrow", func(tx *txn) error {
		return tx.escrows.Close(escrowRef, caller)
	})
}

func (n *Node) ClosePayment(ctx context.Context, paymentRef [32]byte, caller [20]byte) (Receipt, error) {
	return n.apply(ctx, "close_payment", func(tx *txn) error {
		return tx.payments.Close(paymentRef, caller)
	})
}

// CloseAll tears down a terminal escrow and its payment in one transition.
func (n *Node) CloseAll(ctx context.Context, escrowRef, paymentRef [32]byte, caller [20]byte) (Receipt, error) {
	return n.apply(ctx, "close_all", func(tx *txn) error {
		return tx.lifecycle.CloseAll(escrowRef, paymentRef, caller)
	})
}

// ForceCloseAll is the administrative teardown; disabled unless configured.
func (n *Node) ForceCloseAll(ctx context.Context, escrowRef, paymentRef [32]byte, caller [20]byte) (Receipt, error) {
	return n.apply(ctx, "force_close_all", func(tx *txn) error {
		return tx.lifecycle.ForceCloseAll(escrowRef, paymentRef, caller)
	})
}

// PlaceOrder records an order for the payment at paymentRef.
func (n *Node) PlaceOrder(ctx context.Context, signer [20]byte, paymentRef [32]byte) (*order.Order, [32]byte, Receipt, error) {
	var (
		placed  *order.Order
		ref     [32]byte
		outcome common.Outcome
	)
	receipt, err := n.apply(ctx, "create_order", func(tx *txn) error {
		var err error
		placed, ref, outcome, err = tx.orders.Place(signer, paymentRef)
		return err
	})
	if err != nil {
		return nil, ref, receipt, err
	}
	receipt.Outcome = outcome
	return placed, ref, receipt, nil
}

// UpdateOrder advances the shipment tracking of an order.
func (n *Node) UpdateOrder(ctx context.Context, orderRef [32]byte, signer [20]byte, target order.Tracking) (Receipt, error) {
	return n.apply(ctx, "update_order", func(tx *txn) error {
		return tx.orders.AdvanceTracking(orderRef, signer, target)
	})
}

func (n *Node) CloseOrder(ctx context.Context, orderRef [32]byte, signer [20]byte) (Receipt, error) {
	return n.apply(ctx, "close_order", func(tx *txn) error {
		return tx.orders.Close(orderRef, signer)
	})
}

// Payment returns the payment stored at ref.
func (n *Node) Payment(ref [32]byte) (*payment.Payment, error) {
	var out *payment.Payment
	err := n.view(func(tx *txn) error {
		p, err := tx.payments.Get(ref)
		out = p
		return err
	})
	return out, err
}

// Escrow returns the escrow stored at ref along with its vault balance.
func (n *Node) Escrow(ref [32]byte) (*escrow.Escrow, uint64, error) {
	var (
		out     *escrow.Escrow
		balance uint64
	)
	err := n.view(func(tx *txn) error {
		esc, err := tx.escrows.Get(ref)
		if err != nil {
			return err
		}
		out = esc
		balance, err = tx.manager.Balance(esc.Vault)
		return err
	})
	return out, balance, err
}

// Order returns the order stored at ref.
func (n *Node) Order(ref [32]byte) (*order.Order, error) {
	var out *order.Order
	err := n.view(func(tx *txn) error {
		o, err := tx.orders.Get(ref)
		out = o
		return err
	})
	return out, err
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr [20]byte) (uint64, error) {
	var balance uint64
	err := n.view(func(tx *txn) error {
		var err error
		balance, err = tx.manager.Balance(addr)
		return err
	})
	return balance, err
}

// Events lists committed events with a sequence above after.
func (n *Node) Events(after uint64, limit int) ([]*types.Event, error) {
	var out []*types.Event
	err := n.view(func(tx *txn) error {
		var err error
		out, err = tx.manager.Events(after, limit)
		return err
	})
	return out, err
}
