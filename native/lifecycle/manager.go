// Package lifecycle tears down linked payment and escrow records together.
package lifecycle

import (
	"errors"
	"fmt"

	"ecomchain/native/common"
	"ecomchain/native/escrow"
	"ecomchain/native/payment"
)

var errNilEngines = errors.New("lifecycle: engines not configured")

// Manager coordinates closure across the payment and escrow engines. It checks
// the cross-record preconditions up front, but the engines still write one
// after another: a failure part way through is undone only by discarding the
// node's state overlay for the operation.
type Manager struct {
	payments   *payment.Engine
	escrows    *escrow.Engine
	allowForce bool
}

func NewManager(payments *payment.Engine, escrows *escrow.Engine) *Manager {
	return &Manager{payments: payments, escrows: escrows}
}

// SetAllowForceClose enables the administrative ForceCloseAll path.
func (m *Manager) SetAllowForceClose(allow bool) { m.allowForce = allow }

func (m *Manager) ready() error {
	if m == nil || m.payments == nil || m.escrows == nil {
		return errNilEngines
	}
	return nil
}

// CloseAll destroys a terminal escrow, its vault and the settled payment it is
// bound to.
func (m *Manager) CloseAll(escrowRef, paymentRef [32]byte, caller [20]byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	esc, err := m.escrows.Get(escrowRef)
	if err != nil {
		return err
	}
	pay, err := m.payments.Get(paymentRef)
	if err != nil {
		return err
	}
	if !esc.BoundTo(paymentRef, pay) {
		return common.Wrap("lifecycle", common.ErrPaymentMismatch)
	}
	if caller != esc.Owner || caller != pay.Owner {
		return common.Wrap("lifecycle", common.ErrUnauthorized)
	}
	if !esc.Terminal() {
		return common.Wrap("lifecycle", fmt.Errorf("%w: escrow is %s", common.ErrWrongState, esc.Status))
	}
	if !pay.Settled() {
		return common.Wrap("lifecycle", common.ErrStillActive)
	}
	balance, err := m.escrows.VaultBalance(escrowRef)
	if err != nil {
		return err
	}
	if balance != 0 {
		return common.Wrap("lifecycle", fmt.Errorf("%w: vault holds %d", common.ErrVaultNotEmpty, balance))
	}
	if err := m.escrows.Close(escrowRef, caller); err != nil {
		return err
	}
	return m.payments.Close(paymentRef, caller)
}

// ForceCloseAll destroys the payment and, when present, the owner's escrow
// bound to it regardless of status. The escrow is always looked up in the
// owner's derived slot, so a payment can never be destroyed while an escrow
// that still holds its funds survives. The vault must already be empty; no
// funds are moved.
func (m *Manager) ForceCloseAll(escrowRef, paymentRef [32]byte, caller [20]byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	if !m.allowForce {
		return common.Wrap("lifecycle", common.ErrForceCloseDisabled)
	}
	pay, err := m.payments.Get(paymentRef)
	if err != nil {
		return err
	}
	if caller != pay.Owner {
		return common.Wrap("lifecycle", common.ErrUnauthorized)
	}
	slot := escrow.Ref(pay.Owner)
	if escrowRef != slot {
		return common.Wrap("lifecycle", fmt.Errorf("%w: escrow ref is not the owner's slot", common.ErrPaymentMismatch))
	}
	esc, err := m.escrows.Get(slot)
	switch {
	case err == nil:
		if !esc.BoundTo(paymentRef, pay) {
			break
		}
		balance, err := m.escrows.VaultBalance(slot)
		if err != nil {
			return err
		}
		if balance != 0 {
			return common.Wrap("lifecycle", fmt.Errorf("%w: vault holds %d", common.ErrVaultNotEmpty, balance))
		}
		if esc.Status == escrow.StatusFundsReceived {
			return common.Wrap("lifecycle", fmt.Errorf("%w: escrow is %s", common.ErrWrongState, esc.Status))
		}
		if err := m.escrows.ForceClose(slot, caller); err != nil {
			return err
		}
	case errors.Is(err, common.ErrNotFound):
	default:
		return err
	}
	return m.payments.ForceClose(paymentRef, caller)
}
