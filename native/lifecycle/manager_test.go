package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ecomchain/native/common"
	"ecomchain/native/escrow"
	"ecomchain/native/payment"
)

type mockState struct {
	escrows  map[[32]byte]*escrow.Escrow
	payments map[[32]byte]*payment.Payment
	balances map[[20]byte]uint64
	seq      uint64
}

func newMockState() *mockState {
	return &mockState{
		escrows:  make(map[[32]byte]*escrow.Escrow),
		payments: make(map[[32]byte]*payment.Payment),
		balances: make(map[[20]byte]uint64),
	}
}

func (m *mockState) EscrowGet(ref [32]byte) (*escrow.Escrow, bool, error) {
	esc, ok := m.escrows[ref]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowPut(ref [32]byte, esc *escrow.Escrow) error {
	m.escrows[ref] = esc.Clone()
	return nil
}

func (m *mockState) EscrowDelete(ref [32]byte) error {
	delete(m.escrows, ref)
	return nil
}

func (m *mockState) PaymentGet(ref [32]byte) (*payment.Payment, bool, error) {
	p, ok := m.payments[ref]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PaymentPut(ref [32]byte, p *payment.Payment) error {
	m.payments[ref] = p.Clone()
	return nil
}

func (m *mockState) PaymentDelete(ref [32]byte) error {
	delete(m.payments, ref)
	return nil
}

func (m *mockState) NextSequence(string) (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) Balance(addr [20]byte) (uint64, error) { return m.balances[addr], nil }

func (m *mockState) Transfer(from, to [20]byte, amount uint64) error {
	if m.balances[from] < amount {
		return common.ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

type fixture struct {
	state    *mockState
	payments *payment.Engine
	escrows  *escrow.Engine
	manager  *Manager
	owner    [20]byte
	buyer    [20]byte
	seller   [20]byte
	escRef   [32]byte
	payRef   [32]byte
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func newFixture(t *testing.T, amount uint64) *fixture {
	t.Helper()
	f := &fixture{state: newMockState(), owner: addr(0x01), buyer: addr(0x02), seller: addr(0x03)}
	f.payments = payment.NewEngine()
	f.payments.SetState(f.state)
	f.escrows = escrow.NewEngine(f.payments)
	f.escrows.SetState(f.state)
	f.manager = NewManager(f.payments, f.escrows)
	f.state.balances[f.buyer] = amount

	_, _, err := f.payments.Create(f.owner, amount, payment.MethodNative, [20]byte{})
	require.NoError(t, err)
	f.payRef = payment.Ref(f.owner)
	_, _, err = f.escrows.Open(f.owner, f.buyer, f.seller, amount, f.payRef)
	require.NoError(t, err)
	f.escRef = escrow.Ref(f.owner)
	return f
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	require.NoError(t, f.escrows.Deposit(f.escRef, f.payRef, f.buyer, f.buyer))
	require.NoError(t, f.escrows.Withdraw(f.escRef, f.payRef, f.owner, f.seller, "sig"))
}

func TestCloseAllRejectsActiveEscrow(t *testing.T) {
	f := newFixture(t, 500)
	require.NoError(t, f.escrows.Deposit(f.escRef, f.payRef, f.buyer, f.buyer))

	err := f.manager.CloseAll(f.escRef, f.payRef, f.owner)
	require.ErrorIs(t, err, common.ErrWrongState)

	require.Contains(t, f.state.escrows, f.escRef)
	require.Contains(t, f.state.payments, f.payRef)
	require.Equal(t, uint64(500), f.state.balances[common.VaultAddress(f.escRef)])
	require.Equal(t, escrow.StatusFundsReceived, f.state.escrows[f.escRef].Status)
}

func TestCloseAllAfterSwap(t *testing.T) {
	f := newFixture(t, 500)
	f.settle(t)

	require.ErrorIs(t, f.manager.CloseAll(f.escRef, f.payRef, f.seller), common.ErrUnauthorized)
	require.NoError(t, f.manager.CloseAll(f.escRef, f.payRef, f.owner))
	require.Empty(t, f.state.escrows)
	require.Empty(t, f.state.payments)
	require.Equal(t, uint64(500), f.state.balances[f.seller])
}

func TestCloseAllRejectsUnboundPayment(t *testing.T) {
	f := newFixture(t, 500)
	f.settle(t)
	err := f.manager.CloseAll(f.escRef, [32]byte{0x01}, f.owner)
	require.ErrorIs(t, err, common.ErrPaymentMissing)
	require.Len(t, f.state.escrows, 1)
}

func TestForceCloseAllGated(t *testing.T) {
	f := newFixture(t, 500)
	require.ErrorIs(t, f.manager.ForceCloseAll(f.escRef, f.payRef, f.owner), common.ErrForceCloseDisabled)

	f.manager.SetAllowForceClose(true)
	require.ErrorIs(t, f.manager.ForceCloseAll(f.escRef, f.payRef, f.buyer), common.ErrUnauthorized)
	require.NoError(t, f.manager.ForceCloseAll(f.escRef, f.payRef, f.owner))
	require.Empty(t, f.state.escrows)
	require.Empty(t, f.state.payments)
}

func TestForceCloseAllRefusesFundedVault(t *testing.T) {
	f := newFixture(t, 500)
	f.manager.SetAllowForceClose(true)
	require.NoError(t, f.escrows.Deposit(f.escRef, f.payRef, f.buyer, f.buyer))

	err := f.manager.ForceCloseAll(f.escRef, f.payRef, f.owner)
	require.ErrorIs(t, err, common.ErrVaultNotEmpty)
	require.Equal(t, common.KindConsistency, common.KindOf(err))
	require.Len(t, f.state.escrows, 1)
	require.Len(t, f.state.payments, 1)
}

func TestForceCloseAllIgnoresForeignEscrowRef(t *testing.T) {
	f := newFixture(t, 1000)
	f.manager.SetAllowForceClose(true)
	require.NoError(t, f.escrows.Deposit(f.escRef, f.payRef, f.buyer, f.buyer))

	err := f.manager.ForceCloseAll([32]byte{0xde, 0xad}, f.payRef, f.owner)
	require.ErrorIs(t, err, common.ErrPaymentMismatch)
	require.Contains(t, f.state.payments, f.payRef)

	// The funded escrow can still settle against its payment.
	require.NoError(t, f.escrows.Withdraw(f.escRef, f.payRef, f.owner, f.seller, "sig"))
	require.Equal(t, uint64(0), f.state.balances[common.VaultAddress(f.escRef)])
	require.Equal(t, uint64(1000), f.state.balances[f.seller])
}

func TestForceCloseAllRefusesFundedEscrowWithEmptiedVault(t *testing.T) {
	f := newFixture(t, 500)
	f.manager.SetAllowForceClose(true)
	require.NoError(t, f.escrows.Deposit(f.escRef, f.payRef, f.buyer, f.buyer))
	f.state.balances[common.VaultAddress(f.escRef)] = 0

	err := f.manager.ForceCloseAll(f.escRef, f.payRef, f.owner)
	require.ErrorIs(t, err, common.ErrWrongState)
	require.Len(t, f.state.payments, 1)
}

func TestCloseAllRejectsRecycledPayment(t *testing.T) {
	f := newFixture(t, 500)
	f.settle(t)
	delete(f.state.payments, f.payRef)
	_, _, err := f.payments.Create(f.owner, 500, payment.MethodNative, [20]byte{})
	require.NoError(t, err)
	require.NoError(t, f.payments.MarkSettled(f.payRef, payment.StatusSuccess, "other"))

	err = f.manager.CloseAll(f.escRef, f.payRef, f.owner)
	require.ErrorIs(t, err, common.ErrPaymentMismatch)
	require.Len(t, f.state.escrows, 1)
	require.Len(t, f.state.payments, 1)
}
