package payment

import (
	"errors"
	"testing"

	"ecomchain/core/events"
	"ecomchain/native/common"
)

type mockState struct {
	payments map[[32]byte]*Payment
	balances map[[20]byte]uint64
	seq      map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		payments: make(map[[32]byte]*Payment),
		balances: make(map[[20]byte]uint64),
		seq:      make(map[string]uint64),
	}
}

func (m *mockState) PaymentGet(ref [32]byte) (*Payment, bool, error) {
	p, ok := m.payments[ref]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PaymentPut(ref [32]byte, p *Payment) error {
	m.payments[ref] = p.Clone()
	return nil
}

func (m *mockState) PaymentDelete(ref [32]byte) error {
	delete(m.payments, ref)
	return nil
}

func (m *mockState) NextSequence(name string) (uint64, error) {
	m.seq[name]++
	return m.seq[name], nil
}

func (m *mockState) Transfer(from, to [20]byte, amount uint64) error {
	if m.balances[from] < amount {
		return common.ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *events.Recorder) {
	t.Helper()
	state := newMockState()
	rec := &events.Recorder{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return engine, state, rec
}

func TestCreatePendingPayment(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	owner := newTestAddress(0x01)
	product := newTestAddress(0x0F)

	p, outcome, err := engine.Create(owner, 5_000_000, MethodNative, product)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if outcome != common.OutcomeCreated {
		t.Fatalf("expected created outcome, got %s", outcome)
	}
	if p.Status != StatusPending || p.Amount != 5_000_000 || p.Owner != owner {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if p.ID == ([16]byte{}) {
		t.Fatalf("expected payment id to be assigned")
	}
	if _, ok := state.payments[Ref(owner)]; !ok {
		t.Fatalf("payment not stored at derived ref")
	}
	if got := rec.Types(); len(got) != 1 || got[0] != EventTypePaymentCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateRejectsZeroAmount(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, _, err := engine.Create(newTestAddress(0x01), 0, MethodNative, [20]byte{})
	if !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation kind, got %s", common.KindOf(err))
	}
}

func TestCreateIsIdempotentWhilePending(t *testing.T) {
	engine, _, rec := newTestEngine(t)
	owner := newTestAddress(0x01)

	first, _, err := engine.Create(owner, 100, MethodNative, [20]byte{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, outcome, err := engine.Create(owner, 100, MethodNative, [20]byte{})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != common.OutcomeExisting {
		t.Fatalf("expected existing outcome, got %s", outcome)
	}
	if first.ID != second.ID {
		t.Fatalf("retry returned a different payment")
	}
	if len(rec.Events) != 1 {
		t.Fatalf("retry must not emit, got %v", rec.Types())
	}

	_, _, err = engine.Create(owner, 200, MethodNative, [20]byte{})
	if !errors.Is(err, common.ErrPaymentSlotOccupied) {
		t.Fatalf("expected ErrPaymentSlotOccupied, got %v", err)
	}
}

func TestCreateChargesRecordDeposit(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	engine.SetRecordDeposit(10)
	owner := newTestAddress(0x01)

	if _, _, err := engine.Create(owner, 100, MethodNative, [20]byte{}); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(state.payments) != 0 {
		t.Fatalf("payment must not be stored when the deposit fails")
	}

	state.balances[owner] = 25
	if _, _, err := engine.Create(owner, 100, MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if state.balances[owner] != 15 || state.balances[common.DepositPoolAddress()] != 10 {
		t.Fatalf("deposit not charged: owner=%d pool=%d", state.balances[owner], state.balances[common.DepositPoolAddress()])
	}
}

func TestMarkSettledOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	owner := newTestAddress(0x01)
	if _, _, err := engine.Create(owner, 100, MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := Ref(owner)
	if err := engine.MarkSettled(ref, StatusSuccess, "sig-1"); err != nil {
		t.Fatalf("settle: %v", err)
	}
	p, err := engine.Get(ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != StatusSuccess || p.TxSignature != "sig-1" {
		t.Fatalf("unexpected payment after settle: %+v", p)
	}
	if err := engine.MarkSettled(ref, StatusFailed, ""); !errors.Is(err, common.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
}

func TestCloseRequiresSettledPayment(t *testing.T) {
	engine, state, rec := newTestEngine(t)
	engine.SetRecordDeposit(10)
	owner := newTestAddress(0x01)
	state.balances[owner] = 10
	if _, _, err := engine.Create(owner, 100, MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := Ref(owner)

	if err := engine.Close(ref, owner); !errors.Is(err, common.ErrStillActive) {
		t.Fatalf("expected ErrStillActive, got %v", err)
	}
	if err := engine.MarkSettled(ref, StatusFailed, ""); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := engine.Close(ref, newTestAddress(0x02)); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := engine.Close(ref, owner); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := state.payments[ref]; ok {
		t.Fatalf("payment still stored after close")
	}
	if state.balances[owner] != 10 {
		t.Fatalf("deposit not refunded, balance %d", state.balances[owner])
	}
	types := rec.Types()
	if types[len(types)-1] != EventTypePaymentClosed {
		t.Fatalf("expected close event last, got %v", types)
	}
	if _, err := engine.Get(ref); !errors.Is(err, common.ErrPaymentMissing) {
		t.Fatalf("expected ErrPaymentMissing, got %v", err)
	}
}

func TestCreateBlockedWhilePaused(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	engine.SetPauses(common.NewPausedSet([]string{common.ModulePayment}))
	_, _, err := engine.Create(newTestAddress(0x01), 100, MethodNative, [20]byte{})
	if !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	cases := map[string]Method{"": MethodNative, "native": MethodNative, "SOL": MethodNative, "token": MethodToken, "spl": MethodToken}
	for hint, want := range cases {
		got, err := ParseMethod(hint)
		if err != nil {
			t.Fatalf("parse %q: %v", hint, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", hint, got, want)
		}
	}
	if _, err := ParseMethod("card"); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}
