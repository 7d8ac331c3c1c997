package escrow

import (
	"errors"
	"testing"
	"time"

	"ecomchain/core/events"
	"ecomchain/native/common"
	"ecomchain/native/payment"
)

type mockState struct {
	escrows  map[[32]byte]*Escrow
	payments map[[32]byte]*payment.Payment
	balances map[[20]byte]uint64
	seq      map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		escrows:  make(map[[32]byte]*Escrow),
		payments: make(map[[32]byte]*payment.Payment),
		balances: make(map[[20]byte]uint64),
		seq:      make(map[string]uint64),
	}
}

func (m *mockState) EscrowGet(ref [32]byte) (*Escrow, bool, error) {
	esc, ok := m.escrows[ref]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowPut(ref [32]byte, esc *Escrow) error {
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

func (m *mockState) NextSequence(name string) (uint64, error) {
	m.seq[name]++
	return m.seq[name], nil
}

func (m *mockState) Balance(addr [20]byte) (uint64, error) {
	return m.balances[addr], nil
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

type testEnv struct {
	engine   *Engine
	payments *payment.Engine
	state    *mockState
	rec      *events.Recorder
	now      int64
	owner    [20]byte
	buyer    [20]byte
	seller   [20]byte
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:  newMockState(),
		rec:    &events.Recorder{},
		now:    1_700_000_000,
		owner:  newTestAddress(0x01),
		buyer:  newTestAddress(0x02),
		seller: newTestAddress(0x03),
	}
	clock := func() int64 { return env.now }
	env.payments = payment.NewEngine()
	env.payments.SetState(env.state)
	env.payments.SetEmitter(env.rec)
	env.payments.SetNowFunc(clock)
	env.engine = NewEngine(env.payments)
	env.engine.SetState(env.state)
	env.engine.SetEmitter(env.rec)
	env.engine.SetNowFunc(clock)
	return env
}

func (env *testEnv) open(t *testing.T, amount uint64) ([32]byte, [32]byte) {
	t.Helper()
	if _, _, err := env.payments.Create(env.owner, amount, payment.MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	payRef := payment.Ref(env.owner)
	if _, _, err := env.engine.Open(env.owner, env.buyer, env.seller, amount, payRef); err != nil {
		t.Fatalf("open escrow: %v", err)
	}
	return Ref(env.owner), payRef
}

func TestOpenDepositWithdrawRoundTrip(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 10_000_000
	ref, payRef := env.open(t, 5_000_000)

	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	esc, err := env.engine.Get(ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if esc.Status != StatusFundsReceived || !esc.ReleaseFund {
		t.Fatalf("unexpected escrow after deposit: %+v", esc)
	}
	if got := env.state.balances[esc.Vault]; got != 5_000_000 {
		t.Fatalf("vault balance %d, want 5000000", got)
	}
	if env.state.balances[env.buyer] != 5_000_000 {
		t.Fatalf("buyer balance %d", env.state.balances[env.buyer])
	}

	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, "sig"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	esc, _ = env.engine.Get(ref)
	if esc.Status != StatusSwapSuccess || esc.ReleaseFund {
		t.Fatalf("unexpected escrow after withdraw: %+v", esc)
	}
	if env.state.balances[esc.Vault] != 0 || env.state.balances[env.seller] != 5_000_000 {
		t.Fatalf("funds not released: vault=%d seller=%d", env.state.balances[esc.Vault], env.state.balances[env.seller])
	}
	pay, err := env.payments.Get(payRef)
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if pay.Status != payment.StatusSuccess || pay.TxSignature != "sig" {
		t.Fatalf("payment not settled: %+v", pay)
	}
	want := []string{
		payment.EventTypePaymentCreated,
		EventTypeEscrowCreated,
		events.TypeTransfer,
		EventTypeEscrowFunded,
		payment.EventTypePaymentSettled,
		events.TypeTransfer,
		EventTypeEscrowReleased,
	}
	got := env.rec.Types()
	if len(got) != len(want) {
		t.Fatalf("events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestOpenIdempotentAndConflicts(t *testing.T) {
	env := newTestEngine(t)
	_, payRef := env.open(t, 100)

	esc, outcome, err := env.engine.Open(env.owner, env.buyer, env.seller, 100, payRef)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != common.OutcomeExisting || esc.Status != StatusCreated {
		t.Fatalf("expected existing created escrow, got %s %+v", outcome, esc)
	}
	_, _, err = env.engine.Open(env.owner, env.buyer, newTestAddress(0x09), 100, payRef)
	if !errors.Is(err, common.ErrEscrowAlreadyActive) {
		t.Fatalf("expected ErrEscrowAlreadyActive, got %v", err)
	}
}

func TestOpenValidation(t *testing.T) {
	env := newTestEngine(t)
	payRef := payment.Ref(env.owner)

	if _, _, err := env.engine.Open(env.owner, env.buyer, env.seller, 100, payRef); !errors.Is(err, common.ErrPaymentMissing) {
		t.Fatalf("expected ErrPaymentMissing, got %v", err)
	}
	if _, _, err := env.payments.Create(env.owner, 100, payment.MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	cases := []struct {
		name   string
		owner  [20]byte
		buyer  [20]byte
		seller [20]byte
		amount uint64
		want   error
	}{
		{"zero amount", env.owner, env.buyer, env.seller, 0, common.ErrInvalidAmount},
		{"same parties", env.owner, env.buyer, env.buyer, 100, common.ErrInvalidParty},
		{"zero buyer", env.owner, [20]byte{}, env.seller, 100, common.ErrInvalidParty},
		{"amount mismatch", env.owner, env.buyer, env.seller, 99, common.ErrAmountMismatch},
		{"foreign payment", newTestAddress(0x07), env.buyer, env.seller, 100, common.ErrPaymentMismatch},
		{"seller is own vault", env.owner, env.buyer, common.VaultAddress(Ref(env.owner)), 100, common.ErrInvalidParty},
		{"buyer is deposit pool", env.owner, common.DepositPoolAddress(), env.seller, 100, common.ErrInvalidParty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := env.engine.Open(tc.owner, tc.buyer, tc.seller, tc.amount, payRef); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(env.state.escrows) != 0 {
		t.Fatalf("rejected opens must not store escrows")
	}
}

func TestOpenRejectsTokenMethod(t *testing.T) {
	env := newTestEngine(t)
	if _, _, err := env.payments.Create(env.owner, 100, payment.MethodToken, [20]byte{}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	_, _, err := env.engine.Open(env.owner, env.buyer, env.seller, 100, payment.Ref(env.owner))
	if !errors.Is(err, common.ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestDepositRejectsSecondDeposit(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 1_000
	ref, payRef := env.open(t, 200)

	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer)
	if !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if env.state.balances[common.VaultAddress(ref)] != 200 || env.state.balances[env.buyer] != 800 {
		t.Fatalf("second deposit moved funds: vault=%d buyer=%d", env.state.balances[common.VaultAddress(ref)], env.state.balances[env.buyer])
	}
}

func TestDepositAuthorization(t *testing.T) {
	env := newTestEngine(t)
	stranger := newTestAddress(0x08)
	env.state.balances[stranger] = 1_000
	env.state.balances[env.buyer] = 1_000
	ref, payRef := env.open(t, 200)

	if err := env.engine.Deposit(ref, payRef, stranger, stranger); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.Deposit(ref, payRef, env.owner, env.buyer); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign source, got %v", err)
	}
	if err := env.engine.Deposit(ref, [32]byte{0x01}, env.buyer, env.buyer); !errors.Is(err, common.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
}

func TestDepositInsufficientFundsLeavesEscrowCreated(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 50
	ref, payRef := env.open(t, 200)

	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); !errors.Is(err, common.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	esc, _ := env.engine.Get(ref)
	if esc.Status != StatusCreated || esc.ReleaseFund {
		t.Fatalf("escrow changed after failed deposit: %+v", esc)
	}
}

func TestWithdrawChecks(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 1_000
	ref, payRef := env.open(t, 200)

	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("expected ErrWrongState before deposit, got %v", err)
	}
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.Withdraw(ref, payRef, env.buyer, env.seller, ""); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.Withdraw(ref, payRef, env.owner, env.buyer, ""); !errors.Is(err, common.ErrDestinationMismatch) {
		t.Fatalf("expected ErrDestinationMismatch, got %v", err)
	}

	// Drain the vault behind the engine's back.
	env.state.balances[common.VaultAddress(ref)] = 150
	err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, "")
	if !errors.Is(err, common.ErrVaultBalanceMismatch) {
		t.Fatalf("expected ErrVaultBalanceMismatch, got %v", err)
	}
	if common.KindOf(err) != common.KindConsistency {
		t.Fatalf("expected consistency kind, got %s", common.KindOf(err))
	}

	env.state.balances[common.VaultAddress(ref)] = 200
	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("expected ErrWrongState on second withdraw, got %v", err)
	}
	if env.state.balances[env.seller] != 200 {
		t.Fatalf("seller paid %d, want 200", env.state.balances[env.seller])
	}
}

func TestRefundAfterTimeout(t *testing.T) {
	env := newTestEngine(t)
	env.engine.SetRefundTimeout(time.Hour)
	env.state.balances[env.buyer] = 500
	ref, payRef := env.open(t, 200)
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := env.engine.Refund(ref, payRef, env.buyer); !errors.Is(err, common.ErrRefundNotAvailable) {
		t.Fatalf("expected ErrRefundNotAvailable, got %v", err)
	}
	env.now += 3600
	if err := env.engine.Refund(ref, payRef, env.seller); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.Refund(ref, payRef, env.buyer); err != nil {
		t.Fatalf("refund: %v", err)
	}
	esc, _ := env.engine.Get(ref)
	if esc.Status != StatusRefunded || esc.ReleaseFund {
		t.Fatalf("unexpected escrow after refund: %+v", esc)
	}
	if env.state.balances[env.buyer] != 500 || env.state.balances[esc.Vault] != 0 {
		t.Fatalf("funds not returned: buyer=%d vault=%d", env.state.balances[env.buyer], env.state.balances[esc.Vault])
	}
	pay, _ := env.payments.Get(payRef)
	if pay.Status != payment.StatusFailed {
		t.Fatalf("payment status %s, want failed", pay.Status)
	}
	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("expected ErrWrongState after refund, got %v", err)
	}
}

func TestCloseRequiresTerminalStatus(t *testing.T) {
	env := newTestEngine(t)
	env.engine.SetRecordDeposit(5)
	env.state.balances[env.owner] = 5
	env.state.balances[env.buyer] = 200
	ref, payRef := env.open(t, 200)

	if env.state.balances[env.owner] != 0 {
		t.Fatalf("record deposit not charged")
	}
	if err := env.engine.Close(ref, env.owner); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("expected ErrWrongState, got %v", err)
	}
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := env.engine.Close(ref, env.buyer); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, _, err := env.engine.Open(env.owner, env.buyer, env.seller, 200, payRef); !errors.Is(err, common.ErrEscrowNeedsClose) {
		t.Fatalf("expected ErrEscrowNeedsClose, got %v", err)
	}
	if err := env.engine.Close(ref, env.owner); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := env.state.escrows[ref]; ok {
		t.Fatalf("escrow still stored after close")
	}
	if env.state.balances[env.owner] != 5 {
		t.Fatalf("record deposit not refunded")
	}
	if _, err := env.engine.Get(ref); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestForceCloseRequiresEmptyVault(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 200
	ref, payRef := env.open(t, 200)
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.ForceClose(ref, env.owner); !errors.Is(err, common.ErrVaultNotEmpty) {
		t.Fatalf("expected ErrVaultNotEmpty, got %v", err)
	}

	env2 := newTestEngine(t)
	ref2, _ := env2.open(t, 100)
	if err := env2.engine.ForceClose(ref2, env2.owner); err != nil {
		t.Fatalf("force close: %v", err)
	}
	got := env2.rec.Types()
	if got[len(got)-1] != EventTypeEscrowForceClosed {
		t.Fatalf("expected force close event, got %v", got)
	}
}

func TestCheckVaultReportsViolation(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 200
	ref, payRef := env.open(t, 200)
	if err := env.engine.CheckVault(ref); err != nil {
		t.Fatalf("check created escrow: %v", err)
	}
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.engine.CheckVault(ref); err != nil {
		t.Fatalf("check funded escrow: %v", err)
	}
	env.state.balances[common.VaultAddress(ref)] += 7
	result, err := env.engine.AuditVaults([][32]byte{ref})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if result.Checked != 1 || len(result.Violations) != 1 || result.Violations[0] != ref {
		t.Fatalf("unexpected audit result: %+v", result)
	}
	got := env.rec.Types()
	if got[len(got)-1] != EventTypeVaultViolation {
		t.Fatalf("expected violation event, got %v", got)
	}
}

func TestPausedEscrowRejectsTransitions(t *testing.T) {
	env := newTestEngine(t)
	if _, _, err := env.payments.Create(env.owner, 100, payment.MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	env.engine.SetPauses(common.NewPausedSet([]string{common.ModuleEscrow}))
	_, _, err := env.engine.Open(env.owner, env.buyer, env.seller, 100, payment.Ref(env.owner))
	if !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestWithdrawVerifiesVaultDrained(t *testing.T) {
	env := newTestEngine(t)
	if _, _, err := env.payments.Create(env.owner, 100, payment.MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	payRef := payment.Ref(env.owner)
	pay, _ := env.payments.Get(payRef)
	ref := Ref(env.owner)
	vault := common.VaultAddress(ref)
	// A record whose seller is its own vault: the release moves nothing.
	env.state.escrows[ref] = &Escrow{
		Owner:       env.owner,
		Buyer:       env.buyer,
		Seller:      vault,
		Amount:      100,
		Status:      StatusFundsReceived,
		ReleaseFund: true,
		PaymentRef:  payRef,
		PaymentID:   pay.ID,
		Vault:       vault,
	}
	env.state.balances[vault] = 100

	err := env.engine.Withdraw(ref, payRef, env.owner, vault, "")
	if !errors.Is(err, common.ErrVaultBalanceMismatch) {
		t.Fatalf("expected ErrVaultBalanceMismatch, got %v", err)
	}
	pay, _ = env.payments.Get(payRef)
	if pay.Status != payment.StatusPending {
		t.Fatalf("payment settled although the vault kept the funds: %s", pay.Status)
	}
}

func TestRecycledPaymentSlotIsNotSettled(t *testing.T) {
	env := newTestEngine(t)
	env.state.balances[env.buyer] = 1_000
	ref, payRef := env.open(t, 200)
	if err := env.engine.Deposit(ref, payRef, env.buyer, env.buyer); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// The slot is emptied and refilled by an unrelated payment.
	delete(env.state.payments, payRef)
	if _, _, err := env.payments.Create(env.owner, 200, payment.MethodNative, [20]byte{}); err != nil {
		t.Fatalf("create replacement payment: %v", err)
	}

	if err := env.engine.Withdraw(ref, payRef, env.owner, env.seller, ""); !errors.Is(err, common.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch on withdraw, got %v", err)
	}
	env.now += int64(DefaultRefundTimeout / time.Second)
	if err := env.engine.Refund(ref, payRef, env.buyer); !errors.Is(err, common.ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch on refund, got %v", err)
	}
	replacement, _ := env.payments.Get(payRef)
	if replacement.Status != payment.StatusPending {
		t.Fatalf("replacement payment touched: %s", replacement.Status)
	}
	if env.state.balances[common.VaultAddress(ref)] != 200 {
		t.Fatalf("vault moved: %d", env.state.balances[common.VaultAddress(ref)])
	}
}
