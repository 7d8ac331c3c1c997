package escrow

import (
	"errors"
	"fmt"
	"time"

	"ecomchain/core/events"
	"ecomchain/native/common"
	"ecomchain/native/payment"
)

var (
	errNilState    = errors.New("escrow engine: state not configured")
	errNilPayments = errors.New("escrow engine: payment engine not configured")
)

// DefaultRefundTimeout is how long funds stay locked before the funder may
// reclaim them when the seller-side withdrawal never happens.
const DefaultRefundTimeout = 7 * 24 * time.Hour

type engineState interface {
	EscrowGet(ref [32]byte) (*Escrow, bool, error)
	EscrowPut(ref [32]byte, esc *Escrow) error
	EscrowDelete(ref [32]byte) error
	PaymentGet(ref [32]byte) (*payment.Payment, bool, error)
	Balance(addr [20]byte) (uint64, error)
	Transfer(from, to [20]byte, amount uint64) error
}

// Engine wires the escrow state machine with external state, the payment
// ledger and event emitters.
type Engine struct {
	state         engineState
	payments      *payment.Engine
	emitter       events.Emitter
	pauses        common.PauseView
	deposit       uint64
	refundTimeout int64
	nowFn         func() int64
}

// NewEngine creates an escrow engine settling against the supplied payment
// engine.
func NewEngine(payments *payment.Engine) *Engine {
	return &Engine{
		payments:      payments,
		emitter:       events.NoopEmitter{},
		refundTimeout: int64(DefaultRefundTimeout / time.Second),
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause switch.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetRecordDeposit configures the storage deposit charged per escrow.
func (e *Engine) SetRecordDeposit(amount uint64) { e.deposit = amount }

// SetRefundTimeout configures the delay between funding and the earliest
// refund. Non-positive values restore the default.
func (e *Engine) SetRefundTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultRefundTimeout
	}
	e.refundTimeout = int64(d / time.Second)
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Ref returns the record reference of owner's escrow slot.
func Ref(owner [20]byte) [32]byte {
	return common.Derive(common.NamespaceEscrow, owner)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.payments == nil {
		return errNilPayments
	}
	return nil
}

func (e *Engine) loadEscrow(ref [32]byte) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	esc, ok, err := e.state.EscrowGet(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Wrap("escrow", common.ErrNotFound)
	}
	if Ref(esc.Owner) != ref {
		return nil, common.Wrap("escrow", common.ErrDerivationMismatch)
	}
	return esc, nil
}

func (e *Engine) storeEscrow(ref [32]byte, esc *Escrow) error {
	if err := esc.CheckInvariant(); err != nil {
		return err
	}
	return e.state.EscrowPut(ref, esc)
}

// Get returns the escrow stored at ref.
func (e *Engine) Get(ref [32]byte) (*Escrow, error) {
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Open binds a new escrow to the owner's pending payment. Retrying an Open
// whose escrow is still Created with identical terms returns the stored
// escrow with OutcomeExisting.
func (e *Engine) Open(owner, buyer, seller [20]byte, amount uint64, paymentRef [32]byte) (*Escrow, common.Outcome, error) {
	if err := e.ready(); err != nil {
		return nil, common.OutcomeCreated, err
	}
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return nil, common.OutcomeCreated, err
	}
	if amount == 0 {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrInvalidAmount)
	}
	ref := Ref(owner)
	if !validParties(ref, buyer, seller) {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrInvalidParty)
	}
	pay, ok, err := e.state.PaymentGet(paymentRef)
	if err != nil {
		return nil, common.OutcomeCreated, err
	}
	if !ok {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrPaymentMissing)
	}
	if pay.Owner != owner {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrPaymentMismatch)
	}

	existing, found, err := e.state.EscrowGet(ref)
	if err != nil {
		return nil, common.OutcomeCreated, err
	}
	if found {
		switch {
		case existing.Terminal():
			return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrEscrowNeedsClose)
		case existing.Status == StatusCreated && existing.PaymentRef == paymentRef && existing.PaymentID == pay.ID &&
			existing.Buyer == buyer && existing.Seller == seller && existing.Amount == amount:
			return existing.Clone(), common.OutcomeExisting, nil
		default:
			return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrEscrowAlreadyActive)
		}
	}

	if pay.Method != payment.MethodNative {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrUnsupportedMethod)
	}
	if pay.Status != payment.StatusPending {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrPaymentNotPending)
	}
	if pay.Amount != amount {
		return nil, common.OutcomeCreated, common.Wrap("escrow", fmt.Errorf("%w: escrow %d, payment %d", common.ErrAmountMismatch, amount, pay.Amount))
	}

	vault := common.VaultAddress(ref)
	balance, err := e.state.Balance(vault)
	if err != nil {
		return nil, common.OutcomeCreated, err
	}
	if balance != 0 {
		return nil, common.OutcomeCreated, common.Wrap("escrow", common.ErrVaultNotEmpty)
	}
	if e.deposit > 0 {
		if err := e.state.Transfer(owner, common.DepositPoolAddress(), e.deposit); err != nil {
			return nil, common.OutcomeCreated, common.Wrap("escrow", err)
		}
	}
	now := e.now()
	esc := &Escrow{
		Owner:      owner,
		Buyer:      buyer,
		Seller:     seller,
		Amount:     amount,
		Status:     StatusCreated,
		PaymentRef: paymentRef,
		PaymentID:  pay.ID,
		Vault:      vault,
		Deposit:    e.deposit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.storeEscrow(ref, esc); err != nil {
		return nil, common.OutcomeCreated, err
	}
	e.emit(CreatedEvent{Ref: ref, Escrow: esc.Clone()})
	return esc.Clone(), common.OutcomeCreated, nil
}

// Deposit moves the escrow amount from the funding source into the vault and
// raises the release flag. The caller must be the owner or the buyer and may
// only fund from its own account.
func (e *Engine) Deposit(ref, paymentRef [32]byte, caller, source [20]byte) error {
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return err
	}
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if esc.Status != StatusCreated {
		return common.Wrap("escrow", fmt.Errorf("%w: cannot deposit in status %s", common.ErrWrongState, esc.Status))
	}
	if (caller != esc.Owner && caller != esc.Buyer) || source != caller {
		return common.Wrap("escrow", common.ErrUnauthorized)
	}
	pay, err := e.boundPayment(esc, paymentRef)
	if err != nil {
		return err
	}
	if pay.Status != payment.StatusPending {
		return common.Wrap("escrow", common.ErrPaymentNotPending)
	}
	if err := e.expectVault(esc, 0); err != nil {
		return err
	}
	if err := e.state.Transfer(source, esc.Vault, esc.Amount); err != nil {
		return common.Wrap("escrow", err)
	}
	now := e.now()
	esc.Status = StatusFundsReceived
	esc.ReleaseFund = true
	esc.Funder = source
	esc.FundedAt = now
	esc.RefundAfter = now + e.refundTimeout
	esc.UpdatedAt = now
	if err := e.storeEscrow(ref, esc); err != nil {
		return err
	}
	e.emit(events.Transfer{From: source, To: esc.Vault, Amount: esc.Amount, Reason: "escrow.deposit"})
	e.emit(FundedEvent{Ref: ref, Escrow: esc.Clone()})
	return nil
}

// Withdraw drains the vault to the seller, completes the swap and settles the
// bound payment as successful. settlement is recorded on the payment as the
// reference of the settling transfer.
func (e *Engine) Withdraw(ref, paymentRef [32]byte, caller, destination [20]byte, settlement string) error {
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return err
	}
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if esc.Status != StatusFundsReceived {
		return common.Wrap("escrow", fmt.Errorf("%w: cannot withdraw in status %s", common.ErrWrongState, esc.Status))
	}
	if !esc.ReleaseFund {
		return common.Wrap("escrow", common.ErrReleaseNotSet)
	}
	if caller != esc.Owner {
		return common.Wrap("escrow", common.ErrUnauthorized)
	}
	if _, err := e.boundPayment(esc, paymentRef); err != nil {
		return err
	}
	if destination != esc.Seller {
		return common.Wrap("escrow", common.ErrDestinationMismatch)
	}
	if err := e.expectVault(esc, esc.Amount); err != nil {
		return err
	}
	if err := e.state.Transfer(esc.Vault, esc.Seller, esc.Amount); err != nil {
		return common.Wrap("escrow", err)
	}
	if err := e.expectVault(esc, 0); err != nil {
		return err
	}
	esc.Status = StatusSwapSuccess
	esc.ReleaseFund = false
	esc.UpdatedAt = e.now()
	if err := e.storeEscrow(ref, esc); err != nil {
		return err
	}
	if err := e.payments.MarkSettled(paymentRef, payment.StatusSuccess, settlement); err != nil {
		return err
	}
	e.emit(events.Transfer{From: esc.Vault, To: esc.Seller, Amount: esc.Amount, Reason: "escrow.withdraw"})
	e.emit(ReleasedEvent{Ref: ref, Escrow: esc.Clone()})
	return nil
}

// Refund returns locked funds to whoever deposited them once the refund
// window has opened, and marks the payment failed.
func (e *Engine) Refund(ref, paymentRef [32]byte, caller [20]byte) error {
	if err := common.Guard(e.pauses, common.ModuleEscrow); err != nil {
		return err
	}
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if esc.Status != StatusFundsReceived {
		return common.Wrap("escrow", fmt.Errorf("%w: cannot refund in status %s", common.ErrWrongState, esc.Status))
	}
	if !esc.ReleaseFund {
		return common.Wrap("escrow", common.ErrReleaseNotSet)
	}
	if caller != esc.Owner && caller != esc.Buyer {
		return common.Wrap("escrow", common.ErrUnauthorized)
	}
	if _, err := e.boundPayment(esc, paymentRef); err != nil {
		return err
	}
	if e.now() < esc.RefundAfter {
		return common.Wrap("escrow", common.ErrRefundNotAvailable)
	}
	if err := e.expectVault(esc, esc.Amount); err != nil {
		return err
	}
	recipient := esc.Funder
	if common.IsZeroAddress(recipient) {
		recipient = esc.Buyer
	}
	if err := e.state.Transfer(esc.Vault, recipient, esc.Amount); err != nil {
		return common.Wrap("escrow", err)
	}
	if err := e.expectVault(esc, 0); err != nil {
		return err
	}
	esc.Status = StatusRefunded
	esc.ReleaseFund = false
	esc.UpdatedAt = e.now()
	if err := e.storeEscrow(ref, esc); err != nil {
		return err
	}
	if err := e.payments.MarkSettled(paymentRef, payment.StatusFailed, ""); err != nil {
		return err
	}
	e.emit(events.Transfer{From: esc.Vault, To: recipient, Amount: esc.Amount, Reason: "escrow.refund"})
	e.emit(RefundedEvent{Ref: ref, Escrow: esc.Clone()})
	return nil
}

// validParties rejects zero, identical and module-owned buyer or seller
// addresses. Funds sent to the escrow's own vault or the deposit pool would
// never leave custody.
func validParties(ref [32]byte, buyer, seller [20]byte) bool {
	if common.IsZeroAddress(buyer) || common.IsZeroAddress(seller) || buyer == seller {
		return false
	}
	vault := common.VaultAddress(ref)
	pool := common.DepositPoolAddress()
	for _, party := range [][20]byte{buyer, seller} {
		if party == vault || party == pool {
			return false
		}
	}
	return true
}

// boundPayment loads the payment the escrow was opened against. A payment in
// the same slot with a different id is a later, unrelated payment.
func (e *Engine) boundPayment(esc *Escrow, paymentRef [32]byte) (*payment.Payment, error) {
	if esc.PaymentRef != paymentRef {
		return nil, common.Wrap("escrow", common.ErrPaymentMismatch)
	}
	pay, ok, err := e.state.PaymentGet(paymentRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Wrap("escrow", common.ErrPaymentMissing)
	}
	if pay.ID != esc.PaymentID {
		return nil, common.Wrap("escrow", common.ErrPaymentMismatch)
	}
	return pay, nil
}

// BoundTo reports whether esc was opened against pay.
func (esc *Escrow) BoundTo(paymentRef [32]byte, pay *payment.Payment) bool {
	return esc != nil && pay != nil && esc.PaymentRef == paymentRef && esc.PaymentID == pay.ID
}

// Close destroys a terminal escrow together with its (empty) vault and returns
// the storage deposit to the owner.
func (e *Engine) Close(ref [32]byte, caller [20]byte) error {
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if !esc.Terminal() {
		return common.Wrap("escrow", fmt.Errorf("%w: cannot close in status %s", common.ErrWrongState, esc.Status))
	}
	if caller != esc.Owner {
		return common.Wrap("escrow", common.ErrUnauthorized)
	}
	if err := e.expectVault(esc, 0); err != nil {
		return err
	}
	return e.destroy(ref, esc, false)
}

// ForceClose destroys the escrow in any state provided its vault is empty.
// It exists for records stuck before funding and is reachable only through
// the lifecycle manager's gated path.
func (e *Engine) ForceClose(ref [32]byte, caller [20]byte) error {
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if caller != esc.Owner {
		return common.Wrap("escrow", common.ErrUnauthorized)
	}
	balance, err := e.state.Balance(esc.Vault)
	if err != nil {
		return err
	}
	if balance != 0 {
		return common.Wrap("escrow", fmt.Errorf("%w: vault holds %d", common.ErrVaultNotEmpty, balance))
	}
	return e.destroy(ref, esc, true)
}

func (e *Engine) destroy(ref [32]byte, esc *Escrow, forced bool) error {
	if esc.Deposit > 0 {
		if err := e.state.Transfer(common.DepositPoolAddress(), esc.Owner, esc.Deposit); err != nil {
			return common.Wrap("escrow", err)
		}
	}
	if err := e.state.EscrowDelete(ref); err != nil {
		return err
	}
	e.emit(ClosedEvent{Ref: ref, Escrow: esc.Clone(), Forced: forced})
	return nil
}
