package payment

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"

	"ecomchain/core/events"
	"ecomchain/native/common"
)

var (
	errNilState = errors.New("payment engine: state not configured")

	idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ecomchain/payment"))
)

const sequenceName = "payment"

type engineState interface {
	PaymentGet(ref [32]byte) (*Payment, bool, error)
	PaymentPut(ref [32]byte, p *Payment) error
	PaymentDelete(ref [32]byte) error
	NextSequence(name string) (uint64, error)
	Transfer(from, to [20]byte, amount uint64) error
}

// Engine owns the payment ledger entries. A fresh engine is built for every
// transition around the transition's state view.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	deposit uint64
	nowFn   func() int64
}

// NewEngine creates a payment engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the module pause switch.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetRecordDeposit configures the storage deposit charged per payment.
func (e *Engine) SetRecordDeposit(amount uint64) { e.deposit = amount }

// SetNowFunc overrides the time source used by the engine.
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

// Ref returns the record reference of owner's payment slot.
func Ref(owner [20]byte) [32]byte {
	return common.Derive(common.NamespacePayment, owner)
}

func (e *Engine) load(ref [32]byte) (*Payment, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, ok, err := e.state.PaymentGet(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Wrap("payment", common.ErrPaymentMissing)
	}
	return p, nil
}

// Get returns the payment stored at ref.
func (e *Engine) Get(ref [32]byte) (*Payment, error) {
	p, err := e.load(ref)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func newPaymentID(owner [20]byte, createdAt int64, seq uint64) [16]byte {
	buf := make([]byte, 0, 20+16)
	buf = append(buf, owner[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt))
	buf = binary.BigEndian.AppendUint64(buf, seq)
	return [16]byte(uuid.NewSHA1(idNamespace, buf))
}

// Create opens a Pending payment in owner's slot. Retrying with the same
// amount and method while the payment is still Pending returns the stored
// record with OutcomeExisting.
func (e *Engine) Create(owner [20]byte, amount uint64, method Method, product [20]byte) (*Payment, common.Outcome, error) {
	if e == nil || e.state == nil {
		return nil, common.OutcomeCreated, errNilState
	}
	if err := common.Guard(e.pauses, common.ModulePayment); err != nil {
		return nil, common.OutcomeCreated, err
	}
	if amount == 0 {
		return nil, common.OutcomeCreated, common.Wrap("payment", common.ErrInvalidAmount)
	}
	if !method.Valid() {
		return nil, common.OutcomeCreated, common.Wrap("payment", common.ErrUnsupportedMethod)
	}
	ref := Ref(owner)
	existing, ok, err := e.state.PaymentGet(ref)
	if err != nil {
		return nil, common.OutcomeCreated, err
	}
	if ok {
		if existing.Owner != owner {
			return nil, common.OutcomeCreated, common.Wrap("payment", common.ErrDerivationMismatch)
		}
		if existing.Status == StatusPending && existing.Amount == amount && existing.Method == method && existing.Product == product {
			return existing.Clone(), common.OutcomeExisting, nil
		}
		return nil, common.OutcomeCreated, common.Wrap("payment", common.ErrPaymentSlotOccupied)
	}
	seq, err := e.state.NextSequence(sequenceName)
	if err != nil {
		return nil, common.OutcomeCreated, err
	}
	if e.deposit > 0 {
		if err := e.state.Transfer(owner, common.DepositPoolAddress(), e.deposit); err != nil {
			return nil, common.OutcomeCreated, common.Wrap("payment", err)
		}
	}
	now := e.now()
	p := &Payment{
		ID:        newPaymentID(owner, now, seq),
		Owner:     owner,
		Product:   product,
		Amount:    amount,
		Method:    method,
		Status:    StatusPending,
		Deposit:   e.deposit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.state.PaymentPut(ref, p); err != nil {
		return nil, common.OutcomeCreated, err
	}
	e.emit(CreatedEvent{Ref: ref, Payment: p.Clone()})
	return p.Clone(), common.OutcomeCreated, nil
}

// MarkSettled moves a Pending payment to Success or Failed. It is reserved for
// the escrow settlement path and is not exposed to clients.
func (e *Engine) MarkSettled(ref [32]byte, outcome Status, txSignature string) error {
	p, err := e.load(ref)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return common.Wrap("payment", common.ErrAlreadySettled)
	}
	switch outcome {
	case StatusSuccess:
		p.TxSignature = txSignature
	case StatusFailed:
		p.TxSignature = ""
	default:
		return common.Wrap("payment", common.ErrWrongState)
	}
	p.Status = outcome
	p.UpdatedAt = e.now()
	if err := e.state.PaymentPut(ref, p); err != nil {
		return err
	}
	e.emit(SettledEvent{Ref: ref, Payment: p.Clone()})
	return nil
}

// Close destroys a settled payment and returns its storage deposit.
func (e *Engine) Close(ref [32]byte, caller [20]byte) error {
	p, err := e.load(ref)
	if err != nil {
		return err
	}
	if p.Owner != caller {
		return common.Wrap("payment", common.ErrUnauthorized)
	}
	if p.Status == StatusPending {
		return common.Wrap("payment", common.ErrStillActive)
	}
	return e.destroy(ref, p)
}

// ForceClose destroys the payment regardless of status. Only the lifecycle
// manager's administrative path uses it, after verifying the vault is empty.
func (e *Engine) ForceClose(ref [32]byte, caller [20]byte) error {
	p, err := e.load(ref)
	if err != nil {
		return err
	}
	if p.Owner != caller {
		return common.Wrap("payment", common.ErrUnauthorized)
	}
	return e.destroy(ref, p)
}

func (e *Engine) destroy(ref [32]byte, p *Payment) error {
	if p.Deposit > 0 {
		if err := e.state.Transfer(common.DepositPoolAddress(), p.Owner, p.Deposit); err != nil {
			return common.Wrap("payment", err)
		}
	}
	if err := e.state.PaymentDelete(ref); err != nil {
		return err
	}
	e.emit(ClosedEvent{Ref: ref, Payment: p.Clone()})
	return nil
}
