package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ecomchain/core/events"
	"ecomchain/native/common"
	"ecomchain/native/payment"
)

var (
	errNilState = errors.New("order engine: state not configured")

	idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ecomchain/order"))
)

type engineState interface {
	OrderGet(ref [32]byte) (*Order, bool, error)
	OrderPut(ref [32]byte, o *Order) error
	OrderDelete(ref [32]byte) error
	PaymentGet(ref [32]byte) (*payment.Payment, bool, error)
	Transfer(from, to [20]byte, amount uint64) error
}

// Engine manages order placement and shipment tracking.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  common.PauseView
	deposit uint64
	nowFn   func() int64
}

func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) SetRecordDeposit(amount uint64) { e.deposit = amount }

func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

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

// Ref returns the slot of signer's order for the payment with paymentID.
func Ref(signer [20]byte, paymentID [16]byte) [32]byte {
	return common.Derive(common.NamespaceOrder, signer, paymentID[:])
}

// DeriveID maps a payment id onto its order id.
func DeriveID(paymentID [16]byte) [16]byte {
	return [16]byte(uuid.NewSHA1(idNamespace, paymentID[:]))
}

func (e *Engine) load(ref [32]byte) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	o, ok, err := e.state.OrderGet(ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.Wrap("order", common.ErrNotFound)
	}
	return o, nil
}

// Get returns the order stored at ref.
func (e *Engine) Get(ref [32]byte) (*Order, error) {
	o, err := e.load(ref)
	if err != nil {
		return nil, err
	}
	return o.Clone(), nil
}

// Place records an order against an existing payment. Placing the same order
// again returns the stored record with OutcomeExisting.
func (e *Engine) Place(signer [20]byte, paymentRef [32]byte) (*Order, [32]byte, common.Outcome, error) {
	var ref [32]byte
	if e == nil || e.state == nil {
		return nil, ref, common.OutcomeCreated, errNilState
	}
	if err := common.Guard(e.pauses, common.ModuleOrder); err != nil {
		return nil, ref, common.OutcomeCreated, err
	}
	pay, ok, err := e.state.PaymentGet(paymentRef)
	if err != nil {
		return nil, ref, common.OutcomeCreated, err
	}
	if !ok {
		return nil, ref, common.OutcomeCreated, common.Wrap("order", common.ErrPaymentMissing)
	}
	ref = Ref(signer, pay.ID)
	existing, found, err := e.state.OrderGet(ref)
	if err != nil {
		return nil, ref, common.OutcomeCreated, err
	}
	if found {
		if existing.PaymentRef != paymentRef || existing.PaymentID != pay.ID {
			return nil, ref, common.OutcomeCreated, common.Wrap("order", common.ErrOrderPaymentMismatch)
		}
		return existing.Clone(), ref, common.OutcomeExisting, nil
	}
	if e.deposit > 0 {
		if err := e.state.Transfer(signer, common.DepositPoolAddress(), e.deposit); err != nil {
			return nil, ref, common.OutcomeCreated, common.Wrap("order", err)
		}
	}
	now := e.now()
	o := &Order{
		ID:         DeriveID(pay.ID),
		Status:     StatusPlaced,
		Tracking:   TrackingNone,
		PaymentRef: paymentRef,
		PaymentID:  pay.ID,
		Placer:     signer,
		Deposit:    e.deposit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.state.OrderPut(ref, o); err != nil {
		return nil, ref, common.OutcomeCreated, err
	}
	e.emit(PlacedEvent{Ref: ref, Order: o.Clone()})
	return o.Clone(), ref, common.OutcomeCreated, nil
}

// AdvanceTracking moves the order to a strictly later shipment stage.
func (e *Engine) AdvanceTracking(ref [32]byte, signer [20]byte, target Tracking) error {
	if err := common.Guard(e.pauses, common.ModuleOrder); err != nil {
		return err
	}
	if !target.Valid() {
		return common.Wrap("order", common.ErrInvalidTracking)
	}
	o, err := e.load(ref)
	if err != nil {
		return err
	}
	if o.Placer != signer {
		return common.Wrap("order", common.ErrUnauthorized)
	}
	if target <= o.Tracking {
		return common.Wrap("order", fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, o.Tracking, target))
	}
	previous := o.Tracking
	o.Tracking = target
	o.UpdatedAt = e.now()
	if err := e.state.OrderPut(ref, o); err != nil {
		return err
	}
	e.emit(TrackingEvent{Ref: ref, Order: o.Clone(), Previous: previous})
	return nil
}

// Close destroys the order and returns its storage deposit to the placer.
func (e *Engine) Close(ref [32]byte, signer [20]byte) error {
	o, err := e.load(ref)
	if err != nil {
		return err
	}
	if o.Placer != signer {
		return common.Wrap("order", common.ErrUnauthorized)
	}
	if o.Deposit > 0 {
		if err := e.state.Transfer(common.DepositPoolAddress(), o.Placer, o.Deposit); err != nil {
			return common.Wrap("order", err)
		}
	}
	if err := e.state.OrderDelete(ref); err != nil {
		return err
	}
	e.emit(ClosedEvent{Ref: ref, Order: o.Clone()})
	return nil
}
