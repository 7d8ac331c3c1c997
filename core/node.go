package core

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecomchain/core/events"
	"ecomchain/core/state"
	"ecomchain/core/types"
	"ecomchain/native/common"
	"ecomchain/native/escrow"
	"ecomchain/native/lifecycle"
	"ecomchain/native/order"
	"ecomchain/native/payment"
	"ecomchain/observability"
	ecomotel "ecomchain/observability/otel"
	"ecomchain/storage"
)

// ErrNodeClosed is returned by operations invoked after Close.
var ErrNodeClosed = errors.New("node closed")

const txSequence = "tx"

// Params carries the commerce policy applied to every transition.
type Params struct {
	RecordDeposit   uint64
	RefundTimeout   time.Duration
	AllowForceClose bool
	PausedModules   []string
}

// EventSink receives committed events after each transition.
type EventSink interface {
	Index(ctx context.Context, events []*types.Event) error
}

// Receipt identifies a committed transition.
type Receipt struct {
	TxRef   [32]byte
	Outcome common.Outcome
}

// TxRefHex renders the receipt reference as 0x-prefixed hex.
func (r Receipt) TxRefHex() string { return "0x" + hex.EncodeToString(r.TxRef[:]) }

// Node is the central controller: it serialises transitions, runs each one
// against a fresh state overlay and publishes the events of committed ones.
type Node struct {
	db      storage.Database
	params  Params
	pauses  common.PausedSet
	logger  *slog.Logger
	tracer  trace.Tracer
	nowFn   func() int64
	stateMu sync.Mutex
	closed  bool

	sinkMu sync.RWMutex
	sinks  []EventSink

	subMu   sync.RWMutex
	subs    map[int]chan *types.Event
	nextSub int
}

// NewNode wires a node over db.
func NewNode(db storage.Database, params Params, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	if params.RefundTimeout <= 0 {
		params.RefundTimeout = escrow.DefaultRefundTimeout
	}
	return &Node{
		db:     db,
		params: params,
		pauses: common.NewPausedSet(params.PausedModules),
		logger: logger.With(slog.String("component", "node")),
		tracer: ecomotel.Tracer(),
		nowFn:  func() int64 { return time.Now().Unix() },
		subs:   make(map[int]chan *types.Event),
	}
}

// SetNowFunc overrides the clock used by the engines.
func (n *Node) SetNowFunc(now func() int64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// AddEventSink registers a sink for committed events.
func (n *Node) AddEventSink(sink EventSink) {
	if sink == nil {
		return
	}
	n.sinkMu.Lock()
	n.sinks = append(n.sinks, sink)
	n.sinkMu.Unlock()
}

// Subscribe returns a channel of committed events. Slow subscribers drop
// events rather than stall transitions. The returned func unsubscribes.
func (n *Node) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *types.Event, buffer)
	n.subMu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	n.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.subMu.Lock()
			defer n.subMu.Unlock()
			if _, ok := n.subs[id]; ok {
				delete(n.subs, id)
				close(ch)
			}
		})
	}
}

// Close stops accepting transitions. The database is owned by the caller.
func (n *Node) Close() {
	n.stateMu.Lock()
	n.closed = true
	n.stateMu.Unlock()
	n.subMu.Lock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	n.subMu.Unlock()
}

type eventCollector struct {
	events []events.Event
}

func (c *eventCollector) Emit(evt events.Event) {
	if evt != nil {
		c.events = append(c.events, evt)
	}
}

// txn is the per-transition view: one state manager and engines bound to it.
type txn struct {
	ref       [32]byte
	manager   *state.Manager
	payments  *payment.Engine
	escrows   *escrow.Engine
	orders    *order.Engine
	lifecycle *lifecycle.Manager
	collector *eventCollector
}

func (n *Node) newTxn(manager *state.Manager, ref [32]byte) *txn {
	collector := &eventCollector{}

	payments := payment.NewEngine()
	payments.SetState(manager)
	payments.SetEmitter(collector)
	payments.SetPauses(n.pauses)
	payments.SetRecordDeposit(n.params.RecordDeposit)
	payments.SetNowFunc(n.nowFn)

	escrows := escrow.NewEngine(payments)
	escrows.SetState(manager)
	escrows.SetEmitter(collector)
	escrows.SetPauses(n.pauses)
	escrows.SetRecordDeposit(n.params.RecordDeposit)
	escrows.SetRefundTimeout(n.params.RefundTimeout)
	escrows.SetNowFunc(n.nowFn)

	orders := order.NewEngine()
	orders.SetState(manager)
	orders.SetEmitter(collector)
	orders.SetPauses(n.pauses)
	orders.SetRecordDeposit(n.params.RecordDeposit)
	orders.SetNowFunc(n.nowFn)

	closer := lifecycle.NewManager(payments, escrows)
	closer.SetAllowForceClose(n.params.AllowForceClose)

	return &txn{
		ref:       ref,
		manager:   manager,
		payments:  payments,
		escrows:   escrows,
		orders:    orders,
		lifecycle: closer,
		collector: collector,
	}
}

func deriveTxRef(op string, seq uint64) [32]byte {
	buf := make([]byte, 0, len(op)+8)
	buf = append(buf, op...)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	return ethcrypto.Keccak256Hash(buf)
}

// apply runs fn as one atomic transition. Either every write fn made, plus the
// events it emitted, lands in a single batch, or nothing does.
func (n *Node) apply(ctx context.Context, op string, fn func(tx *txn) error) (receipt Receipt, err error) {
	start := time.Now()
	ctx, span := n.tracer.Start(ctx, "commerce."+op, trace.WithAttributes(attribute.String("commerce.operation", op)))
	defer span.End()

	n.stateMu.Lock()
	committed, err := n.applyLocked(op, fn, &receipt)
	n.stateMu.Unlock()

	result := "ok"
	if err != nil {
		result = common.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logFailure(op, err)
	} else {
		span.SetAttributes(attribute.String("commerce.tx_ref", receipt.TxRefHex()))
		n.publish(ctx, committed)
	}
	observability.Commerce().ObserveTransition(op, result, time.Since(start))
	return receipt, err
}

func (n *Node) applyLocked(op string, fn func(tx *txn) error, receipt *Receipt) ([]*types.Event, error) {
	if n.closed {
		return nil, ErrNodeClosed
	}
	manager := state.NewManager(n.db)
	seq, err := manager.NextSequence(txSequence)
	if err != nil {
		manager.Discard()
		return nil, err
	}
	receipt.TxRef = deriveTxRef(op, seq)
	tx := n.newTxn(manager, receipt.TxRef)
	if err := fn(tx); err != nil {
		manager.Discard()
		return nil, err
	}
	committed := make([]*types.Event, 0, len(tx.collector.events))
	txRefHex := receipt.TxRefHex()
	for _, evt := range tx.collector.events {
		payload, ok := evt.(events.Payload)
		if !ok {
			continue
		}
		rendered := payload.Event()
		if rendered == nil {
			continue
		}
		if rendered.Attributes == nil {
			rendered.Attributes = make(map[string]string)
		}
		rendered.Attributes["txRef"] = txRefHex
		if _, err := manager.AppendEvent(rendered); err != nil {
			manager.Discard()
			return nil, err
		}
		committed = append(committed, rendered)
	}
	if err := manager.Commit(); err != nil {
		return nil, err
	}
	return committed, nil
}

func (n *Node) logFailure(op string, err error) {
	kind := common.KindOf(err)
	attrs := []any{
		slog.String("operation", op),
		slog.String("kind", kind.String()),
		slog.String("code", common.CodeOf(err)),
		slog.String("error", err.Error()),
	}
	if kind == common.KindConsistency {
		if errors.Is(err, common.ErrVaultBalanceMismatch) || errors.Is(err, common.ErrVaultNotEmpty) {
			observability.Commerce().RecordVaultViolation()
		}
		n.logger.Error("consistency failure", attrs...)
		return
	}
	n.logger.Debug("transition rejected", attrs...)
}

func (n *Node) publish(ctx context.Context, committed []*types.Event) {
	if len(committed) == 0 {
		return
	}
	metrics := observability.Events()
	for _, evt := range committed {
		metrics.RecordEvent(evt.Type)
		if evt.Type == events.TypeTransfer {
			metrics.RecordTransfer(evt.Attributes["reason"])
		}
	}
	n.subMu.RLock()
	for _, ch := range n.subs {
		for _, evt := range committed {
			select {
			case ch <- evt.Clone():
			default:
			}
		}
	}
	n.subMu.RUnlock()

	n.sinkMu.RLock()
	sinks := append([]EventSink(nil), n.sinks...)
	n.sinkMu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Index(ctx, committed); err != nil {
			n.logger.Warn("event sink failed", slog.String("error", err.Error()), slog.Int("events", len(committed)))
		}
	}
}

// view runs fn against a read-only snapshot of state.
func (n *Node) view(fn func(tx *txn) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	manager := state.NewManager(n.db)
	defer manager.Discard()
	return fn(n.newTxn(manager, [32]byte{}))
}
