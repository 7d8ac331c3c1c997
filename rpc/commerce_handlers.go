package rpc

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"ecomchain/core"
	"ecomchain/core/types"
	"ecomchain/crypto"
	"ecomchain/native/common"
	"ecomchain/native/escrow"
	"ecomchain/native/order"
	"ecomchain/native/payment"
	"ecomchain/services/indexer"
)

const maxEventPage = 500

func (s *Server) commerceMethods() map[string]method {
	return map[string]method{
		"commerce_createPayment":  {fn: s.createPayment, mutating: true},
		"commerce_closePayment":   {fn: s.closePayment, mutating: true},
		"commerce_createEscrow":   {fn: s.createEscrow, mutating: true},
		"commerce_depositEscrow":  {fn: s.depositEscrow, mutating: true},
		"commerce_withdrawEscrow": {fn: s.withdrawEscrow, mutating: true},
		"commerce_refundEscrow":   {fn: s.refundEscrow, mutating: true},
		"commerce_closeEscrow":    {fn: s.closeEscrow, mutating: true},
		"commerce_closeAll":       {fn: s.closeAll, mutating: true},
		"commerce_forceCloseAll":  {fn: s.forceCloseAll, mutating: true},
		"commerce_createOrder":    {fn: s.createOrder, mutating: true},
		"commerce_updateOrder":    {fn: s.updateOrder, mutating: true},
		"commerce_closeOrder":     {fn: s.closeOrder, mutating: true},
		"commerce_getPayment":     {fn: s.getPayment},
		"commerce_getEscrow":      {fn: s.getEscrow},
		"commerce_getOrder":       {fn: s.getOrder},
		"commerce_getBalance":     {fn: s.getBalance},
		"commerce_deriveRefs":     {fn: s.deriveRefs},
		"commerce_listEvents":     {fn: s.listEvents},
		"commerce_stateRoot":      {fn: s.stateRoot},
	}
}

type paymentJSON struct {
	Ref         string `json:"ref"`
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Product     string `json:"product,omitempty"`
	Amount      uint64 `json:"amount"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	TxSignature string `json:"txSignature,omitempty"`
	Deposit     uint64 `json:"deposit"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type escrowJSON struct {
	Ref          string `json:"ref"`
	Owner        string `json:"owner"`
	Buyer        string `json:"buyer"`
	Seller       string `json:"seller"`
	Amount       uint64 `json:"amount"`
	Status       string `json:"status"`
	ReleaseFund  bool   `json:"releaseFund"`
	PaymentRef   string `json:"paymentRef"`
	PaymentID    string `json:"paymentId"`
	Vault        string `json:"vault"`
	VaultBalance uint64 `json:"vaultBalance"`
	Funder       string `json:"funder,omitempty"`
	Deposit      uint64 `json:"deposit"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	FundedAt     int64  `json:"fundedAt,omitempty"`
	RefundAfter  int64  `json:"refundAfter,omitempty"`
}

type orderJSON struct {
	Ref        string `json:"ref"`
	ID         string `json:"id"`
	Status     string `json:"status"`
	Tracking   string `json:"tracking"`
	PaymentRef string `json:"paymentRef"`
	PaymentID  string `json:"paymentId"`
	Placer     string `json:"placer"`
	Deposit    uint64 `json:"deposit"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

type receiptJSON struct {
	TxRef   string `json:"txRef"`
	Outcome string `json:"outcome,omitempty"`
}

type eventJSON struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatPayment(ref [32]byte, p *payment.Payment) paymentJSON {
	return paymentJSON{
		Ref:         formatRef(ref),
		ID:          p.IDString(),
		Owner:       crypto.FormatAddress(p.Owner),
		Product:     formatOptionalAddress(p.Product),
		Amount:      p.Amount,
		Method:      p.Method.String(),
		Status:      p.Status.String(),
		TxSignature: p.TxSignature,
		Deposit:     p.Deposit,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func formatEscrow(ref [32]byte, esc *escrow.Escrow, vault uint64) escrowJSON {
	return escrowJSON{
		Ref:          formatRef(ref),
		Owner:        crypto.FormatAddress(esc.Owner),
		Buyer:        crypto.FormatAddress(esc.Buyer),
		Seller:       crypto.FormatAddress(esc.Seller),
		Amount:       esc.Amount,
		Status:       esc.Status.String(),
		ReleaseFund:  esc.ReleaseFund,
		PaymentRef:   formatRef(esc.PaymentRef),
		PaymentID:    uuid.UUID(esc.PaymentID).String(),
		Vault:        crypto.FormatAddress(esc.Vault),
		VaultBalance: vault,
		Funder:       formatOptionalAddress(esc.Funder),
		Deposit:      esc.Deposit,
		CreatedAt:    esc.CreatedAt,
		UpdatedAt:    esc.UpdatedAt,
		FundedAt:     esc.FundedAt,
		RefundAfter:  esc.RefundAfter,
	}
}

func formatOrder(ref [32]byte, o *order.Order) orderJSON {
	return orderJSON{
		Ref:        formatRef(ref),
		ID:         o.IDString(),
		Status:     o.Status.String(),
		Tracking:   o.Tracking.String(),
		PaymentRef: formatRef(o.PaymentRef),
		PaymentID:  uuid.UUID(o.PaymentID).String(),
		Placer:     crypto.FormatAddress(o.Placer),
		Deposit:    o.Deposit,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func formatReceipt(receipt core.Receipt, withOutcome bool) receiptJSON {
	out := receiptJSON{TxRef: receipt.TxRefHex()}
	if withOutcome {
		out.Outcome = receipt.Outcome.String()
	}
	return out
}

type createPaymentParams struct {
	Amount  string `json:"amount"`
	Method  string `json:"method,omitempty"`
	Product string `json:"product,omitempty"`
}

func (s *Server) createPayment(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params createPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	amount, rpcErr := parseAmountParam(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	methodTag, err := payment.ParseMethod(params.Method)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid method", Data: err.Error()}
	}
	product, rpcErr := parseOptionalAddress("product", params.Product)
	if rpcErr != nil {
		return nil, rpcErr
	}
	created, receipt, err := s.node.CreatePayment(ctx, caller, amount, methodTag, product)
	if err != nil {
		return nil, err
	}
	return struct {
		Payment paymentJSON `json:"payment"`
		receiptJSON
	}{formatPayment(payment.Ref(caller), created), formatReceipt(receipt, true)}, nil
}

type paymentRefParams struct {
	PaymentRef string `json:"paymentRef"`
}

func (s *Server) closePayment(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params paymentRefParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("paymentRef", params.PaymentRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.ClosePayment(ctx, ref, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

type createEscrowParams struct {
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	Amount     string `json:"amount"`
	PaymentRef string `json:"paymentRef"`
}

func (s *Server) createEscrow(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params createEscrowParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := parseAddressParam("buyer", params.Buyer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseAddressParam("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmountParam(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	paymentRef, rpcErr := parseRefParam("paymentRef", params.PaymentRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	opened, receipt, err := s.node.OpenEscrow(ctx, caller, buyer, seller, amount, paymentRef)
	if err != nil {
		return nil, err
	}
	return struct {
		Escrow escrowJSON `json:"escrow"`
		receiptJSON
	}{formatEscrow(escrow.Ref(caller), opened, 0), formatReceipt(receipt, true)}, nil
}

type escrowPaymentParams struct {
	EscrowRef   string `json:"escrowRef"`
	PaymentRef  string `json:"paymentRef"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
}

func parseEscrowPayment(params escrowPaymentParams) ([32]byte, [32]byte, *RPCError) {
	escrowRef, rpcErr := parseRefParam("escrowRef", params.EscrowRef)
	if rpcErr != nil {
		return escrowRef, [32]byte{}, rpcErr
	}
	paymentRef, rpcErr := parseRefParam("paymentRef", params.PaymentRef)
	if rpcErr != nil {
		return escrowRef, paymentRef, rpcErr
	}
	return escrowRef, paymentRef, nil
}

func (s *Server) depositEscrow(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	escrowRef, paymentRef, rpcErr := parseEscrowPayment(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	source := caller
	if strings.TrimSpace(params.Source) != "" {
		source, rpcErr = parseAddressParam("source", params.Source)
		if rpcErr != nil {
			return nil, rpcErr
		}
	}
	receipt, err := s.node.DepositEscrow(ctx, escrowRef, paymentRef, caller, source)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

func (s *Server) withdrawEscrow(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	escrowRef, paymentRef, rpcErr := parseEscrowPayment(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	destination, rpcErr := parseAddressParam("destination", params.Destination)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.WithdrawEscrow(ctx, escrowRef, paymentRef, caller, destination)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

func (s *Server) refundEscrow(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	escrowRef, paymentRef, rpcErr := parseEscrowPayment(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.RefundEscrow(ctx, escrowRef, paymentRef, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

type escrowRefParams struct {
	EscrowRef string `json:"escrowRef"`
}

func (s *Server) closeEscrow(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowRefParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("escrowRef", params.EscrowRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.CloseEscrow(ctx, ref, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

func (s *Server) closeAll(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	escrowRef, paymentRef, rpcErr := parseEscrowPayment(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.CloseAll(ctx, escrowRef, paymentRef, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

func (s *Server) forceCloseAll(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params escrowPaymentParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	escrowRef, paymentRef, rpcErr := parseEscrowPayment(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.ForceCloseAll(ctx, escrowRef, paymentRef, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

func (s *Server) createOrder(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params paymentRefParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	paymentRef, rpcErr := parseRefParam("paymentRef", params.PaymentRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	placed, ref, receipt, err := s.node.PlaceOrder(ctx, caller, paymentRef)
	if err != nil {
		return nil, err
	}
	return struct {
		Order orderJSON `json:"order"`
		receiptJSON
	}{formatOrder(ref, placed), formatReceipt(receipt, true)}, nil
}

type updateOrderParams struct {
	OrderRef string `json:"orderRef"`
	Tracking string `json:"tracking"`
}

func (s *Server) updateOrder(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params updateOrderParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("orderRef", params.OrderRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	target, err := order.ParseTracking(params.Tracking)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid tracking", Data: err.Error()}
	}
	receipt, err := s.node.UpdateOrder(ctx, ref, caller, target)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

type orderRefParams struct {
	OrderRef string `json:"orderRef"`
}

func (s *Server) closeOrder(ctx context.Context, caller [20]byte, req *RPCRequest) (interface{}, error) {
	var params orderRefParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("orderRef", params.OrderRef)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.CloseOrder(ctx, ref, caller)
	if err != nil {
		return nil, err
	}
	return formatReceipt(receipt, false), nil
}

type refParams struct {
	Ref string `json:"ref"`
}

func (s *Server) getPayment(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	var params refParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("ref", params.Ref)
	if rpcErr != nil {
		return nil, rpcErr
	}
	p, err := s.node.Payment(ref)
	if err != nil {
		return nil, err
	}
	return formatPayment(ref, p), nil
}

func (s *Server) getEscrow(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	var params refParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("ref", params.Ref)
	if rpcErr != nil {
		return nil, rpcErr
	}
	esc, vault, err := s.node.Escrow(ref)
	if err != nil {
		return nil, err
	}
	return formatEscrow(ref, esc, vault), nil
}

func (s *Server) getOrder(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	var params refParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	ref, rpcErr := parseRefParam("ref", params.Ref)
	if rpcErr != nil {
		return nil, rpcErr
	}
	o, err := s.node.Order(ref)
	if err != nil {
		return nil, err
	}
	return formatOrder(ref, o), nil
}

type balanceParams struct {
	Address string `json:"address"`
}

func (s *Server) getBalance(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddressParam("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, err
	}
	return struct {
		Address string `json:"address"`
		Balance uint64 `json:"balance"`
	}{crypto.FormatAddress(addr), balance}, nil
}

type deriveRefsParams struct {
	Owner     string `json:"owner"`
	Signer    string `json:"signer,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
}

type deriveRefsResult struct {
	PaymentRef string `json:"paymentRef"`
	EscrowRef  string `json:"escrowRef"`
	Vault      string `json:"vault"`
	OrderRef   string `json:"orderRef,omitempty"`
	OrderID    string `json:"orderId,omitempty"`
}

// deriveRefs computes record references without touching state.
func (s *Server) deriveRefs(_ context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	var params deriveRefsParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := parseAddressParam("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	escrowRef := escrow.Ref(owner)
	result := deriveRefsResult{
		PaymentRef: formatRef(payment.Ref(owner)),
		EscrowRef:  formatRef(escrowRef),
		Vault:      crypto.FormatAddress(common.VaultAddress(escrowRef)),
	}
	if strings.TrimSpace(params.PaymentID) != "" {
		id, err := uuid.Parse(params.PaymentID)
		if err != nil {
			return nil, &RPCError{Code: codeInvalidParams, Message: "invalid paymentId", Data: err.Error()}
		}
		signer := owner
		if strings.TrimSpace(params.Signer) != "" {
			signer, rpcErr = parseAddressParam("signer", params.Signer)
			if rpcErr != nil {
				return nil, rpcErr
			}
		}
		result.OrderRef = formatRef(order.Ref(signer, id))
		result.OrderID = uuid.UUID(order.DeriveID(id)).String()
	}
	return result, nil
}

type listEventsParams struct {
	After uint64 `json:"after,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Type  string `json:"type,omitempty"`
	Ref   string `json:"ref,omitempty"`
	TxRef string `json:"txRef,omitempty"`
	Owner string `json:"owner,omitempty"`
}

func (p listEventsParams) filtered() bool {
	return p.Type != "" || p.Ref != "" || p.TxRef != "" || p.Owner != ""
}

// listEvents pages through the event log. Filtered queries use the SQL index
// when one is configured and fall back to scanning the log otherwise.
func (s *Server) listEvents(ctx context.Context, _ [20]byte, req *RPCRequest) (interface{}, error) {
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
	}
	if params.Limit <= 0 || params.Limit > maxEventPage {
		params.Limit = maxEventPage
	}
	if params.filtered() && s.events != nil {
		records, err := s.events.List(ctx, indexer.Filter{
			Type:     params.Type,
			Ref:      params.Ref,
			TxRef:    params.TxRef,
			Owner:    params.Owner,
			AfterSeq: params.After,
			Limit:    params.Limit,
		})
		if err != nil {
			return nil, err
		}
		out := make([]eventJSON, 0, len(records))
		for _, record := range records {
			out = append(out, eventJSON{Sequence: record.Sequence, Type: record.Type, Attributes: record.Attributes})
		}
		return out, nil
	}
	if !params.filtered() {
		logged, err := s.node.Events(params.After, params.Limit)
		if err != nil {
			return nil, err
		}
		out := make([]eventJSON, 0, len(logged))
		for _, evt := range logged {
			out = append(out, eventJSON{Sequence: evt.Sequence, Type: evt.Type, Attributes: evt.Attributes})
		}
		return out, nil
	}
	out := make([]eventJSON, 0)
	cursor := params.After
	for len(out) < params.Limit {
		logged, err := s.node.Events(cursor, maxEventPage)
		if err != nil {
			return nil, err
		}
		for _, evt := range logged {
			cursor = evt.Sequence
			if !matchesEvent(params, evt) {
				continue
			}
			out = append(out, eventJSON{Sequence: evt.Sequence, Type: evt.Type, Attributes: evt.Attributes})
			if len(out) >= params.Limit {
				break
			}
		}
		if len(logged) < maxEventPage {
			break
		}
	}
	return out, nil
}

func matchesEvent(params listEventsParams, evt *types.Event) bool {
	if params.Type != "" && evt.Type != params.Type {
		return false
	}
	if params.Ref != "" && evt.Attributes["ref"] != params.Ref {
		return false
	}
	if params.TxRef != "" && evt.Attributes["txRef"] != params.TxRef {
		return false
	}
	if params.Owner != "" && evt.Attributes["owner"] != params.Owner && evt.Attributes["placer"] != params.Owner {
		return false
	}
	return true
}

func (s *Server) stateRoot(_ context.Context, _ [20]byte, _ *RPCRequest) (interface{}, error) {
	root, err := s.node.StateRoot()
	if err != nil {
		return nil, err
	}
	return struct {
		Root string `json:"root"`
	}{formatRef(root)}, nil
}
