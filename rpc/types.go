package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ecomchain/core"
	"ecomchain/crypto"
	"ecomchain/native/bank"
	"ecomchain/native/common"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codeStateConflict  = -32030
	codeNotFound       = -32031
	codeConsistency    = -32032
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps a typed engine failure onto a JSON-RPC code and HTTP
// status. The stable error code travels in the data field.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	var data interface{}
	if code := common.CodeOf(err); code != "" {
		data = map[string]string{"code": code}
	}
	if errors.Is(err, core.ErrNodeClosed) {
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
		return
	}
	switch common.KindOf(err) {
	case common.KindValidation:
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), data)
	case common.KindState:
		writeError(w, http.StatusConflict, id, codeStateConflict, err.Error(), data)
	case common.KindAuthorization:
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), data)
	case common.KindNotFound:
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error(), data)
	case common.KindConsistency:
		writeError(w, http.StatusInternalServerError, id, codeConsistency, err.Error(), data)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
	}
}

func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	dec := json.NewDecoder(strings.NewReader(string(req.Params[0])))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func parseAddressParam(field, value string) ([20]byte, *RPCError) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s required", field)}
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s", field), Data: err.Error()}
	}
	return addr, nil
}

func parseOptionalAddress(field, value string) ([20]byte, *RPCError) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAddressParam(field, value)
}

func parseRefParam(field, value string) ([32]byte, *RPCError) {
	ref, err := bank.ParseTxRef(value)
	if err != nil {
		return ref, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s", field), Data: err.Error()}
	}
	return ref, nil
}

func parseAmountParam(value string) (uint64, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, &RPCError{Code: codeInvalidParams, Message: "amount required"}
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, &RPCError{Code: codeInvalidParams, Message: "invalid amount", Data: err.Error()}
	}
	return amount, nil
}

func formatRef(ref [32]byte) string { return bank.FormatTxRef(ref) }

func formatOptionalAddress(addr [20]byte) string {
	if common.IsZeroAddress(addr) {
		return ""
	}
	return crypto.FormatAddress(addr)
}
