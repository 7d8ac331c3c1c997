package events

import (
	"encoding/hex"
	"strconv"
	"strings"

	"ecomchain/core/types"
	"ecomchain/crypto"
)

const (
	// TypeTransfer is emitted for every native balance movement.
	TypeTransfer = "transfer.native"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount uint64
	Reason string
	TxRef  [32]byte
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FormatAddress(e.From),
		"to":     crypto.FormatAddress(e.To),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	if e.TxRef != ([32]byte{}) {
		attrs["txRef"] = "0x" + hex.EncodeToString(e.TxRef[:])
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
