package bank

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"ecomchain/core/types"
	"ecomchain/native/common"
)

const txRefHexLength = 64

// Ledger is the account store transfers operate on.
type Ledger interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// ParseTxRef normalises and validates a transaction reference expressed as a
// hex string. The returned array always contains the raw 32-byte reference.
func ParseTxRef(ref string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return out, fmt.Errorf("bank: tx ref required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != txRefHexLength {
		return out, fmt.Errorf("bank: tx ref must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("bank: decode tx ref: %w", err)
	}
	copy(out[:], decoded)
	return out, nil
}

// FormatTxRef renders a reference as 0x-prefixed hex.
func FormatTxRef(ref [32]byte) string {
	return "0x" + hex.EncodeToString(ref[:])
}

// Transfer moves amount of the native balance between two accounts. A zero
// amount is a no-op; a self transfer is rejected because it would report a
// movement of value that never happened.
func Transfer(ledger Ledger, from, to [20]byte, amount uint64) error {
	if ledger == nil {
		return fmt.Errorf("bank: ledger required")
	}
	if from == to {
		return common.ErrSelfTransfer
	}
	if amount == 0 {
		return nil
	}
	sender, err := ledger.GetAccount(from)
	if err != nil {
		return err
	}
	value := uint256.NewInt(amount)
	if sender.Balance.Lt(value) {
		return fmt.Errorf("%w: have %d, need %d", common.ErrInsufficientFunds, sender.BalanceUint64(), amount)
	}
	recipient, err := ledger.GetAccount(to)
	if err != nil {
		return err
	}
	if _, overflow := new(uint256.Int).AddOverflow(recipient.Balance, value); overflow {
		return fmt.Errorf("bank: balance overflow for recipient")
	}
	sender.Balance = new(uint256.Int).Sub(sender.Balance, value)
	recipient.Balance = new(uint256.Int).Add(recipient.Balance, value)
	if err := ledger.PutAccount(from, sender); err != nil {
		return err
	}
	return ledger.PutAccount(to, recipient)
}

// Credit mints amount into addr. Only genesis allocation uses it.
func Credit(ledger Ledger, addr [20]byte, amount uint64) error {
	if ledger == nil {
		return fmt.Errorf("bank: ledger required")
	}
	account, err := ledger.GetAccount(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(account.Balance, uint256.NewInt(amount))
	if overflow {
		return fmt.Errorf("bank: balance overflow")
	}
	account.Balance = sum
	return ledger.PutAccount(addr, account)
}
