package types

import "github.com/holiman/uint256"

// Account is a native-currency balance holder. Vaults and the deposit pool are
// ordinary accounts whose keys only the engines know how to debit.
type Account struct {
	Nonce   uint64       `json:"nonce"`
	Balance *uint256.Int `json:"balance"`
}

// NewAccount returns an empty account with a non-nil balance.
func NewAccount() *Account {
	return &Account{Balance: uint256.NewInt(0)}
}

// Copy returns a deep copy safe to mutate.
func (a *Account) Copy() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balance: uint256.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(uint256.Int).Set(a.Balance)
	}
	return clone
}

// BalanceUint64 reports the balance, saturating at the uint64 range.
func (a *Account) BalanceUint64() uint64 {
	if a == nil || a.Balance == nil {
		return 0
	}
	if !a.Balance.IsUint64() {
		return ^uint64(0)
	}
	return a.Balance.Uint64()
}
