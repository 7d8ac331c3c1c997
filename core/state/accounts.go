package state

import (
	"github.com/holiman/uint256"

	"ecomchain/core/types"
	"ecomchain/native/bank"
)

type storedAccount struct {
	Nonce   uint64
	Balance *uint256.Int
}

// GetAccount returns the account at addr, or an empty account when none has
// been written.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	account := types.NewAccount()
	if !ok {
		return account, nil
	}
	account.Nonce = stored.Nonce
	if stored.Balance != nil {
		account.Balance = new(uint256.Int).Set(stored.Balance)
	}
	return account, nil
}

// PutAccount stores the account. Empty accounts are deleted so closed vaults
// leave no residue.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil || (account.Nonce == 0 && (account.Balance == nil || account.Balance.IsZero())) {
		return m.KVDelete(accountKey(addr))
	}
	return m.KVPut(accountKey(addr), storedAccount{Nonce: account.Nonce, Balance: new(uint256.Int).Set(account.Balance)})
}

// Balance returns the native balance held at addr.
func (m *Manager) Balance(addr [20]byte) (uint64, error) {
	account, err := m.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.BalanceUint64(), nil
}

// Transfer moves native balance between two accounts.
func (m *Manager) Transfer(from, to [20]byte, amount uint64) error {
	return bank.Transfer(m, from, to, amount)
}

// Credit adds amount to addr without a debit. It backs genesis allocation.
func (m *Manager) Credit(addr [20]byte, amount uint64) error {
	return bank.Credit(m, addr, amount)
}
