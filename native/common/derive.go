package common

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Record namespaces mixed into every derived reference.
const (
	NamespacePayment = "payment"
	NamespaceEscrow  = "escrow"
	NamespaceVault   = "vault"
	NamespaceOrder   = "order"
	NamespaceDeposit = "deposit"
)

// Derive maps (namespace, owner, extra...) to a stable record reference. The
// same inputs always produce the same reference, so clients can locate records
// without an index.
func Derive(namespace string, owner [20]byte, extra ...[]byte) [32]byte {
	parts := make([][]byte, 0, 2+len(extra))
	parts = append(parts, []byte(namespace), owner[:])
	parts = append(parts, extra...)
	return ethcrypto.Keccak256Hash(parts...)
}

// VaultAddress returns the custodial account bound to an escrow reference.
func VaultAddress(escrowRef [32]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte(NamespaceVault), escrowRef[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// DepositPoolAddress is the module account that holds record storage deposits.
func DepositPoolAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(NamespaceDeposit))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// IsZeroAddress reports whether addr is unset.
func IsZeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}

// Outcome tags create-or-fetch results so retries are not expressed through
// errors.
type Outcome uint8

const (
	OutcomeCreated Outcome = iota
	OutcomeExisting
)

func (o Outcome) String() string {
	if o == OutcomeExisting {
		return "already_exists"
	}
	return "created"
}
