package escrow

import (
	"fmt"

	"ecomchain/native/common"
)

// ExpectedVaultBalance is the balance the vault must hold for the escrow's
// current status.
func ExpectedVaultBalance(esc *Escrow) uint64 {
	if esc != nil && esc.Status == StatusFundsReceived {
		return esc.Amount
	}
	return 0
}

func (e *Engine) expectVault(esc *Escrow, want uint64) error {
	balance, err := e.state.Balance(esc.Vault)
	if err != nil {
		return err
	}
	if balance != want {
		return common.Wrap("escrow", fmt.Errorf("%w: vault holds %d, expected %d", common.ErrVaultBalanceMismatch, balance, want))
	}
	return nil
}

// VaultBalance returns the current balance of the vault bound to ref.
func (e *Engine) VaultBalance(ref [32]byte) (uint64, error) {
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return 0, err
	}
	return e.state.Balance(esc.Vault)
}

// CheckVault verifies that the vault bound to ref holds exactly what the
// escrow's status requires. A mismatch emits a violation event.
func (e *Engine) CheckVault(ref [32]byte) error {
	esc, err := e.loadEscrow(ref)
	if err != nil {
		return err
	}
	if esc.Vault != common.VaultAddress(ref) {
		return common.Wrap("escrow", common.ErrDerivationMismatch)
	}
	want := ExpectedVaultBalance(esc)
	balance, err := e.state.Balance(esc.Vault)
	if err != nil {
		return err
	}
	if balance != want {
		e.emit(VaultViolationEvent{Ref: ref, Escrow: esc.Clone(), Expected: want, Actual: balance})
		return common.Wrap("escrow", fmt.Errorf("%w: vault holds %d, expected %d", common.ErrVaultBalanceMismatch, balance, want))
	}
	return nil
}

// AuditResult summarises a sweep over every escrow.
type AuditResult struct {
	Checked    int
	Violations [][32]byte
}

// AuditVaults runs CheckVault for each ref and collects the violating ones.
// Errors other than a balance mismatch abort the sweep.
func (e *Engine) AuditVaults(refs [][32]byte) (AuditResult, error) {
	var result AuditResult
	for _, ref := range refs {
		err := e.CheckVault(ref)
		result.Checked++
		if err == nil {
			continue
		}
		if common.KindOf(err) == common.KindConsistency {
			result.Violations = append(result.Violations, ref)
			continue
		}
		return result, err
	}
	return result, nil
}
