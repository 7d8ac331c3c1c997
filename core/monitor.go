package core

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"ecomchain/core/state"
	"ecomchain/native/escrow"
	"ecomchain/observability"
	"ecomchain/storage/trie"
)

// AuditVaults checks every live escrow's vault against its status. Violations
// are logged, counted and recorded as events; nothing is repaired.
func (n *Node) AuditVaults(ctx context.Context) (escrow.AuditResult, error) {
	var result escrow.AuditResult
	_, span := n.tracer.Start(ctx, "commerce.audit_vaults")
	defer span.End()

	_, err := n.apply(ctx, "audit_vaults", func(tx *txn) error {
		refs, err := tx.manager.EscrowRefs()
		if err != nil {
			return err
		}
		result, err = tx.escrows.AuditVaults(refs)
		return err
	})
	metrics := observability.Commerce()
	metrics.RecordAudit(result.Checked, len(result.Violations), err)
	for _, ref := range result.Violations {
		metrics.RecordVaultViolation()
		n.logger.Error("vault balance violation", slog.String("ref", "0x"+hex.EncodeToString(ref[:])))
	}
	return result, err
}

// RunAuditor audits vaults every interval until ctx is cancelled. A
// non-positive interval returns immediately.
func (n *Node) RunAuditor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := n.AuditVaults(ctx)
			if err != nil {
				n.logger.Warn("vault audit failed", slog.String("error", err.Error()))
				continue
			}
			n.logger.Debug("vault audit complete", slog.Int("checked", result.Checked), slog.Int("violations", len(result.Violations)))
		}
	}
}

// StateRoot returns the Merkle root over committed balances and records.
func (n *Node) StateRoot() ([32]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return [32]byte{}, ErrNodeClosed
	}
	root, err := trie.Root(n.db, state.CommittedPrefixes()...)
	if err != nil {
		return [32]byte{}, err
	}
	return root, nil
}
