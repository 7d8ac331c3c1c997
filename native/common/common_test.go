package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestDeriveIsDeterministicPerNamespace(t *testing.T) {
	var owner [20]byte
	owner[0] = 0x01

	a := Derive(NamespacePayment, owner)
	b := Derive(NamespacePayment, owner)
	if a != b {
		t.Fatalf("derive not deterministic")
	}
	if Derive(NamespaceEscrow, owner) == a {
		t.Fatalf("namespaces must not collide")
	}
	var other [20]byte
	other[0] = 0x02
	if Derive(NamespacePayment, other) == a {
		t.Fatalf("owners must not collide")
	}
	if Derive(NamespaceOrder, owner, []byte("x")) == Derive(NamespaceOrder, owner, []byte("y")) {
		t.Fatalf("extra seed ignored")
	}
}

func TestVaultAddressStable(t *testing.T) {
	var ref [32]byte
	ref[31] = 7
	if VaultAddress(ref) != VaultAddress(ref) {
		t.Fatalf("vault address not stable")
	}
	if IsZeroAddress(VaultAddress(ref)) {
		t.Fatalf("vault address must not be zero")
	}
	if VaultAddress(ref) == DepositPoolAddress() {
		t.Fatalf("vault collides with deposit pool")
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap("escrow", ErrWrongState))
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if KindOf(err) != KindState {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if CodeOf(err) != "wrong_state" {
		t.Fatalf("unexpected code %q", CodeOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors have unknown kind")
	}
}

func TestGuard(t *testing.T) {
	paused := NewPausedSet([]string{ModuleEscrow, ""})
	if err := Guard(paused, ModuleEscrow); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(paused, ModuleOrder); err != nil {
		t.Fatalf("order should not be paused: %v", err)
	}
	if err := Guard(nil, ModuleEscrow); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
}
