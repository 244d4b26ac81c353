package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindUnwrapsContext(t *testing.T) {
	err := fmt.Errorf("amm: %w: reserves empty", ErrInsufficientLiquidity)
	if got := Kind(err); got != "InsufficientLiquidity" {
		t.Fatalf("unexpected kind: %s", got)
	}
	if got := Kind(errors.New("boom")); got != "Internal" {
		t.Fatalf("expected Internal for unknown error, got %s", got)
	}
	if got := Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %s", got)
	}
}

func TestGuardRejectsPausedModule(t *testing.T) {
	pauses := NewPauseSet(ModuleTranche, "")
	if err := Guard(pauses, ModuleTranche); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, ModuleAMM); err != nil {
		t.Fatalf("expected amm to be active, got %v", err)
	}
	if err := Guard(nil, ModuleAMM); err != nil {
		t.Fatalf("nil pause view must not block: %v", err)
	}
	if got := Kind(Guard(pauses, ModuleTranche)); got != "ModulePaused" {
		t.Fatalf("unexpected kind: %s", got)
	}
}
