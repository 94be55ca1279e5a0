package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestWireServices_WiresAllDomainServices(t *testing.T) {
	logger := log.WithField("test", "dependencies")
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}

	if deps.engine == nil || deps.sweepWorker == nil || deps.machine == nil || deps.processor == nil {
		t.Error("expected all domain services to be wired")
	}
	if deps.deferredRepo == nil || deps.failedRepo == nil {
		t.Error("expected webhook support repositories to be initialized")
	}
	if deps.closeFn != nil {
		t.Error("memory driver should not produce a close hook")
	}
}

func TestWireServices_ClosesTheApplierCycle(t *testing.T) {
	logger := log.WithField("test", "dependencies")
	cfg := DefaultConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}

	// The processor's order applier is only set after the machine exists.
	// This checks that the machine wireServices returns is usable; it does
	// not drive a webhook through the processor.
	if _, err := deps.machine.CreateOrder("missing-hold", "buyer@example.com", nil); err == nil {
		t.Error("expected CreateOrder against a missing hold to fail")
	}
}
