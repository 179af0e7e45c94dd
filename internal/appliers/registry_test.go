package appliers_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"offsync/internal/appliers"
)

func noop(context.Context, appliers.Operation) (appliers.Result, error) {
	return appliers.Result{}, nil
}

func TestRegistryLookup(t *testing.T) {
	registry := appliers.NewRegistry()
	if err := registry.Register("Partners", appliers.Func(noop)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, ok := registry.Lookup(" Partners "); !ok {
		t.Fatal("expected lookup to ignore surrounding whitespace")
	}
	if _, ok := registry.Lookup("partners"); ok {
		t.Fatal("expected entity types to be case-sensitive")
	}
	if _, ok := registry.Lookup("invoices"); ok {
		t.Fatal("expected lookup miss for unregistered type")
	}
	if _, err := registry.Resolve("invoices"); !errors.Is(err, appliers.ErrNoApplier) {
		t.Fatalf("expected ErrNoApplier, got %v", err)
	}
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := appliers.NewRegistry()
	registry.MustRegister("partners", appliers.Func(noop))

	if err := registry.Register("partners", appliers.Func(noop)); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := registry.Register("  ", appliers.Func(noop)); err == nil {
		t.Fatal("expected empty entity type to fail")
	}
	if err := registry.Register("invoices", nil); err == nil {
		t.Fatal("expected nil applier to fail")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected MustRegister to panic on duplicate")
		}
	}()
	registry.MustRegister("partners", appliers.Func(noop))
}

func TestRegistryEntityTypesSorted(t *testing.T) {
	registry := appliers.NewRegistry()
	for _, name := range []string{"invoices", "accounts", "partners"} {
		registry.MustRegister(name, appliers.Func(noop))
	}
	got := registry.EntityTypes()
	want := []string{"accounts", "invoices", "partners"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("EntityTypes() = %v, want %v", got, want)
		}
	}
}

type temporaryError struct{ transient bool }

func (e temporaryError) Error() string   { return "remote hiccup" }
func (e temporaryError) Transient() bool { return e.transient }

func TestIsTransient(t *testing.T) {
	if !appliers.IsTransient(fmt.Errorf("apply: %w", temporaryError{transient: true})) {
		t.Fatal("expected wrapped transient error to be reported")
	}
	if appliers.IsTransient(temporaryError{}) {
		t.Fatal("expected non-transient error")
	}
	if appliers.IsTransient(errors.New("boom")) || appliers.IsTransient(nil) {
		t.Fatal("plain errors are not transient")
	}
}
