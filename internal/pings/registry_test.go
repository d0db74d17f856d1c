package pings

import (
	"errors"
	"testing"

	"github.com/solatis/beacon/internal/types"
)

func TestNewRegistry_HasBuiltins(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{MetricsPing, EventsPing, BaselinePing} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("builtin ping %q missing from fresh registry", name)
		}
	}

	all := r.ListAll()
	if len(all) != 3 {
		t.Fatalf("fresh registry holds %d pings, expected 3 builtins", len(all))
	}
	if all[0].Name != MetricsPing || all[1].Name != EventsPing || all[2].Name != BaselinePing {
		t.Errorf("builtins out of registration order: %v", all)
	}
}

func TestRegister_DuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry()

	first := types.PingConfig{Name: "custom", IncludeClientID: true}
	if err := r.Register(first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	second := types.PingConfig{Name: "custom", IncludeClientID: false, SendIfEmpty: true}
	err := r.Register(second)
	if !errors.Is(err, types.ErrDuplicatePing) {
		t.Fatalf("Register(duplicate) error = %v, expected ErrDuplicatePing", err)
	}

	cfg, ok := r.Lookup("custom")
	if !ok {
		t.Fatal("Lookup(custom) missing")
	}
	if !cfg.IncludeClientID || cfg.SendIfEmpty {
		t.Error("duplicate registration must keep the first configuration")
	}
}

func TestLookup_Unknown(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup(nope) = ok, expected miss")
	}
}
