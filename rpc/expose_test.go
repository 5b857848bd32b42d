// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package rpc_test

import (
	"errors"
	"testing"

	"github.com/rtmpkit/rtmp/rpc"
)

func TestMethodTableResolution(t *testing.T) {
	base := rpc.NewMethodTable(nil).
		Expose("greet", func(recv any, args ...any) (any, error) {
			return "base", nil
		}).
		Expose("onlyBase", func(recv any, args ...any) (any, error) {
			return "inherited", nil
		})
	derived := rpc.NewMethodTable(base).
		Expose("greet", func(recv any, args ...any) (any, error) {
			return "derived", nil
		})

	t.Run("Override", func(t *testing.T) {
		got, err := derived.Invoke(nil, "greet")
		if err != nil {
			t.Fatalf("Invoke(greet): unexpected error: %v", err)
		}
		if got != "derived" {
			t.Errorf("Invoke(greet): got %v, want derived", got)
		}
	})
	t.Run("Inherited", func(t *testing.T) {
		got, err := derived.Invoke(nil, "onlyBase")
		if err != nil {
			t.Fatalf("Invoke(onlyBase): unexpected error: %v", err)
		}
		if got != "inherited" {
			t.Errorf("Invoke(onlyBase): got %v, want inherited", got)
		}
	})
	t.Run("BaseUnchanged", func(t *testing.T) {
		got, err := base.Invoke(nil, "greet")
		if err != nil {
			t.Fatalf("Invoke(greet): unexpected error: %v", err)
		}
		if got != "base" {
			t.Errorf("Invoke(greet) on base: got %v, want base", got)
		}
	})
}

func TestMethodTableUnknown(t *testing.T) {
	table := rpc.NewMethodTable(nil).Expose("unbound", nil)

	if _, err := table.Invoke(nil, "nonesuch"); !errors.Is(err, rpc.ErrUnknownMethod) {
		t.Errorf("Invoke(nonesuch): got %v, want %v", err, rpc.ErrUnknownMethod)
	}

	// A name exposed without a callable behaves like an unknown method.
	if _, err := table.Invoke(nil, "unbound"); !errors.Is(err, rpc.ErrUnknownMethod) {
		t.Errorf("Invoke(unbound): got %v, want %v", err, rpc.ErrUnknownMethod)
	}
}

func TestMethodTableArgs(t *testing.T) {
	table := rpc.NewMethodTable(nil).
		Expose("sum", func(recv any, args ...any) (any, error) {
			total := recv.(int)
			for _, a := range args {
				total += a.(int)
			}
			return total, nil
		})

	got, err := table.Invoke(10, "sum", 2, 3)
	if err != nil {
		t.Fatalf("Invoke(sum): unexpected error: %v", err)
	}
	if got != 15 {
		t.Errorf("Invoke(sum): got %v, want 15", got)
	}
}
