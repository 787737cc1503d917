// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindString(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindInternal, "internal"},
		{KindValidation, "validation"},
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindUnavailable, "unavailable"},
	}
	for _, c := range cases {
		if got := c.kind.String(); got != c.want {
			t.Errorf("Kind(%d).String() = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindValidation, "bad rule")
	if GetKind(err) != KindValidation {
		t.Errorf("GetKind = %v, want KindValidation", GetKind(err))
	}

	plain := stderrors.New("plain")
	if GetKind(plain) != KindUnknown {
		t.Errorf("GetKind(plain) = %v, want KindUnknown", GetKind(plain))
	}

	// Kind survives wrapping with fmt.Errorf %w.
	wrapped := fmt.Errorf("context: %w", err)
	if GetKind(wrapped) != KindValidation {
		t.Errorf("GetKind(wrapped) = %v, want KindValidation", GetKind(wrapped))
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindInternal, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, KindInternal, "noop %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestUnwrapChain(t *testing.T) {
	base := stderrors.New("socket closed")
	err := Wrap(base, KindUnavailable, "control plane unreachable")

	if !stderrors.Is(err, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if err.Error() != "control plane unreachable: socket closed" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestPredicates(t *testing.T) {
	if !IsValidation(New(KindValidation, "x")) {
		t.Error("IsValidation should be true")
	}
	if !IsNotFound(New(KindNotFound, "x")) {
		t.Error("IsNotFound should be true")
	}
	if !IsConflict(New(KindConflict, "x")) {
		t.Error("IsConflict should be true")
	}
	if IsValidation(New(KindNotFound, "x")) {
		t.Error("IsValidation should be false for not-found")
	}
}
