package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeNotFound, "record not found")
	err := fmt.Errorf("load game: %w", New(CodeNotFound, "different message"))

	if !stderrors.Is(err, sentinel) {
		t.Fatal("expected errors with equal codes to match")
	}
	if stderrors.Is(err, New(CodeLostRace, "lost race")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "write document", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"domain error", New(CodeLostRace, "lost race"), CodeLostRace},
		{"wrapped domain error", fmt.Errorf("op: %w", New(CodeInsufficientFunds, "broke")), CodeInsufficientFunds},
		{"plain error", stderrors.New("boom"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !CodeLostRace.Retryable() {
		t.Fatal("expected lost race to be retryable")
	}
	for _, c := range []Code{CodeNotFound, CodeInsufficientFunds, CodeInvalidTarget, CodeRulesLookup} {
		if c.Retryable() {
			t.Fatalf("expected %s not to be retryable", c)
		}
	}
}

func TestPrecondition(t *testing.T) {
	if !CodeDuplicateEntity.Precondition() {
		t.Fatal("expected tree codes to be precondition failures")
	}
	if CodeLostRace.Precondition() {
		t.Fatal("expected lost race not to be a precondition failure")
	}
}
