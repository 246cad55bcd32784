package testutil

import (
	"testing"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
)

// AssertPlanEqual checks that two plan trees are structurally equal and
// prints both trees when they are not.
func AssertPlanEqual(t *testing.T, want, got *plan.Node) {
	t.Helper()
	if !want.Equal(got) {
		t.Errorf("plans differ\nwant:\n%s\ngot:\n%s", want.Pretty(), got.Pretty())
	}
}

// AssertErrorCode checks that err carries the given error code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	if !verrors.IsError(err, code) {
		t.Errorf("expected error code %s, got %v", code, err)
	}
}

// AssertNoError checks that error is nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
