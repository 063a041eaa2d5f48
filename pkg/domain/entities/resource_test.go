package entities

import (
	"testing"
	"time"

	"github.com/vsinha/forgetrace/pkg/domain/apperr"
)

func TestNewResource(t *testing.T) {
	if _, err := NewResource(1, "", Furnace); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for empty name, got %v", err)
	}
	if _, err := NewResource(1, "F-1", ResourceKind(42)); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("Expected validation error for unknown kind, got %v", err)
	}

	r, err := NewResource(1, "Furnace 1", Furnace)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if r.Status != ResourceIdle {
		t.Errorf("Expected Idle, got %s", r.Status)
	}
}

func TestResource_OccupyAndRelease(t *testing.T) {
	r, _ := NewResource(1, "Line 1", ForgeLine)
	r.ID = 3

	if err := r.Occupy(10, StageMachining); !apperr.Is(err, apperr.KindInvalidOperation) {
		t.Errorf("Expected InvalidOperation for a forge line running machining, got %v", err)
	}
	if err := r.Occupy(10, StageForge); err != nil {
		t.Fatalf("Occupy failed: %v", err)
	}
	if err := r.CanRun(StageForge); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected busy resource to refuse a second batch, got %v", err)
	}
	if err := r.Release(11, time.Now()); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected release of a foreign batch to fail, got %v", err)
	}

	endAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := r.Release(10, endAt); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if r.Status != ResourceIdle || r.CurrentBatchID != 0 || !r.LastReleasedAt.Equal(endAt) {
		t.Errorf("Expected idle resource released at %v, got %+v", endAt, r)
	}
}

func TestResource_Withdraw(t *testing.T) {
	r, _ := NewResource(1, "Line 1", ForgeLine)
	r.ID = 3
	releasedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.LastReleasedAt = releasedAt

	if err := r.Withdraw(10); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected withdraw from an idle resource to fail, got %v", err)
	}
	_ = r.Occupy(10, StageForge)
	if err := r.Withdraw(11); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("Expected withdraw of a foreign batch to fail, got %v", err)
	}
	if err := r.Withdraw(10); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if r.Status != ResourceIdle || r.CurrentBatchID != 0 || !r.LastReleasedAt.Equal(releasedAt) {
		t.Errorf("Expected idle resource still released at %v, got %+v", releasedAt, r)
	}
}

func TestParseResourceKind(t *testing.T) {
	for _, stage := range Stages {
		kind := stage.ResourceKind()
		parsed, err := ParseResourceKind(kind.String())
		if err != nil || parsed != kind {
			t.Errorf("Expected %s to parse back, got %s (%v)", kind, parsed, err)
		}
	}
	if _, err := ParseResourceKind("Anvil"); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
