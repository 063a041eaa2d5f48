package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIs_ThroughWrapping(t *testing.T) {
	base := InsufficientInventory(7, "60", "40")
	wrapped := fmt.Errorf("create batch: %w", base)

	if !Is(wrapped, KindInsufficientInventory) {
		t.Fatalf("Expected wrapped error to carry KindInsufficientInventory, got %v", GetKind(wrapped))
	}
	if Is(errors.New("plain"), KindInsufficientInventory) {
		t.Error("Expected plain error to have no kind")
	}
}

func TestShortfallDetails(t *testing.T) {
	err := InsufficientAvailability("allocation", 3, 55, 50)

	shortfall, ok := err.Details.(Shortfall)
	if !ok {
		t.Fatalf("Expected Shortfall details, got %T", err.Details)
	}
	if shortfall.Requested != "55" || shortfall.Available != "50" {
		t.Errorf("Expected requested 55 / available 50, got %s / %s", shortfall.Requested, shortfall.Available)
	}
	if err.Error() != "allocation 3 has 50 pieces available, 55 requested" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindInsufficientInventory, http.StatusUnprocessableEntity},
		{KindConservationViolation, http.StatusUnprocessableEntity},
		{KindInvalidTransition, http.StatusConflict},
		{KindConcurrentModification, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			if got := New(tc.kind, "x").HTTPStatus(); got != tc.expected {
				t.Errorf("Expected status %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestWithOp(t *testing.T) {
	err := InvalidTransition("batch 4 is Applied").WithOp("end_stage_batch")
	if err.Error() != "end_stage_batch: batch 4 is Applied" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
