package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := NewMockStore()
	// Mask keys containing "password" or "ssn"
	mw := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	saga := newSaga("pii-saga")
	saga.Context["username"] = "jdoe"
	saga.Context["user_password"] = "secret123"
	saga.Context["details"] = map[string]any{
		"address":    "123 St",
		"ssn_number": "999-99-9999",
	}

	if err := secureStore.Save(ctx, saga); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if saga.Context["user_password"] != "secret123" {
		t.Error("Middleware modified original saga in memory!")
	}
	if saga.Context["details"].(map[string]any)["ssn_number"] != "999-99-9999" {
		t.Error("Middleware modified nested context in memory!")
	}

	stored, err := underlyingStore.Load(ctx, saga.ID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.Context["username"] != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if stored.Context["user_password"] != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", stored.Context["user_password"])
	}
	details := stored.Context["details"].(map[string]any)
	if details["ssn_number"] != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", details["ssn_number"])
	}
	if details["address"] != "123 St" {
		t.Errorf("Address shouldn't be masked, got: %v", details["address"])
	}
}
