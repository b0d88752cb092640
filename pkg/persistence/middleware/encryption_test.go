package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/sagaflow/pkg/persistence/middleware"
	"github.com/aretw0/sagaflow/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := NewMockStore()
	key := generateKey(t)
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	saga := newSaga("test-saga")
	saga.Context["secret"] = "my-secret-sauce"

	if err := secureStore.Save(ctx, saga); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The underlying record must be sealed.
	stored, err := underlyingStore.Load(ctx, saga.ID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := stored.Context["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := stored.Context[middleware.EncryptedKey]; !ok {
		t.Fatal("Expected __encrypted__ field in context")
	}
	if len(stored.Steps) != 0 {
		t.Errorf("Expected steps to be sealed, found %d", len(stored.Steps))
	}
	if stored.Status != saga.Status || stored.Version != saga.Version {
		t.Errorf("Expected status and version to stay readable, got %s v%d", stored.Status, stored.Version)
	}

	loaded, err := secureStore.Load(ctx, saga.ID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Context["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Context["secret"])
	}
	if len(loaded.Steps) != 1 || loaded.Steps[0].Name != "reserve" {
		t.Errorf("Expected steps to round-trip, got %+v", loaded.Steps)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := NewMockStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	mwOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})
	secureStoreOld := mwOld(underlyingStore)

	ctx := context.Background()
	saga := newSaga("rotation-saga")
	saga.Context["data"] = "encrypted-with-old-key"

	if err := secureStoreOld.Save(ctx, saga); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mwNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	secureStoreNew := mwNew(underlyingStore)

	loaded, err := secureStoreNew.Load(ctx, saga.ID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Context["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	loaded.Context["data"] = "encrypted-with-new-key"
	if err := secureStoreNew.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	if _, err := secureStoreOld.Load(ctx, saga.ID); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_PlainRecordRejected(t *testing.T) {
	underlyingStore := NewMockStore()
	ctx := context.Background()
	if err := underlyingStore.Save(ctx, newSaga("plain")); err != nil {
		t.Fatal(err)
	}

	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	if _, err := secureStore.Load(ctx, "plain"); err == nil {
		t.Error("Expected plain record to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(NewMockStore())
	ports.RunSagaStoreContract(t, store)
}
