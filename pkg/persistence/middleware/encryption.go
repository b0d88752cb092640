package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// EncryptedKey is the context key holding the sealed saga record.
const EncryptedKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SagaStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals saga records using AES-GCM.
// The stored envelope keeps the identity and status fields readable so that
// listing and monitoring still work; steps, context and failures are sealed.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SagaStore) ports.SagaStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, saga *domain.Saga) error {
	plainText, err := json.Marshal(saga)
	if err != nil {
		return fmt.Errorf("failed to marshal saga: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt saga: %w", err)
	}

	envelope := &domain.Saga{
		ID:         saga.ID,
		Name:       saga.Name,
		Status:     saga.Status,
		Version:    saga.Version,
		CreatedAt:  saga.CreatedAt,
		UpdatedAt:  saga.UpdatedAt,
		FinishedAt: saga.FinishedAt,
		Context: map[string]any{
			EncryptedKey: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	envelope, err := m.next.Load(ctx, sagaID)
	if err != nil {
		return nil, err
	}

	// Fail secure: a record without an envelope was not written by us.
	encryptedStr, ok := envelope.Context[EncryptedKey].(string)
	if !ok {
		return nil, errors.New("saga is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt saga: %w", err)
	}

	var saga domain.Saga
	if err := json.Unmarshal(plainText, &saga); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted saga: %w", err)
	}
	return &saga, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sagaID string) error {
	return m.next.Delete(ctx, sagaID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
