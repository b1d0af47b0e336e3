package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// KeyContext owns key derivation for encrypted config values. Derived keys
// are cached per salt so repeated decryption of the same file does not rerun
// Argon2. Construction and Reset are explicit; there is no package-level
// key state.
type KeyContext struct {
	mu         sync.Mutex
	passphrase []byte
	derived    map[string][]byte // hex(salt) -> key
}

// NewKeyContext creates a key context for the given passphrase.
func NewKeyContext(passphrase string) *KeyContext {
	return &KeyContext{
		passphrase: []byte(passphrase),
		derived:    make(map[string][]byte),
	}
}

// Reset drops all cached derived keys.
func (k *KeyContext) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.derived = make(map[string][]byte)
}

// key derives (or returns the cached) 32-byte Argon2id key for salt.
func (k *KeyContext) key(salt []byte) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := hex.EncodeToString(salt)
	if key, ok := k.derived[id]; ok {
		return key
	}
	key := argon2.IDKey(k.passphrase, salt, 1, 64*1024, 4, 32)
	k.derived[id] = key
	return key
}

// Encrypt encrypts a plaintext value with AES-256-GCM.
// Format: hex(salt) + ":" + hex(nonce+ciphertext).
func (k *KeyContext) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(k.key(salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a value produced by Encrypt.
func (k *KeyContext) Decrypt(encrypted string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(k.key(salt))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
