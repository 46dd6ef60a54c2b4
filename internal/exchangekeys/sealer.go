package exchangekeys

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// devMasterKey is used when ENCRYPTION_KEY is unset. Never use it in production.
	devMasterKey = "tradebot-architect-development-master-key"
	sealInfo     = "tradebot-architect exchange-key seal v1"
)

// ErrCiphertext is returned when a sealed secret cannot be opened
var ErrCiphertext = errors.New("exchangekeys: ciphertext is corrupt or bound to another key")

// Sealer encrypts exchange secrets with XChaCha20-Poly1305. The AEAD key is
// derived from the master key with HKDF-SHA256.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from masterKey
func NewSealer(masterKey string) (*Sealer, error) {
	if masterKey == "" {
		log().Warn("ENCRYPTION_KEY not set, using development master key")
		masterKey = devMasterKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts secret. The ciphertext is bound to binding (the owning key
// row) and is laid out as nonce || sealed.
func (s *Sealer) Seal(secret, binding string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(secret)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(secret), []byte(binding)), nil
}

// Open reverses Seal
func (s *Sealer) Open(ciphertext []byte, binding string) (string, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n+chacha20poly1305.Overhead {
		return "", ErrCiphertext
	}
	plain, err := s.aead.Open(nil, ciphertext[:n], ciphertext[n:], []byte(binding))
	if err != nil {
		return "", ErrCiphertext
	}
	return string(plain), nil
}
