package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
)

type Option func(*AppKeySealer)

// AppKeySealer seals shared secrets with AES-GCM under an application key so
// they can be kept in config files and environment variables.
type AppKeySealer struct {
	key     []byte
	keyID   string
	version int
	window  KeyRotationWindow
	now     func() time.Time
}

func WithKeyID(id string) Option {
	return func(sealer *AppKeySealer) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			sealer.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(sealer *AppKeySealer) {
		if version > 0 {
			sealer.version = version
		}
	}
}

func WithRotationWindow(window KeyRotationWindow) Option {
	return func(sealer *AppKeySealer) {
		sealer.window = window
	}
}

func WithClock(now func() time.Time) Option {
	return func(sealer *AppKeySealer) {
		if now != nil {
			sealer.now = now
		}
	}
}

// NewAppKeySealer accepts 16, 24 or 32 byte keys as-is and derives a 32 byte
// key from anything else.
func NewAppKeySealer(keyMaterial []byte, opts ...Option) (*AppKeySealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	sealer := &AppKeySealer{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(sealer)
	}
	return sealer, nil
}

func NewAppKeySealerFromString(key string, opts ...Option) (*AppKeySealer, error) {
	return NewAppKeySealer([]byte(key), opts...)
}

func (s *AppKeySealer) Seal(_ context.Context, plaintext string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: sealer is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	if !s.window.Allows(s.now()) {
		return "", fmt.Errorf("security: key %s:%d is outside its rotation window", s.keyID, s.version)
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return encodeEnvelope(envelope{
		KeyID:      s.keyID,
		Version:    s.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(gcm.Seal(nil, nonce, []byte(plaintext), nil)),
	})
}

func (s *AppKeySealer) Open(_ context.Context, sealed string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: sealer is nil")
	}
	parsed, err := decodeEnvelope(sealed)
	if err != nil {
		return "", err
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported envelope algorithm %q", parsed.Algorithm)
	}
	if parsed.KeyID != "" && parsed.KeyID != s.keyID {
		return "", fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, s.keyID)
	}
	if parsed.Version > 0 && parsed.Version != s.version {
		return "", fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, s.version)
	}
	if !s.window.Allows(s.now()) {
		return "", fmt.Errorf("security: key %s:%d is outside its rotation window", s.keyID, s.version)
	}

	nonce, err := decodePayload("nonce", parsed.Nonce)
	if err != nil {
		return "", err
	}
	payload, err := decodePayload("ciphertext", parsed.Ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

func (s *AppKeySealer) Metadata() (string, int) {
	if s == nil {
		return "", 0
	}
	return s.keyID, s.version
}

func (s *AppKeySealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}
