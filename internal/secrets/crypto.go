// Package secrets seals data at rest with AES-256-GCM under a key derived
// from a password with scrypt.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// payloadVersion allows the format to evolve while old files stay readable.
const payloadVersion = 1

var (
	// ErrInvalidPassword is returned when the password cannot decrypt the payload.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidPayload indicates the payload structure is malformed.
	ErrInvalidPayload = errors.New("invalid encrypted payload")
)

// Payload is the encrypted form persisted to disk.
type Payload struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

// EncryptBytes encrypts data with a fresh salt and nonce.
func EncryptBytes(data []byte, password string) (*Payload, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &Payload{
		Version:    payloadVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, data, nil)),
	}, nil
}

// DecryptBytes reverses EncryptBytes.
func DecryptBytes(payload *Payload, password string) ([]byte, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	if payload.Version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidPayload, payload.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(payload.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt: %v", ErrInvalidPayload, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrInvalidPayload, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrInvalidPayload, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: invalid nonce size", ErrInvalidPayload)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return plaintext, nil
}

// Seal encodes v as JSON and encrypts it into a storable document.
func Seal(v any, password string) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	payload, err := EncryptBytes(plain, password)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

// Open decrypts a document produced by Seal into v.
func Open(data []byte, password string, v any) error {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.Version == 0 || payload.Salt == "" || payload.Nonce == "" || payload.Ciphertext == "" {
		return ErrInvalidPayload
	}

	plain, err := DecryptBytes(&payload, password)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: decode value: %v", ErrInvalidPayload, err)
	}
	return nil
}
