// Package crypto provides the cryptographic primitives of habitctl.
//
// This package implements Argon2id password-based key derivation and
// AES-256-GCM authenticated encryption of opaque payloads.
//
// # Security Features
//
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads by default)
//   - AES-256-GCM authenticated encryption
//   - Fresh random nonce for every encryption
//   - Secure memory wiping for derived keys
//
// # Example Usage
//
//	salt, err := crypto.GenerateSalt()
//	c, err := crypto.NewCipher(crypto.NormalizePassword("password"), salt, crypto.DefaultParams())
//	defer c.Close()
//
//	ciphertext, nonce, err := c.Encrypt(plaintext)
//	plaintext, err := c.Decrypt(ciphertext, nonce)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/unicode/norm"
)

// Argon2id parameters following OWASP recommendations.
const (
	// Argon2Memory is the default memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the default number of iterations.
	Argon2Time = 3

	// Argon2Threads is the default degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of key derivation salts in bytes.
	SaltLength = 32
)

// Bounds accepted for Argon2id parameters. Parameters are read back from
// files on disk before the password is checked, so the upper bounds must
// stay allocatable on an ordinary machine.
const (
	MinMemory      = 8 * 1024
	MaxMemory      = 1024 * 1024 // 1 GiB
	MinIterations  = 1
	MaxIterations  = 16
	MinParallelism = 1
	MaxParallelism = 16
)

// Sentinel errors returned by crypto functions.
var (
	// ErrKeyDerivation indicates password hashing could not be performed.
	ErrKeyDerivation = errors.New("crypto: key derivation failed")

	// ErrInvalidSaltLength indicates the salt is not SaltLength bytes.
	ErrInvalidSaltLength = fmt.Errorf("%w: invalid salt length, must be %d bytes", ErrKeyDerivation, SaltLength)

	// ErrInvalidParams indicates Argon2id parameters are out of bounds.
	ErrInvalidParams = fmt.Errorf("%w: invalid argon2id parameters", ErrKeyDerivation)

	// ErrEncryption indicates the underlying cipher failed to encrypt.
	ErrEncryption = errors.New("crypto: encryption failed")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	// A wrong password and tampered or truncated ciphertext both produce this error.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")
)

// Params holds the Argon2id cost parameters.
type Params struct {
	Memory      uint32 // Memory in KiB
	Iterations  uint32 // Time cost
	Parallelism uint8  // Threads
}

// DefaultParams returns the OWASP-recommended Argon2id parameters.
func DefaultParams() Params {
	return Params{
		Memory:      Argon2Memory,
		Iterations:  Argon2Time,
		Parallelism: Argon2Threads,
	}
}

// Validate reports whether the parameters are within the accepted bounds.
func (p Params) Validate() error {
	if p.Memory < MinMemory || p.Memory > MaxMemory {
		return fmt.Errorf("%w: memory %d KiB out of range [%d, %d]", ErrInvalidParams, p.Memory, MinMemory, MaxMemory)
	}
	if p.Iterations < MinIterations || p.Iterations > MaxIterations {
		return fmt.Errorf("%w: iterations %d out of range [%d, %d]", ErrInvalidParams, p.Iterations, MinIterations, MaxIterations)
	}
	if p.Parallelism < MinParallelism || p.Parallelism > MaxParallelism {
		return fmt.Errorf("%w: parallelism %d out of range [%d, %d]", ErrInvalidParams, p.Parallelism, MinParallelism, MaxParallelism)
	}
	return nil
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// NormalizePassword returns the NFC form of a password as bytes, so that the
// same password entered through different input methods derives the same key.
func NormalizePassword(password string) []byte {
	return norm.NFC.Bytes([]byte(password))
}

// DeriveKey derives a 256-bit encryption key from a password using Argon2id.
//
// The salt must be exactly SaltLength bytes of cryptographically secure
// random data and the parameters must pass Validate.
func DeriveKey(password, salt []byte, p Params) ([]byte, error) {
	if len(salt) != SaltLength {
		return nil, ErrInvalidSaltLength
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, KeyLength), nil
}

// Cipher is an AES-256-GCM cipher keyed from a password.
type Cipher struct {
	key  []byte
	aead cipher.AEAD
}

// NewCipher derives a key from password and salt and builds an AES-256-GCM
// cipher around it. Errors wrap ErrKeyDerivation.
func NewCipher(password, salt []byte, p Params) (*Cipher, error) {
	key, err := DeriveKey(password, salt, p)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		SecureWipe(key)
		return nil, fmt.Errorf("%w: failed to create cipher: %v", ErrKeyDerivation, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		SecureWipe(key)
		return nil, fmt.Errorf("%w: failed to create GCM: %v", ErrKeyDerivation, err)
	}

	return &Cipher{key: key, aead: aead}, nil
}

// Encrypt encrypts plaintext with a fresh cryptographically secure random
// 12-byte nonce. The authentication tag is appended to the ciphertext.
func (c *Cipher) Encrypt(plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	if c.aead == nil {
		return nil, nil, fmt.Errorf("%w: cipher is closed", ErrEncryption)
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryption, err)
	}

	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt verifies the authentication tag and returns the plaintext.
//
// Wrong keys, tampered data and truncated data all return ErrDecryptionFailed
// so that callers cannot tell them apart.
func (c *Cipher) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if c.aead == nil {
		return nil, ErrDecryptionFailed
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}
	if len(ciphertext) < c.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Close wipes the derived key. The cipher cannot be used afterwards.
func (c *Cipher) Close() {
	if c.key != nil {
		SecureWipe(c.key)
		c.key = nil
	}
	c.aead = nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}
