package vault

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/forest6511/habitctl/pkg/crypto"
)

// Magic number for vault and backup files: "HBTVAULT"
var MagicNumber = [8]byte{'H', 'B', 'T', 'V', 'A', 'U', 'L', 'T'}

// Current envelope format version.
const FormatVersion = 1

// maxHeaderSize bounds the header JSON. A real header is a few hundred bytes.
const maxHeaderSize = 64 * 1024

// KDFParams records the Argon2id cost parameters a file was written with.
type KDFParams struct {
	Memory      uint32 `json:"memory"`      // Memory in KiB
	Iterations  uint32 `json:"iterations"`  // Time cost
	Parallelism uint8  `json:"parallelism"` // Threads
}

// Params converts the recorded values to crypto parameters.
func (k KDFParams) Params() crypto.Params {
	return crypto.Params{Memory: k.Memory, Iterations: k.Iterations, Parallelism: k.Parallelism}
}

func kdfParamsOf(p crypto.Params) KDFParams {
	return KDFParams{Memory: p.Memory, Iterations: p.Iterations, Parallelism: p.Parallelism}
}

// Header is the plaintext part of an envelope.
type Header struct {
	Version int       `json:"version"`
	KDF     KDFParams `json:"kdf"`
	Salt    []byte    `json:"salt"`  // Base64 in JSON, crypto.SaltLength bytes
	Nonce   []byte    `json:"nonce"` // Base64 in JSON, crypto.NonceLength bytes
}

// Envelope is the persisted form of an encrypted ledger.
//
// Layout:
//
//	magic (8) | header length (4, big-endian) | header JSON |
//	ciphertext length (4, big-endian) | ciphertext (includes GCM tag)
//
// The password and the derived key are never stored.
type Envelope struct {
	Header     Header
	Ciphertext []byte
}

// Encode serializes the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	headerJSON, err := json.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to marshal header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(MagicNumber) + 8 + len(headerJSON) + len(e.Ciphertext))
	buf.Write(MagicNumber[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(headerJSON)))
	buf.Write(headerJSON)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.Ciphertext)))
	buf.Write(e.Ciphertext)
	return buf.Bytes(), nil
}

// DecodeEnvelope parses and validates an envelope. Every structural problem
// is reported as ErrFormat. The header must be in the exact form Encode
// produces, so decoding and re-encoding yields the input bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: file too short", ErrFormat)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("%w: magic number mismatch", ErrFormat)
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: failed to read header length", ErrFormat)
	}
	if headerLen == 0 || headerLen > maxHeaderSize || int64(headerLen) > int64(r.Len()) {
		return nil, fmt.Errorf("%w: invalid header length %d", ErrFormat, headerLen)
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("%w: failed to read header", ErrFormat)
	}

	header, err := decodeHeader(headerJSON)
	if err != nil {
		return nil, err
	}

	var ciphertextLen uint32
	if err := binary.Read(r, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, fmt.Errorf("%w: failed to read ciphertext length", ErrFormat)
	}
	if int64(ciphertextLen) != int64(r.Len()) {
		return nil, fmt.Errorf("%w: ciphertext length %d does not match remaining %d bytes",
			ErrFormat, ciphertextLen, r.Len())
	}
	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, fmt.Errorf("%w: failed to read ciphertext", ErrFormat)
	}

	return &Envelope{Header: *header, Ciphertext: ciphertext}, nil
}

func decodeHeader(headerJSON []byte) (*Header, error) {
	dec := json.NewDecoder(bytes.NewReader(headerJSON))
	dec.DisallowUnknownFields()

	var header Header
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal header: %v", ErrFormat, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after header", ErrFormat)
	}

	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (supported: %d)",
			ErrFormat, header.Version, FormatVersion)
	}
	if err := header.KDF.Params().Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(header.Salt) != crypto.SaltLength {
		return nil, fmt.Errorf("%w: salt is %d bytes, want %d", ErrFormat, len(header.Salt), crypto.SaltLength)
	}
	if len(header.Nonce) != crypto.NonceLength {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrFormat, len(header.Nonce), crypto.NonceLength)
	}

	// Field names match case-insensitively and base64 ignores stray padding
	// bits, so only the canonical encoding is accepted.
	canonical, err := json.Marshal(header)
	if err != nil || !bytes.Equal(canonical, headerJSON) {
		return nil, fmt.Errorf("%w: header is not canonically encoded", ErrFormat)
	}

	return &header, nil
}
