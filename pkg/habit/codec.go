package habit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalLedger encodes the ledger as the JSON document stored in the vault.
// A nil collection encodes as an empty array.
func MarshalLedger(l *Ledger) ([]byte, error) {
	doc := struct {
		Habits      []Habit      `json:"habits"`
		Completions []Completion `json:"completions"`
	}{
		Habits:      l.Habits,
		Completions: l.Completions,
	}
	if doc.Habits == nil {
		doc.Habits = []Habit{}
	}
	if doc.Completions == nil {
		doc.Completions = []Completion{}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("habit: failed to encode ledger: %w", err)
	}
	return data, nil
}

// UnmarshalLedger decodes a ledger document. Unknown fields and trailing
// data are rejected. Stored streak values are kept as-is.
func UnmarshalLedger(data []byte) (*Ledger, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	l := NewLedger()
	if err := dec.Decode(l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLedger, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after ledger", ErrInvalidLedger)
	}

	if l.Habits == nil {
		l.Habits = []Habit{}
	}
	if l.Completions == nil {
		l.Completions = []Completion{}
	}
	return l, nil
}
