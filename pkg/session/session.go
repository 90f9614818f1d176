// Package session holds the one in-memory ledger and current password of an
// application behind a single-writer lock, and routes every change through
// the vault.
//
// Presentation layers (the CLI, the MCP server) never keep their own aliases
// of the ledger: they read snapshots and submit mutations.
package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/habit"
	"github.com/forest6511/habitctl/pkg/vault"
)

// ErrClosed is returned by every method once the session has been closed or
// its data deleted.
var ErrClosed = errors.New("session: closed")

// Session is safe for concurrent use. All vault calls happen while holding
// the session lock, so saves never race.
type Session struct {
	mu       sync.Mutex
	vault    *vault.Vault
	ledger   *habit.Ledger
	password string
	clock    func() time.Time
	log      *zap.Logger
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for "today" in streak computation.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// Open loads the vault with password. A vault that does not exist yet opens
// as an empty ledger; the file is created by the first Update.
func Open(v *vault.Vault, password string, opts ...Option) (*Session, error) {
	if password == "" {
		return nil, vault.ErrEmptyPassword
	}

	s := &Session{
		vault:    v,
		password: password,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	l, err := v.Load(password)
	if err != nil {
		return nil, err
	}
	s.ledger = s.adopt(l)

	s.log.Debug("session opened", zap.Int("habits", l.Len()))
	return s, nil
}

// adopt attaches the session clock to a ledger.
func (s *Session) adopt(l *habit.Ledger) *habit.Ledger {
	if s.clock != nil {
		l.SetClock(s.clock)
	}
	return l
}

// Snapshot returns a deep copy of the current ledger.
func (s *Session) Snapshot() (*habit.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.ledger.Clone(), nil
}

// Update applies fn to a copy of the ledger and saves the result. The
// session's ledger is replaced only after the save succeeds, so a failed fn
// or a failed save leaves both memory and disk unchanged. The saved ledger is
// returned as a fresh snapshot.
func (s *Session) Update(fn func(l *habit.Ledger) error) (*habit.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	next := s.ledger.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.vault.Save(next, s.password); err != nil {
		return nil, err
	}

	s.ledger = next
	return next.Clone(), nil
}

// ChangePassword re-encrypts the vault under next. current must match the
// session's password.
func (s *Session) ChangePassword(current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !samePassword(current, s.password) {
		return vault.ErrAuthentication
	}
	if next == "" {
		return vault.ErrEmptyPassword
	}
	if samePassword(next, current) {
		return vault.ErrSamePassword
	}

	// Save the in-memory ledger rather than re-reading the file, so a
	// vault that has never been saved can still get a new password.
	if err := s.vault.Save(s.ledger, next); err != nil {
		return err
	}
	s.password = next
	s.log.Info("session password changed")
	return nil
}

// ExportBackup writes the vault to dest encrypted under backupPassword.
func (s *Session) ExportBackup(backupPassword, dest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.vault.ExportBackup(s.password, backupPassword, dest)
}

// ImportBackup replaces the vault and the in-memory ledger with the backup
// at src; afterwards the session password is newPassword. Callers must
// confirm with the user before calling this.
func (s *Session) ImportBackup(src, backupPassword, newPassword string) (*habit.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	l, err := s.vault.ImportBackup(src, backupPassword, newPassword)
	if err != nil {
		return nil, err
	}
	s.ledger = s.adopt(l)
	s.password = newPassword
	return s.ledger.Clone(), nil
}

// DeleteAll removes the vault file, forgets the ledger and password, and
// closes the session.
func (s *Session) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.vault.DeleteAllData(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.closeLocked()
	return nil
}

// Close forgets the ledger and password. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// samePassword compares passwords the way the vault does, after Unicode
// normalization.
func samePassword(a, b string) bool {
	na, nb := crypto.NormalizePassword(a), crypto.NormalizePassword(b)
	defer crypto.SecureWipe(na)
	defer crypto.SecureWipe(nb)
	return subtle.ConstantTimeCompare(na, nb) == 1
}

func (s *Session) closeLocked() {
	s.ledger = nil
	s.password = ""
	s.closed = true
}
