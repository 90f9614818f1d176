// Package vault stores the habit ledger in a single file encrypted under a
// user-chosen password.
//
// Every Save derives a new key from a fresh random salt, encrypts the whole
// serialized ledger with AES-256-GCM and atomically replaces the file. Load
// reverses the process. A wrong password and a tampered file are reported
// with the same error.
//
// A Vault holds no password or ledger between calls and performs no internal
// locking: callers that share a Vault across goroutines must serialize calls
// themselves (see package session).
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"

	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/habit"
)

// Constants
const (
	AppDirName = "habitctl"
	FileName   = "habits.encrypted"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	// MaxFileSize bounds how much Load reads before giving up.
	MaxFileSize = 64 * 1024 * 1024

	// Disk capacity thresholds
	MinDiskSpaceBytes  = 1024 * 1024 // 1 MB minimum free space
	DiskWarningPercent = 90          // Warn when disk is 90% full
)

// Errors
var (
	// ErrCannotOpen is the umbrella for every reason a vault or backup file
	// cannot be opened with the given password.
	ErrCannotOpen = errors.New("vault: cannot open vault")

	// ErrAuthentication indicates a wrong password or a tampered file. The
	// two cases are deliberately indistinguishable.
	ErrAuthentication = fmt.Errorf("%w: incorrect password or corrupted data", ErrCannotOpen)

	// ErrFormat indicates the envelope or the decrypted ledger is malformed.
	ErrFormat = fmt.Errorf("%w: data is corrupted", ErrCannotOpen)

	ErrEmptyPassword    = errors.New("vault: password cannot be empty")
	ErrSamePassword     = errors.New("vault: new password must differ from the current password")
	ErrVaultNotFound    = errors.New("vault: vault not found")
	ErrBackupIsVault    = errors.New("vault: backup destination is the vault file itself")
	ErrInsufficientDisk = errors.New("vault: insufficient disk space")
)

// Vault owns the encrypted ledger file.
type Vault struct {
	dir    string
	path   string
	params crypto.Params
	log    *zap.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithKDFParams sets the Argon2id parameters used by Save. Load always uses
// the parameters recorded in the file.
func WithKDFParams(p crypto.Params) Option {
	return func(v *Vault) {
		v.params = p
	}
}

// WithLogger sets the logger. Passwords and ledger contents are never logged.
func WithLogger(log *zap.Logger) Option {
	return func(v *Vault) {
		if log != nil {
			v.log = log
		}
	}
}

// New returns a vault whose file lives in dir. The directory is created if
// absent; this is the only time the vault creates directories.
func New(dir string, opts ...Option) (*Vault, error) {
	if dir == "" {
		return nil, errors.New("vault: directory must not be empty")
	}

	v := &Vault{
		dir:    dir,
		path:   filepath.Join(dir, FileName),
		params: crypto.DefaultParams(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.params.Validate(); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("vault: failed to create vault directory: %w", err)
	}

	return v, nil
}

// DefaultDir returns the platform application data directory for habitctl:
// $XDG_DATA_HOME (or ~/.local/share) on Linux and the BSDs,
// ~/Library/Application Support on macOS, %AppData% on Windows.
func DefaultDir() (string, error) {
	switch runtime.GOOS {
	case "windows", "darwin", "ios", "plan9":
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("vault: failed to locate data directory: %w", err)
		}
		return filepath.Join(base, AppDirName), nil
	}

	if base := os.Getenv("XDG_DATA_HOME"); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, AppDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("vault: failed to locate data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", AppDirName), nil
}

// Path returns the path of the encrypted file.
func (v *Vault) Path() string {
	return v.path
}

// Dir returns the directory holding the encrypted file.
func (v *Vault) Dir() string {
	return v.dir
}

// Exists reports whether the encrypted file is present. A file that cannot
// be checked, for example because of a permission error, counts as present
// so that callers never treat it as a first run.
func (v *Vault) Exists() bool {
	_, err := v.stat()
	return !errors.Is(err, os.ErrNotExist)
}

// stat returns os.ErrNotExist when the file is absent and a wrapped error
// for anything else that prevents checking it.
func (v *Vault) stat() (os.FileInfo, error) {
	fi, err := os.Stat(v.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("vault: failed to access %s: %w", v.path, err)
	}
	return fi, err
}

// Load decrypts the vault with password. A missing file yields an empty
// ledger and leaves the filesystem untouched.
//
// Errors wrapping ErrCannotOpen (ErrAuthentication or ErrFormat) must be
// reported to the user as a single "cannot open vault" condition and must not
// be retried automatically.
func (v *Vault) Load(password string) (*habit.Ledger, error) {
	if _, err := v.stat(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		v.log.Debug("vault file not found, starting with an empty ledger", zap.String("path", v.path))
		return habit.NewLedger(), nil
	}

	v.checkAndWarnPermissions()

	l, _, err := v.loadFile(v.path, password)
	if err != nil {
		return nil, err
	}

	v.log.Debug("vault loaded",
		zap.String("path", v.path),
		zap.Int("habits", len(l.Habits)),
		zap.Int("completions", len(l.Completions)))
	return l, nil
}

// Save encrypts the ledger under password with a fresh salt and nonce and
// replaces the vault file in full. The previous file stays intact until the
// new one is completely written.
func (v *Vault) Save(l *habit.Ledger, password string) error {
	if err := v.writeFile(v.path, l, password); err != nil {
		return err
	}
	v.log.Debug("vault saved",
		zap.String("path", v.path),
		zap.Int("habits", len(l.Habits)),
		zap.Int("completions", len(l.Completions)))
	return nil
}

// ExportBackup decrypts the vault with currentPassword and writes an
// independent copy to dest encrypted under backupPassword, with its own salt
// and nonce.
func (v *Vault) ExportBackup(currentPassword, backupPassword, dest string) error {
	if !v.Exists() {
		return ErrVaultNotFound
	}
	if v.isVaultPath(dest) {
		return ErrBackupIsVault
	}

	l, _, err := v.loadFile(v.path, currentPassword)
	if err != nil {
		return err
	}

	if err := v.writeFile(dest, l, backupPassword); err != nil {
		return err
	}
	v.log.Info("backup exported", zap.String("path", dest), zap.Int("habits", len(l.Habits)))
	return nil
}

// ImportBackup decrypts the backup at src with backupPassword and saves it as
// the vault under newPassword, replacing the current vault contents entirely.
// This cannot be undone; callers must obtain confirmation first. The
// imported ledger is returned.
func (v *Vault) ImportBackup(src, backupPassword, newPassword string) (*habit.Ledger, error) {
	if newPassword == "" {
		return nil, ErrEmptyPassword
	}

	l, _, err := v.loadFile(src, backupPassword)
	if err != nil {
		return nil, err
	}

	if err := v.Save(l, newPassword); err != nil {
		return nil, err
	}
	v.log.Info("backup imported", zap.String("path", src), zap.Int("habits", len(l.Habits)))
	return l, nil
}

// BackupInfo describes a verified backup file.
type BackupInfo struct {
	Version     int
	KDF         crypto.Params
	Size        int64
	Habits      int
	Completions int
}

// VerifyBackup checks that the file at path decrypts with password and holds
// a valid ledger. Nothing is written.
func (v *Vault) VerifyBackup(path, password string) (*BackupInfo, error) {
	l, env, err := v.loadFile(path, password)
	if err != nil {
		return nil, err
	}

	info := &BackupInfo{
		Version:     env.Header.Version,
		KDF:         env.Header.KDF.Params(),
		Habits:      len(l.Habits),
		Completions: len(l.Completions),
	}
	if st, err := os.Stat(path); err == nil {
		info.Size = st.Size()
	}
	return info, nil
}

// ChangePassword re-encrypts the vault under newPassword after verifying
// currentPassword.
func (v *Vault) ChangePassword(currentPassword, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	if currentPassword == newPassword {
		return ErrSamePassword
	}
	if !v.Exists() {
		return ErrVaultNotFound
	}

	l, _, err := v.loadFile(v.path, currentPassword)
	if err != nil {
		return err
	}
	if err := v.Save(l, newPassword); err != nil {
		return err
	}
	v.log.Info("vault password changed", zap.String("path", v.path))
	return nil
}

// DeleteAllData removes the vault file and any temporary files left by an
// interrupted save. It is a no-op when nothing exists. In-memory ledgers and
// passwords held by the caller are not affected.
func (v *Vault) DeleteAllData() error {
	if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: failed to delete vault file: %w", err)
	}
	if err := removeStaleTemps(v.path); err != nil {
		return err
	}
	v.log.Info("vault data deleted", zap.String("path", v.path))
	return nil
}

// loadFile reads, decrypts and decodes the ledger stored at path.
func (v *Vault) loadFile(path, password string) (*habit.Ledger, *Envelope, error) {
	if password == "" {
		return nil, nil, ErrEmptyPassword
	}

	data, err := readFile(path)
	if err != nil {
		return nil, nil, err
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, nil, err
	}

	pw := crypto.NormalizePassword(password)
	defer crypto.SecureWipe(pw)

	c, err := crypto.NewCipher(pw, env.Header.Salt, env.Header.KDF.Params())
	if err != nil {
		return nil, nil, fmt.Errorf("vault: %w", err)
	}
	defer c.Close()

	plaintext, err := c.Decrypt(env.Ciphertext, env.Header.Nonce)
	if err != nil {
		v.log.Warn("vault decryption failed", zap.String("path", path))
		return nil, nil, ErrAuthentication
	}
	defer crypto.SecureWipe(plaintext)

	l, err := habit.UnmarshalLedger(plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := l.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return l, env, nil
}

// writeFile encrypts the ledger under password with a fresh salt and nonce
// and atomically replaces the file at path.
func (v *Vault) writeFile(path string, l *habit.Ledger, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if l == nil {
		return errors.New("vault: ledger must not be nil")
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("vault: refusing to save: %w", err)
	}

	plaintext, err := habit.MarshalLedger(l)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	pw := crypto.NormalizePassword(password)
	defer crypto.SecureWipe(pw)

	c, err := crypto.NewCipher(pw, salt, v.params)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	defer c.Close()

	ciphertext, nonce, err := c.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	env := &Envelope{
		Header: Header{
			Version: FormatVersion,
			KDF:     kdfParamsOf(v.params),
			Salt:    salt,
			Nonce:   nonce,
		},
		Ciphertext: ciphertext,
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}

	if err := v.checkDiskSpaceForWrite(filepath.Dir(path), len(data)); err != nil {
		return err
	}
	return writeFileAtomic(path, data, FileMode, v.log)
}

// readFile reads a vault or backup file, refusing anything larger than
// MaxFileSize.
func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFormat, path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", ErrFormat, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", path, err)
	}
	return data, nil
}

// isVaultPath reports whether path names the vault file.
func (v *Vault) isVaultPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	vaultAbs, err := filepath.Abs(v.path)
	if err != nil {
		return false
	}
	if abs == vaultAbs {
		return true
	}

	a, errA := os.Stat(abs)
	b, errB := os.Stat(vaultAbs)
	return errA == nil && errB == nil && os.SameFile(a, b)
}

// checkAndWarnPermissions logs a warning when the vault directory or file is
// accessible by other users. It never blocks an operation.
func (v *Vault) checkAndWarnPermissions() {
	if runtime.GOOS == "windows" {
		return
	}
	if info, err := os.Stat(v.dir); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.log.Warn("vault directory has insecure permissions",
				zap.String("path", v.dir), zap.String("mode", fmt.Sprintf("%04o", perm)))
		}
	}
	if info, err := os.Stat(v.path); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.log.Warn("vault file has insecure permissions",
				zap.String("path", v.path), zap.String("mode", fmt.Sprintf("%04o", perm)))
		}
	}
}
