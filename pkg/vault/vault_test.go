package vault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/forest6511/habitctl/pkg/crypto"
	"github.com/forest6511/habitctl/pkg/habit"
)

// testParams keeps Argon2id cheap in tests.
var testParams = crypto.Params{Memory: crypto.MinMemory, Iterations: 1, Parallelism: 1}

var testNow = time.Date(2024, time.May, 20, 9, 0, 0, 0, time.Local)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(t.TempDir(), WithKDFParams(testParams))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return v
}

// sampleLedger returns a ledger with two habits, a three day streak on the
// first and a note on one completion.
func sampleLedger(t *testing.T) *habit.Ledger {
	t.Helper()
	l := habit.NewLedger()
	l.SetClock(func() time.Time { return testNow })

	created := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	l.AddHabit(habit.Habit{ID: "habit_read", Name: "Read", Description: "20 pages",
		CreatedAt: created, TargetDaysPerWeek: 7})
	l.AddHabit(habit.Habit{ID: "habit_run", Name: "Run", CreatedAt: created, TargetDaysPerWeek: 3})

	today := habit.DateOf(testNow)
	note := "felt great"
	l.MarkCompleted("habit_read", today.AddDays(-2), nil)
	l.MarkCompleted("habit_read", today.AddDays(-1), &note)
	l.MarkCompleted("habit_read", today, nil)
	l.MarkCompleted("habit_run", today.AddDays(-5), nil)
	return l
}

func assertSameLedger(t *testing.T, got, want *habit.Ledger) {
	t.Helper()
	if !reflect.DeepEqual(got.Habits, want.Habits) {
		t.Errorf("habits differ:\ngot  %+v\nwant %+v", got.Habits, want.Habits)
	}
	if !reflect.DeepEqual(got.Completions, want.Completions) {
		t.Errorf("completions differ:\ngot  %+v\nwant %+v", got.Completions, want.Completions)
	}
}

func readEnvelope(t *testing.T, path string) (*Envelope, []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	env, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	return env, data
}

func TestNew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "habitctl")
	v, err := New(dir, WithKDFParams(testParams))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("vault directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("vault path is not a directory")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != DirMode {
		t.Errorf("directory mode = %04o, want %04o", info.Mode().Perm(), DirMode)
	}
	if v.Path() != filepath.Join(dir, FileName) {
		t.Errorf("Path() = %s, want %s", v.Path(), filepath.Join(dir, FileName))
	}
	if v.Exists() {
		t.Error("new vault should not exist before the first save")
	}
}

func TestNew_InvalidParams(t *testing.T) {
	_, err := New(t.TempDir(), WithKDFParams(crypto.Params{Memory: 1, Iterations: 1, Parallelism: 1}))
	if !errors.Is(err, crypto.ErrKeyDerivation) {
		t.Errorf("expected ErrKeyDerivation, got %v", err)
	}

	if _, err := New(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestLoad_FreshVault(t *testing.T) {
	v := newTestVault(t)

	l, err := v.Load("anything")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(l.Habits) != 0 || len(l.Completions) != 0 {
		t.Errorf("expected empty ledger, got %d habits and %d completions", len(l.Habits), len(l.Completions))
	}

	entries, err := os.ReadDir(v.Dir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Load on a fresh vault created %d files", len(entries))
	}
}

func TestLoad_StatErrorIsNotFreshVault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("a file used as a directory reports not-exist on Windows")
	}
	v := newTestVault(t)

	// Turn the vault directory into a regular file so stat fails with ENOTDIR
	if err := os.RemoveAll(v.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(v.Dir(), []byte("x"), FileMode); err != nil {
		t.Fatal(err)
	}

	if !v.Exists() {
		t.Error("Exists should not report an uncheckable file as absent")
	}
	l, err := v.Load("pw")
	if err == nil {
		t.Fatalf("Load returned a ledger with %d habits instead of an error", len(l.Habits))
	}
	if errors.Is(err, ErrCannotOpen) || errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected an I/O error, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	want := sampleLedger(t)

	if err := v.Save(want, "correct horse"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !v.Exists() {
		t.Fatal("vault should exist after Save")
	}

	got, err := v.Load("correct horse")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertSameLedger(t, got, want)

	// An empty ledger round-trips too.
	if err := v.Save(habit.NewLedger(), "correct horse"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err = v.Load("correct horse")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got.Habits) != 0 || len(got.Completions) != 0 {
		t.Error("expected empty ledger after saving an empty ledger")
	}
}

func TestSave_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on Windows")
	}
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(v.Path())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != FileMode {
		t.Errorf("file mode = %04o, want %04o", info.Mode().Perm(), FileMode)
	}
}

func TestSave_FreshSaltAndNonce(t *testing.T) {
	v := newTestVault(t)
	l := sampleLedger(t)

	if err := v.Save(l, "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first, _ := readEnvelope(t, v.Path())

	if err := v.Save(l, "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	second, _ := readEnvelope(t, v.Path())

	if bytes.Equal(first.Header.Salt, second.Header.Salt) {
		t.Error("salt was reused across saves")
	}
	if bytes.Equal(first.Header.Nonce, second.Header.Nonce) {
		t.Error("nonce was reused across saves")
	}
	if bytes.Equal(first.Ciphertext, second.Ciphertext) {
		t.Error("ciphertext should differ across saves")
	}
	if second.Header.KDF.Params() != testParams {
		t.Errorf("recorded KDF params = %+v, want %+v", second.Header.KDF.Params(), testParams)
	}
}

func TestSave_DoesNotStorePassword(t *testing.T) {
	v := newTestVault(t)
	password := "a-very-distinctive-password"
	if err := v.Save(sampleLedger(t), password); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if bytes.Contains(data, []byte(password)) {
		t.Error("vault file contains the password")
	}
	if bytes.Contains(data, []byte("20 pages")) {
		t.Error("vault file contains plaintext ledger data")
	}
}

func TestLoad_WrongPassword(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "correct"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	l, err := v.Load("wrong")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if !errors.Is(err, ErrCannotOpen) {
		t.Errorf("ErrAuthentication should wrap ErrCannotOpen")
	}
	if l != nil {
		t.Error("Load returned a ledger for a wrong password")
	}
}

func TestLoad_EmptyPassword(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := v.Load(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestLoad_TamperedCiphertext(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(habit.NewLedger(), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	env, data := readEnvelope(t, v.Path())
	start := len(data) - len(env.Ciphertext)

	for i := start; i < len(data); i++ {
		tampered := bytes.Clone(data)
		tampered[i] ^= 0x01
		if err := os.WriteFile(v.Path(), tampered, FileMode); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := v.Load("pw"); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("byte %d flipped: expected ErrAuthentication, got %v", i, err)
		}
	}
}

func TestLoad_TamperedAnyByte(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a key derivation per byte")
	}
	v := newTestVault(t)
	if err := v.Save(habit.NewLedger(), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	for i := range data {
		tampered := bytes.Clone(data)
		tampered[i] ^= 0x01
		if err := os.WriteFile(v.Path(), tampered, FileMode); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		l, err := v.Load("pw")
		if !errors.Is(err, ErrCannotOpen) {
			t.Fatalf("byte %d flipped: expected ErrCannotOpen, got %v", i, err)
		}
		if l != nil {
			t.Fatalf("byte %d flipped: Load returned a ledger", i)
		}
	}
}

func TestLoad_Truncated(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	for _, n := range []int{0, 4, 8, 20, len(data) / 2, len(data) - 1} {
		if err := os.WriteFile(v.Path(), data[:n], FileMode); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
		if _, err := v.Load("pw"); !errors.Is(err, ErrCannotOpen) {
			t.Errorf("truncated to %d bytes: expected ErrCannotOpen, got %v", n, err)
		}
	}
}

func TestLoad_UsesRecordedParams(t *testing.T) {
	dir := t.TempDir()
	writer, err := New(dir, WithKDFParams(testParams))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	want := sampleLedger(t)
	if err := writer.Save(want, "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reader, err := New(dir, WithKDFParams(crypto.Params{Memory: 2 * crypto.MinMemory, Iterations: 2, Parallelism: 1}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := reader.Load("pw")
	if err != nil {
		t.Fatalf("Load with different configured params failed: %v", err)
	}
	assertSameLedger(t, got, want)
}

func TestLoad_NormalizesPassword(t *testing.T) {
	v := newTestVault(t)
	// "é" precomposed on save, "e" plus a combining acute accent on load.
	if err := v.Save(sampleLedger(t), "caf\u00e9-password"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := v.Load("cafe\u0301-password"); err != nil {
		t.Errorf("Load with decomposed password failed: %v", err)
	}
}

func TestSave_Invalid(t *testing.T) {
	v := newTestVault(t)
	original := sampleLedger(t)
	if err := v.Save(original, "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	before, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	broken := original.Clone()
	broken.Completions = append(broken.Completions, habit.Completion{
		HabitID: "habit_missing",
		Date:    habit.DateOf(testNow),
	})
	if err := v.Save(broken, "pw"); !errors.Is(err, habit.ErrInvalidLedger) {
		t.Errorf("expected ErrInvalidLedger, got %v", err)
	}
	if err := v.Save(original, ""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
	if err := v.Save(nil, "pw"); err == nil {
		t.Error("expected error for nil ledger")
	}

	after, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed save modified the vault file")
	}
}

func TestWriteFileAtomic_FailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, DirMode); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "keep"), []byte("x"), FileMode); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := writeFileAtomic(target, []byte("data"), FileMode, zap.NewNop()); err == nil {
		t.Fatal("expected error when the target is a non-empty directory")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "target" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("temporary file left behind: %v", names)
	}
}

func TestSave_DirectorySyncFailureIsCommitted(t *testing.T) {
	orig := flushDir
	flushDir = func(string) error { return errors.New("sync not supported") }
	t.Cleanup(func() { flushDir = orig })

	core, logs := observer.New(zap.WarnLevel)
	v, err := New(t.TempDir(), WithKDFParams(testParams), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l := sampleLedger(t)
	if err := v.Save(l, "pw"); err != nil {
		t.Fatalf("Save returned error after the file was replaced: %v", err)
	}

	loaded, err := v.Load("pw")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Habits) != len(l.Habits) {
		t.Errorf("loaded %d habits, want %d", len(loaded.Habits), len(l.Habits))
	}
	if logs.FilterMessageSnippet("failed to sync directory").Len() != 1 {
		t.Errorf("expected one directory sync warning, got %v", logs.All())
	}
}

func TestDeleteAllData(t *testing.T) {
	v := newTestVault(t)

	// No-op when nothing exists.
	if err := v.DeleteAllData(); err != nil {
		t.Fatalf("DeleteAllData on empty vault failed: %v", err)
	}

	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	stale := filepath.Join(v.Dir(), "."+FileName+".tmp-123456")
	if err := os.WriteFile(stale, []byte("partial"), FileMode); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := v.DeleteAllData(); err != nil {
		t.Fatalf("DeleteAllData failed: %v", err)
	}
	if v.Exists() {
		t.Error("vault file still exists")
	}
	if _, err := os.Stat(stale); !errors.Is(err, fs.ErrNotExist) {
		t.Error("stale temporary file was not removed")
	}

	l, err := v.Load("pw")
	if err != nil {
		t.Fatalf("Load after delete failed: %v", err)
	}
	if len(l.Habits) != 0 {
		t.Error("expected empty ledger after delete")
	}
}

func TestExportImportBackup(t *testing.T) {
	v := newTestVault(t)
	want := sampleLedger(t)
	if err := v.Save(want, "live-A"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	backupPath := filepath.Join(t.TempDir(), "habits.backup")
	if err := v.ExportBackup("live-A", "backup-B", backupPath); err != nil {
		t.Fatalf("ExportBackup failed: %v", err)
	}
	backupBefore, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	// The backup has its own salt and nonce.
	live, _ := readEnvelope(t, v.Path())
	backup, _ := readEnvelope(t, backupPath)
	if bytes.Equal(live.Header.Salt, backup.Header.Salt) || bytes.Equal(live.Header.Nonce, backup.Header.Nonce) {
		t.Error("backup reuses the live vault's salt or nonce")
	}

	// The live vault is unaffected by the export.
	if _, err := v.Load("live-A"); err != nil {
		t.Fatalf("live vault no longer opens with its password: %v", err)
	}

	// Replace the live contents, then restore.
	if err := v.Save(habit.NewLedger(), "live-A"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	imported, err := v.ImportBackup(backupPath, "backup-B", "new-C")
	if err != nil {
		t.Fatalf("ImportBackup failed: %v", err)
	}
	assertSameLedger(t, imported, want)

	got, err := v.Load("new-C")
	if err != nil {
		t.Fatalf("Load with new password failed: %v", err)
	}
	assertSameLedger(t, got, want)

	if _, err := v.Load("live-A"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("old password should no longer open the vault, got %v", err)
	}

	backupAfter, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(backupBefore, backupAfter) {
		t.Error("import modified the backup file")
	}
	if _, err := v.VerifyBackup(backupPath, "backup-B"); err != nil {
		t.Errorf("backup no longer opens with its password: %v", err)
	}
}

func TestExportBackup_Errors(t *testing.T) {
	v := newTestVault(t)
	dest := filepath.Join(t.TempDir(), "backup")

	if err := v.ExportBackup("pw", "backup", dest); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("expected ErrVaultNotFound, got %v", err)
	}

	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := v.ExportBackup("wrong", "backup", dest); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	if _, err := os.Stat(dest); !errors.Is(err, fs.ErrNotExist) {
		t.Error("backup written despite wrong password")
	}

	if err := v.ExportBackup("pw", "backup", v.Path()); !errors.Is(err, ErrBackupIsVault) {
		t.Errorf("expected ErrBackupIsVault, got %v", err)
	}
	if err := v.ExportBackup("pw", "", dest); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestImportBackup_FailureLeavesVault(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "live"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	backupPath := filepath.Join(t.TempDir(), "backup")
	if err := v.ExportBackup("live", "backup", backupPath); err != nil {
		t.Fatalf("ExportBackup failed: %v", err)
	}
	before, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if _, err := v.ImportBackup(backupPath, "wrong", "new"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	if _, err := v.ImportBackup(filepath.Join(t.TempDir(), "missing"), "backup", "new"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := v.ImportBackup(backupPath, "backup", ""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}

	after, err := os.ReadFile(v.Path())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed import modified the vault")
	}
}

func TestVerifyBackup(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "live"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	backupPath := filepath.Join(t.TempDir(), "backup")
	if err := v.ExportBackup("live", "backup", backupPath); err != nil {
		t.Fatalf("ExportBackup failed: %v", err)
	}

	info, err := v.VerifyBackup(backupPath, "backup")
	if err != nil {
		t.Fatalf("VerifyBackup failed: %v", err)
	}
	if info.Version != FormatVersion {
		t.Errorf("Version = %d, want %d", info.Version, FormatVersion)
	}
	if info.Habits != 2 || info.Completions != 4 {
		t.Errorf("counts = %d habits, %d completions; want 2, 4", info.Habits, info.Completions)
	}
	if info.KDF != testParams {
		t.Errorf("KDF = %+v, want %+v", info.KDF, testParams)
	}
	if info.Size <= 0 {
		t.Error("expected positive size")
	}

	if _, err := v.VerifyBackup(backupPath, "live"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestVerifyBackup_ExcessiveKDF(t *testing.T) {
	v := newTestVault(t)
	salt := strings.Repeat("A", 43) + "="
	nonce := strings.Repeat("A", 16)
	header := `{"version":1,"kdf":{"memory":4194304,"iterations":1,"parallelism":1},"salt":"` + salt + `","nonce":"` + nonce + `"}`

	src := filepath.Join(t.TempDir(), "crafted")
	if err := os.WriteFile(src, buildEnvelope(header, make([]byte, 32)), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := v.VerifyBackup(src, "pw"); !errors.Is(err, ErrFormat) {
		t.Errorf("VerifyBackup: expected ErrFormat, got %v", err)
	}
	if _, err := v.ImportBackup(src, "pw", "new"); !errors.Is(err, ErrCannotOpen) {
		t.Errorf("ImportBackup: expected ErrCannotOpen, got %v", err)
	}
	if v.Exists() {
		t.Error("failed import must not create the vault")
	}
}

func TestChangePassword(t *testing.T) {
	v := newTestVault(t)

	if err := v.ChangePassword("old", "new"); !errors.Is(err, ErrVaultNotFound) {
		t.Errorf("expected ErrVaultNotFound, got %v", err)
	}

	want := sampleLedger(t)
	if err := v.Save(want, "old"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tests := []struct {
		name    string
		current string
		next    string
		wantErr error
	}{
		{"same password", "old", "old", ErrSamePassword},
		{"empty new password", "old", "", ErrEmptyPassword},
		{"wrong current password", "wrong", "new", ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.ChangePassword(tt.current, tt.next); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if err := v.ChangePassword("old", "new"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	got, err := v.Load("new")
	if err != nil {
		t.Fatalf("Load with new password failed: %v", err)
	}
	assertSameLedger(t, got, want)
	if _, err := v.Load("old"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("old password still works: %v", err)
	}
}

func TestEnvelope_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save(sampleLedger(t), "pw"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	env, data := readEnvelope(t, v.Path())

	encoded, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(encoded, data) {
		t.Error("Encode(DecodeEnvelope(b)) != b")
	}
}

func buildEnvelope(headerJSON string, ciphertext []byte) []byte {
	var buf bytes.Buffer
	buf.Write(MagicNumber[:])
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(headerJSON)))
	buf.WriteString(headerJSON)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext)))
	buf.Write(ciphertext)
	return buf.Bytes()
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	salt := strings.Repeat("A", 43) + "="  // 32 zero bytes
	nonce := strings.Repeat("A", 16)       // 12 zero bytes
	kdf := `{"memory":8192,"iterations":1,"parallelism":1}`
	valid := `{"version":1,"kdf":` + kdf + `,"salt":"` + salt + `","nonce":"` + nonce + `"}`
	ct := make([]byte, 32)

	if _, err := DecodeEnvelope(buildEnvelope(valid, ct)); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	badMagic := buildEnvelope(valid, ct)
	badMagic[0] = 'X'

	hugeHeader := buildEnvelope(valid, ct)
	binary.BigEndian.PutUint32(hugeHeader[8:12], 1<<30)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"magic only", MagicNumber[:]},
		{"bad magic", badMagic},
		{"huge header length", hugeHeader},
		{"trailing bytes", append(buildEnvelope(valid, ct), 0x00)},
		{"not json", buildEnvelope(`not json`, ct)},
		{"unknown field", buildEnvelope(`{"version":1,"kdf":`+kdf+`,"salt":"`+salt+`","nonce":"`+nonce+`","extra":1}`, ct)},
		{"unsupported version", buildEnvelope(`{"version":2,"kdf":`+kdf+`,"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"kdf memory above limit", buildEnvelope(`{"version":1,"kdf":{"memory":1048577,"iterations":1,"parallelism":1},"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"kdf memory 4 GiB", buildEnvelope(`{"version":1,"kdf":{"memory":4194304,"iterations":1,"parallelism":1},"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"kdf iterations above limit", buildEnvelope(`{"version":1,"kdf":{"memory":8192,"iterations":17,"parallelism":1},"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"weak kdf", buildEnvelope(`{"version":1,"kdf":{"memory":1,"iterations":1,"parallelism":1},"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"short salt", buildEnvelope(`{"version":1,"kdf":`+kdf+`,"salt":"AAAA","nonce":"`+nonce+`"}`, ct)},
		{"missing nonce", buildEnvelope(`{"version":1,"kdf":`+kdf+`,"salt":"`+salt+`"}`, ct)},
		{"non-canonical case", buildEnvelope(`{"Version":1,"kdf":`+kdf+`,"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
		{"non-canonical spacing", buildEnvelope(`{"version": 1,"kdf":`+kdf+`,"salt":"`+salt+`","nonce":"`+nonce+`"}`, ct)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tt.data)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestDefaultDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout applies to Linux")
	}

	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)
	dir, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir failed: %v", err)
	}
	if dir != filepath.Join(xdg, AppDirName) {
		t.Errorf("DefaultDir() = %s, want %s", dir, filepath.Join(xdg, AppDirName))
	}

	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	dir, err = DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir failed: %v", err)
	}
	if dir != filepath.Join(home, ".local", "share", AppDirName) {
		t.Errorf("DefaultDir() = %s, want %s", dir, filepath.Join(home, ".local", "share", AppDirName))
	}
}

func TestCheckDiskSpace(t *testing.T) {
	v := newTestVault(t)
	info, err := v.CheckDiskSpace()
	if errors.Is(err, errDiskCheckUnsupported) {
		t.Skip("disk space check not supported on this platform")
	}
	if err != nil {
		t.Fatalf("CheckDiskSpace failed: %v", err)
	}
	if info.Total == 0 {
		t.Error("expected non-zero total")
	}
	if info.UsedPct < 0 || info.UsedPct > 100 {
		t.Errorf("UsedPct = %d out of range", info.UsedPct)
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name         string
		password     string
		minLength    int
		wantValid    bool
		wantStrength PasswordStrength
	}{
		{"too short", "abc", 8, false, PasswordWeak},
		{"default minimum", "abcdefg", 0, false, PasswordWeak},
		{"custom minimum", "abcd", 4, true, PasswordWeak},
		{"too long", strings.Repeat("a", MaxPasswordLength+1), 8, false, PasswordWeak},
		{"lowercase only", "abcdefgh", 8, true, PasswordWeak},
		{"mixed short", "abcdEFGH", 8, true, PasswordFair},
		{"long lowercase", "abcdefghijkl", 8, true, PasswordFair},
		{"mixed long", "abcdefGHIJKL", 8, true, PasswordGood},
		{"strong", "Abcdefgh1234!xyz", 8, true, PasswordStrong},
		{"multibyte counted by character", "пароль12", 8, true, PasswordFair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidatePassword(tt.password, tt.minLength)
			if r.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", r.Valid, tt.wantValid)
			}
			if r.Strength != tt.wantStrength {
				t.Errorf("Strength = %v, want %v", r.Strength, tt.wantStrength)
			}
		})
	}
}

func TestPasswordStrengthString(t *testing.T) {
	tests := map[PasswordStrength]string{
		PasswordWeak:         "weak",
		PasswordFair:         "fair",
		PasswordGood:         "good",
		PasswordStrong:       "strong",
		PasswordStrength(99): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
