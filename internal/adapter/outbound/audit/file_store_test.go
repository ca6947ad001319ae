package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/toolwarden/toolwarden/internal/domain/audit"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeEntry creates a test entry with a fixed timestamp.
func makeEntry(ts time.Time, userID string) audit.Entry {
	e := audit.NewEntry(userID, "read", "file_operations", audit.ResultSuccess,
		map[string]any{"path": "/srv/data"})
	e.Timestamp = ts
	return e
}

func TestParseAuditFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		wantOK     bool
		wantDate   string
		wantSuffix int
	}{
		{"audit-2026-08-23.log", true, "2026-08-23", 0},
		{"audit-2026-08-23-1.log", true, "2026-08-23", 1},
		{"audit-2026-08-23-12.log", true, "2026-08-23", 12},
		{"audit-2026-08-23.log.bak", false, "", 0},
		{"audit.log", false, "", 0},
		{"other-2026-08-23.log", false, "", 0},
	}
	for _, tt := range tests {
		info, ok := parseAuditFilename(tt.name)
		if ok != tt.wantOK {
			t.Errorf("parseAuditFilename(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if info.date != tt.wantDate || info.suffix != tt.wantSuffix {
			t.Errorf("parseAuditFilename(%q) = date %q suffix %d, want %q %d",
				tt.name, info.date, info.suffix, tt.wantDate, tt.wantSuffix)
		}
	}
}

func TestNewFileStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "subdir", "audit")
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory, got file")
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("directory permissions = %o, want 0700", perm)
	}
}

func TestFileStore_DefaultConfig(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(FileStoreConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if store.retentionDays != 30 {
		t.Errorf("default retentionDays = %d, want 30", store.retentionDays)
	}
	if store.maxFileSize != 100*1024*1024 {
		t.Errorf("default maxFileSize = %d, want %d", store.maxFileSize, 100*1024*1024)
	}
}

func TestFileStore_AppendWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	entries := []audit.Entry{
		makeEntry(now, "user-1"),
		makeEntry(now, "user-2"),
		makeEntry(now, "user-3"),
	}
	if err := store.Append(ctx, entries...); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", now.Format(dateLayout)))
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("failed to read audit file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var decoded audit.Entry
		if err := json.Unmarshal([]byte(line), &decoded); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
			continue
		}
		if decoded.ID != entries[i].ID {
			t.Errorf("line %d ID = %q, want %q", i, decoded.ID, entries[i].ID)
		}
		if strings.Contains(line, "  ") {
			t.Errorf("line %d contains indentation, want compact JSON", i)
		}
	}
}

func TestFileStore_DateRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	day1 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	e1 := makeEntry(day1, "user-day1")
	e2 := makeEntry(day2, "user-day2")

	if err := store.Append(ctx, e1); err != nil {
		t.Fatalf("Append() day1 error: %v", err)
	}
	if err := store.Append(ctx, e2); err != nil {
		t.Fatalf("Append() day2 error: %v", err)
	}
	_ = store.Close()

	data1, err := os.ReadFile(filepath.Join(dir, "audit-2026-02-01.log"))
	if err != nil {
		t.Fatalf("day 1 audit file not found: %v", err)
	}
	data2, err := os.ReadFile(filepath.Join(dir, "audit-2026-02-02.log"))
	if err != nil {
		t.Fatalf("day 2 audit file not found: %v", err)
	}

	if !strings.Contains(string(data1), "user-day1") {
		t.Error("day 1 file should contain the day 1 entry")
	}
	if !strings.Contains(string(data2), "user-day2") {
		t.Error("day 2 file should contain the day 2 entry")
	}
}

func TestFileStore_SizeRotation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	// Shrink the cap so a handful of entries trigger rotation.
	store.maxFileSize = 500

	ctx := context.Background()
	now := time.Now().UTC()
	dateStr := now.Format(dateLayout)

	for i := 0; i < 20; i++ {
		e := makeEntry(now, fmt.Sprintf("user-%03d", i))
		e.Details["data"] = strings.Repeat("x", 100)
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append() error at entry %d: %v", i, err)
		}
	}
	_ = store.Close()

	baseFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", dateStr))
	suffixFile := filepath.Join(dir, fmt.Sprintf("audit-%s-1.log", dateStr))

	if _, err := os.Stat(baseFile); err != nil {
		t.Errorf("base audit file not found: %v", err)
	}
	if _, err := os.Stat(suffixFile); err != nil {
		t.Errorf("suffixed audit file not found: %v", err)
	}
}

func TestFileStore_ResumesHighestSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now().UTC()
	dateStr := now.Format(dateLayout)

	// Pre-existing rotated segments from an earlier process.
	for _, name := range []string{
		fmt.Sprintf("audit-%s.log", dateStr),
		fmt.Sprintf("audit-%s-1.log", dateStr),
		fmt.Sprintf("audit-%s-2.log", dateStr),
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0600); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}

	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	if err := store.Append(context.Background(), makeEntry(now, "user-resume")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	_ = store.Close()

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("audit-%s-2.log", dateStr)))
	if err != nil {
		t.Fatalf("read suffix file: %v", err)
	}
	if !strings.Contains(string(data), "user-resume") {
		t.Error("new entry should land in the highest-suffix segment")
	}
}

func TestFileStore_AppendToExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now().UTC()
	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", now.Format(dateLayout)))

	existing := makeEntry(now.Add(-time.Hour), "user-existing")
	data, _ := json.Marshal(existing)
	if err := os.WriteFile(filename, append(data, '\n'), 0600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	if err := store.Append(context.Background(), makeEntry(now, "user-new")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	_ = store.Close()

	fileData, _ := os.ReadFile(filename)
	lines := strings.Split(strings.TrimSpace(string(fileData)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines in file, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "user-existing") {
		t.Error("first line should be the pre-existing entry")
	}
	if !strings.Contains(lines[1], "user-new") {
		t.Error("second line should be the appended entry")
	}
}

func TestFileStore_RetentionCleanup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	oldDate := time.Now().UTC().AddDate(0, 0, -40)
	recentDate := time.Now().UTC().AddDate(0, 0, -3)

	oldFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", oldDate.Format(dateLayout)))
	oldSuffixFile := filepath.Join(dir, fmt.Sprintf("audit-%s-1.log", oldDate.Format(dateLayout)))
	recentFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", recentDate.Format(dateLayout)))
	todayFile := filepath.Join(dir, fmt.Sprintf("audit-%s.log", time.Now().UTC().Format(dateLayout)))
	strayFile := filepath.Join(dir, "notes.txt")

	for _, f := range []string{oldFile, oldSuffixFile, recentFile, todayFile, strayFile} {
		if err := os.WriteFile(f, []byte("x\n"), 0600); err != nil {
			t.Fatalf("seed file %s: %v", f, err)
		}
	}

	store, err := NewFileStore(FileStoreConfig{Dir: dir, RetentionDays: 30}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("40-day-old file should have been deleted by retention cleanup")
	}
	if _, err := os.Stat(oldSuffixFile); !os.IsNotExist(err) {
		t.Error("40-day-old suffixed file should have been deleted")
	}
	if _, err := os.Stat(recentFile); err != nil {
		t.Error("3-day-old file should not have been deleted")
	}
	if _, err := os.Stat(todayFile); err != nil {
		t.Error("today's file should not have been deleted")
	}
	if _, err := os.Stat(strayFile); err != nil {
		t.Error("non-audit file should never be touched by cleanup")
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	now := time.Now().UTC()
	if err := store.Append(context.Background(), makeEntry(now, "user-perm")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	_ = store.Close()

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", now.Format(dateLayout)))
	info, err := os.Stat(filename)
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestFileStore_RedactedOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	now := time.Now().UTC()
	e := audit.NewEntry("user-1", "write", "config", audit.ResultSuccess,
		map[string]any{"password": "hunter2"})
	e.Timestamp = now

	if err := store.Append(context.Background(), e); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	_ = store.Close()

	filename := filepath.Join(dir, fmt.Sprintf("audit-%s.log", now.Format(dateLayout)))
	data, _ := os.ReadFile(filename)
	if strings.Contains(string(data), "hunter2") {
		t.Error("raw sensitive value reached the audit file")
	}
	if !strings.Contains(string(data), "***MASKED***") {
		t.Error("mask token missing from the audit file")
	}
}

func TestFileStore_AppendEmpty(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(FileStoreConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Append(context.Background()); err != nil {
		t.Errorf("Append() with no entries error: %v", err)
	}
}

func TestFileStore_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(FileStoreConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := store.Append(ctx, makeEntry(now, fmt.Sprintf("user-%d", idx))); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent Append() error: %v", err)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	_ = store.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	totalLines := 0
	for _, e := range entries {
		if _, ok := parseAuditFilename(e.Name()); !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile error: %v", err)
		}
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			totalLines += len(strings.Split(trimmed, "\n"))
		}
	}
	if totalLines != 100 {
		t.Errorf("expected 100 total lines, got %d", totalLines)
	}
}

func TestFileStore_CloseStopsCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := NewFileStore(FileStoreConfig{Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	// Double close must be idempotent.
	if err := store.Close(); err != nil {
		t.Errorf("double Close() error: %v", err)
	}
}
