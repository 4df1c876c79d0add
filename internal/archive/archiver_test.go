package archive

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowpbx-labs/ingestd/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newLiveDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, "live", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating live dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mixed_audio.wav"), []byte("RIFF...."), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}
	return dir
}

func TestArchiveMovesSessionAndWritesManifest(t *testing.T) {
	root := t.TempDir()
	live := newLiveDir(t, root, "sess-1")

	a := New(root, testLogger(), nil)
	summary := &session.Summary{
		SessionID:  "11111111-2222-3333-4444-555555555555",
		MeetingURL: "https://meet.example/room-a",
		StartedAt:  "2024-06-07T14:30:05Z",
	}

	if err := a.Archive(summary, live); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if _, err := os.Stat(live); !os.IsNotExist(err) {
		t.Error("expected live directory to no longer exist after archival")
	}

	wantDir := filepath.Join(root, "completed", "meeting_room-a_20240607T143005Z_11111111")
	if summary.ArchivePath != wantDir {
		t.Errorf("ArchivePath = %q, want %q", summary.ArchivePath, wantDir)
	}
	if _, err := os.Stat(filepath.Join(wantDir, "mixed_audio.wav")); err != nil {
		t.Errorf("expected mixed_audio.wav to have moved: %v", err)
	}

	manifestPath := filepath.Join(wantDir, manifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshalling manifest: %v", err)
	}
	if m.SessionID != summary.SessionID {
		t.Errorf("manifest SessionID = %q, want %q", m.SessionID, summary.SessionID)
	}
	if len(m.Files) != 1 || m.Files[0].Path != "mixed_audio.wav" {
		t.Errorf("manifest Files = %+v, want just mixed_audio.wav (archive.json is written after the walk)", m.Files)
	}

	summaryPath := filepath.Join(wantDir, session.SummaryFileName)
	sdata, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("reading rewritten summary: %v", err)
	}
	var rewritten session.Summary
	if err := json.Unmarshal(sdata, &rewritten); err != nil {
		t.Fatalf("unmarshalling rewritten summary: %v", err)
	}
	if rewritten.ArchivePath != wantDir {
		t.Errorf("rewritten summary ArchivePath = %q, want %q", rewritten.ArchivePath, wantDir)
	}
	if rewritten.ManifestPath != manifestPath {
		t.Errorf("rewritten summary ManifestPath = %q, want %q", rewritten.ManifestPath, manifestPath)
	}
}

func TestArchiveNameCollisionAppendsSuffix(t *testing.T) {
	root := t.TempDir()
	completed := filepath.Join(root, "completed")
	if err := os.MkdirAll(completed, 0o755); err != nil {
		t.Fatalf("creating completed dir: %v", err)
	}

	occupied := "meeting_room-a_20240607T143005Z_11111111"
	if err := os.MkdirAll(filepath.Join(completed, occupied), 0o755); err != nil {
		t.Fatalf("seeding collision: %v", err)
	}

	live := newLiveDir(t, root, "sess-2")
	a := New(root, testLogger(), nil)
	summary := &session.Summary{
		SessionID:  "11111111-2222-3333-4444-555555555555",
		MeetingURL: "https://meet.example/room-a",
		StartedAt:  "2024-06-07T14:30:05Z",
	}

	if err := a.Archive(summary, live); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	want := filepath.Join(completed, occupied+"_01")
	if summary.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q (collision suffix)", summary.ArchivePath, want)
	}
}

func TestArchiveTriggersOnArchivedCallback(t *testing.T) {
	root := t.TempDir()
	live := newLiveDir(t, root, "sess-3")

	done := make(chan string, 1)
	a := New(root, testLogger(), func(dir string) { done <- dir })

	summary := &session.Summary{
		SessionID:  "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		MeetingURL: "https://meet.example/room-b",
		StartedAt:  "2024-01-01T00:00:00Z",
	}
	if err := a.Archive(summary, live); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	select {
	case got := <-done:
		if got != summary.ArchivePath {
			t.Errorf("OnArchived dir = %q, want %q", got, summary.ArchivePath)
		}
	case <-time.After(time.Second):
		t.Fatal("OnArchived callback was not invoked")
	}
}

func TestCompactTimestampFallsBackToNowOnParseError(t *testing.T) {
	got := compactTimestamp("not-a-timestamp")
	if len(got) != len("20060102T150405Z") {
		t.Errorf("compactTimestamp fallback length = %d, want %d", len(got), len("20060102T150405Z"))
	}
}

func TestSlugFromMeetingURLFallsBackToHost(t *testing.T) {
	got := slugFromMeetingURL("https://meet.example.com")
	if got != "meet-example-com" {
		t.Errorf("slugFromMeetingURL = %q, want %q", got, "meet-example-com")
	}
}

func TestSlugFromMeetingURLEmpty(t *testing.T) {
	got := slugFromMeetingURL("")
	if got != "unknown" {
		t.Errorf("slugFromMeetingURL(\"\") = %q, want unknown", got)
	}
}
