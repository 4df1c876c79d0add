// Package archive implements the Closing->Archiving->Finalised tail of the
// session lifecycle (§4.6): moving a sealed session directory from
// recordings/live to recordings/completed, and writing its manifest.
package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/flowpbx-labs/ingestd/internal/session"
)

// maxNameSuffix bounds the "_NN" collision retries (§6: NN is two digits).
const maxNameSuffix = 99

// ManifestFile is one entry in archive.json.
type ManifestFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Manifest is the sealed-archive manifest written as archive.json.
type Manifest struct {
	SessionID  string         `json:"sessionId"`
	MeetingURL string         `json:"meetingUrl,omitempty"`
	BotName    string         `json:"botName,omitempty"`
	StartedAt  string         `json:"startedAt"`
	ArchivedAt string         `json:"archivedAt"`
	Files      []ManifestFile `json:"files"`
}

// manifestFileName is the manifest artifact written at the root of every
// completed session directory.
const manifestFileName = "archive.json"

// Archiver moves closed sessions into recordings/completed and seals them
// with a manifest. It implements session.Archiver.
type Archiver struct {
	RecordingsRoot string
	Logger         *slog.Logger

	// OnArchived, if set, is invoked with the sealed archive directory once
	// archival succeeds. It is called from its own goroutine so a slow or
	// failing post-archive pipeline never blocks session finalisation.
	OnArchived func(archiveDir string)
}

// New creates an Archiver rooted at recordingsRoot.
func New(recordingsRoot string, logger *slog.Logger, onArchived func(string)) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		RecordingsRoot: recordingsRoot,
		Logger:         logger.With("subsystem", "archiver"),
		OnArchived:     onArchived,
	}
}

// Archive moves baseDir to its completed-side location, writes the
// manifest, and re-writes session-summary.json with the archive paths. A
// failure here is logged by the caller and leaves the session finalised in
// its live directory (§4.6, §7) rather than aborting the process.
func (a *Archiver) Archive(summary *session.Summary, baseDir string) error {
	completedRoot := filepath.Join(a.RecordingsRoot, "completed")
	if err := os.MkdirAll(completedRoot, 0o755); err != nil {
		return fmt.Errorf("creating completed directory: %w", err)
	}

	slug := slugFromMeetingURL(summary.MeetingURL)
	ts := compactTimestamp(summary.StartedAt)
	shortID := summary.SessionID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	name := fmt.Sprintf("meeting_%s_%s_%s", slug, ts, shortID)

	dest, err := moveWithCollisionHandling(baseDir, completedRoot, name)
	if err != nil {
		return fmt.Errorf("moving session directory: %w", err)
	}

	files, err := walkManifest(dest)
	if err != nil {
		a.Logger.Error("failed to enumerate archive files", "error", err)
	}

	manifest := Manifest{
		SessionID:  summary.SessionID,
		MeetingURL: summary.MeetingURL,
		BotName:    summary.BotName,
		StartedAt:  summary.StartedAt,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339),
		Files:      files,
	}
	manifestPath := filepath.Join(dest, manifestFileName)
	if err := writeManifest(manifestPath, manifest); err != nil {
		a.Logger.Error("failed to write archive manifest", "error", err)
	}

	summary.ArchivePath = dest
	summary.ManifestPath = manifestPath
	if err := session.WriteSummary(dest, summary); err != nil {
		a.Logger.Error("failed to rewrite session summary with archive paths", "error", err)
	}

	a.Logger.Info("session archived", "archive_dir", dest, "files", len(files))

	if a.OnArchived != nil {
		go a.OnArchived(dest)
	}

	return nil
}

// moveWithCollisionHandling renames src to destRoot/name, or destRoot/name_NN
// (NN starting at 01) if that location is already occupied.
func moveWithCollisionHandling(src, destRoot, name string) (string, error) {
	dest := filepath.Join(destRoot, name)

	for n := 0; n <= maxNameSuffix; n++ {
		candidate := dest
		if n > 0 {
			candidate = fmt.Sprintf("%s_%02d", dest, n)
		}

		if _, err := os.Stat(candidate); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", err
		}

		if err := os.Rename(src, candidate); err != nil {
			return "", err
		}
		return candidate, nil
	}

	return "", fmt.Errorf("exhausted archive name suffixes for %q", name)
}

// walkManifest recursively enumerates regular files under dir, sorted by
// path, with their sizes.
func walkManifest(dir string) ([]ManifestFile, error) {
	var files []ManifestFile

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, ManifestFile{Path: rel, Size: info.Size()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files, err
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// compactTimestamp converts an RFC3339 UTC timestamp to the archive folder
// form: separators stripped, sub-second truncated (e.g. "20240607T143005Z").
func compactTimestamp(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		t = time.Now()
	}
	return t.UTC().Format("20060102T150405Z")
}
