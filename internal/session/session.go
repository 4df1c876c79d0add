// Package session holds per-connection state for one recorded meeting: the
// participant roster, the audio format, the telemetry log, the mixed and
// per-participant PCM writers, and the dispatcher that routes decoded
// frames into them.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowpbx-labs/ingestd/internal/codec"
	"github.com/flowpbx-labs/ingestd/internal/pcmfile"
)

// maxPendingBufferBytes bounds each pending-audio queue (mixed, and each
// participant) to roughly 30 seconds of 48kHz mono float32 audio (§9
// design note). Once a queue exceeds this, the oldest buffered frame is
// dropped to make room for the newest.
const maxPendingBufferBytes = 48000 * 4 * 30

// DefaultInactivityTimeout is the window of silence after which a session
// is closed with reason "inactivity_timeout" (§4.3 design default).
const DefaultInactivityTimeout = 5 * time.Minute

// Config configures a Session at construction time.
type Config struct {
	RecordingsRoot            string
	EnableMixedAudio          bool
	EnablePerParticipantAudio bool
	InactivityTimeout         time.Duration
	Archiver                  Archiver
	Logger                    *slog.Logger
}

// Session is the state owned by a single WebSocket connection for the
// duration of one meeting recording. Session is single-writer: HandleMessage
// is expected to be called from one goroutine at a time, but Close may also
// be invoked from the inactivity timer or an external shutdown signal, so
// all state is guarded by mu.
type Session struct {
	id      string
	baseDir string
	cfg     Config
	logger  *slog.Logger

	startWall     time.Time
	startMono     time.Time
	lastFrameMono time.Time

	mu     sync.Mutex
	closed bool

	stats Stats

	meetingURL string
	botName    string

	participants map[string]*ParticipantInfo

	audioFormat *AudioFormat

	mixedWriter *pcmfile.Writer

	participantWriters map[string]*participantWriter

	pendingMixed      [][]byte
	pendingMixedBytes int

	pendingParticipant      map[string][][]byte
	pendingParticipantBytes map[string]int
	pendingParticipantOrder []string

	warnedBufferedAudio  bool
	warnedUnknownTypes   map[codec.FrameType]bool
	warnedMalformedParts bool
	jsonParseLimiter     *rate.Limiter

	telemetry     *os.File
	telemetryPath string

	inactivityTimer *time.Timer
}

// New creates the live session directory, opens the telemetry log, and
// starts the inactivity timer. The session is ready for HandleMessage calls
// on return.
func New(id string, cfg Config) (*Session, error) {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "session", "session_id", id)

	baseDir := filepath.Join(cfg.RecordingsRoot, "live", "session_"+id)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	telemetryPath := filepath.Join(baseDir, "telemetry.ndjson")
	telemetry, err := os.Create(telemetryPath)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry log: %w", err)
	}

	now := time.Now()
	s := &Session{
		id:                      id,
		baseDir:                 baseDir,
		cfg:                     cfg,
		logger:                  logger,
		startWall:               now,
		startMono:               now,
		lastFrameMono:           now,
		participants:            make(map[string]*ParticipantInfo),
		participantWriters:      make(map[string]*participantWriter),
		pendingParticipant:      make(map[string][][]byte),
		pendingParticipantBytes: make(map[string]int),
		warnedUnknownTypes:      make(map[codec.FrameType]bool),
		jsonParseLimiter:        rate.NewLimiter(rate.Every(time.Second), 1),
		telemetry:               telemetry,
		telemetryPath:           telemetryPath,
	}

	s.inactivityTimer = time.AfterFunc(cfg.InactivityTimeout, func() {
		s.Close("inactivity_timeout", nil)
	})

	logger.Info("session started", "base_dir", baseDir)

	return s, nil
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// BaseDir returns the session's current (live) directory.
func (s *Session) BaseDir() string { return s.baseDir }

// Stats returns a snapshot of the frame counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// HandleMessage is the entry point for each inbound WebSocket binary frame.
func (s *Session) HandleMessage(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.lastFrameMono = time.Now()
	s.inactivityTimer.Reset(s.cfg.InactivityTimeout)

	frame, err := codec.DecodeEnvelope(raw)
	if err != nil {
		s.stats.UnknownFrames++
		return
	}

	switch frame.Type {
	case codec.FrameTypeJSON:
		s.handleJSON(frame.Payload)
	case codec.FrameTypeVideo:
		s.stats.VideoFrames++
	case codec.FrameTypeMixedAudio:
		s.handleMixedAudio(frame.Payload)
	case codec.FrameTypeEncodedVideo:
		s.stats.EncodedVideoChunks++
	case codec.FrameTypeParticipantAudio:
		s.handleParticipantAudio(frame.Payload)
	default:
		s.stats.UnknownFrames++
		if !s.warnedUnknownTypes[frame.Type] {
			s.warnedUnknownTypes[frame.Type] = true
			s.logger.Warn("unknown frame type", "frame_type", int32(frame.Type))
		}
	}
}

func (s *Session) handleJSON(payload []byte) {
	s.stats.JSONMessages++

	if _, err := s.telemetry.Write(payload); err != nil {
		s.logger.Error("telemetry write failed", "error", err)
	}
	if _, err := s.telemetry.Write([]byte("\n")); err != nil {
		s.logger.Error("telemetry write failed", "error", err)
	}

	ev, err := parseEvent(payload)
	if err != nil {
		if s.jsonParseLimiter.Allow() {
			s.logger.Warn("unparseable telemetry json", "error", err)
		}
		return
	}

	if s.meetingURL == "" && ev.MeetingURL != "" {
		s.meetingURL = ev.MeetingURL
	}

	switch ev.Type {
	case eventSessionStarted:
		if ev.MeetingURL != "" {
			s.meetingURL = ev.MeetingURL
		}
		if ev.BotName != "" {
			s.botName = ev.BotName
		}
	case eventAudioFormatUpdate:
		s.handleAudioFormatUpdate(ev.Format)
	case eventUsersUpdate:
		for _, u := range ev.NewUsers {
			s.upsertParticipant(u)
		}
		for _, u := range ev.UpdatedUsers {
			s.upsertParticipant(u)
		}
	case eventMeetingStatusChange:
		if ev.Change == meetingStatusRemovedFromMeeting {
			go s.Close(meetingStatusRemovedFromMeeting, nil)
		}
	}
}

func (s *Session) upsertParticipant(u rawUser) {
	if u.DeviceID == "" {
		return
	}
	s.participants[u.DeviceID] = &ParticipantInfo{
		DeviceID:      u.DeviceID,
		DisplayName:   u.DisplayName,
		FullName:      u.FullName,
		IsCurrentUser: u.IsCurrentUser,
	}
}

func (s *Session) handleAudioFormatUpdate(f *rawAudioFormat) {
	if f == nil {
		return
	}

	channels := int(f.NumberOfChannels)
	if channels < 1 {
		channels = 1
	}
	candidate := AudioFormat{
		SampleRate:       int(f.SampleRate),
		NumberOfChannels: channels,
		NumberOfFrames:   int(f.NumberOfFrames),
		FormatTag:        f.Format,
	}
	if !candidate.Valid() {
		s.logger.Warn("ignoring invalid audio format update", "sample_rate", candidate.SampleRate)
		return
	}

	first := s.audioFormat == nil
	if !first && (s.audioFormat.SampleRate != candidate.SampleRate || s.audioFormat.NumberOfChannels != candidate.NumberOfChannels) {
		s.logger.Warn("audio format changed mid-session",
			"previous_sample_rate", s.audioFormat.SampleRate,
			"new_sample_rate", candidate.SampleRate,
		)
	}
	s.audioFormat = &candidate

	if first {
		s.drainPending()
	}
}

func (s *Session) drainPending() {
	for _, buf := range s.pendingMixed {
		s.writeMixed(buf)
	}
	s.pendingMixed = nil
	s.pendingMixedBytes = 0

	for _, pid := range s.pendingParticipantOrder {
		for _, buf := range s.pendingParticipant[pid] {
			s.writeParticipant(pid, buf)
		}
	}
	s.pendingParticipant = make(map[string][][]byte)
	s.pendingParticipantBytes = make(map[string]int)
	s.pendingParticipantOrder = nil
}

func (s *Session) handleMixedAudio(payload []byte) {
	if _, exact := codec.SampleCount(len(payload)); !exact {
		s.stats.UnknownFrames++
		return
	}
	s.stats.MixedAudioFrames++

	if !s.cfg.EnableMixedAudio {
		return
	}

	if s.audioFormat == nil {
		s.bufferMixed(payload)
		return
	}

	s.writeMixed(payload)
}

func (s *Session) bufferMixed(payload []byte) {
	if !s.warnedBufferedAudio {
		s.warnedBufferedAudio = true
		s.logger.Warn("buffering audio before audio format is known")
	}

	buf := append([]byte(nil), payload...)
	s.pendingMixed = append(s.pendingMixed, buf)
	s.pendingMixedBytes += len(buf)

	for s.pendingMixedBytes > maxPendingBufferBytes && len(s.pendingMixed) > 0 {
		s.pendingMixedBytes -= len(s.pendingMixed[0])
		s.pendingMixed = s.pendingMixed[1:]
	}
}

func (s *Session) writeMixed(payload []byte) {
	if s.mixedWriter == nil {
		path := filepath.Join(s.baseDir, "mixed_audio.wav")
		w, err := pcmfile.New(path, s.audioFormat.toPCMFormat(), s.logger)
		if err != nil {
			s.logger.Error("failed to create mixed audio writer", "error", err)
			return
		}
		s.mixedWriter = w
	}
	if err := s.mixedWriter.Write(codec.Float32LEToInt16LE(payload)); err != nil {
		s.logger.Error("mixed audio write failed", "error", err)
	}
}

func (s *Session) handleParticipantAudio(payload []byte) {
	pa, err := codec.DecodeParticipantAudio(payload)
	if err != nil {
		s.stats.UnknownFrames++
		if !s.warnedMalformedParts {
			s.warnedMalformedParts = true
			s.logger.Warn("malformed participant audio envelope", "error", err)
		}
		return
	}
	if _, exact := codec.SampleCount(len(pa.Audio)); !exact {
		s.stats.UnknownFrames++
		return
	}
	s.stats.ParticipantAudioFrames++

	if len(pa.Audio) == 0 {
		return
	}
	if !s.cfg.EnablePerParticipantAudio {
		return
	}

	if s.audioFormat == nil {
		s.bufferParticipant(pa.ParticipantID, pa.Audio)
		return
	}

	s.writeParticipant(pa.ParticipantID, pa.Audio)
}

func (s *Session) bufferParticipant(pid string, payload []byte) {
	if !s.warnedBufferedAudio {
		s.warnedBufferedAudio = true
		s.logger.Warn("buffering audio before audio format is known")
	}

	if _, seen := s.pendingParticipant[pid]; !seen {
		s.pendingParticipantOrder = append(s.pendingParticipantOrder, pid)
	}

	buf := append([]byte(nil), payload...)
	s.pendingParticipant[pid] = append(s.pendingParticipant[pid], buf)
	s.pendingParticipantBytes[pid] += len(buf)

	for s.pendingParticipantBytes[pid] > maxPendingBufferBytes && len(s.pendingParticipant[pid]) > 0 {
		s.pendingParticipantBytes[pid] -= len(s.pendingParticipant[pid][0])
		s.pendingParticipant[pid] = s.pendingParticipant[pid][1:]
	}
}

func (s *Session) writeParticipant(pid string, payload []byte) {
	pw, ok := s.participantWriters[pid]
	if !ok {
		participantsDir := filepath.Join(s.baseDir, "participants")
		label := deriveLabel(pid, s.participants[pid], participantsDir)
		dir := filepath.Join(participantsDir, label)
		path := filepath.Join(dir, "combined_"+label+".wav")

		w, err := pcmfile.New(path, s.audioFormat.toPCMFormat(), s.logger)
		if err != nil {
			s.logger.Error("failed to create participant audio writer", "participant_id", pid, "error", err)
			return
		}
		pw = &participantWriter{label: label, writer: w}
		s.participantWriters[pid] = pw
	}

	if err := pw.writer.Write(codec.Float32LEToInt16LE(payload)); err != nil {
		s.logger.Error("participant audio write failed", "participant_id", pid, "error", err)
	}
}

// Close terminates the session: §4.6's Closing actions, synchronously
// followed by archival. It is idempotent — the first call wins; subsequent
// calls are a no-op. reason is one of the documented close reasons
// (client_close, socket_error, inactivity_timeout, removed_from_meeting,
// shutdown); closeErr, if non-nil, is recorded on the summary.
func (s *Session) Close(reason string, closeErr error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.inactivityTimer.Stop()

	now := time.Now()
	durationMs := now.Sub(s.startMono).Milliseconds()
	idleMs := now.Sub(s.lastFrameMono).Milliseconds()

	participants := make([]ParticipantInfo, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, *p)
	}

	var format *AudioFormat
	if s.audioFormat != nil {
		f := *s.audioFormat
		format = &f
	}

	mixedWriter := s.mixedWriter
	participantWriters := s.participantWriters
	baseDir := s.baseDir
	telemetry := s.telemetry
	meetingURL := s.meetingURL
	botName := s.botName
	stats := s.stats
	startedAtISO := s.startWall.UTC().Format(time.RFC3339)
	archiver := s.cfg.Archiver
	logger := s.logger
	s.mu.Unlock()

	if err := telemetry.Close(); err != nil {
		logger.Error("telemetry log close failed", "error", err)
	}

	audioFiles := AudioFiles{Participants: make(map[string]string)}

	var wg sync.WaitGroup
	if mixedWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mixedWriter.Close(); err != nil {
				logger.Error("mixed audio writer close failed", "error", err)
			}
		}()
		audioFiles.Mixed = relPath(baseDir, mixedWriter.FilePath())
	}
	for _, pw := range participantWriters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pw.writer.Close(); err != nil {
				logger.Error("participant audio writer close failed", "error", err)
			}
		}()
		audioFiles.Participants[pw.label] = relPath(baseDir, pw.writer.FilePath())
	}
	wg.Wait()

	errMsg := ""
	if closeErr != nil {
		errMsg = closeErr.Error()
	}

	summary := &Summary{
		SessionID:         s.id,
		Reason:            reason,
		DurationMs:        durationMs,
		IdleMsBeforeClose: idleMs,
		Stats:             stats,
		MeetingURL:        meetingURL,
		BotName:           botName,
		StartedAt:         startedAtISO,
		AudioFormat:       format,
		AudioFiles:        audioFiles,
		Participants:      participants,
		Error:             errMsg,
	}

	if err := WriteSummary(baseDir, summary); err != nil {
		logger.Error("failed to write session summary", "error", err)
	}

	logger.Info("session closed",
		"reason", reason,
		"duration_ms", durationMs,
		"idle_ms", idleMs,
	)

	if archiver == nil {
		return
	}
	if err := archiver.Archive(summary, baseDir); err != nil {
		logger.Error("archival failed, session remains in live directory", "error", err)
	}
}

// SummaryFileName is the session summary artifact written at close and
// re-written (enriched with archive paths) after archival.
const SummaryFileName = "session-summary.json"

// WriteSummary marshals and writes the summary to dir/session-summary.json.
// The write is retried once on failure; if it still fails, the caller is
// expected to leave the existing (possibly stale) file in place for offline
// recovery rather than treat it as fatal.
func WriteSummary(dir string, summary *Summary) error {
	path := filepath.Join(dir, SummaryFileName)
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session summary: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		if err2 := os.WriteFile(path, data, 0o644); err2 != nil {
			return fmt.Errorf("writing session summary: %w", err2)
		}
	}
	return nil
}

func relPath(base, full string) string {
	rel, err := filepath.Rel(base, full)
	if err != nil {
		return full
	}
	return rel
}
