// Package hub manages the websocket session registries and the event
// fan-out between ingest devices, the recognition pipeline, and the
// live dashboard.
//
// Two session roles exist: ingest sessions stream binary audio chunks
// in, observer sessions receive JSON dashboard events out. While at
// least one session of either role is connected, a telemetry task
// samples the host at a fixed interval and broadcasts system_status
// events; the task stops as soon as the last session leaves. All
// broadcasts are best-effort: a session whose socket fails is dropped
// without affecting the others.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxprint/internal/observe"
	"github.com/MrWong99/voxprint/internal/pipeline"
	"github.com/MrWong99/voxprint/pkg/audio"
)

const (
	defaultTelemetryInterval = 5 * time.Second
	defaultSampleRate        = 16000
	defaultMaxIngest         = 10

	// writeTimeout bounds a single send so one wedged client cannot
	// stall the telemetry loop or a serve goroutine.
	writeTimeout = 5 * time.Second
)

// ErrFull is returned by Connect when the ingest session limit is
// reached. The rejected connection is left untouched.
var ErrFull = errors.New("hub: ingest session limit reached")

// Processor is the slice of [pipeline.Orchestrator] the hub needs.
type Processor interface {
	Process(ctx context.Context, chunk audio.Chunk) (*pipeline.Outcome, error)
	SetActive(active bool)
	Active() bool
	Status() pipeline.Status
}

var _ Processor = (*pipeline.Orchestrator)(nil)

// Config holds hub configuration.
type Config struct {
	// TelemetryInterval between system_status broadcasts. Zero selects 5s.
	TelemetryInterval time.Duration `yaml:"telemetry_interval"`

	// SampleRate assumed for ingest PCM data. Zero selects 16000.
	SampleRate int `yaml:"sample_rate"`

	// MaxIngest caps concurrently connected ingest sessions. Zero
	// selects 10.
	MaxIngest int `yaml:"max_ingest"`
}

// Option configures optional Hub behavior.
type Option func(*Hub)

// WithInstruments attaches OTel instruments so the hub reports session,
// chunk, and fan-out counters. Without it the hub records nothing.
func WithInstruments(m *observe.Metrics) Option {
	return func(h *Hub) { h.inst = m }
}

// Hub owns the session registries and the telemetry task.
// All exported methods are safe for concurrent use.
type Hub struct {
	proc       Processor
	metrics    MetricsSource
	inst       *observe.Metrics
	interval   time.Duration
	sampleRate int
	maxIngest  int
	started    time.Time

	mu              sync.Mutex
	ingest          map[string]*Session
	observers       map[string]*Session
	system          SystemMetrics
	lastLevel       float64
	lastSeen        *SpeakerSighting
	telemetryCancel context.CancelFunc
	closed          bool
}

// New creates a Hub. metrics may be nil, in which case CPU and memory
// report as zero and the status stays active.
func New(proc Processor, metrics MetricsSource, cfg Config, opts ...Option) (*Hub, error) {
	if proc == nil {
		return nil, errors.New("hub: processor must not be nil")
	}
	interval := cfg.TelemetryInterval
	if interval == 0 {
		interval = defaultTelemetryInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("hub: telemetry interval %v must be positive", interval)
	}
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	if sampleRate < 0 {
		return nil, fmt.Errorf("hub: sample rate %d must be positive", sampleRate)
	}
	maxIngest := cfg.MaxIngest
	if maxIngest == 0 {
		maxIngest = defaultMaxIngest
	}
	if maxIngest < 0 {
		return nil, fmt.Errorf("hub: max ingest %d must be positive", maxIngest)
	}

	h := &Hub{
		proc:       proc,
		metrics:    metrics,
		interval:   interval,
		sampleRate: sampleRate,
		maxIngest:  maxIngest,
		started:    time.Now().UTC(),
		ingest:     make(map[string]*Session),
		observers:  make(map[string]*Session),
		system:     SystemMetrics{Uptime: "0m", Status: StatusActive},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Connect registers a new session. Observers immediately receive the
// current dashboard snapshot; ingest connects are announced to
// observers as a device_update. The first session to arrive starts the
// telemetry task; the membership change and the first-session check
// happen under one lock.
func (h *Hub) Connect(ctx context.Context, role Role, conn Conn, opts ...SessionOption) (*Session, error) {
	if conn == nil {
		return nil, errors.New("hub: conn must not be nil")
	}
	sess := newSession(role, conn, opts...)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, errors.New("hub: closed")
	}
	if role == RoleIngest && len(h.ingest) >= h.maxIngest {
		h.mu.Unlock()
		return nil, ErrFull
	}
	if role == RoleIngest {
		h.ingest[sess.id] = sess
	} else {
		h.observers[sess.id] = sess
	}
	if len(h.ingest)+len(h.observers) == 1 {
		h.startTelemetryLocked()
	}
	var snap DashboardSnapshot
	if role == RoleObserver {
		snap = h.snapshotLocked()
	}
	total := len(h.ingest) + len(h.observers)
	h.mu.Unlock()

	if h.inst != nil {
		h.inst.RecordSession(ctx, role.String(), 1)
	}
	slog.Info("session connected", "session_id", sess.id, "role", role.String(), "total", total)

	if role == RoleObserver {
		if err := h.trySend(ctx, sess, dashboardDataMessage{Type: KindDashboardData, Data: snap}); err != nil {
			return nil, fmt.Errorf("hub: initial snapshot: %w", err)
		}
	} else {
		h.broadcastDeviceUpdate(ctx, sess.id, "connected")
	}
	return sess, nil
}

// Disconnect removes a session and closes its connection. It is
// idempotent and runs on every session exit path. The last session to
// leave stops the telemetry task; the membership change and the
// last-session check happen under one lock.
func (h *Hub) Disconnect(sess *Session) {
	if sess == nil {
		return
	}

	h.mu.Lock()
	_, wasIngest := h.ingest[sess.id]
	_, wasObserver := h.observers[sess.id]
	if !wasIngest && !wasObserver {
		h.mu.Unlock()
		return
	}
	delete(h.ingest, sess.id)
	delete(h.observers, sess.id)
	remaining := len(h.ingest) + len(h.observers)
	if remaining == 0 {
		h.stopTelemetryLocked()
	}
	h.mu.Unlock()

	sess.close()
	if h.inst != nil {
		h.inst.RecordSession(context.Background(), sess.role.String(), -1)
	}
	slog.Info("session disconnected", "session_id", sess.id, "role", sess.role.String(), "remaining", remaining)

	if wasIngest {
		h.broadcastDeviceUpdate(context.Background(), sess.id, "disconnected")
	}
}

// Broadcast sends msg to every session of the given role. Sends are
// best-effort with per-session isolation: a failed send disconnects
// exactly that session, the rest still receive the message.
func (h *Hub) Broadcast(ctx context.Context, msg any, role Role) {
	h.mu.Lock()
	var targets []*Session
	if role == RoleIngest {
		targets = make([]*Session, 0, len(h.ingest))
		for _, s := range h.ingest {
			targets = append(targets, s)
		}
	} else {
		targets = make([]*Session, 0, len(h.observers))
		for _, s := range h.observers {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, sess := range targets {
		_ = h.trySend(ctx, sess, msg)
	}
}

// trySend sends one message to one session, disconnecting the session
// if the write fails.
func (h *Hub) trySend(ctx context.Context, sess *Session, msg any) error {
	sctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := sess.send(sctx, msg)
	if h.inst != nil {
		h.inst.RecordBroadcast(ctx, err == nil)
	}
	if err != nil {
		slog.Warn("send failed, dropping session", "session_id", sess.id, "err", err)
		h.Disconnect(sess)
		return err
	}
	return nil
}

// Dispatch handles one inbound text message from a session.
func (h *Hub) Dispatch(ctx context.Context, sess *Session, data []byte) {
	sess.received.Add(1)

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = h.trySend(ctx, sess, errorMessage{
			Type:      KindError,
			Message:   "invalid JSON",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	switch msg.Type {
	case KindPing:
		_ = h.trySend(ctx, sess, heartbeatMessage{Type: KindHeartbeat, Timestamp: msg.Timestamp})

	case KindRequestDashboardData:
		_ = h.trySend(ctx, sess, dashboardDataMessage{Type: KindDashboardData, Data: h.Snapshot()})

	case KindRequestMetricsUpdate:
		_ = h.trySend(ctx, sess, systemStatusMessage{Type: KindSystemStatus, Data: h.sampleSystem()})

	case KindToggleRecognition:
		h.proc.SetActive(!msg.Paused)
		slog.Info("recognition toggled", "session_id", sess.id, "paused", msg.Paused)
		h.Broadcast(ctx, toggleMessage{Type: KindToggleRecognition, Paused: msg.Paused}, RoleObserver)

	default:
		slog.Debug("ignoring unknown message type", "type", msg.Type, "session_id", sess.id)
	}
}

// ServeObserver runs the read loop for an observer session until the
// peer closes, the context is cancelled, or a read fails. The session
// is cleaned up on every exit path.
func (h *Hub) ServeObserver(ctx context.Context, sess *Session) {
	defer h.Disconnect(sess)

	for {
		typ, data, err := sess.conn.Read(ctx)
		if err != nil {
			logReadEnd(sess, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		h.Dispatch(ctx, sess, data)
	}
}

// ServeIngest runs the read loop for a device session. Binary frames
// are audio chunks; text frames go through the observer dispatch so
// devices can ping. The session is cleaned up on every exit path.
func (h *Hub) ServeIngest(ctx context.Context, sess *Session) {
	defer h.Disconnect(sess)

	for {
		typ, data, err := sess.conn.Read(ctx)
		if err != nil {
			logReadEnd(sess, err)
			return
		}
		switch typ {
		case websocket.MessageBinary:
			h.handleChunk(ctx, sess, data)
		case websocket.MessageText:
			h.Dispatch(ctx, sess, data)
		}
	}
}

func logReadEnd(sess *Session, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
		errors.Is(err, context.Canceled) {
		slog.Debug("session read loop ended", "session_id", sess.id)
		return
	}
	slog.Warn("session read error", "session_id", sess.id, "err", err)
}

// handleChunk decodes one binary frame, reports its level, and feeds it
// through the recognition pipeline. Outcomes fan out to observers in
// the order chunks arrived on this session.
func (h *Hub) handleChunk(ctx context.Context, sess *Session, data []byte) {
	sess.received.Add(1)

	if sess.decode != nil {
		decoded, err := sess.decode(data)
		if err != nil {
			slog.Warn("chunk decode failed", "session_id", sess.id, "bytes", len(data), "err", err)
			return
		}
		data = decoded
	}

	level := audio.Level(audio.Float32(data))
	h.mu.Lock()
	h.lastLevel = level
	h.mu.Unlock()
	h.Broadcast(ctx, audioLevelMessage{
		Type:      KindAudioLevel,
		Level:     level,
		DeviceID:  sess.id,
		Timestamp: time.Now().UTC(),
	}, RoleObserver)

	out, err := h.proc.Process(ctx, audio.Chunk{
		Data:       data,
		SampleRate: h.sampleRate,
		Received:   time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("chunk processing aborted", "session_id", sess.id, "err", err)
		return
	}
	if out == nil {
		return
	}
	h.recordOutcome(ctx, out)
	if !out.Voice {
		return
	}
	if out.Err != nil {
		h.Broadcast(ctx, errorMessage{
			Type:      KindError,
			Message:   out.Err.Error(),
			Timestamp: out.Timestamp,
		}, RoleObserver)
		return
	}

	sighting := SpeakerSighting{
		Speaker:    out.Result.Label,
		Confidence: out.Result.Confidence,
		Known:      out.Result.Known,
		Timestamp:  out.Timestamp,
	}
	h.mu.Lock()
	h.lastSeen = &sighting
	h.mu.Unlock()

	h.Broadcast(ctx, recognitionResultMessage{
		Type:       KindRecognitionResult,
		Speaker:    out.Result.Label,
		Confidence: out.Result.Confidence,
		Known:      out.Result.Known,
		DeviceID:   sess.id,
		Timestamp:  out.Timestamp,
	}, RoleObserver)
}

// recordOutcome reports one processed chunk to the instruments.
func (h *Hub) recordOutcome(ctx context.Context, out *pipeline.Outcome) {
	if h.inst == nil {
		return
	}
	switch {
	case out.Err != nil:
		h.inst.RecordChunk(ctx, "error", out.Duration)
	case !out.Voice:
		h.inst.RecordChunk(ctx, "silence", out.Duration)
	default:
		h.inst.RecordChunk(ctx, "voice", out.Duration)
		h.inst.RecordRecognition(ctx, out.Result.Known)
	}
}

// broadcastDeviceUpdate announces an ingest connect or disconnect to
// observers with the current per-role counts.
func (h *Hub) broadcastDeviceUpdate(ctx context.Context, deviceID, status string) {
	h.mu.Lock()
	counts := DeviceCount{Ingest: len(h.ingest), Observers: len(h.observers)}
	h.mu.Unlock()

	h.Broadcast(ctx, deviceUpdateMessage{
		Type:      KindDeviceUpdate,
		DeviceID:  deviceID,
		Status:    status,
		Devices:   counts,
		Timestamp: time.Now().UTC(),
	}, RoleObserver)
}

// Snapshot assembles the current dashboard view.
func (h *Hub) Snapshot() DashboardSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() DashboardSnapshot {
	st := h.proc.Status()

	sys := h.system
	sys.Uptime = formatUptime(time.Since(h.started))

	snap := DashboardSnapshot{
		SystemStatus: sys,
		RecognitionStats: RecognitionStats{
			TotalChunks:      st.Stats.TotalChunks,
			VoiceChunks:      st.Stats.VoiceChunks,
			Errors:           st.Stats.Errors,
			MeanProcessingMs: durationMs(st.Stats.MeanProcessing),
			VoiceRatio:       st.Stats.VoiceRatio,
			LatencyP50Ms:     durationMs(st.Stats.Latency.P50),
			LatencyP95Ms:     durationMs(st.Stats.Latency.P95),
			EnrolledSpeakers: st.Enrolled,
			ModelMode:        st.Mode.String(),
			Enabled:          st.Active,
		},
		AudioMetrics: AudioMetrics{InputLevel: h.lastLevel},
		DeviceCount:  DeviceCount{Ingest: len(h.ingest), Observers: len(h.observers)},
	}
	if h.lastSeen != nil {
		seen := *h.lastSeen
		snap.CurrentSpeaker = &seen
	}
	return snap
}

// ConnectionStats lists every connected session for the admin API,
// oldest first.
func (h *Hub) ConnectionStats() []SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]SessionInfo, 0, len(h.ingest)+len(h.observers))
	for _, s := range h.ingest {
		infos = append(infos, s.Info())
	}
	for _, s := range h.observers {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Close disconnects every session and stops the telemetry task.
// Further Connect calls fail.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := make([]*Session, 0, len(h.ingest)+len(h.observers))
	for _, s := range h.ingest {
		sessions = append(sessions, s)
	}
	for _, s := range h.observers {
		sessions = append(sessions, s)
	}
	h.ingest = make(map[string]*Session)
	h.observers = make(map[string]*Session)
	h.stopTelemetryLocked()
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	slog.Info("hub closed", "sessions", len(sessions))
	return nil
}

func (h *Hub) startTelemetryLocked() {
	if h.telemetryCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.telemetryCancel = cancel
	go h.telemetryLoop(ctx, h.interval)
	slog.Debug("telemetry task started", "interval", h.interval)
}

func (h *Hub) stopTelemetryLocked() {
	if h.telemetryCancel == nil {
		return
	}
	h.telemetryCancel()
	h.telemetryCancel = nil
	slog.Debug("telemetry task stopped")
}

// SetTelemetryInterval changes the system_status broadcast interval at
// runtime. A running telemetry task is restarted so the new interval
// takes effect immediately; connected dashboards see one extra status
// frame. Non-positive intervals are rejected.
func (h *Hub) SetTelemetryInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("hub: telemetry interval %s must be positive", d)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("hub: closed")
	}
	h.interval = d
	if h.telemetryCancel != nil {
		h.stopTelemetryLocked()
		h.startTelemetryLocked()
	}
	return nil
}

// telemetryLoop broadcasts system_status at the given interval until its
// context is cancelled. The first sample goes out immediately.
func (h *Hub) telemetryLoop(ctx context.Context, interval time.Duration) {
	h.Broadcast(ctx, systemStatusMessage{Type: KindSystemStatus, Data: h.sampleSystem()}, RoleObserver)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(ctx, systemStatusMessage{Type: KindSystemStatus, Data: h.sampleSystem()}, RoleObserver)
		}
	}
}

// sampleSystem refreshes the stored system metrics and returns them.
func (h *Hub) sampleSystem() SystemMetrics {
	var cpu, mem float64
	if h.metrics != nil {
		cpu, mem = h.metrics.Sample()
	}
	m := SystemMetrics{
		CPUUsage:    cpu,
		MemoryUsage: mem,
		Uptime:      formatUptime(time.Since(h.started)),
		Status:      statusFor(cpu, mem),
	}

	h.mu.Lock()
	h.system = m
	h.mu.Unlock()
	return m
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
