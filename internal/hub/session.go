package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Conn is the slice of [websocket.Conn] a Session needs. Tests install
// scripted connections; production code passes the real thing.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

var _ Conn = (*websocket.Conn)(nil)

// Role distinguishes the two kinds of hub sessions.
type Role int

const (
	// RoleIngest sessions stream binary audio chunks from a device.
	RoleIngest Role = iota

	// RoleObserver sessions receive dashboard events and may send
	// observer requests.
	RoleObserver
)

// String returns the role name used in logs and the admin API.
func (r Role) String() string {
	switch r {
	case RoleIngest:
		return "ingest"
	case RoleObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// Session wraps one websocket connection registered with the hub.
// Reads are confined to the serve loop; sends may come from any
// goroutine and are serialised by a mutex.
type Session struct {
	id          string
	role        Role
	conn        Conn
	decode      func([]byte) ([]byte, error)
	connectedAt time.Time

	sent     atomic.Int64
	received atomic.Int64

	writeMu sync.Mutex
}

// SessionOption configures a Session at connect time.
type SessionOption func(*Session)

// WithDecoder installs a codec step applied to every binary frame
// before it reaches the pipeline, e.g. an Opus decoder negotiated by
// the device.
func WithDecoder(decode func([]byte) ([]byte, error)) SessionOption {
	return func(s *Session) { s.decode = decode }
}

func newSession(role Role, conn Conn, opts ...SessionOption) *Session {
	s := &Session{
		id:          uuid.NewString(),
		role:        role,
		conn:        conn,
		connectedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Role returns the session's role.
func (s *Session) Role() Role { return s.role }

// ConnectedAt returns when the session registered with the hub.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// SessionInfo is the admin API view of one session.
type SessionInfo struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
	Sent        int64     `json:"messages_sent"`
	Received    int64     `json:"messages_received"`
}

// Info returns a point-in-time view of the session's counters.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		Role:        s.role.String(),
		ConnectedAt: s.connectedAt,
		Sent:        s.sent.Load(),
		Received:    s.received.Load(),
	}
}

// send marshals v and writes it as one text message.
func (s *Session) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("hub: marshal %T: %w", v, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

func (s *Session) close() {
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
}
