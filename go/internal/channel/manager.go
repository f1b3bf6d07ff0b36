// Package channel owns the push connection for a single room: it
// establishes the WebSocket, watches for closure, retries with a bounded
// fixed-interval backoff, and hands decoded events to the reconciliation
// engine. It knows nothing about game semantics.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/kalee/two-rooms-client/go/internal/events"
)

// State represents the connection lifecycle state
type State string

const (
	StateConnecting State = "CONNECTING"
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
	StateExhausted  State = "EXHAUSTED"
)

// Status is a point-in-time connection status notification
type Status struct {
	State       State
	Attempts    int    // retry attempts so far; reset to zero on every Open
	Terminal    bool   // true when no retry will be scheduled
	UserMessage string // user-facing text for terminal conditions
	Err         error
}

// Config holds connection configuration
type Config struct {
	BaseURL              string // e.g. ws://localhost:8080
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	MaxMessageSize       int64
	EventBuffer          int
	StatusBuffer         int
}

// DefaultConfig returns the default connection configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:              "ws://localhost:8080",
		MaxReconnectAttempts: 5,
		ReconnectInterval:    3 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxMessageSize:       64 * 1024,
		EventBuffer:          256,
		StatusBuffer:         16,
	}
}

const roomCodeLength = 6

var (
	// ErrInvalidRoomCode is reported when the room code is empty or malformed
	ErrInvalidRoomCode = errors.New("room code is empty or malformed")
	// ErrMissingPlayerID is reported when no participant identity is available
	ErrMissingPlayerID = errors.New("participant id is required")
)

// Manager owns one push connection and its retry state. One instance per
// active room subscription; torn down with Close on leave.
type Manager struct {
	cfg      Config
	roomCode string
	playerID string
	clock    clockwork.Clock
	dialer   *websocket.Dialer

	mu          sync.Mutex
	state       State
	attempts    int
	conn        *websocket.Conn
	lastEvent   *events.Envelope
	intentional bool

	eventsCh    chan events.Envelope
	statusCh    chan Status
	reconnectCh chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a manager for the given room and participant. Passing a
// nil clock uses the real clock; tests inject a fake one.
func NewManager(cfg Config, roomCode, playerID string, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		cfg:      cfg,
		roomCode: roomCode,
		playerID: playerID,
		clock:    clock,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		state:       StateClosed,
		eventsCh:    make(chan events.Envelope, cfg.EventBuffer),
		statusCh:    make(chan Status, cfg.StatusBuffer),
		reconnectCh: make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Connect validates the room identity and starts the connection supervisor.
// It is a no-op, reporting a non-retryable status, when the room code is
// malformed or the participant id is absent: the channel requires a
// participant identity to be meaningful.
func (m *Manager) Connect(ctx context.Context) error {
	if len(m.roomCode) != roomCodeLength {
		m.publish(Status{State: StateClosed, Terminal: true, UserMessage: "Invalid room code.", Err: ErrInvalidRoomCode})
		return ErrInvalidRoomCode
	}
	if m.playerID == "" {
		m.publish(Status{State: StateClosed, Terminal: true, UserMessage: "No participant identity.", Err: ErrMissingPlayerID})
		return ErrMissingPlayerID
	}
	go m.run(ctx)
	return nil
}

// Events returns the stream of decoded inbound events for this room.
// The channel is closed when the supervisor exits.
func (m *Manager) Events() <-chan events.Envelope { return m.eventsCh }

// StatusUpdates returns connection status notifications
func (m *Manager) StatusUpdates() <-chan Status { return m.statusCh }

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the retry attempts made since the last successful open
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastEvent returns the most recently received event, or nil
func (m *Manager) LastEvent() *events.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvent
}

// Send transmits a message when the channel is Open. Otherwise the message
// is dropped, a warning is logged and false is returned; Send never panics.
func (m *Manager) Send(env *events.Envelope) bool {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != StateOpen || conn == nil {
		log.Warn().Str("type", string(env.Type)).Str("state", string(state)).
			Msg("channel not open, dropping outbound message")
		return false
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to marshal outbound message")
		return false
	}
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("type", string(env.Type)).Msg("failed to write outbound message")
		return false
	}
	return true
}

// ManualReconnect resets the retry counter and wakes the supervisor. It is
// the only way out of the Exhausted state.
func (m *Manager) ManualReconnect() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

// Close tears the channel down intentionally: any pending retry is cancelled
// and no automatic reconnect will fire afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.intentional = true
	conn := m.conn
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stopCh) })
	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leaving room"), deadline)
		_ = conn.Close()
	}
}

// run is the connection supervisor: dial, pump, decide whether to retry.
func (m *Manager) run(ctx context.Context) {
	defer close(m.eventsCh)
	for {
		if m.stopping(ctx) {
			m.setState(StateClosed, nil)
			return
		}
		m.setState(StateConnecting, nil)
		var readErr error
		conn, err := m.dial(ctx)
		if err != nil {
			readErr = err
		} else {
			m.setOpen(conn)
			readErr = m.readLoop(ctx, conn)
			conn.Close()
			m.mu.Lock()
			m.conn = nil
			m.mu.Unlock()
		}

		if m.stopping(ctx) || m.isIntentional() {
			m.setState(StateClosed, nil)
			return
		}
		if msg, terminal := terminalClose(readErr); terminal {
			log.Error().Err(readErr).Str("room", m.roomCode).Msg("push channel closed with terminal code")
			m.publishState(StateClosed, Status{State: StateClosed, Terminal: true, UserMessage: msg, Err: readErr})
			return
		}

		m.mu.Lock()
		m.attempts++
		attempts := m.attempts
		m.mu.Unlock()
		if attempts >= m.cfg.MaxReconnectAttempts {
			log.Error().Err(readErr).Int("attempts", attempts).Str("room", m.roomCode).
				Msg("push channel retries exhausted")
			// Drop any stale manual-reconnect token before waiting for a real one.
			select {
			case <-m.reconnectCh:
			default:
			}
			m.publishState(StateExhausted, Status{
				State:       StateExhausted,
				Attempts:    attempts,
				Terminal:    true,
				UserMessage: "Unable to reconnect. Use manual reconnect to try again.",
				Err:         readErr,
			})
			if !m.awaitManualReconnect(ctx) {
				return
			}
			continue
		}

		m.setState(StateClosed, readErr)
		log.Warn().Err(readErr).Int("attempt", attempts).Int("max", m.cfg.MaxReconnectAttempts).
			Dur("delay", m.cfg.ReconnectInterval).Str("room", m.roomCode).
			Msg("push channel lost, reconnect scheduled")
		if !m.sleep(ctx) {
			m.setState(StateClosed, nil)
			return
		}
	}
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := fmt.Sprintf("%s/ws/%s?playerId=%s",
		strings.TrimRight(m.cfg.BaseURL, "/"), m.roomCode, url.QueryEscape(m.playerID))
	conn, resp, err := m.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	conn.SetReadLimit(m.cfg.MaxMessageSize)
	return conn, nil
}

func (m *Manager) setOpen(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()
	m.publish(Status{State: StateOpen})
	log.Info().Str("room", m.roomCode).Msg("push channel open")
}

// readLoop pumps inbound deliveries until the connection dies. A single
// delivery may batch several newline-delimited records; each is decoded
// independently and events addressed to other rooms are dropped here so
// they never reach reconciliation.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.noteInbound()
		envs, _ := events.DecodeFrames(data)
		for _, env := range envs {
			if env.RoomCode != "" && env.RoomCode != m.roomCode {
				log.Warn().Str("event_room", env.RoomCode).Str("room", m.roomCode).
					Str("type", string(env.Type)).Msg("dropping event addressed to another room")
				continue
			}
			m.setLastEvent(env)
			select {
			case m.eventsCh <- env:
			case <-m.stopCh:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// noteInbound flips the state to Open when data arrives before the
// handshake acknowledgment was observed: delivery is stronger evidence of
// liveness than the handshake signal.
func (m *Manager) noteInbound() {
	m.mu.Lock()
	if m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	m.state = StateOpen
	m.attempts = 0
	m.mu.Unlock()
	m.publish(Status{State: StateOpen})
	log.Debug().Str("room", m.roomCode).Msg("inbound data received before handshake ack, marking channel open")
}

func (m *Manager) setLastEvent(env events.Envelope) {
	m.mu.Lock()
	m.lastEvent = &env
	m.mu.Unlock()
}

// sleep waits out the fixed reconnect delay. A manual reconnect request
// short-circuits the wait.
func (m *Manager) sleep(ctx context.Context) bool {
	timer := m.clock.NewTimer(m.cfg.ReconnectInterval)
	defer stopAndDrainTimer(timer)
	select {
	case <-timer.Chan():
		return true
	case <-m.reconnectCh:
		return true
	case <-m.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) awaitManualReconnect(ctx context.Context) bool {
	select {
	case <-m.reconnectCh:
		log.Info().Str("room", m.roomCode).Msg("manual reconnect requested")
		return true
	case <-m.stopCh:
		m.setState(StateClosed, nil)
		return false
	case <-ctx.Done():
		m.setState(StateClosed, nil)
		return false
	}
}

func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	m.state = state
	attempts := m.attempts
	m.mu.Unlock()
	m.publish(Status{State: state, Attempts: attempts, Err: err})
}

func (m *Manager) publishState(state State, status Status) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.publish(status)
}

// publish sends a status notification without ever blocking the supervisor
func (m *Manager) publish(status Status) {
	select {
	case m.statusCh <- status:
	default:
		log.Debug().Str("state", string(status.State)).Msg("status buffer full, dropping notification")
	}
}

func (m *Manager) isIntentional() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intentional
}

func (m *Manager) stopping(ctx context.Context) bool {
	select {
	case <-m.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// terminalClose maps close codes that must not be retried to user-facing
// messages: policy violation means the room does not exist, unsupported
// data means the protocol is incompatible.
func terminalClose(err error) (string, bool) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return "", false
	}
	switch ce.Code {
	case websocket.ClosePolicyViolation:
		return "Room not found.", true
	case websocket.CloseUnsupportedData:
		return "The server rejected this client's protocol.", true
	}
	return "", false
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the pattern recommended in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
