// Package manager owns the lifecycle of one logical adapter connection:
// connect, disconnect, reconnect with backoff, keep-alive, and serialized
// command dispatch. The adapter protocol has no multiplexing, so exactly
// one command may be in flight on the transport at any instant.
package manager

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/obdlink/internal/elm"
	"github.com/shaunagostinho/obdlink/internal/profile"
	"github.com/shaunagostinho/obdlink/internal/transport"
)

// ConnectionInfo is a snapshot of the live connection.
type ConnectionInfo struct {
	Port        string    `json:"port"`
	Kind        string    `json:"kind"`
	Protocol    string    `json:"protocol"`
	BaudRate    int       `json:"baudRate"`
	Generation  uint64    `json:"generation"` // bumps on every new handle
	ConnectedAt time.Time `json:"connectedAt"`
	State       string    `json:"state"`
}

// Manager is the connection manager. Construct with New, pass by
// reference to whatever needs vehicle access, and Disconnect on shutdown.
type Manager struct {
	locator transport.Locator
	dialer  transport.Dialer

	// OnSessionEnd, when set, receives a session record every time a live
	// connection is torn down.
	OnSessionEnd func(profile.SessionRecord)

	// dispatchMu is the command critical section: Connect, Disconnect,
	// Query, and keep-alive probes all serialize on it.
	dispatchMu sync.Mutex

	// mu guards the snapshot fields below for lock-free-ish observers.
	mu           sync.RWMutex
	state        State
	cfg          profile.ConnectionConfig
	sess         *elm.Session
	endpoint     transport.Endpoint
	gen          uint64
	connectedAt  time.Time
	lastExchange time.Time
	sessionDTCs  int

	keepCancel context.CancelFunc
	keepDone   chan struct{}
}

// New builds a Manager over a locator/dialer pair. Use
// transport.NewSystemLocator/NewSystemDialer for hardware, the mock pair
// for tests and demo mode.
func New(locator transport.Locator, dialer transport.Dialer) *Manager {
	return &Manager{locator: locator, dialer: dialer, state: StateDisconnected}
}

// State returns the lifecycle state snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the manager was CONNECTED at the time of
// the call. Stale-but-safe: treat every Query result as the authority.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Info returns connection details for the current handle.
func (m *Manager) Info() ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ConnectionInfo{
		Port:        m.endpoint.Target,
		Kind:        m.endpoint.Kind.String(),
		Protocol:    m.sessProtocol().String(),
		BaudRate:    m.cfg.BaudRate,
		Generation:  m.gen,
		ConnectedAt: m.connectedAt,
		State:       m.state.String(),
	}
}

func (m *Manager) sessProtocol() elm.Protocol {
	if m.sess == nil {
		return elm.ProtocolAuto
	}
	return m.sess.Protocol()
}

// Connect ensures a live connection. When already CONNECTED and the
// handle passes a cheap health probe, the existing handle is returned
// unchanged — no re-pairing, no renegotiation. Configuration errors are
// fatal and returned without touching the current connection.
func (m *Manager) Connect(ctx context.Context, cfg profile.ConnectionConfig) (ConnectionInfo, error) {
	if err := cfg.Validate(); err != nil {
		return ConnectionInfo{}, newError(KindInvalidConfig, err, "invalid connection config")
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	if m.State() == StateConnected && m.sessionAlive(ctx) {
		log.Printf("[manager] reusing healthy connection to %s", m.endpoint.Target)
		return m.Info(), nil
	}

	m.teardownLocked()
	m.setState(StateConnecting)
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	if err := m.establishLocked(ctx); err != nil {
		m.setState(StateError)
		return ConnectionInfo{}, err
	}
	return m.Info(), nil
}

// sessionAlive runs the lightweight health check on the existing handle.
func (m *Manager) sessionAlive(ctx context.Context) bool {
	if m.sess == nil {
		return false
	}
	if _, err := m.sess.Command(ctx, "ATI"); err != nil {
		log.Printf("[manager] health check failed: %v", err)
		return false
	}
	m.touch()
	return true
}

// establishLocked runs the full locate/dial/initialize sequence. Caller
// holds dispatchMu and has already torn down any prior handle.
func (m *Manager) establishLocked(ctx context.Context) error {
	cfg := m.config()

	candidates, err := m.locator.Locate(cfg.Port)
	if err != nil {
		return newError(KindNoAdapterFound, err, "endpoint discovery failed")
	}
	if len(candidates) == 0 {
		return newError(KindNoAdapterFound, nil, "no candidate adapter endpoints found")
	}

	var (
		negotiationFailed bool
		handshakeFailed   bool
		lastErr           error
	)
	for _, ep := range candidates {
		t, err := m.dialer.Dial(ep, cfg.BaudRate)
		if err != nil {
			log.Printf("[manager] %s: dial failed: %v", ep.Target, err)
			lastErr = err
			continue
		}

		sess, err := elm.Initialize(ctx, t, elm.Config{
			Timeout:    cfg.Timeout(),
			Protocol:   cfg.ParsedProtocol(),
			AutoDetect: cfg.AutoDetect,
		})
		if err != nil {
			t.Close()
			lastErr = err
			if errors.Is(err, elm.ErrNegotiation) {
				negotiationFailed = true
				log.Printf("[manager] %s: %v", ep.Target, err)
			} else {
				handshakeFailed = true
				log.Printf("[manager] %s: handshake failed: %v", ep.Target, err)
			}
			continue
		}

		m.mu.Lock()
		m.sess = sess
		m.endpoint = ep
		m.gen++
		m.connectedAt = time.Now()
		m.lastExchange = m.connectedAt
		m.sessionDTCs = 0
		m.state = StateConnected
		m.mu.Unlock()

		m.startKeepAlive()
		log.Printf("[manager] connected to %s (%s, %s)",
			ep.Target, ep.Kind, sess.Protocol().Description())
		return nil
	}

	switch {
	case negotiationFailed:
		return newError(KindProtocolNegotiationFailed, lastErr,
			"no protocol accepted on any candidate adapter")
	case handshakeFailed:
		return newError(KindHandshakeFailed, lastErr,
			"all candidate adapters rejected the handshake")
	default:
		return newError(KindNoAdapterFound, lastErr,
			"no adapter responded on %d candidate endpoint(s)", len(candidates))
	}
}

// Disconnect tears the connection down and transitions to DISCONNECTED.
// Idempotent: disconnecting while already disconnected is a no-op.
func (m *Manager) Disconnect() error {
	// Cancel keep-alive before taking the dispatch lock so a keep-alive
	// probe mid-reconnect observes the cancellation and releases it.
	m.mu.RLock()
	cancel := m.keepCancel
	m.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.teardownLocked()
	m.setState(StateDisconnected)
	return nil
}

// teardownLocked cancels the keep-alive task, joins it, closes the
// transport, and emits the session record. The keep-alive goroutine is
// joined before the transport closes so a probe can never fire against a
// closed handle.
func (m *Manager) teardownLocked() {
	m.mu.Lock()
	cancel, done := m.keepCancel, m.keepDone
	m.keepCancel, m.keepDone = nil, nil
	sess := m.sess
	m.sess = nil
	endpoint := m.endpoint
	started := m.connectedAt
	dtcs := m.sessionDTCs
	proto := elm.ProtocolAuto
	if sess != nil {
		proto = sess.Protocol()
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			log.Printf("[manager] close transport: %v", err)
		}
		if m.OnSessionEnd != nil {
			m.OnSessionEnd(profile.SessionRecord{
				Started:  started,
				Ended:    time.Now(),
				Port:     endpoint.Target,
				Protocol: proto.String(),
				DTCCount: dtcs,
			})
		}
	}
}

// Query performs one command round trip. Callable only while CONNECTED or
// RECONNECTING; it never auto-connects. Concurrent callers serialize on
// the dispatch lock. Transport-level failures run the reconnection policy
// and retry the command once before surfacing.
func (m *Manager) Query(ctx context.Context, cmd string) (string, error) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	return m.queryLocked(ctx, cmd)
}

func (m *Manager) queryLocked(ctx context.Context, cmd string) (string, error) {
	st := m.State()
	if st != StateConnected && st != StateReconnecting {
		return "", newError(KindNotConnected, nil,
			"query %q attempted while %s", cmd, st)
	}
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return "", newError(KindNotConnected, nil, "no live handle")
	}

	resp, err := sess.Command(ctx, cmd)
	if err == nil {
		m.touch()
		return resp, nil
	}

	switch {
	case errors.Is(err, elm.ErrTimeout):
		// Desynchronized, not dead: the session resyncs on the next
		// command. Surface the timeout to the caller.
		return "", newError(KindTimeout, err, "no response to %q", cmd)
	case isMalformed(err):
		return "", newError(KindMalformedResponse, err,
			"adapter kept rejecting %q", cmd)
	case ctx.Err() != nil:
		return "", ctx.Err()
	}

	// Transport-level failure: reconnection policy, then one retry.
	log.Printf("[manager] link lost during %q: %v", cmd, err)
	if rerr := m.recoverLocked(ctx, false); rerr != nil {
		return "", rerr
	}
	m.mu.RLock()
	sess = m.sess
	m.mu.RUnlock()
	resp, err = sess.Command(ctx, cmd)
	if err != nil {
		return "", newError(KindTransportLost, err,
			"command %q failed after reconnect", cmd)
	}
	m.touch()
	return resp, nil
}

// recoverLocked runs the reconnection policy: RECONNECTING state,
// exponential backoff bounded by max_retries, full handshake per attempt
// (the transport may have changed, e.g. a Bluetooth re-pair). Exhaustion
// lands in ERROR until an explicit Connect. fromKeepAlive marks the
// keep-alive goroutine as the caller, which must not cancel or join
// itself; its loop exits on the generation check instead.
func (m *Manager) recoverLocked(ctx context.Context, fromKeepAlive bool) error {
	m.setState(StateReconnecting)

	m.mu.Lock()
	cancel, done := m.keepCancel, m.keepDone
	if !fromKeepAlive {
		m.keepCancel, m.keepDone = nil, nil
	}
	sess := m.sess
	m.sess = nil
	kind := m.endpoint.Kind
	cfg := m.cfg
	m.mu.Unlock()

	if !fromKeepAlive && cancel != nil {
		cancel()
		<-done
	}
	if sess != nil {
		sess.Close()
	}

	backoff := cfg.RetryBackoff(kind)
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		log.Printf("[manager] reconnect attempt %d/%d in %v",
			attempt, cfg.MaxRetries, backoff)
		select {
		case <-ctx.Done():
			m.setState(StateError)
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		if err := m.establishLocked(ctx); err != nil {
			log.Printf("[manager] reconnect attempt %d failed: %v", attempt, err)
			m.setState(StateReconnecting)
			continue
		}
		return nil
	}

	m.setState(StateError)
	return newError(KindTransportLost, nil,
		"connection lost, recovery failed after %d attempt(s)", cfg.MaxRetries)
}

// Voltage reads the adapter's measured battery voltage (AT RV).
func (m *Manager) Voltage(ctx context.Context) (string, error) {
	resp, err := m.Query(ctx, "AT RV")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// RecordDTCCount notes how many trouble codes the current session saw,
// for the session history record.
func (m *Manager) RecordDTCCount(n int) {
	m.mu.Lock()
	m.sessionDTCs = n
	m.mu.Unlock()
}

// startKeepAlive launches the background keep-alive task for the current
// handle. The probe competes for the dispatch lock with TryLock, so an
// application query already in flight always wins and an idle link gets
// its AT RV nudge.
func (m *Manager) startKeepAlive() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	prevCancel := m.keepCancel
	m.keepCancel = cancel
	m.keepDone = done
	interval := m.cfg.KeepAlive(m.endpoint.Kind)
	gen := m.gen
	m.mu.Unlock()

	// A keep-alive-initiated reconnect installs its replacement loop while
	// the old one is still running; cancel the superseded context so the
	// old loop stops instead of lingering until its next tick.
	if prevCancel != nil {
		prevCancel()
	}

	go m.keepAliveLoop(ctx, done, interval, gen)
}

func (m *Manager) keepAliveLoop(ctx context.Context, done chan struct{}, interval time.Duration, gen uint64) {
	defer close(done)

	tick := interval / 4
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		idle := time.Since(m.lastExchange)
		stale := m.gen != gen || m.state != StateConnected
		m.mu.RUnlock()
		if stale {
			return
		}
		if idle < interval {
			continue
		}

		// Lowest priority: never queue behind or ahead of a real query.
		if !m.dispatchMu.TryLock() {
			continue
		}
		m.probeLocked(ctx, gen)
		m.dispatchMu.Unlock()
	}
}

// probeLocked sends the keep-alive probe while holding the dispatch lock.
func (m *Manager) probeLocked(ctx context.Context, gen uint64) {
	m.mu.RLock()
	sess := m.sess
	current := m.gen
	st := m.state
	m.mu.RUnlock()
	if sess == nil || current != gen || st != StateConnected {
		return
	}

	if _, err := sess.Command(ctx, "AT RV"); err != nil {
		if errors.Is(err, elm.ErrTimeout) || isMalformed(err) {
			log.Printf("[manager] keep-alive probe: %v", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		log.Printf("[manager] keep-alive detected link loss: %v", err)
		if rerr := m.recoverLocked(ctx, true); rerr != nil {
			log.Printf("[manager] keep-alive recovery: %v", rerr)
		}
		return
	}
	m.touch()
}

func (m *Manager) config() profile.ConnectionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastExchange = time.Now()
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state != s {
		log.Printf("[manager] state %s -> %s", m.state, s)
	}
	m.state = s
	m.mu.Unlock()
}

func isMalformed(err error) bool {
	var re *elm.ResponseError
	return errors.As(err, &re)
}
