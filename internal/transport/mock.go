package transport

import (
	"io"
	"strings"
	"sync"
	"time"
)

// MockTransport is a scripted adapter used for hardware-free testing and
// demo mode. It answers each written command from a script table and can
// simulate negotiation rejection, silence (timeouts) and link loss.
//
// Script keys are normalized: uppercased with spaces removed, so "AT RV"
// and "atrv" hit the same entry. Responses get "\r\r>" appended on the way
// out, matching the adapter's prompt discipline.
type MockTransport struct {
	mu sync.Mutex

	// Script maps a normalized command to its response body.
	Script map[string]string
	// Silent commands produce no response at all; reads time out.
	Silent map[string]bool
	// ProbeByProtocol, when non-nil, answers the "0100" validation probe
	// per the protocol most recently selected with ATSP/ATTP. Missing
	// digits answer "UNABLE TO CONNECT".
	ProbeByProtocol map[string]string
	// FailAfterWrites, when > 0, makes every write past the Nth fail with
	// io.ErrClosedPipe (simulated link loss).
	FailAfterWrites int
	// OnCommand, when set, takes precedence over the script tables.
	OnCommand func(cmd string) (response string, ok bool)

	buf         strings.Builder
	injected    []string
	writes      []string
	writeCount  int
	spDigit     string
	readTimeout time.Duration
	closed      bool
}

func NewMockTransport(script map[string]string) *MockTransport {
	norm := make(map[string]string, len(script))
	for k, v := range script {
		norm[normalizeCommand(k)] = v
	}
	return &MockTransport{Script: norm, readTimeout: 20 * time.Millisecond}
}

func normalizeCommand(cmd string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(cmd), " ", ""))
}

func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	m.writeCount++
	if m.FailAfterWrites > 0 && m.writeCount > m.FailAfterWrites {
		return 0, io.ErrClosedPipe
	}

	raw := string(p)
	m.writes = append(m.writes, raw)

	cmd := normalizeCommand(strings.TrimRight(raw, "\r\n"))
	if resp, ok := m.respond(cmd); ok {
		m.buf.WriteString(resp)
		m.buf.WriteString("\r\r>")
	}
	return len(p), nil
}

func (m *MockTransport) respond(cmd string) (string, bool) {
	if m.OnCommand != nil {
		if resp, ok := m.OnCommand(cmd); ok {
			return resp, true
		}
	}
	if m.Silent[cmd] {
		return "", false
	}
	if strings.HasPrefix(cmd, "ATSP") || strings.HasPrefix(cmd, "ATTP") {
		m.spDigit = strings.TrimPrefix(strings.TrimPrefix(cmd, "ATSP"), "ATTP")
		return "OK", true
	}
	if m.ProbeByProtocol != nil && cmd == "0100" {
		if resp, ok := m.ProbeByProtocol[m.spDigit]; ok {
			return resp, true
		}
		return "UNABLE TO CONNECT", true
	}
	if resp, ok := m.Script[cmd]; ok {
		return resp, true
	}
	if strings.HasPrefix(cmd, "AT") {
		return "OK", true
	}
	return "NO DATA", true
}

// Inject queues raw bytes as if the adapter sent them unsolicited, e.g.
// a response arriving after its command already timed out. Each injected
// chunk is delivered by its own Read, ahead of scripted responses.
func (m *MockTransport) Inject(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected = append(m.injected, data)
}

func (m *MockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.EOF
	}
	if len(m.injected) > 0 {
		n := copy(p, m.injected[0])
		if n < len(m.injected[0]) {
			m.injected[0] = m.injected[0][n:]
		} else {
			m.injected = m.injected[1:]
		}
		m.mu.Unlock()
		return n, nil
	}
	if m.buf.Len() > 0 {
		data := m.buf.String()
		n := copy(p, data)
		m.buf.Reset()
		if n < len(data) {
			m.buf.WriteString(data[n:])
		}
		m.mu.Unlock()
		return n, nil
	}
	d := m.readTimeout
	m.mu.Unlock()

	// Nothing pending: behave like a serial read timeout.
	time.Sleep(d)
	return 0, nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockTransport) SetReadTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.readTimeout = d
	}
	return nil
}

// Writes returns every raw frame written to the transport, in order.
func (m *MockTransport) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.writes))
	copy(out, m.writes)
	return out
}

// Closed reports whether Close has been called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLocator returns a fixed candidate list.
type MockLocator struct {
	Endpoints []Endpoint
	Err       error
}

func (l *MockLocator) Locate(string) ([]Endpoint, error) {
	return l.Endpoints, l.Err
}

// MockDialer hands out transports per target. NextTransport, when set,
// is consulted first on every dial so tests can swap the transport
// between reconnect attempts.
type MockDialer struct {
	mu         sync.Mutex
	Transports map[string]Transport
	Err        error

	NextTransport func(target string) (Transport, error)
	dials         int
}

func (d *MockDialer) Dial(ep Endpoint, _ int) (Transport, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if d.NextTransport != nil {
		return d.NextTransport(ep.Target)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	if t, ok := d.Transports[ep.Target]; ok {
		return t, nil
	}
	return nil, io.ErrClosedPipe
}

// Dials returns how many times Dial was invoked.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
