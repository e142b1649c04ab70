// Package elm speaks the ELM327 AT-command dialect: adapter reset and
// setup, protocol negotiation, and single-command round trips framed by
// the adapter's '>' prompt.
package elm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shaunagostinho/obdlink/internal/transport"
)

// ErrTimeout is returned when no prompt arrives within the configured
// command timeout. The link is presumed desynchronized afterwards.
var ErrTimeout = errors.New("elm: response timeout")

// ErrNegotiation is returned when no protocol in the ladder produced a
// valid supported-PIDs response.
var ErrNegotiation = errors.New("elm: protocol negotiation failed")

// ResponseError reports a malformed or rejected adapter response. These
// are retried a bounded number of times before surfacing.
type ResponseError struct {
	Command  string
	Response string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("elm: command %q: bad response %q", e.Command, e.Response)
}

const (
	// commandRetries bounds local retries of malformed responses.
	commandRetries = 2
	// readSlice is the per-read poll interval while waiting for the prompt.
	readSlice = 50 * time.Millisecond

	defaultTimeout = 5 * time.Second

	prompt = '>'
)

// Config controls initialization and per-command timing.
type Config struct {
	Timeout    time.Duration // per-command round-trip bound
	Protocol   Protocol      // forced protocol, or ProtocolAuto
	AutoDetect bool          // walk the ladder when the forced/auto probe fails
}

// Session is an initialized adapter on one transport. Not safe for
// concurrent use; the connection manager serializes access.
type Session struct {
	t        transport.Transport
	timeout  time.Duration
	proto    Protocol
	desynced bool
}

// Initialize performs the reset/echo-off/header-config sequence and
// negotiates a protocol. On success the returned session is ready for
// Command calls.
func Initialize(ctx context.Context, t transport.Transport, cfg Config) (*Session, error) {
	s := &Session{t: t, timeout: cfg.Timeout}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if err := t.SetReadTimeout(readSlice); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	banner, err := s.roundTrip(ctx, "ATZ")
	if err != nil {
		return nil, fmt.Errorf("adapter reset: %w", err)
	}
	if !strings.Contains(strings.ToUpper(banner), "ELM") {
		return nil, &ResponseError{Command: "ATZ", Response: banner}
	}

	for _, cmd := range []string{"ATE0", "ATL0", "ATH0"} {
		if _, err := s.roundTrip(ctx, cmd); err != nil {
			return nil, fmt.Errorf("adapter setup %s: %w", cmd, err)
		}
	}

	proto, err := s.negotiate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.proto = proto
	log.Printf("[elm] negotiated %s", proto.Description())
	return s, nil
}

// negotiate selects a bus protocol. A forced protocol gets exactly one
// probe; AUTO tries the adapter's own detection first, then walks the
// ladder. First protocol with a valid probe response wins.
func (s *Session) negotiate(ctx context.Context, cfg Config) (Protocol, error) {
	if cfg.Protocol != ProtocolAuto {
		ok, err := s.tryProtocol(ctx, cfg.Protocol)
		if err != nil {
			return ProtocolAuto, err
		}
		if ok {
			return cfg.Protocol, nil
		}
		if !cfg.AutoDetect {
			return ProtocolAuto, fmt.Errorf("%s rejected probe: %w", cfg.Protocol, ErrNegotiation)
		}
	}

	ok, err := s.tryProtocol(ctx, ProtocolAuto)
	if err != nil {
		return ProtocolAuto, err
	}
	if ok {
		return s.detectedProtocol(ctx), nil
	}

	for _, p := range autoLadder {
		if p == cfg.Protocol {
			continue // already probed above
		}
		ok, err := s.tryProtocol(ctx, p)
		if err != nil {
			return ProtocolAuto, err
		}
		if ok {
			return p, nil
		}
	}
	return ProtocolAuto, ErrNegotiation
}

// tryProtocol selects p and validates it with the supported-PIDs query.
// Probe rejection is a normal negotiation outcome, not an error; only
// transport-level failures propagate.
func (s *Session) tryProtocol(ctx context.Context, p Protocol) (bool, error) {
	if _, err := s.roundTrip(ctx, "ATSP"+p.elmDigit()); err != nil {
		if errors.Is(err, ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	resp, err := s.roundTrip(ctx, "0100")
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return validProbe(resp), nil
}

// detectedProtocol asks the adapter which protocol its auto-detect chose.
func (s *Session) detectedProtocol(ctx context.Context) Protocol {
	resp, err := s.roundTrip(ctx, "ATDPN")
	if err != nil {
		return ProtocolAuto
	}
	digit := strings.TrimPrefix(strings.TrimSpace(resp), "A") // "A6" = auto-chosen 6
	if p, ok := protocolFromDigit(digit); ok {
		return p
	}
	return ProtocolAuto
}

// validProbe reports whether resp is a syntactically valid answer to 0100.
func validProbe(resp string) bool {
	if IsErrorResponse(resp) || IsNoData(resp) {
		return false
	}
	return strings.HasPrefix(strings.ReplaceAll(resp, " ", ""), "4100")
}

// Protocol returns the negotiated protocol.
func (s *Session) Protocol() Protocol { return s.proto }

// Desynced reports whether the last exchange timed out and the next
// command will start with a resynchronization probe.
func (s *Session) Desynced() bool { return s.desynced }

// Command performs one serialized command round trip. Malformed responses
// are retried up to commandRetries; timeouts mark the session
// desynchronized; transport errors escalate untouched so the connection
// manager can run its reconnection policy.
func (s *Session) Command(ctx context.Context, cmd string) (string, error) {
	if s.desynced {
		if err := s.resync(ctx); err != nil {
			return "", err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= commandRetries; attempt++ {
		resp, err := s.roundTrip(ctx, cmd)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				s.desynced = true
				return "", err
			}
			var re *ResponseError
			if errors.As(err, &re) {
				lastErr = err
				continue
			}
			return "", err
		}
		if retryableResponse(resp) {
			lastErr = &ResponseError{Command: cmd, Response: resp}
			continue
		}
		return resp, nil
	}
	return "", lastErr
}

// resync proves prompt discipline is restored after a timeout: drain
// whatever arrived late, then run a benign identify round trip. Reusing
// a desynchronized link without this risks attributing a stale response
// to a new command.
func (s *Session) resync(ctx context.Context) error {
	s.drain()
	if _, err := s.roundTrip(ctx, "ATI"); err != nil {
		return fmt.Errorf("resync probe: %w", err)
	}
	s.desynced = false
	return nil
}

// drain reads until the link goes quiet, discarding bytes left over from
// a timed-out exchange. Bounded by the session timeout.
func (s *Session) drain() {
	buf := make([]byte, 256)
	deadline := time.Now().Add(s.timeout)
	for time.Now().Before(deadline) {
		n, err := s.t.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

// Close closes the underlying transport.
func (s *Session) Close() error { return s.t.Close() }

// roundTrip writes cmd + CR and reads until the prompt or the timeout.
func (s *Session) roundTrip(ctx context.Context, cmd string) (string, error) {
	if _, err := s.t.Write([]byte(cmd + "\r")); err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}

	deadline := time.Now().Add(s.timeout)
	var raw strings.Builder
	buf := make([]byte, 256)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}

		n, err := s.t.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read after %q: %w", cmd, err)
		}
		if n == 0 {
			continue // read-timeout slice, poll again
		}
		raw.Write(buf[:n])
		if strings.IndexByte(raw.String(), prompt) >= 0 {
			return cleanResponse(raw.String(), cmd), nil
		}
	}
}

// cleanResponse strips the prompt, the command echo, and adapter chatter,
// returning the payload lines joined by newlines.
func cleanResponse(raw, cmd string) string {
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), string(prompt))

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.EqualFold(line, cmd): // echo, in case ATE0 has not stuck yet
		case strings.HasPrefix(line, "SEARCHING"):
		default:
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// retryableResponse reports adapter states worth a local retry: garbled
// input or a transient buffer condition rather than a bus verdict.
func retryableResponse(resp string) bool {
	switch {
	case resp == "?":
		return true
	case strings.Contains(resp, "BUFFER FULL"),
		strings.Contains(resp, "DATA ERROR"),
		strings.Contains(resp, "STOPPED"):
		return true
	}
	return false
}

// IsNoData reports the adapter's "nothing to report" verdict. For DTC
// reads this is a successful empty result, not a failure.
func IsNoData(resp string) bool {
	return strings.Contains(resp, "NO DATA")
}

// IsErrorResponse reports hard adapter/bus error verdicts.
func IsErrorResponse(resp string) bool {
	for _, marker := range []string{
		"UNABLE TO CONNECT", "CAN ERROR", "BUS INIT", "BUS ERROR", "ERROR",
	} {
		if strings.Contains(resp, marker) {
			return true
		}
	}
	return false
}
