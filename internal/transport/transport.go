package transport

import (
	"io"
	"strings"
	"time"
)

// Kind classifies the physical class of an endpoint. Keep-alive and
// backoff defaults differ per class (Bluetooth SPP idles out much faster
// than a USB cable).
type Kind int

const (
	KindUnknown Kind = iota
	KindUSB
	KindBluetooth
	KindTCP
)

func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "usb"
	case KindBluetooth:
		return "bluetooth"
	case KindTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// Endpoint describes a candidate adapter location. Produced by a Locator,
// consumed by a Dialer. Discovery never opens the endpoint.
type Endpoint struct {
	Target      string // device path ("/dev/ttyUSB0") or host:port
	Kind        Kind
	Description string // human-readable hint, e.g. "configured port"
}

// Transport is the live byte stream to the adapter. Read may return
// (0, nil) when the configured read timeout expires with no data, matching
// go.bug.st/serial semantics; callers poll until their own deadline.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
}

// Locator discovers candidate endpoints in decreasing order of confidence.
// Implementations must not open connections.
type Locator interface {
	Locate(preferred string) ([]Endpoint, error)
}

// Dialer opens a Transport for an endpoint.
type Dialer interface {
	Dial(ep Endpoint, baudRate int) (Transport, error)
}

// ClassifyTarget guesses the endpoint kind from its target string.
func ClassifyTarget(target string) Kind {
	switch {
	case looksLikeHostPort(target):
		return KindTCP
	case strings.Contains(strings.ToLower(target), "rfcomm"),
		strings.Contains(strings.ToLower(target), "bluetooth"),
		strings.Contains(strings.ToLower(target), "bt"):
		return KindBluetooth
	case target == "":
		return KindUnknown
	default:
		return KindUSB
	}
}

// looksLikeHostPort reports whether target is host:port rather than a
// device path. Device paths contain '/' (or are bare COMn on Windows).
func looksLikeHostPort(target string) bool {
	if strings.ContainsAny(target, "/\\") {
		return false
	}
	host, port, ok := strings.Cut(target, ":")
	if !ok || host == "" || port == "" {
		return false
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
