package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SystemDialer opens real transports: serial for device paths, TCP for
// host:port endpoints (WiFi adapters).
type SystemDialer struct {
	ConnectTimeout time.Duration // TCP dial timeout; zero means 10s
}

func NewSystemDialer() *SystemDialer {
	return &SystemDialer{ConnectTimeout: 10 * time.Second}
}

func (d *SystemDialer) Dial(ep Endpoint, baudRate int) (Transport, error) {
	if ep.Kind == KindTCP {
		return dialTCP(ep.Target, d.ConnectTimeout)
	}
	return openSerial(ep.Target, baudRate)
}

func openSerial(target string, baudRate int) (Transport, error) {
	if baudRate <= 0 {
		baudRate = 38400
	}
	port, err := serial.Open(target, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return port, nil
}
