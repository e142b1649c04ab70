package transport

import (
	"fmt"
	"log"
	"strings"

	"go.bug.st/serial"
)

// adapterHints are substrings commonly present in the device names of
// ELM327-class adapters or the serial bridges they enumerate behind.
var adapterHints = []string{
	"obd", "elm", "obdii", "rfcomm", "ttyusb", "ttyacm",
	"usbserial", "usbmodem", "vlinker", "obdlink",
}

// SystemLocator enumerates OS-visible serial ports and orders them by
// decreasing confidence: the configured target first, name-heuristic
// matches next, everything else last. A host:port target adds a TCP
// endpoint (WiFi adapters) ahead of the heuristic matches.
type SystemLocator struct {
	// ListPorts is swappable for tests; defaults to serial.GetPortsList.
	ListPorts func() ([]string, error)
}

func NewSystemLocator() *SystemLocator {
	return &SystemLocator{ListPorts: serial.GetPortsList}
}

func (l *SystemLocator) Locate(preferred string) ([]Endpoint, error) {
	list := l.ListPorts
	if list == nil {
		list = serial.GetPortsList
	}

	var out []Endpoint
	seen := make(map[string]bool)

	add := func(target, desc string) {
		if target == "" || seen[target] {
			return
		}
		seen[target] = true
		out = append(out, Endpoint{Target: target, Kind: ClassifyTarget(target), Description: desc})
	}

	if preferred != "" && preferred != "auto" {
		add(preferred, "configured port")
	}

	ports, err := list()
	if err != nil {
		// No serial subsystem (or no permission) is not fatal when a
		// configured endpoint already made the list.
		log.Printf("[locator] serial enumeration failed: %v", err)
		if len(out) == 0 {
			return nil, fmt.Errorf("enumerate serial ports: %w", err)
		}
		return out, nil
	}

	var rest []string
	for _, p := range ports {
		if matchesAdapterHint(p) {
			add(p, "adapter name match")
		} else {
			rest = append(rest, p)
		}
	}
	for _, p := range rest {
		add(p, "serial port")
	}

	return out, nil
}

func matchesAdapterHint(port string) bool {
	lower := strings.ToLower(port)
	for _, h := range adapterHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
