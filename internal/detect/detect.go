// Package detect picks the serial port a dev board is likely attached
// to when none is configured. It matches port names against the device
// patterns USB serial adapters show up as; no traffic is sent to the
// device.
package detect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bigbag/fwpipe/internal/serial"
)

// usbPatterns are matched against the base name of each port, in
// preference order.
var usbPatterns = []string{
	"cu.usbmodem*",
	"cu.usbserial*",
	"ttyACM*",
	"ttyUSB*",
	"COM*",
}

// Port returns the first available port that looks like a USB serial
// adapter, or an error listing what was found.
func Port() (string, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return "", fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}

	for _, pattern := range usbPatterns {
		for _, port := range ports {
			matched, err := filepath.Match(pattern, filepath.Base(port))
			if err == nil && matched {
				logrus.Debugf("auto-detected port %s (pattern %s)", port, pattern)
				return port, nil
			}
		}
	}

	return "", fmt.Errorf("no USB serial device found; available ports: %s",
		strings.Join(ports, ", "))
}

// Match reports whether a port name looks like a USB serial adapter.
func Match(port string) bool {
	for _, pattern := range usbPatterns {
		if matched, err := filepath.Match(pattern, filepath.Base(port)); err == nil && matched {
			return true
		}
	}
	return false
}
