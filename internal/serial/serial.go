package serial

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port wraps a serial port with the control-line handling the monitor needs.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	// Short read timeout keeps the monitor loop cooperative: reads
	// return instead of blocking so cancellation is observed promptly.
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	logrus.Debugf("opened %s @ %d baud", portName, baudRate)

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		logrus.Debugf("closed %s", p.portName)
		return p.port.Close()
	}
	return nil
}

// Read reads data from the serial port. Returns 0 bytes without error
// when the read timeout expires with nothing received.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Flush discards any buffered data.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	return p.port.SetRTS(value)
}

// Reset restarts the device by toggling DTR: deassert, let the line
// settle, reassert. This relies on the auto-reset circuit wired to DTR
// on the dev board; no software reset command is sent. Adapters without
// DTR control fall back to the RTS pulse.
func (p *Port) Reset() error {
	if err := p.SetDTR(false); err != nil {
		logrus.Debugf("no DTR control on %s (%v), falling back to RTS reset", p.portName, err)
		return p.HardReset()
	}
	time.Sleep(300 * time.Millisecond)
	if err := p.SetDTR(true); err != nil {
		return err
	}

	// Drop anything captured while the line was bouncing.
	p.Flush()
	logrus.Debugf("reset %s via DTR toggle", p.portName)
	return nil
}

// HardReset pulses RTS, for adapters where EN is wired to RTS instead.
func (p *Port) HardReset() error {
	if err := p.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.SetRTS(false); err != nil {
		return err
	}
	return nil
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
