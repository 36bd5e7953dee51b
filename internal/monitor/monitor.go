// Package monitor streams device console output over an open serial
// channel: reset the target, then poll for lines until a timeout elapses
// or the caller cancels.
package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Conn is the serial channel the session drives. serial.Port satisfies
// it; tests use a fake.
type Conn interface {
	Read(p []byte) (int, error)
	Reset() error
}

// Outcome is the terminal state of a session.
type Outcome int

const (
	// OutcomeTimeout means the configured duration elapsed. This is the
	// normal way a bounded session ends, not a failure.
	OutcomeTimeout Outcome = iota
	// OutcomeInterrupted means the caller canceled the session. Also not
	// a failure.
	OutcomeInterrupted
	// OutcomeError means the channel failed mid-stream.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DefaultPollInterval is how long the loop yields when no bytes are
// waiting.
const DefaultPollInterval = 10 * time.Millisecond

// Session is one open-to-close monitor run. Timeout <= 0 means run until
// interrupted.
type Session struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Out          io.Writer
}

// Run resets the device then streams console lines to s.Out until the
// timeout elapses, ctx is canceled, or the channel fails. Lines are
// emitted in receipt order, one write per line. The caller owns conn and
// closes it exactly once, whichever way Run exits.
func (s *Session) Run(ctx context.Context, conn Conn) (Outcome, error) {
	poll := s.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	// No byte is read before the reset sequence completes.
	if err := conn.Reset(); err != nil {
		return OutcomeError, errors.Wrap(err, "device reset failed")
	}
	logrus.Debug("device reset, streaming")

	start := time.Now()
	buf := make([]byte, 1024)
	var pending []byte

	for {
		select {
		case <-ctx.Done():
			return OutcomeInterrupted, nil
		default:
		}

		if s.Timeout > 0 && time.Since(start) > s.Timeout {
			return OutcomeTimeout, nil
		}

		n, err := conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = s.emitLines(pending)
		}
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeInterrupted, nil
			}
			return OutcomeError, errors.Wrap(err, "serial read failed")
		}
		if n == 0 {
			time.Sleep(poll)
		}
	}
}

// emitLines writes every complete line in pending to the sink and
// returns the unterminated remainder. Invalid UTF-8 is replaced rather
// than fatal; blank lines are dropped.
func (s *Session) emitLines(pending []byte) []byte {
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			return pending
		}

		line := strings.ToValidUTF8(string(pending[:i]), "�")
		line = strings.TrimRight(line, "\r")
		pending = pending[i+1:]

		if line == "" {
			continue
		}
		fmt.Fprintln(s.Out, line)
	}
}
