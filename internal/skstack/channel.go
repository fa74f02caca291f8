package skstack

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/broute/internal/pkg/metrics"
	"github.com/autopeer-io/broute/pkg/log"
)

const lineBuffer = 64

var (
	// ErrTimeout is returned by ReadLine when no line arrives within the read timeout.
	ErrTimeout = errors.New("skstack: read timeout")

	// ErrClosed is returned once the underlying port is closed or failed.
	ErrClosed = errors.New("skstack: channel closed")
)

// CommandError is returned when the dongle answers a command with FAIL.
type CommandError struct {
	Command string
	Code    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("skstack: %q failed: %s", e.Command, e.Code)
}

// Observer receives every line before it is returned to the caller.
type Observer func(Line)

// Channel is the single command/response path to a dongle. Commands are
// written atomically; lines are read one at a time by whoever owns the
// channel (the join handshake first, the poll receiver afterwards).
type Channel struct {
	port io.ReadWriteCloser

	wmu sync.Mutex

	mu          sync.Mutex
	lastSent    string
	readTimeout time.Duration

	lines    chan string
	closing  chan struct{}
	closeErr error
	once     sync.Once

	observer Observer
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithObserver replaces the default line observer.
func WithObserver(o Observer) ChannelOption {
	return func(c *Channel) {
		c.observer = o
	}
}

// WithReadTimeout sets the initial read timeout. Zero blocks until a line arrives.
func WithReadTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.readTimeout = d
	}
}

// NewChannel starts reading lines from port.
func NewChannel(port io.ReadWriteCloser, opts ...ChannelOption) *Channel {
	c := &Channel{
		port:     port,
		lines:    make(chan string, lineBuffer),
		closing:  make(chan struct{}),
		observer: defaultObserver,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c
}

func defaultObserver(l Line) {
	metrics.LinesRead.WithLabelValues(l.Kind.String()).Inc()
	log.Debug("<<", "line", l.Raw, "kind", l.Kind.String())
}

func (c *Channel) readLoop() {
	defer close(c.lines)

	r := bufio.NewReader(c.port)
	for {
		raw, err := r.ReadString('\n')
		raw = strings.TrimRight(raw, "\r\n")
		if raw != "" || err == nil {
			select {
			case c.lines <- raw:
			case <-c.closing:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("Serial read failed", "err", err)
			}
			return
		}
	}
}

// Send writes text followed by CR-LF as one write.
func (c *Channel) Send(ctx context.Context, text string) error {
	return c.write(ctx, text, []byte(text+"\r\n"))
}

// SendBinary writes text immediately followed by payload, without a line
// terminator, as one write.
func (c *Channel) SendBinary(ctx context.Context, text string, payload []byte) error {
	buf := make([]byte, 0, len(text)+len(payload))
	buf = append(buf, text...)
	buf = append(buf, payload...)
	return c.write(ctx, strings.TrimSpace(text), buf)
}

func (c *Channel) write(ctx context.Context, echo string, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.mu.Lock()
	c.lastSent = echo
	c.mu.Unlock()

	log.Debug(">>", "command", redact(echo))
	if _, err := c.port.Write(buf); err != nil {
		return fmt.Errorf("write %q: %w", echo, err)
	}
	return nil
}

// SetReadTimeout bounds every subsequent ReadLine.
func (c *Channel) SetReadTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = d
}

// ReadTimeout returns the current read timeout.
func (c *Channel) ReadTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readTimeout
}

// ReadLine returns the next line from the dongle. It fails with ErrTimeout
// when a read timeout is set and expires, and with ErrClosed once the port
// is gone.
func (c *Channel) ReadLine(ctx context.Context) (Line, error) {
	var timeout <-chan time.Time
	if d := c.ReadTimeout(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case raw, ok := <-c.lines:
		if !ok {
			return Line{}, ErrClosed
		}
		l := c.classify(raw)
		if c.observer != nil {
			c.observer(l)
		}
		return l, nil
	case <-timeout:
		return Line{}, ErrTimeout
	case <-ctx.Done():
		return Line{}, ctx.Err()
	}
}

func (c *Channel) classify(raw string) Line {
	l := ParseLine(raw)
	if l.Kind != KindText {
		return l
	}

	c.mu.Lock()
	last := c.lastSent
	c.mu.Unlock()

	if last != "" && strings.HasPrefix(raw, last) {
		l.Kind = KindEcho
	}
	return l
}

// ExpectOK reads until a status line and reports FAIL as a *CommandError.
// Other lines seen meanwhile are dropped.
func (c *Channel) ExpectOK(ctx context.Context) error {
	for {
		l, err := c.ReadLine(ctx)
		if err != nil {
			return err
		}
		if l.Kind != KindStatus {
			continue
		}
		if l.Status.OK {
			return nil
		}

		c.mu.Lock()
		cmd := c.lastSent
		c.mu.Unlock()
		return &CommandError{Command: cmd, Code: l.Status.Detail}
	}
}

// Close stops the reader and closes the port.
func (c *Channel) Close() error {
	c.once.Do(func() {
		close(c.closing)
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}
