// Package skstacktest provides a scripted SKSTACK dongle for tests.
package skstacktest

import (
	"io"
	"strings"
	"sync"
)

// Responder produces the lines answered to a command.
type Responder func(command string) []string

type rule struct {
	prefix  string
	respond Responder
	once    bool
}

// Dongle is an in-memory io.ReadWriteCloser that behaves like a Wi-SUN
// dongle: every Write is one command, answered by the first matching rule.
type Dongle struct {
	mu       sync.Mutex
	rules    []rule
	commands []string
	payloads [][]byte
	echo     bool
	closed   bool

	out   chan string
	pr    *io.PipeReader
	pw    *io.PipeWriter
	drain chan struct{}
}

// NewDongle returns a dongle that echoes commands before answering them.
func NewDongle() *Dongle {
	pr, pw := io.Pipe()
	d := &Dongle{
		echo:  true,
		out:   make(chan string, 256),
		pr:    pr,
		pw:    pw,
		drain: make(chan struct{}),
	}
	go d.writeLoop()
	return d
}

func (d *Dongle) writeLoop() {
	defer close(d.drain)
	for line := range d.out {
		if _, err := d.pw.Write([]byte(line + "\r\n")); err != nil {
			return
		}
	}
}

// DisableEcho stops echoing commands.
func (d *Dongle) DisableEcho() *Dongle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.echo = false
	return d
}

// On answers every command starting with prefix with lines.
func (d *Dongle) On(prefix string, lines ...string) *Dongle {
	return d.OnFunc(prefix, func(string) []string { return lines })
}

// Once answers the next command starting with prefix with lines. Once rules
// take precedence over On rules and are consumed in registration order.
func (d *Dongle) Once(prefix string, lines ...string) *Dongle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, rule{prefix: prefix, once: true, respond: func(string) []string { return lines }})
	return d
}

// OnFunc answers commands starting with prefix with fn's result.
func (d *Dongle) OnFunc(prefix string, fn Responder) *Dongle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules, rule{prefix: prefix, respond: fn})
	return d
}

// Emit sends unsolicited lines to the host.
func (d *Dongle) Emit(lines ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, l := range lines {
		d.out <- l
	}
}

// Commands returns the command lines written so far, without terminators
// or binary payloads.
func (d *Dongle) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Payloads returns the binary payloads of SKSENDTO commands.
func (d *Dongle) Payloads() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.payloads...)
}

func (d *Dongle) Read(p []byte) (int, error) {
	return d.pr.Read(p)
}

func (d *Dongle) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}

	cmd := strings.TrimSuffix(string(p), "\r\n")
	if strings.HasPrefix(cmd, "SKSENDTO ") {
		if fields := strings.SplitN(cmd, " ", 7); len(fields) == 7 {
			cmd = strings.Join(fields[:6], " ")
			d.payloads = append(d.payloads, []byte(fields[6]))
		}
	}
	d.commands = append(d.commands, cmd)

	if d.echo {
		d.out <- cmd
	}
	for _, l := range d.match(cmd) {
		d.out <- l
	}
	return len(p), nil
}

func (d *Dongle) match(cmd string) []string {
	for i, r := range d.rules {
		if r.once && strings.HasPrefix(cmd, r.prefix) {
			d.rules = append(d.rules[:i:i], d.rules[i+1:]...)
			return r.respond(cmd)
		}
	}
	for _, r := range d.rules {
		if !r.once && strings.HasPrefix(cmd, r.prefix) {
			return r.respond(cmd)
		}
	}
	return nil
}

// Close ends the stream; pending lines are discarded.
func (d *Dongle) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.out)
	d.mu.Unlock()

	d.pr.CloseWithError(io.EOF)
	<-d.drain
	return d.pw.Close()
}
