package skstack_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/internal/skstack/skstacktest"
	"github.com/autopeer-io/broute/pkg/echonet"
)

const (
	meterMAC  = "001C6400030C12A4"
	meterAddr = "FE80:0000:0000:0000:021C:6400:030C:12A4"
)

func newChannel(t *testing.T, d *skstacktest.Dongle, opts ...skstack.ChannelOption) *skstack.Channel {
	t.Helper()
	ch := skstack.NewChannel(d, opts...)
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestChannelEchoAndStatus(t *testing.T) {
	d := skstacktest.NewDongle().On("SKSREG", "OK")
	ch := newChannel(t, d)
	ctx := testContext(t)

	if err := ch.Send(ctx, "SKSREG S2 21"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	l, err := ch.ReadLine(ctx)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if l.Kind != skstack.KindEcho {
		t.Errorf("first line kind = %v, want echo", l.Kind)
	}

	l, err = ch.ReadLine(ctx)
	if err != nil {
		t.Fatalf("ReadLine() error = %v", err)
	}
	if l.Kind != skstack.KindStatus || !l.Status.OK {
		t.Errorf("second line = %+v, want OK status", l)
	}
}

func TestChannelObserverSeesEveryLine(t *testing.T) {
	d := skstacktest.NewDongle().On("SKSREG", "OK")

	var seen []string
	ch := newChannel(t, d, skstack.WithObserver(func(l skstack.Line) {
		seen = append(seen, l.Raw)
	}))
	ctx := testContext(t)

	if err := ch.SetRegister(ctx, "S3", "8888"); err != nil {
		t.Fatalf("SetRegister() error = %v", err)
	}

	if diff := cmp.Diff([]string{"SKSREG S3 8888", "OK"}, seen); diff != "" {
		t.Errorf("observed lines mismatch (-want +got):\n%s", diff)
	}
}

func TestChannelReadTimeout(t *testing.T) {
	d := skstacktest.NewDongle()
	ch := newChannel(t, d, skstack.WithReadTimeout(20*time.Millisecond))

	if _, err := ch.ReadLine(testContext(t)); !errors.Is(err, skstack.ErrTimeout) {
		t.Errorf("ReadLine() error = %v, want ErrTimeout", err)
	}
}

func TestChannelUnboundedReadHonoursContext(t *testing.T) {
	d := skstacktest.NewDongle()
	ch := newChannel(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := ch.ReadLine(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadLine() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestChannelClosed(t *testing.T) {
	d := skstacktest.NewDongle()
	ch := skstack.NewChannel(d)
	_ = ch.Close()

	if _, err := ch.ReadLine(testContext(t)); !errors.Is(err, skstack.ErrClosed) {
		t.Errorf("ReadLine() after Close error = %v, want ErrClosed", err)
	}
	if err := ch.Send(testContext(t), "SKVER"); !errors.Is(err, skstack.ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestExpectOKFail(t *testing.T) {
	d := skstacktest.NewDongle().On("SKSREG", "FAIL ER06")
	ch := newChannel(t, d)

	err := ch.SetRegister(testContext(t), "S2", "99")

	var cmdErr *skstack.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("SetRegister() error = %v, want *CommandError", err)
	}
	if cmdErr.Code != "ER06" || cmdErr.Command != "SKSREG S2 99" {
		t.Errorf("CommandError = %+v", cmdErr)
	}
}

func TestVersionAndCredentials(t *testing.T) {
	d := skstacktest.NewDongle().
		On("SKVER", "EVER 1.2.10", "OK").
		On("SKSETPWD", "OK").
		On("SKSETRBID", "OK")
	ch := newChannel(t, d)
	ctx := testContext(t)

	v, err := ch.Version(ctx)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != "1.2.10" {
		t.Errorf("Version() = %q, want 1.2.10", v)
	}

	if err := ch.SetPassword(ctx, "0123456789AB"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if err := ch.SetRouteBID(ctx, "00112233445566778899AABBCCDDEEFF"); err != nil {
		t.Fatalf("SetRouteBID() error = %v", err)
	}

	want := []string{
		"SKVER",
		"SKSETPWD C 0123456789AB",
		"SKSETRBID 00112233445566778899AABBCCDDEEFF",
	}
	if diff := cmp.Diff(want, d.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestScan(t *testing.T) {
	d := skstacktest.NewDongle().On("SKSCAN",
		"OK",
		"EVENT 20 "+meterAddr,
		"EPANDESC",
		"  Channel:21",
		"  Channel Page:09",
		"  Pan ID:8888",
		"  Addr:"+meterMAC,
		"  LQI:E1",
		"  PairID:00AABBCC",
		"EVENT 22 "+meterAddr,
	)
	ch := newChannel(t, d)

	res, err := ch.Scan(testContext(t), 6)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := skstack.ScanResult{
		"Channel":      "21",
		"Channel Page": "09",
		"Pan ID":       "8888",
		"Addr":         meterMAC,
		"LQI":          "E1",
		"PairID":       "00AABBCC",
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
	}
	if !res.Complete() || res.Channel() != "21" || res.PanID() != "8888" || res.Addr() != meterMAC {
		t.Errorf("ScanResult accessors returned unexpected values: %v", res)
	}
	if got := d.Commands()[0]; got != "SKSCAN 2 FFFFFFFF 6" {
		t.Errorf("command = %q", got)
	}
}

func TestScanEmpty(t *testing.T) {
	d := skstacktest.NewDongle().On("SKSCAN", "OK", "EVENT 22 "+meterAddr)
	ch := newChannel(t, d)

	res, err := ch.Scan(testContext(t), 7)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Complete() {
		t.Errorf("Scan() = %v, want incomplete result", res)
	}
}

func TestLinkLocalAddr(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr bool
	}{
		{"link-local", meterAddr, false},
		{"global address", "2001:0DB8:0000:0000:021C:6400:030C:12A4", true},
		{"garbage", "ER10", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := skstacktest.NewDongle().On("SKLL64", tt.reply)
			ch := newChannel(t, d)

			raw, addr, err := ch.LinkLocalAddr(testContext(t), meterMAC)
			if tt.wantErr {
				if !errors.Is(err, skstack.ErrNotLinkLocal) {
					t.Errorf("LinkLocalAddr() error = %v, want ErrNotLinkLocal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LinkLocalAddr() error = %v", err)
			}
			if raw != meterAddr || !addr.IsLinkLocalUnicast() {
				t.Errorf("LinkLocalAddr() = (%q, %v)", raw, addr)
			}
		})
	}
}

func TestJoinCommand(t *testing.T) {
	d := skstacktest.NewDongle().On("SKJOIN", "OK")
	ch := newChannel(t, d)

	if err := ch.Join(testContext(t), meterAddr); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if got := d.Commands()[0]; got != "SKJOIN "+meterAddr {
		t.Errorf("command = %q", got)
	}
}

func TestSendTo(t *testing.T) {
	d := skstacktest.NewDongle().DisableEcho()
	ch := newChannel(t, d)

	payload := echonet.EncodePowerRequest()
	if err := ch.SendTo(testContext(t), meterAddr, payload); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	if diff := cmp.Diff([]string{"SKSENDTO 1 " + meterAddr + " 0E1A 1 000E"}, d.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]byte{payload}, d.Payloads()); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

// recordingPort records each Write and flags overlapping calls.
type recordingPort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	inFlight atomic.Int32
	overlap  atomic.Bool

	mu     sync.Mutex
	writes [][]byte
}

func newRecordingPort() *recordingPort {
	pr, pw := io.Pipe()
	return &recordingPort{pr: pr, pw: pw}
}

func (p *recordingPort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *recordingPort) Write(b []byte) (int, error) {
	if p.inFlight.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.inFlight.Add(-1)

	// Yield mid-write so an unserialized caller gets a chance to interleave.
	runtime.Gosched()

	p.mu.Lock()
	p.writes = append(p.writes, bytes.Clone(b))
	p.mu.Unlock()
	return len(b), nil
}

func (p *recordingPort) Close() error {
	return p.pw.Close()
}

func TestChannelConcurrentWritesAreWhole(t *testing.T) {
	const senders = 16

	port := newRecordingPort()
	ch := skstack.NewChannel(port)
	t.Cleanup(func() { _ = ch.Close() })
	ctx := testContext(t)

	payload := echonet.EncodePowerRequest()
	sendTo := append([]byte("SKSENDTO 1 "+meterAddr+" 0E1A 1 000E "), payload...)
	sreg := []byte("SKSREG S2 21\r\n")

	var wg sync.WaitGroup
	errs := make(chan error, 2*senders)
	for range senders {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- ch.SendTo(ctx, meterAddr, payload)
		}()
		go func() {
			defer wg.Done()
			errs <- ch.Send(ctx, "SKSREG S2 21")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("send error = %v", err)
		}
	}
	if port.overlap.Load() {
		t.Error("port.Write was entered concurrently")
	}

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.writes) != 2*senders {
		t.Fatalf("got %d writes, want %d", len(port.writes), 2*senders)
	}
	var nSendTo, nSreg int
	for i, w := range port.writes {
		switch {
		case bytes.Equal(w, sendTo):
			nSendTo++
		case bytes.Equal(w, sreg):
			nSreg++
		default:
			t.Errorf("write %d is not a whole command: %q", i, w)
		}
	}
	if nSendTo != senders || nSreg != senders {
		t.Errorf("got %d SKSENDTO and %d SKSREG writes, want %d each", nSendTo, nSreg, senders)
	}
}
