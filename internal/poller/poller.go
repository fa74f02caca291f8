package poller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/broute/internal/pkg/metrics"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/pkg/echonet"
	"github.com/autopeer-io/broute/pkg/log"
)

const DefaultInterval = 5 * time.Second

// Reading is one instantaneous power sample.
type Reading struct {
	Time  time.Time
	Watts uint32
}

// Stack is the joined dongle: one send path and one read path.
type Stack interface {
	SendTo(ctx context.Context, addr string, payload []byte) error
	ReadLine(ctx context.Context) (skstack.Line, error)
}

// Sink receives readings.
type Sink interface {
	Record(ctx context.Context, r Reading) error
}

// Config configures the poll loop.
type Config struct {
	// Address is the meter's link-local address as printed by the dongle.
	Address string

	// Interval between power requests.
	Interval time.Duration
}

// Poller asks the meter for its instantaneous power on a fixed interval and
// forwards every valid response to the sink.
type Poller struct {
	cfg     Config
	sender  netip.Addr
	stack   Stack
	sink    Sink
	clock   clock.WithTicker
	request []byte
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the real clock.
func WithClock(c clock.WithTicker) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// New returns a poller for the meter at cfg.Address.
func New(cfg Config, stack Stack, sink Sink, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	// An unparsable address matches no sender.
	sender, _ := netip.ParseAddr(cfg.Address)

	p := &Poller{
		cfg:     cfg,
		sender:  sender,
		stack:   stack,
		sink:    sink,
		clock:   clock.RealClock{},
		request: echonet.EncodePowerRequest(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run sends requests and receives responses until ctx is cancelled. It
// returns nil on cancellation and an error only if the stack goes away.
func (p *Poller) Run(ctx context.Context) error {
	log.Info("Starting power polling", "addr", p.cfg.Address, "interval", p.cfg.Interval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.transmit(ctx)
	})
	g.Go(func() error {
		return p.receive(ctx)
	})

	err := g.Wait()
	log.Info("Power polling stopped")
	return err
}

func (p *Poller) transmit(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	if ctx.Err() != nil {
		return nil
	}
	p.send(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if ctx.Err() != nil {
				return nil
			}
			p.send(ctx)
		}
	}
}

func (p *Poller) send(ctx context.Context) {
	if err := p.stack.SendTo(ctx, p.cfg.Address, p.request); err != nil {
		metrics.RequestsSent.WithLabelValues("failed").Inc()
		log.Error(err, "Failed to send power request", "addr", p.cfg.Address)
		return
	}
	metrics.RequestsSent.WithLabelValues("success").Inc()
}

func (p *Poller) receive(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		l, err := p.stack.ReadLine(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, skstack.ErrTimeout):
			case errors.Is(err, skstack.ErrClosed):
				return fmt.Errorf("receive: %w", err)
			default:
				log.Debug("Read failed, skipping cycle", "err", err)
			}
			continue
		}

		r, ok := p.decode(l)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		metrics.ReadingsTotal.Inc()
		metrics.InstantaneousPower.Set(float64(r.Watts))
		if err := p.sink.Record(ctx, r); err != nil {
			log.Error(err, "Failed to record reading", "watts", r.Watts)
		}
	}
}

// decode turns a datagram line from the meter into a reading. Anything else
// is dropped.
func (p *Poller) decode(l skstack.Line) (Reading, bool) {
	if l.Kind != skstack.KindDatagram {
		return Reading{}, false
	}
	if l.Err != nil {
		discard("malformed", l.Raw)
		return Reading{}, false
	}
	if l.Datagram.Sender != p.sender {
		discard("foreign_sender", l.Raw)
		return Reading{}, false
	}

	f, err := l.Datagram.Frame()
	if err != nil {
		discard("bad_frame", l.Raw)
		return Reading{}, false
	}

	watts, ok := echonet.ExtractPower(f)
	if !ok {
		discard("irrelevant", l.Raw)
		return Reading{}, false
	}

	return Reading{Time: p.clock.Now(), Watts: watts}, true
}

func discard(reason, raw string) {
	metrics.DatagramsDiscarded.WithLabelValues(reason).Inc()
	log.Debug("Discarded datagram", "reason", reason, "line", raw)
}
