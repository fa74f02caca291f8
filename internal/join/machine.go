package join

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/broute/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/broute/internal/pkg/util/fsm"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/pkg/log"
)

// Join states.
const (
	StateIdle            = "idle"
	StateScanning        = "scanning"
	StateChannelSet      = "channel_set"
	StatePanSet          = "pan_set"
	StateAddressResolved = "address_resolved"
	StateJoining         = "joining"
	StateJoined          = "joined"
	StateFailed          = "failed"
)

// States lists every join state.
var States = []string{
	StateIdle, StateScanning, StateChannelSet, StatePanSet,
	StateAddressResolved, StateJoining, StateJoined, StateFailed,
}

const (
	EventScan           = "scan"
	EventSetChannel     = "set_channel"
	EventSetPanID       = "set_pan_id"
	EventResolveAddress = "resolve_address"
	EventJoin           = "join"
	EventAccept         = "accept"
	EventFail           = "fail"
)

// Virtual registers of the dongle.
const (
	registerChannel = "S2"
	registerPanID   = "S3"
)

// Stack is the dongle surface driven by the handshake.
type Stack interface {
	Authenticator
	Scanner
	LineReader
	SetRegister(ctx context.Context, reg, value string) error
	LinkLocalAddr(ctx context.Context, mac string) (string, netip.Addr, error)
	Join(ctx context.Context, addr string) error
	SetReadTimeout(d time.Duration)
}

// Machine runs the B-route join handshake. Each step performs its I/O and
// then fires the event that records it; any failure moves to failed.
type Machine struct {
	*fsm.FSM

	stack   Stack
	cfg     Config
	session Session
}

type step struct {
	run   func(ctx context.Context) error
	event string
}

// NewMachine returns a machine in the idle state.
func NewMachine(stack Stack, cfg Config) *Machine {
	m := &Machine{stack: stack, cfg: cfg}

	from := []string{StateIdle, StateScanning, StateChannelSet, StatePanSet, StateAddressResolved, StateJoining, StateJoined}
	events := fsm.Events{
		{Name: EventScan, Src: []string{StateIdle}, Dst: StateScanning},
		{Name: EventSetChannel, Src: []string{StateScanning}, Dst: StateChannelSet},
		{Name: EventSetPanID, Src: []string{StateChannelSet}, Dst: StatePanSet},
		{Name: EventResolveAddress, Src: []string{StatePanSet}, Dst: StateAddressResolved},
		{Name: EventJoin, Src: []string{StateAddressResolved}, Dst: StateJoining},
		{Name: EventAccept, Src: []string{StateJoining}, Dst: StateJoined},
		{Name: EventFail, Src: from, Dst: StateFailed},
	}

	callbacks := fsm.Callbacks{
		"before_" + EventJoin: fsmutil.WrapGuard(m.guardJoin),
		"enter_state":         fsmutil.WrapEvent(m.onEnterState),
	}

	m.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	metrics.SetJoinState(StateIdle, States)
	return m
}

// Run drives the handshake to joined and returns the session. Errors from
// any step are returned after the machine has moved to failed.
func (m *Machine) Run(ctx context.Context) (Session, error) {
	if err := m.cfg.Validate(); err != nil {
		return Session{}, m.fail(ctx, err)
	}

	steps := []step{
		{m.authenticate, EventScan},
		{m.scan, ""},
		{m.setChannel, EventSetChannel},
		{m.setPanID, EventSetPanID},
		{m.resolveAddress, EventResolveAddress},
		{nil, EventJoin},
		{m.join, EventAccept},
		{m.settle, ""},
	}

	for _, s := range steps {
		if s.run != nil {
			if err := s.run(ctx); err != nil {
				return Session{}, m.fail(ctx, err)
			}
		}
		if s.event != "" {
			if err := m.Event(ctx, s.event); err != nil {
				return Session{}, m.fail(ctx, fmt.Errorf("%s: %w", s.event, err))
			}
		}
	}

	m.session.Joined = true
	return m.session, nil
}

// Session returns the session gathered so far.
func (m *Machine) Session() Session {
	return m.session
}

func (m *Machine) authenticate(ctx context.Context) error {
	return Authenticate(ctx, m.stack, m.cfg.ID, m.cfg.Password)
}

func (m *Machine) scan(ctx context.Context) error {
	res, err := ScanWithRetry(ctx, m.stack, m.cfg.ScanBaseline, m.cfg.ScanCeiling)
	if err != nil {
		return err
	}

	m.session.Channel = res.Channel()
	m.session.PanID = res.PanID()
	m.session.MAC = res.Addr()
	return nil
}

func (m *Machine) setChannel(ctx context.Context) error {
	if err := m.stack.SetRegister(ctx, registerChannel, m.session.Channel); err != nil {
		return fmt.Errorf("set channel register: %w", err)
	}
	return nil
}

func (m *Machine) setPanID(ctx context.Context) error {
	if err := m.stack.SetRegister(ctx, registerPanID, m.session.PanID); err != nil {
		return fmt.Errorf("set PAN ID register: %w", err)
	}
	return nil
}

func (m *Machine) resolveAddress(ctx context.Context) error {
	raw, addr, err := m.stack.LinkLocalAddr(ctx, m.session.MAC)
	if err != nil {
		return fmt.Errorf("resolve link-local address of %s: %w", m.session.MAC, err)
	}

	m.session.Address = raw
	m.session.Addr = addr
	return nil
}

func (m *Machine) join(ctx context.Context) error {
	if err := m.stack.Join(ctx, m.session.Address); err != nil {
		return fmt.Errorf("start PANA authentication: %w", err)
	}

	outcome, err := WaitForJoin(ctx, m.stack, m.cfg.JoinTimeout)
	if err != nil {
		return fmt.Errorf("wait for PANA outcome: %w", err)
	}

	log.Info("PANA authentication finished", "outcome", outcome.String(), "addr", m.session.Address)
	switch outcome {
	case JoinRejected:
		return ErrJoinRejected
	case JoinTimedOut:
		return ErrJoinTimeout
	}
	return nil
}

// settle switches to bounded reads and drops the instance list notification
// the meter sends right after the handshake.
func (m *Machine) settle(ctx context.Context) error {
	m.stack.SetReadTimeout(m.cfg.ReadTimeout)

	l, err := m.stack.ReadLine(ctx)
	switch {
	case err == nil:
		log.Debug("Discarded post-join line", "line", l.Raw)
	case errors.Is(err, skstack.ErrTimeout):
	default:
		return fmt.Errorf("read post-join notification: %w", err)
	}
	return nil
}

func (m *Machine) guardJoin(ctx context.Context, e *fsm.Event) error {
	if !m.session.Addr.IsValid() || m.session.Address == "" {
		return errors.New("no link-local address resolved")
	}
	return nil
}

func (m *Machine) onEnterState(ctx context.Context, e *fsm.Event) error {
	metrics.SetJoinState(e.Dst, States)
	log.Info("Join state changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	return nil
}

// fail records err by moving to failed and returns it.
func (m *Machine) fail(ctx context.Context, err error) error {
	if m.Current() != StateFailed {
		if ferr := m.Event(context.WithoutCancel(ctx), EventFail); ferr != nil {
			log.Error(ferr, "Failed to record join failure")
		}
	}
	log.Error(err, "B-route join failed", "state", StateFailed)
	return err
}
