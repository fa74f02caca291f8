package skstack

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/autopeer-io/broute/pkg/echonet"
)

// Kind classifies a line received from the dongle.
type Kind int

const (
	KindText Kind = iota
	KindEcho
	KindStatus
	KindEvent
	KindFragment
	KindDatagram
)

func (k Kind) String() string {
	switch k {
	case KindEcho:
		return "echo"
	case KindStatus:
		return "status"
	case KindEvent:
		return "event"
	case KindFragment:
		return "fragment"
	case KindDatagram:
		return "datagram"
	default:
		return "text"
	}
}

// Event codes reported through "EVENT <code> <sender> [param]" lines.
const (
	EventBeaconReceived uint8 = 0x20
	EventUDPSent        uint8 = 0x21
	EventScanDone       uint8 = 0x22
	EventPANAFailed     uint8 = 0x24
	EventPANASucceeded  uint8 = 0x25
)

const (
	prefixOK       = "OK"
	prefixFail     = "FAIL"
	prefixEvent    = "EVENT "
	prefixDatagram = "ERXUDP "
	prefixFragment = "  "
)

// minDatagramColumns is the column count of an ERXUDP line on BP35A1
// firmware: ERXUDP sender dest rport lport senderlla secured datalen data.
// Later firmware inserts extra columns before datalen, so only the leading
// addresses and ports and the trailing datalen and data are read by position.
const minDatagramColumns = 9

var ErrMalformedDatagram = errors.New("skstack: malformed datagram")

// Status is the result of a command: "OK" or "FAIL <code>".
type Status struct {
	OK     bool
	Detail string
}

// Event is an asynchronous notification from the stack.
type Event struct {
	Code   uint8
	Sender string
	Param  string
}

// Fragment is one "  Key:Value" line of a PAN descriptor.
type Fragment struct {
	Key   string
	Value string
}

// Datagram is a UDP payload delivered by an ERXUDP line. Columns whose
// position depends on the firmware revision are not kept.
type Datagram struct {
	Sender netip.Addr
	Dest   string
	RPort  string
	LPort  string
	Length int
	Data   string
}

// Frame decodes the datagram payload as an ECHONET Lite frame.
func (d *Datagram) Frame() (*echonet.Frame, error) {
	return echonet.DecodeHex(d.Data)
}

// Line is a single classified line. Exactly one of the payload fields is set
// for status, event, fragment and datagram kinds; Err is set instead of
// Datagram when an ERXUDP line cannot be parsed.
type Line struct {
	Kind Kind
	Raw  string

	Status   *Status
	Event    *Event
	Fragment *Fragment
	Datagram *Datagram
	Err      error
}

// ParseLine classifies raw without any knowledge of the last command sent.
// Echo detection is done by Channel.
func ParseLine(raw string) Line {
	l := Line{Kind: KindText, Raw: raw}

	switch {
	case raw == prefixOK || strings.HasPrefix(raw, prefixOK+" "):
		l.Kind = KindStatus
		l.Status = &Status{OK: true, Detail: strings.TrimSpace(strings.TrimPrefix(raw, prefixOK))}
	case raw == prefixFail || strings.HasPrefix(raw, prefixFail+" "):
		l.Kind = KindStatus
		l.Status = &Status{Detail: strings.TrimSpace(strings.TrimPrefix(raw, prefixFail))}
	case strings.HasPrefix(raw, prefixEvent):
		if ev, ok := parseEvent(raw); ok {
			l.Kind = KindEvent
			l.Event = ev
		}
	case strings.HasPrefix(raw, prefixDatagram):
		l.Kind = KindDatagram
		l.Datagram, l.Err = ParseDatagram(raw)
	case strings.HasPrefix(raw, prefixFragment):
		key, value, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if ok {
			l.Kind = KindFragment
			l.Fragment = &Fragment{Key: key, Value: value}
		}
	}

	return l
}

func parseEvent(raw string) (*Event, bool) {
	cols := strings.Fields(raw)
	if len(cols) < 2 {
		return nil, false
	}

	code, err := strconv.ParseUint(cols[1], 16, 8)
	if err != nil {
		return nil, false
	}

	ev := &Event{Code: uint8(code)}
	if len(cols) > 2 {
		ev.Sender = cols[2]
	}
	if len(cols) > 3 {
		ev.Param = strings.Join(cols[3:], " ")
	}
	return ev, true
}

// ParseDatagram splits an ERXUDP line into its columns. The payload is the
// last column and its declared byte length the one before it.
func ParseDatagram(raw string) (*Datagram, error) {
	cols := strings.Split(raw, " ")
	if len(cols) < minDatagramColumns {
		return nil, fmt.Errorf("%w: %d columns", ErrMalformedDatagram, len(cols))
	}

	sender, err := netip.ParseAddr(cols[1])
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrMalformedDatagram, err)
	}

	data := cols[len(cols)-1]
	length, err := strconv.ParseUint(cols[len(cols)-2], 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: length: %v", ErrMalformedDatagram, err)
	}
	if len(data) != 2*int(length) {
		return nil, fmt.Errorf("%w: declared %d bytes, got %d hex digits", ErrMalformedDatagram, length, len(data))
	}

	return &Datagram{
		Sender: sender,
		Dest:   cols[2],
		RPort:  cols[3],
		LPort:  cols[4],
		Length: int(length),
		Data:   data,
	}, nil
}
