package skstack

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// UDP port of ECHONET Lite, as the dongle expects it on SKSENDTO.
const echonetPort = "0E1A"

// Scan descriptor keys reported in "  Key:Value" fragments.
const (
	ScanKeyChannel     = "Channel"
	ScanKeyChannelPage = "Channel Page"
	ScanKeyPanID       = "Pan ID"
	ScanKeyAddr        = "Addr"
	ScanKeyLQI         = "LQI"
	ScanKeyPairID      = "PairID"
)

// ScanKeys lists the descriptor keys in the order the dongle prints them.
var ScanKeys = []string{ScanKeyChannel, ScanKeyChannelPage, ScanKeyPanID, ScanKeyAddr, ScanKeyLQI, ScanKeyPairID}

var ErrNotLinkLocal = errors.New("skstack: not an IPv6 link-local address")

// ScanResult is the PAN descriptor accumulated during one active scan.
type ScanResult map[string]string

// Complete reports whether a coordinator was found.
func (r ScanResult) Complete() bool {
	_, ok := r[ScanKeyChannel]
	return ok
}

func (r ScanResult) Channel() string { return r[ScanKeyChannel] }
func (r ScanResult) PanID() string   { return r[ScanKeyPanID] }
func (r ScanResult) Addr() string    { return r[ScanKeyAddr] }

// Version asks the firmware version (SKVER).
func (c *Channel) Version(ctx context.Context) (string, error) {
	if err := c.Send(ctx, "SKVER"); err != nil {
		return "", err
	}

	var version string
	for {
		l, err := c.ReadLine(ctx)
		if err != nil {
			return "", err
		}
		switch l.Kind {
		case KindText:
			if v, ok := strings.CutPrefix(l.Raw, "EVER "); ok {
				version = v
			}
		case KindStatus:
			if !l.Status.OK {
				return "", &CommandError{Command: "SKVER", Code: l.Status.Detail}
			}
			return version, nil
		}
	}
}

// SetPassword registers the B-route password (SKSETPWD).
func (c *Channel) SetPassword(ctx context.Context, password string) error {
	if err := c.Send(ctx, fmt.Sprintf("SKSETPWD %X %s", len(password), password)); err != nil {
		return err
	}
	return c.ExpectOK(ctx)
}

// SetRouteBID registers the B-route ID (SKSETRBID).
func (c *Channel) SetRouteBID(ctx context.Context, id string) error {
	if err := c.Send(ctx, "SKSETRBID "+id); err != nil {
		return err
	}
	return c.ExpectOK(ctx)
}

// Scan runs one active scan with the given duration exponent and returns the
// fragments received before the scan-done event.
func (c *Channel) Scan(ctx context.Context, duration int) (ScanResult, error) {
	if err := c.Send(ctx, fmt.Sprintf("SKSCAN 2 FFFFFFFF %d", duration)); err != nil {
		return nil, err
	}

	result := ScanResult{}
	for {
		l, err := c.ReadLine(ctx)
		if err != nil {
			return nil, err
		}
		switch l.Kind {
		case KindFragment:
			result[l.Fragment.Key] = l.Fragment.Value
		case KindStatus:
			if !l.Status.OK {
				return nil, &CommandError{Command: "SKSCAN", Code: l.Status.Detail}
			}
		case KindEvent:
			if l.Event.Code == EventScanDone {
				return result, nil
			}
		}
	}
}

// SetRegister writes a virtual register (SKSREG).
func (c *Channel) SetRegister(ctx context.Context, reg, value string) error {
	if err := c.Send(ctx, fmt.Sprintf("SKSREG %s %s", reg, value)); err != nil {
		return err
	}
	return c.ExpectOK(ctx)
}

// LinkLocalAddr converts a MAC address to its IPv6 link-local address
// (SKLL64). The address is returned as printed by the dongle.
func (c *Channel) LinkLocalAddr(ctx context.Context, mac string) (string, netip.Addr, error) {
	if err := c.Send(ctx, "SKLL64 "+mac); err != nil {
		return "", netip.Addr{}, err
	}

	for {
		l, err := c.ReadLine(ctx)
		if err != nil {
			return "", netip.Addr{}, err
		}
		if l.Kind == KindStatus && !l.Status.OK {
			return "", netip.Addr{}, &CommandError{Command: "SKLL64", Code: l.Status.Detail}
		}
		if l.Kind != KindText || strings.TrimSpace(l.Raw) == "" {
			continue
		}

		raw := strings.TrimSpace(l.Raw)
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return "", netip.Addr{}, fmt.Errorf("%w: %q: %v", ErrNotLinkLocal, raw, err)
		}
		if !addr.Is6() || !addr.IsLinkLocalUnicast() {
			return "", netip.Addr{}, fmt.Errorf("%w: %q", ErrNotLinkLocal, raw)
		}
		return raw, addr, nil
	}
}

// Join starts the PANA authentication with addr (SKJOIN). The outcome is
// reported later by an EVENT 24 or 25 line.
func (c *Channel) Join(ctx context.Context, addr string) error {
	if err := c.Send(ctx, "SKJOIN "+addr); err != nil {
		return err
	}
	return c.ExpectOK(ctx)
}

// SendTo transmits payload to addr over the ECHONET Lite UDP port
// (SKSENDTO). It does not consume the response lines.
func (c *Channel) SendTo(ctx context.Context, addr string, payload []byte) error {
	text := fmt.Sprintf("SKSENDTO 1 %s %s 1 %04X ", addr, echonetPort, len(payload))
	return c.SendBinary(ctx, text, payload)
}

func redact(command string) string {
	if strings.HasPrefix(command, "SKSETPWD ") {
		return "SKSETPWD ****"
	}
	return command
}
