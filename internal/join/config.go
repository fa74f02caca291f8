package join

import (
	"errors"
	"net/netip"
	"time"
)

const (
	DefaultScanBaseline = 6
	DefaultScanCeiling  = 7
	DefaultJoinTimeout  = 60 * time.Second
	DefaultReadTimeout  = 2 * time.Second
)

var (
	ErrMissingCredentials = errors.New("join: B-route ID and password are required")
	ErrScanExhausted      = errors.New("join: no PAN coordinator found")
	ErrJoinRejected       = errors.New("join: PANA authentication rejected")
	ErrJoinTimeout        = errors.New("join: PANA authentication timed out")
)

// Config holds the handshake parameters.
type Config struct {
	// ID and Password are the B-route credentials issued by the utility.
	ID       string
	Password string

	// ScanBaseline is the first scan duration exponent; each empty scan adds
	// one until ScanCeiling is exceeded.
	ScanBaseline int
	ScanCeiling  int

	// JoinTimeout bounds the wait for the PANA outcome. Zero waits forever.
	JoinTimeout time.Duration

	// ReadTimeout bounds every line read once joined.
	ReadTimeout time.Duration
}

// NewConfig returns a Config with default scan, join and read settings.
func NewConfig(id, password string) Config {
	return Config{
		ID:           id,
		Password:     password,
		ScanBaseline: DefaultScanBaseline,
		ScanCeiling:  DefaultScanCeiling,
		JoinTimeout:  DefaultJoinTimeout,
		ReadTimeout:  DefaultReadTimeout,
	}
}

func (c Config) Validate() error {
	if c.ID == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if c.ScanBaseline > c.ScanCeiling {
		return errors.New("join: scan baseline exceeds ceiling")
	}
	return nil
}

// Session describes the network the dongle has joined. It is handed out by
// value once the handshake completes and never changes afterwards.
type Session struct {
	Channel string
	PanID   string
	MAC     string

	// Address is the meter's link-local address as printed by the dongle;
	// it is used verbatim in SKJOIN and SKSENDTO.
	Address string
	Addr    netip.Addr

	Joined bool
}

// JoinOutcome is the result of waiting for the PANA handshake.
type JoinOutcome int

const (
	JoinSucceeded JoinOutcome = iota
	JoinRejected
	JoinTimedOut
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinSucceeded:
		return "succeeded"
	case JoinRejected:
		return "rejected"
	case JoinTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}
