package options

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*BRouteOptions)(nil)

// Environment variables read when the credentials are not configured otherwise.
const (
	EnvRouteBID      = "RBID"
	EnvRoutePassword = "RBPWD"
)

// BRouteOptions contains the B-route credentials and join parameters.
type BRouteOptions struct {
	ID       string `json:"id" mapstructure:"id"`
	Password string `json:"password" mapstructure:"password"`

	// ScanDuration is the first active scan duration; every empty scan adds
	// one until MaxScanDuration is exceeded.
	ScanDuration    int `json:"scan-duration" mapstructure:"scan-duration"`
	MaxScanDuration int `json:"max-scan-duration" mapstructure:"max-scan-duration"`

	// JoinTimeout bounds the PANA handshake. Zero waits forever.
	JoinTimeout time.Duration `json:"join-timeout" mapstructure:"join-timeout"`

	// ReadTimeout bounds each line read once joined.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
}

// NewBRouteOptions creates a BRouteOptions object with default parameters.
func NewBRouteOptions() *BRouteOptions {
	return &BRouteOptions{
		ScanDuration:    6,
		MaxScanDuration: 7,
		JoinTimeout:     60 * time.Second,
		ReadTimeout:     2 * time.Second,
	}
}

// Complete fills missing credentials from RBID and RBPWD.
func (o *BRouteOptions) Complete() {
	if o.ID == "" {
		o.ID = os.Getenv(EnvRouteBID)
	}
	if o.Password == "" {
		o.Password = os.Getenv(EnvRoutePassword)
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *BRouteOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.ID == "" {
		errs = append(errs, fmt.Errorf("B-route ID is required (--broute.id or %s)", EnvRouteBID))
	}
	if o.Password == "" {
		errs = append(errs, fmt.Errorf("B-route password is required (--broute.password or %s)", EnvRoutePassword))
	}
	if o.ScanDuration < 0 || o.ScanDuration > 14 {
		errs = append(errs, errors.New("--broute.scan-duration must be within 0-14"))
	}
	if o.MaxScanDuration < o.ScanDuration || o.MaxScanDuration > 14 {
		errs = append(errs, errors.New("--broute.max-scan-duration must be within scan-duration and 14"))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, errors.New("--broute.read-timeout must be positive"))
	}
	return errs
}

// AddFlags adds flags for BRouteOptions to the specified FlagSet.
func (o *BRouteOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, "broute.id", o.ID, "B-route authentication ID (falls back to $"+EnvRouteBID+").")
	fs.StringVar(&o.Password, "broute.password", o.Password, "B-route password (falls back to $"+EnvRoutePassword+").")
	fs.IntVar(&o.ScanDuration, "broute.scan-duration", o.ScanDuration, "Duration exponent of the first active scan.")
	fs.IntVar(&o.MaxScanDuration, "broute.max-scan-duration", o.MaxScanDuration, "Largest scan duration tried before giving up.")
	fs.DurationVar(&o.JoinTimeout, "broute.join-timeout", o.JoinTimeout, "Time to wait for the PANA handshake (0 waits forever).")
	fs.DurationVar(&o.ReadTimeout, "broute.read-timeout", o.ReadTimeout, "Read timeout on the serial line once joined.")
}
