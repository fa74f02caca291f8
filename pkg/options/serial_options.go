package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SerialOptions)(nil)

// SerialOptions describes the serial line of the Wi-SUN dongle.
type SerialOptions struct {
	// Port is the device path of the dongle.
	Port string `json:"port" mapstructure:"port"`

	// Baud is the line speed. SKSTACK dongles ship at 115200.
	Baud int `json:"baud" mapstructure:"baud"`
}

// NewSerialOptions creates a SerialOptions object with default parameters.
func NewSerialOptions() *SerialOptions {
	return &SerialOptions{
		Port: "/dev/ttyUSB0",
		Baud: 115200,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SerialOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Port == "" {
		errs = append(errs, errors.New("--serial.port must be set"))
	}
	if o.Baud <= 0 {
		errs = append(errs, errors.New("--serial.baud must be positive"))
	}
	return errs
}

// AddFlags adds flags for SerialOptions to the specified FlagSet.
func (o *SerialOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Port, "serial.port", o.Port, "Serial device the Wi-SUN dongle is attached to.")
	fs.IntVar(&o.Baud, "serial.baud", o.Baud, "Baud rate of the serial device.")
}
