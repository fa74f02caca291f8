package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PollOptions)(nil)

// PollOptions controls the power polling loop.
type PollOptions struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`

	// Interactive stops polling when "q" is entered on stdin.
	Interactive bool `json:"interactive" mapstructure:"interactive"`
}

// NewPollOptions creates a PollOptions object with default parameters.
func NewPollOptions() *PollOptions {
	return &PollOptions{
		Interval: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *PollOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("--poll.interval must be positive"))
	}
	return errs
}

// AddFlags adds flags for PollOptions to the specified FlagSet.
func (o *PollOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "poll.interval", o.Interval, "Interval between instantaneous power requests.")
	fs.BoolVar(&o.Interactive, "poll.interactive", o.Interactive, "Stop polling when 'q' is entered on standard input.")
}
