package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RecordOptions)(nil)

// RecordOptions controls where readings are written locally.
type RecordOptions struct {
	// File receives one "time, watts" CSV row per reading. Empty disables it.
	File string `json:"file" mapstructure:"file"`

	// MeterID names the meter in published readings and archive objects.
	MeterID string `json:"meter-id" mapstructure:"meter-id"`
}

// NewRecordOptions creates a RecordOptions object with default parameters.
func NewRecordOptions() *RecordOptions {
	return &RecordOptions{
		File:    "power.csv",
		MeterID: "meter-1",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *RecordOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.MeterID == "" {
		errs = append(errs, errors.New("--record.meter-id must be set"))
	}
	return errs
}

// AddFlags adds flags for RecordOptions to the specified FlagSet.
func (o *RecordOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.File, "record.file", o.File, "CSV file readings are appended to (empty disables).")
	fs.StringVar(&o.MeterID, "record.meter-id", o.MeterID, "Identifier of the meter used in published readings.")
}
