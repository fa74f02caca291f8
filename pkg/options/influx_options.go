package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*InfluxOptions)(nil)

// InfluxOptions configures writing readings to InfluxDB 2.x.
type InfluxOptions struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`

	// Measurement is the name of the written series.
	Measurement string `json:"measurement" mapstructure:"measurement"`
}

// NewInfluxOptions creates an InfluxOptions object with default parameters.
func NewInfluxOptions() *InfluxOptions {
	return &InfluxOptions{
		URL:         "http://localhost:8086",
		Bucket:      "broute",
		Measurement: "power",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *InfluxOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errs := []error{}
	if o.URL == "" {
		errs = append(errs, errors.New("--influx.url must be set"))
	}
	if o.Org == "" || o.Bucket == "" {
		errs = append(errs, errors.New("--influx.org and --influx.bucket must be set"))
	}
	if o.Measurement == "" {
		errs = append(errs, errors.New("--influx.measurement must be set"))
	}
	return errs
}

// AddFlags adds flags for InfluxOptions to the specified FlagSet.
func (o *InfluxOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "influx.enabled", o.Enabled, "Write readings to InfluxDB.")
	fs.StringVar(&o.URL, "influx.url", o.URL, "InfluxDB server URL.")
	fs.StringVar(&o.Token, "influx.token", o.Token, "InfluxDB API token.")
	fs.StringVar(&o.Org, "influx.org", o.Org, "InfluxDB organization.")
	fs.StringVar(&o.Bucket, "influx.bucket", o.Bucket, "InfluxDB bucket readings are written to.")
	fs.StringVar(&o.Measurement, "influx.measurement", o.Measurement, "Measurement name of the written points.")
}
