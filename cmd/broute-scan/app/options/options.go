package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/broute/pkg/app"
	"github.com/autopeer-io/broute/pkg/log"
	"github.com/autopeer-io/broute/pkg/options"
)

type ScanOptions struct {
	SerialOptions *options.SerialOptions `json:"serial" mapstructure:"serial"`
	BRouteOptions *options.BRouteOptions `json:"broute" mapstructure:"broute"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ScanOptions)(nil)

func NewScanOptions() *ScanOptions {
	return &ScanOptions{
		SerialOptions: options.NewSerialOptions(),
		BRouteOptions: options.NewBRouteOptions(),
		Log:           log.NewOptions(),
	}
}

func (o *ScanOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.SerialOptions.AddFlags(fss.FlagSet("serial"))
	o.BRouteOptions.AddFlags(fss.FlagSet("broute"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ScanOptions) Complete() error {
	o.BRouteOptions.Complete()
	return nil
}

func (o *ScanOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.SerialOptions.Validate()...)
	errs = append(errs, o.BRouteOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}
