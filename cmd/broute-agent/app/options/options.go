package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/broute/internal/meteragent"
	"github.com/autopeer-io/broute/pkg/app"
	"github.com/autopeer-io/broute/pkg/log"
	"github.com/autopeer-io/broute/pkg/options"
)

type AgentOptions struct {
	SerialOptions *options.SerialOptions `json:"serial" mapstructure:"serial"`
	BRouteOptions *options.BRouteOptions `json:"broute" mapstructure:"broute"`
	PollOptions   *options.PollOptions   `json:"poll" mapstructure:"poll"`
	RecordOptions *options.RecordOptions `json:"record" mapstructure:"record"`
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions   *options.HttpOptions   `json:"http" mapstructure:"http"`
	S3Options     *options.S3Options     `json:"s3" mapstructure:"s3"`
	InfluxOptions *options.InfluxOptions `json:"influx" mapstructure:"influx"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		SerialOptions: options.NewSerialOptions(),
		BRouteOptions: options.NewBRouteOptions(),
		PollOptions:   options.NewPollOptions(),
		RecordOptions: options.NewRecordOptions(),
		MqttOptions:   options.NewMqttOptions(),
		HttpOptions:   options.NewHttpOptions(),
		S3Options:     options.NewS3Options(),
		InfluxOptions: options.NewInfluxOptions(),
		Log:           log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.SerialOptions.AddFlags(fss.FlagSet("serial"))
	o.BRouteOptions.AddFlags(fss.FlagSet("broute"))
	o.PollOptions.AddFlags(fss.FlagSet("poll"))
	o.RecordOptions.AddFlags(fss.FlagSet("record"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.InfluxOptions.AddFlags(fss.FlagSet("influx"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *AgentOptions) Complete() error {
	o.BRouteOptions.Complete()
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.SerialOptions.Validate()...)
	errs = append(errs, o.BRouteOptions.Validate()...)
	errs = append(errs, o.PollOptions.Validate()...)
	errs = append(errs, o.RecordOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.InfluxOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*meteragent.Config, error) {
	return &meteragent.Config{
		SerialOptions: o.SerialOptions,
		BRouteOptions: o.BRouteOptions,
		PollOptions:   o.PollOptions,
		RecordOptions: o.RecordOptions,
		MqttOptions:   o.MqttOptions,
		HttpOptions:   o.HttpOptions,
		S3Options:     o.S3Options,
		InfluxOptions: o.InfluxOptions,
	}, nil
}
