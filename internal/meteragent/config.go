package meteragent

import (
	"fmt"
	"io"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/autopeer-io/broute/internal/join"
	"github.com/autopeer-io/broute/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/broute/internal/recorder"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/internal/storage"
	"github.com/autopeer-io/broute/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/broute/pkg/mqtt/topic"
	"github.com/autopeer-io/broute/pkg/options"
)

type Config struct {
	SerialOptions *options.SerialOptions
	BRouteOptions *options.BRouteOptions
	PollOptions   *options.PollOptions
	RecordOptions *options.RecordOptions
	MqttOptions   *options.MqttOptions
	HttpOptions   *options.HttpOptions
	S3Options     *options.S3Options
	InfluxOptions *options.InfluxOptions

	// Stdin is watched for the quit command when polling is interactive.
	Stdin io.Reader
}

func (cfg *Config) NewAgent() (*Agent, error) {
	meterID := cfg.RecordOptions.MeterID

	a := &Agent{
		meterID:     meterID,
		joinCfg:     cfg.joinConfig(),
		interval:    cfg.PollOptions.Interval,
		csvPath:     cfg.RecordOptions.File,
		interactive: cfg.PollOptions.Interactive,
		stdin:       cfg.Stdin,
		latest:      &recorder.Latest{},
		openPort: func() (io.ReadWriteCloser, error) {
			return skstack.OpenSerial(skstack.SerialConfig{
				Port: cfg.SerialOptions.Port,
				Baud: cfg.SerialOptions.Baud,
			})
		},
	}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}

	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		a.httpOpts = cfg.HttpOptions
	}

	if cfg.MqttOptions != nil && cfg.MqttOptions.Enabled {
		client, topics, err := cfg.initMqttClientAndTopicBuilder(meterID)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.mqtt, a.topics, a.qos = client, topics, cfg.MqttOptions.QoS
	}

	if o := cfg.InfluxOptions; o != nil && o.Enabled {
		a.influx = influxdb2.NewClient(o.URL, o.Token)
		a.points = a.influx.WriteAPIBlocking(o.Org, o.Bucket)
		a.measurement = o.Measurement
	}

	if cfg.S3Options != nil && cfg.S3Options.Enabled && a.csvPath != "" {
		provider, err := storage.NewMinIOProvider(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		a.archive = provider
	}

	return a, nil
}

func (cfg *Config) joinConfig() join.Config {
	o := cfg.BRouteOptions
	c := join.NewConfig(o.ID, o.Password)
	c.ScanBaseline = o.ScanDuration
	c.ScanCeiling = o.MaxScanDuration
	c.JoinTimeout = o.JoinTimeout
	c.ReadTimeout = o.ReadTimeout
	return c
}

func (cfg *Config) initMqttClientAndTopicBuilder(meterID string) (mqtt.Client, *mqtttopic.Builder, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("broute-agent-%s", meterID)
	}

	mqttConfig.WillTopic = topicBuilder.Build(paths.Online, meterID)
	mqttConfig.WillPayload = recorder.StatusPayload(meterID, false)
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
