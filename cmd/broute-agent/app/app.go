package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/broute/cmd/broute-agent/app/options"
	"github.com/autopeer-io/broute/pkg/app"
	"github.com/autopeer-io/broute/pkg/log"
)

const (
	commandName = "broute-agent"
	commandDesc = `The broute agent joins a smart electricity meter over the Wi-SUN
B-route through an SKSTACK dongle and reads its instantaneous power on a
fixed interval. Readings are logged and can be written to a CSV file,
published over MQTT, written to InfluxDB and served over HTTP.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch a B-route smart meter agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()
		klog.SetLogger(log.Logr().WithName("klog"))

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
