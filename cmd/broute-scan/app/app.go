package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/gosuri/uitable"
	genericapiserver "k8s.io/apiserver/pkg/server"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/broute/cmd/broute-scan/app/options"
	"github.com/autopeer-io/broute/internal/join"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/pkg/app"
	"github.com/autopeer-io/broute/pkg/log"
)

const (
	commandName = "broute-scan"
	commandDesc = `broute-scan registers the B-route credentials with the dongle, runs an
active scan and prints the PAN descriptor of the meter it finds. Use it to
check reception before starting broute-agent.`
)

func NewApp() *app.App {
	opts := options.NewScanOptions()
	application := app.NewApp(
		commandName,
		"Scan for a B-route smart meter",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ScanOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()
		klog.SetLogger(log.Logr().WithName("klog"))

		ctx := genericapiserver.SetupSignalContext()

		port, err := skstack.OpenSerial(skstack.SerialConfig{
			Port: opts.SerialOptions.Port,
			Baud: opts.SerialOptions.Baud,
		})
		if err != nil {
			return err
		}

		ch := skstack.NewChannel(port)
		defer ch.Close()

		return scan(ctx, ch, opts, os.Stdout)
	}
}

type scanner interface {
	join.Authenticator
	join.Scanner
}

func scan(ctx context.Context, s scanner, opts *options.ScanOptions, out io.Writer) error {
	o := opts.BRouteOptions
	if err := join.Authenticate(ctx, s, o.ID, o.Password); err != nil {
		return err
	}

	res, err := join.ScanWithRetry(ctx, s, o.ScanDuration, o.MaxScanDuration)
	if err != nil {
		return err
	}

	printResult(out, res)
	return nil
}

// printResult writes the descriptor fields in the order the dongle reports
// them, followed by any it added.
func printResult(w io.Writer, res skstack.ScanResult) {
	table := uitable.New()
	table.AddRow("KEY", "VALUE")

	seen := map[string]bool{}
	for _, k := range skstack.ScanKeys {
		if v, ok := res[k]; ok {
			table.AddRow(k, v)
			seen[k] = true
		}
	}
	for _, k := range slices.Sorted(maps.Keys(res)) {
		if !seen[k] {
			table.AddRow(k, res[k])
		}
	}

	fmt.Fprintln(w, table)
}
