package meteragent

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/broute/internal/join"
	"github.com/autopeer-io/broute/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/broute/internal/poller"
	"github.com/autopeer-io/broute/internal/recorder"
	httpserver "github.com/autopeer-io/broute/internal/server/http"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/internal/storage"
	"github.com/autopeer-io/broute/pkg/log"
	"github.com/autopeer-io/broute/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/broute/pkg/mqtt/topic"
	"github.com/autopeer-io/broute/pkg/options"
)

// shutdownTimeout bounds the work done after polling stops.
const shutdownTimeout = 30 * time.Second

// Agent joins the meter's PAN and polls its instantaneous power until
// stopped.
type Agent struct {
	meterID  string
	openPort func() (io.ReadWriteCloser, error)
	joinCfg  join.Config
	interval time.Duration

	csvPath     string
	interactive bool
	stdin       io.Reader

	latest  *recorder.Latest
	joined  atomic.Bool
	closers []func() error

	httpOpts *options.HttpOptions

	mqtt   mqtt.Client
	topics *mqtttopic.Builder
	qos    int

	influx      influxdb2.Client
	points      api.WriteAPIBlocking
	measurement string

	archive storage.Provider
}

// Joined reports whether the handshake has completed.
func (a *Agent) Joined() bool {
	return a.joined.Load()
}

// Latest returns the most recent reading.
func (a *Agent) Latest() (poller.Reading, bool) {
	return a.latest.Get()
}

func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting broute-agent", "meterID", a.meterID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.interactive {
		log.Info("Type 'q' and press enter to stop polling")
		go watchQuit(a.stdin, cancel)
	}

	if a.mqtt != nil {
		// The connection outlives ctx so the offline status can be sent on
		// shutdown; Disconnect ends it.
		if err := a.mqtt.Start(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to start mqtt client: %w", err)
		}
		go a.announce(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.httpOpts != nil {
		srv := httpserver.NewServer(a.httpOpts, a.meterID, a.latest, a.Joined)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	g.Go(func() error {
		err := a.runMeter(gctx)
		// Stop serving once polling ends.
		cancel()
		return err
	})

	err := g.Wait()
	log.Info("Agent shutting down...")
	a.shutdown(context.WithoutCancel(ctx))
	return err
}

// runMeter opens the dongle, joins the meter and polls it.
func (a *Agent) runMeter(ctx context.Context) error {
	port, err := a.openPort()
	if err != nil {
		return err
	}
	ch := skstack.NewChannel(port)
	defer ch.Close()

	session, err := join.NewMachine(ch, a.joinCfg).Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	a.joined.Store(true)
	defer a.joined.Store(false)
	log.Info("Joined B-route PAN", "channel", session.Channel, "panID", session.PanID, "addr", session.Address)

	sink, err := a.sinks()
	if err != nil {
		return err
	}

	p := poller.New(poller.Config{Address: session.Address, Interval: a.interval}, ch, sink)
	return p.Run(ctx)
}

func (a *Agent) sinks() (recorder.Multi, error) {
	sinks := recorder.Multi{recorder.NewLogSink(log.WithName("reading")), a.latest}

	if a.csvPath != "" {
		f, err := recorder.OpenCSVFile(a.csvPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f.Close)
		sinks = append(sinks, f)
	}
	if a.mqtt != nil {
		sinks = append(sinks, recorder.NewMQTTPublisher(a.mqtt, a.topics, a.meterID, a.qos))
	}
	if a.points != nil {
		sinks = append(sinks, recorder.NewInfluxSink(a.points, a.measurement, a.meterID))
	}
	return sinks, nil
}

// announce publishes the retained online status once the broker is reached.
func (a *Agent) announce(ctx context.Context) {
	if err := a.mqtt.AwaitConnection(ctx); err != nil {
		return
	}
	a.publishStatus(ctx, true)
}

func (a *Agent) publishStatus(ctx context.Context, online bool) {
	topic := a.topics.Build(paths.Online, a.meterID)
	if err := a.mqtt.Publish(ctx, topic, 1, true, recorder.StatusPayload(a.meterID, online)); err != nil {
		log.Error(err, "Failed to publish status", "topic", topic, "online", online)
	}
}

func (a *Agent) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		log.Error(err, "Failed to close sample file")
	}

	if a.archive != nil && a.wroteSamples() {
		if _, err := storage.Archive(ctx, a.archive, a.meterID, a.csvPath, time.Now()); err != nil {
			log.Error(err, "Failed to archive sample file", "path", a.csvPath)
		}
	}

	if a.mqtt != nil {
		if a.mqtt.IsConnected() {
			a.publishStatus(ctx, false)
		}
		a.mqtt.Disconnect(ctx)
	}

	if a.influx != nil {
		a.influx.Close()
	}
}

func (a *Agent) wroteSamples() bool {
	_, ok := a.latest.Get()
	return ok
}
