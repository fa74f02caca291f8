package recorder

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/autopeer-io/broute/internal/poller"
)

var _ poller.Sink = (*InfluxSink)(nil)

// PointWriter is satisfied by influxdb2 api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink writes readings as points tagged with the meter ID.
type InfluxSink struct {
	w           PointWriter
	measurement string
	meterID     string
}

func NewInfluxSink(w PointWriter, measurement, meterID string) *InfluxSink {
	return &InfluxSink{w: w, measurement: measurement, meterID: meterID}
}

func (s *InfluxSink) Record(ctx context.Context, r poller.Reading) error {
	p := influxdb2.NewPoint(s.measurement,
		map[string]string{"meter": s.meterID},
		map[string]any{"watts": int64(r.Watts)},
		r.Time,
	)
	if err := s.w.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}
