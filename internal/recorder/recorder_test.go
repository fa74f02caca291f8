package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/autopeer-io/broute/internal/poller"
	"github.com/autopeer-io/broute/pkg/log"
	"github.com/autopeer-io/broute/pkg/mqtt/topic"
)

var sample = poller.Reading{Time: time.Date(2024, 3, 1, 9, 30, 5, 0, time.UTC), Watts: 540}

type sinkFunc func(context.Context, poller.Reading) error

func (f sinkFunc) Record(ctx context.Context, r poller.Reading) error { return f(ctx, r) }

func TestMultiCallsEverySink(t *testing.T) {
	var calls []string
	record := func(name string, err error) poller.Sink {
		return sinkFunc(func(context.Context, poller.Reading) error {
			calls = append(calls, name)
			return err
		})
	}

	m := Multi{record("a", nil), record("b", errors.New("b failed")), record("c", errors.New("c failed"))}
	err := m.Record(context.Background(), sample)
	if err == nil {
		t.Fatal("Record() expected aggregated error")
	}
	if !strings.Contains(err.Error(), "b failed") || !strings.Contains(err.Error(), "c failed") {
		t.Errorf("Record() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	if err := (Multi{record("d", nil)}).Record(context.Background(), sample); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

func TestLatest(t *testing.T) {
	var l Latest
	if _, ok := l.Get(); ok {
		t.Fatal("Get() ok before any reading")
	}
	_ = l.Record(context.Background(), sample)
	next := poller.Reading{Time: sample.Time.Add(5 * time.Second), Watts: 612}
	_ = l.Record(context.Background(), next)

	got, ok := l.Get()
	if !ok {
		t.Fatal("Get() not ok after readings")
	}
	if diff := cmp.Diff(next, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
}

func TestLogSink(t *testing.T) {
	if err := NewLogSink(log.NewNopLogger()).Record(context.Background(), sample); err != nil {
		t.Errorf("Record() error = %v", err)
	}
	if err := NewLogSink(nil).Record(context.Background(), sample); err != nil {
		t.Errorf("Record() error = %v", err)
	}
}

func TestCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power.csv")

	c, err := OpenCSVFile(path)
	if err != nil {
		t.Fatalf("OpenCSVFile() error = %v", err)
	}
	if err := c.Record(context.Background(), sample); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.Record(context.Background(), sample); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Record() after Close error = %v, want os.ErrClosed", err)
	}

	// Reopening appends without repeating the header.
	c, err = OpenCSVFile(path)
	if err != nil {
		t.Fatalf("OpenCSVFile() error = %v", err)
	}
	_ = c.Record(context.Background(), poller.Reading{Time: sample.Time.Add(5 * time.Second), Watts: 4294967295})
	_ = c.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "time,watts\n2024/03/01 09:30:05,540\n2024/03/01 09:30:10,4294967295\n"
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
	if c.Path() != path {
		t.Errorf("Path() = %q", c.Path())
	}
}

func TestOpenCSVFileMissingDir(t *testing.T) {
	if _, err := OpenCSVFile(filepath.Join(t.TempDir(), "missing", "power.csv")); err == nil {
		t.Error("OpenCSVFile() expected error")
	}
}

type fakePublisher struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.topic, f.qos, f.retain, f.payload = topic, qos, retain, payload
	return f.err
}

func TestMQTTPublisher(t *testing.T) {
	pub := &fakePublisher{}
	p := NewMQTTPublisher(pub, topic.NewBuilder("broute/v1"), "meter-1", 1)

	if err := p.Record(context.Background(), sample); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if pub.topic != "broute/v1/power/meter-1" || pub.qos != 1 || pub.retain {
		t.Errorf("published to %q qos=%d retain=%v", pub.topic, pub.qos, pub.retain)
	}

	var got map[string]any
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := map[string]any{"meterId": "meter-1", "time": "2024-03-01T09:30:05Z", "watts": float64(540)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	pub.err = errors.New("not connected")
	if err := p.Record(context.Background(), sample); err == nil {
		t.Error("Record() expected publish error")
	}
}

func TestStatusPayload(t *testing.T) {
	var got map[string]any
	if err := json.Unmarshal(StatusPayload("meter-1", false), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"meterId": "meter-1", "online": false}, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

type fakeWriter struct {
	points []*write.Point
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.points = append(f.points, points...)
	return nil
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	if err := NewInfluxSink(w, "power", "meter-1").Record(context.Background(), sample); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(w.points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(w.points))
	}

	p := w.points[0]
	if p.Name() != "power" || !p.Time().Equal(sample.Time) {
		t.Errorf("point = %s at %v", p.Name(), p.Time())
	}
	if tags := p.TagList(); len(tags) != 1 || tags[0].Key != "meter" || tags[0].Value != "meter-1" {
		t.Errorf("tags = %+v", tags)
	}
	if fields := p.FieldList(); len(fields) != 1 || fields[0].Key != "watts" || fields[0].Value != int64(540) {
		t.Errorf("fields = %+v", fields)
	}
}
