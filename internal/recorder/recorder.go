// Package recorder holds the destinations a poller hands its readings to.
package recorder

import (
	"context"
	"sync"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/autopeer-io/broute/internal/poller"
	"github.com/autopeer-io/broute/pkg/log"
)

var (
	_ poller.Sink = (Multi)(nil)
	_ poller.Sink = (*LogSink)(nil)
	_ poller.Sink = (*Latest)(nil)
)

// Multi fans a reading out to every sink. All sinks are called even if some
// fail; their errors are aggregated.
type Multi []poller.Sink

func (m Multi) Record(ctx context.Context, r poller.Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// LogSink writes each reading to the log at info level.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Std()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, r poller.Reading) error {
	s.logger.Info("Instantaneous power", "watts", r.Watts, "time", r.Time)
	return nil
}

// Latest keeps the most recent reading.
type Latest struct {
	mu sync.RWMutex
	r  poller.Reading
	ok bool
}

func (l *Latest) Record(_ context.Context, r poller.Reading) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r, l.ok = r, true
	return nil
}

// Get returns the latest reading, or false before the first one.
func (l *Latest) Get() (poller.Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.r, l.ok
}
