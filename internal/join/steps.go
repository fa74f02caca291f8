package join

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/autopeer-io/broute/internal/pkg/metrics"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/pkg/log"
)

// Authenticator is the part of the stack used to register credentials.
type Authenticator interface {
	Version(ctx context.Context) (string, error)
	SetPassword(ctx context.Context, password string) error
	SetRouteBID(ctx context.Context, id string) error
}

// Scanner runs a single active scan.
type Scanner interface {
	Scan(ctx context.Context, duration int) (skstack.ScanResult, error)
}

// LineReader reads classified lines from the stack.
type LineReader interface {
	ReadLine(ctx context.Context) (skstack.Line, error)
}

// Authenticate logs the firmware version and registers the B-route
// credentials with the dongle.
func Authenticate(ctx context.Context, a Authenticator, id, password string) error {
	if id == "" || password == "" {
		return ErrMissingCredentials
	}

	version, err := a.Version(ctx)
	if err != nil {
		return fmt.Errorf("query firmware version: %w", err)
	}
	log.Info("Wi-SUN dongle detected", "firmware", version)

	if err := a.SetPassword(ctx, password); err != nil {
		return fmt.Errorf("set B-route password: %w", err)
	}
	if err := a.SetRouteBID(ctx, id); err != nil {
		return fmt.Errorf("set B-route ID: %w", err)
	}
	return nil
}

// ScanWithRetry scans with durations baseline, baseline+1, ... ceiling and
// returns the first result that names a channel. The result is reset on
// every attempt.
func ScanWithRetry(ctx context.Context, s Scanner, baseline, ceiling int) (skstack.ScanResult, error) {
	for duration := baseline; duration <= ceiling; duration++ {
		label := strconv.Itoa(duration)

		res, err := s.Scan(ctx, duration)
		if err != nil {
			metrics.ScanAttempts.WithLabelValues(label, "error").Inc()
			return nil, fmt.Errorf("scan with duration %d: %w", duration, err)
		}
		if res.Complete() {
			metrics.ScanAttempts.WithLabelValues(label, "found").Inc()
			log.Info("PAN coordinator found", "duration", duration, "channel", res.Channel(), "panID", res.PanID(), "addr", res.Addr())
			return res, nil
		}

		metrics.ScanAttempts.WithLabelValues(label, "empty").Inc()
		log.Info("No PAN coordinator found", "duration", duration)
	}

	return nil, fmt.Errorf("%w (durations %d to %d)", ErrScanExhausted, baseline, ceiling)
}

// WaitForJoin reads lines until the PANA outcome event arrives or timeout
// elapses. Unrelated lines are ignored. A zero timeout waits forever.
func WaitForJoin(ctx context.Context, r LineReader, timeout time.Duration) (JoinOutcome, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		l, err := r.ReadLine(waitCtx)
		switch {
		case err == nil:
		case errors.Is(err, skstack.ErrTimeout):
			continue
		case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
			return JoinTimedOut, nil
		default:
			return 0, err
		}

		if l.Kind != skstack.KindEvent {
			continue
		}
		switch l.Event.Code {
		case skstack.EventPANAFailed:
			return JoinRejected, nil
		case skstack.EventPANASucceeded:
			return JoinSucceeded, nil
		}
	}
}
