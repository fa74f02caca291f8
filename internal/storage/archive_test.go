package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/broute/pkg/options"
)

type fakeProvider struct {
	calls     []string
	bucketErr error
	uploadErr error
	linkErr   error
}

func (f *fakeProvider) CheckBucket(context.Context) error {
	f.calls = append(f.calls, "check")
	return f.bucketErr
}

func (f *fakeProvider) Upload(_ context.Context, key, path string) error {
	f.calls = append(f.calls, "upload "+key+" "+path)
	return f.uploadErr
}

func (f *fakeProvider) GeneratePresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	f.calls = append(f.calls, "link "+key)
	return "https://s3.local/" + key, f.linkErr
}

var now = time.Date(2024, 3, 1, 18, 30, 5, 0, time.FixedZone("JST", 9*60*60))

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("meter-1", "power.csv", now); got != "meter-1/20240301T093005Z-power.csv" {
		t.Errorf("ObjectKey() = %q", got)
	}
}

func TestArchive(t *testing.T) {
	const key = "meter-1/20240301T093005Z-power.csv"

	tests := []struct {
		name      string
		provider  *fakeProvider
		wantCalls []string
		wantErr   bool
	}{
		{
			name:      "uploaded",
			provider:  &fakeProvider{},
			wantCalls: []string{"check", "upload " + key + " /var/lib/broute/power.csv", "link " + key},
		},
		{
			name:      "link failure is not fatal",
			provider:  &fakeProvider{linkErr: errors.New("denied")},
			wantCalls: []string{"check", "upload " + key + " /var/lib/broute/power.csv", "link " + key},
		},
		{
			name:      "bucket failure",
			provider:  &fakeProvider{bucketErr: errors.New("unreachable")},
			wantCalls: []string{"check"},
			wantErr:   true,
		},
		{
			name:      "upload failure",
			provider:  &fakeProvider{uploadErr: errors.New("quota")},
			wantCalls: []string{"check", "upload " + key + " /var/lib/broute/power.csv"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Archive(context.Background(), tt.provider, "meter-1", "/var/lib/broute/power.csv", now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Archive() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != key {
				t.Errorf("Archive() = %q, want %q", got, key)
			}
			if diff := cmp.Diff(tt.wantCalls, tt.provider.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewMinIOProvider(t *testing.T) {
	opts := options.NewS3Options()
	if _, err := NewMinIOProvider(opts); err != nil {
		t.Errorf("NewMinIOProvider() error = %v", err)
	}

	opts.Endpoint = "localhost:9000/readings"
	if _, err := NewMinIOProvider(opts); err == nil {
		t.Error("NewMinIOProvider() expected error for an endpoint with a path")
	}
}
