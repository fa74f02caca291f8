package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/broute/cmd/broute-scan/app/options"
	"github.com/autopeer-io/broute/internal/join"
	"github.com/autopeer-io/broute/internal/skstack"
	"github.com/autopeer-io/broute/internal/skstack/skstacktest"
)

const meterAddr = "FE80:0000:0000:0000:021C:6400:030C:12A4"

func testOptions() *options.ScanOptions {
	o := options.NewScanOptions()
	o.BRouteOptions.ID = "00112233445566778899AABBCCDDEEFF"
	o.BRouteOptions.Password = "0123456789AB"
	return o
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func authDongle() *skstacktest.Dongle {
	return skstacktest.NewDongle().
		On("SKVER", "EVER 1.2.10", "OK").
		On("SKSETPWD", "OK").
		On("SKSETRBID", "OK")
}

func TestScanPrintsDescriptor(t *testing.T) {
	d := authDongle().
		Once("SKSCAN", "OK", "EVENT 22 "+meterAddr).
		On("SKSCAN", "OK",
			"EPANDESC",
			"  Channel:21",
			"  Channel Page:09",
			"  Pan ID:8888",
			"  Addr:001C6400030C12A4",
			"  LQI:E1",
			"  PairID:00AABBCC",
			"EVENT 22 "+meterAddr)
	ch := skstack.NewChannel(d)
	defer ch.Close()

	var out bytes.Buffer
	if err := scan(testContext(t), ch, testOptions(), &out); err != nil {
		t.Fatalf("scan() error = %v", err)
	}

	got := out.String()
	order := []string{"KEY", "Channel ", "Channel Page", "Pan ID", "Addr", "LQI", "PairID"}
	last := -1
	for _, s := range order {
		i := strings.Index(got, s)
		if i <= last {
			t.Fatalf("%q missing or out of order in:\n%s", s, got)
		}
		last = i
	}
	if !strings.Contains(got, "001C6400030C12A4") || !strings.Contains(got, "8888") {
		t.Errorf("values missing from:\n%s", got)
	}
}

func TestScanExhausted(t *testing.T) {
	d := authDongle().On("SKSCAN", "OK", "EVENT 22 "+meterAddr)
	ch := skstack.NewChannel(d)
	defer ch.Close()

	var out bytes.Buffer
	err := scan(testContext(t), ch, testOptions(), &out)
	if !errors.Is(err, join.ErrScanExhausted) {
		t.Errorf("scan() error = %v, want ErrScanExhausted", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintResultExtraKeysSorted(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, skstack.ScanResult{"Channel": "21", "Zeta": "z", "Beta": "b"})

	got := out.String()
	c, b, z := strings.Index(got, "Channel"), strings.Index(got, "Beta"), strings.Index(got, "Zeta")
	if c < 0 || b < c || z < b {
		t.Errorf("unexpected order:\n%s", got)
	}
}
