package recorder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/autopeer-io/broute/internal/poller"
)

// TimeLayout is the timestamp format of the sample file.
const TimeLayout = "2006/01/02 15:04:05"

var csvHeader = []string{"time", "watts"}

// CSVFile appends readings to a CSV file, one row per reading.
type CSVFile struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// OpenCSVFile opens path for appending and writes the header if the file is
// empty.
func OpenCSVFile(path string) (*CSVFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat sample file: %w", err)
	}

	c := &CSVFile{path: path, f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := c.write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
	}
	return c, nil
}

// Path returns the file name the samples are written to.
func (c *CSVFile) Path() string {
	return c.path
}

func (c *CSVFile) Record(_ context.Context, r poller.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return os.ErrClosed
	}
	return c.write([]string{r.Time.Format(TimeLayout), strconv.FormatUint(uint64(r.Watts), 10)})
}

func (c *CSVFile) write(row []string) error {
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (c *CSVFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	c.w.Flush()
	err := c.f.Close()
	c.f = nil
	return err
}
