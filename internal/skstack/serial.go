package skstack

import (
	"fmt"
	"io"

	"github.com/tarm/serial"
)

// SerialConfig describes the serial line the dongle is attached to.
type SerialConfig struct {
	Port string
	Baud int
}

// OpenSerial opens the dongle's serial port (8N1) in blocking mode. Read
// deadlines are enforced by Channel, not by the port.
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:     cfg.Port,
		Baud:     cfg.Baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}
