package meteragent

import (
	"bufio"
	"io"
	"strings"

	"github.com/autopeer-io/broute/pkg/log"
)

// watchQuit calls stop when a line reading "q" arrives on r. It returns at
// end of input without stopping.
func watchQuit(r io.Reader, stop func()) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "q" {
			log.Info("Quit requested")
			stop()
			return
		}
	}
}
