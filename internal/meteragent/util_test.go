package meteragent

import (
	"strings"
	"testing"
)

func TestWatchQuit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"q", "q\n", true},
		{"q with spaces", "  q \r\n", true},
		{"after other lines", "hello\nQ\nq\n", true},
		{"no newline", "q", true},
		{"other words", "quit\nexit\n", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stopped bool
			watchQuit(strings.NewReader(tt.input), func() { stopped = true })
			if stopped != tt.want {
				t.Errorf("stopped = %v, want %v", stopped, tt.want)
			}
		})
	}
}
