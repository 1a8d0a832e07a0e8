package debug

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug": log.DebugLevel,
		"warn":  log.WarnLevel,
		"":      log.InfoLevel,
		"loud":  log.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEvery(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, log.DebugLevel)

	var every Every
	for i := 0; i < 10; i++ {
		every.Debug(logger, 4, "tick", "i", i)
	}
	if got := strings.Count(buf.String(), "tick"); got != 2 {
		t.Errorf("logged %d lines, want 2:\n%s", got, buf.String())
	}
}
