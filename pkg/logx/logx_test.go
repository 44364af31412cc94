package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"sweep <slow>","comp":"tracker","item":"730"}` + "\n")
	got := formatTelegramJSON(line)

	if !strings.HasPrefix(got, "<b>[WARN] sweep &lt;slow&gt;</b>") {
		t.Fatalf("unexpected header: %q", got)
	}
	ci := strings.Index(got, "comp=tracker")
	ii := strings.Index(got, "item=730")
	if ci < 0 || ii < 0 || ci > ii {
		t.Fatalf("fields missing or unsorted: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time field should be dropped: %q", got)
	}
}

func TestFormatTelegramJSONNotJSON(t *testing.T) {
	t.Parallel()
	if got := formatTelegramJSON([]byte("  plain <text>\n")); got != "plain &lt;text&gt;" {
		t.Fatalf("got %q", got)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.With(String("k", "v")).Info("dropped")
	Nop().Error("dropped", Err(nil))
}
