package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := New("prod", tt.level, "test")
		if got := logger.GetLevel(); got != tt.want {
			t.Errorf("level %q: expected %s, got %s", tt.level, tt.want, got)
		}
	}
}
