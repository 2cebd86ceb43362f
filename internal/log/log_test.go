package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(LevelInfo)

	tests := []struct {
		in   string
		want string
	}{
		{LevelDebug, "debug"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LevelInfo, "info"},
		{"verbose", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			SetLevel(tt.in)
			assert.Equal(t, tt.want, Level())
		})
	}
}

func TestNamed(t *testing.T) {
	l := Named("pipeline")
	assert.NotNil(t, l)
	l.Infof("hello %s", "world")
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Errorf("discarded %d", 1)
	assert.NotNil(t, l.With("k", "v"))
}
