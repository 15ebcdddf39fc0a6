package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode, "info")
		require.NoError(t, err, mode)
		l.Info("hello", "mode", mode)
	}

	_, err := New("dev", "loud")
	assert.Error(t, err)
}

func TestSanitizeKVs(t *testing.T) {
	in := []interface{}{"user_id", 7, "OPENAI_API_KEY", "sk-123", "dangling"}
	out := sanitizeKVs(in)

	assert.Equal(t, 7, out[1])
	assert.Equal(t, "[redacted]", out[3])
	assert.Equal(t, "dangling", out[4])
	assert.Equal(t, "sk-123", in[3], "input must not be mutated")
}

func TestNopWith(t *testing.T) {
	l := NewNop().With("component", "test")
	l.Debug("discarded")
}
