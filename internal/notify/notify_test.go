package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/tutormatch/internal/logger"
)

func TestNewMatch(t *testing.T) {
	n := NewMatch(7, 3, " Ada ")
	assert.Equal(t, int64(7), n.UserID)
	assert.Equal(t, EventNewMatch, n.EventType)
	assert.Equal(t, "Ada matched with you.", n.Body)
	assert.Equal(t, int64(3), n.Payload["student_id"])

	assert.Equal(t, "A student matched with you.", NewMatch(7, 3, "").Body)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	n := NewLogNotifier(log)
	assert.NoError(t, n.Notify(context.Background(), NewMatch(7, 3, "Ada")))

	entries := logs.FilterMessage("notification").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(7), fields["user_id"])
		assert.Equal(t, "notify", fields["component"])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, n.Notify(ctx, NewMatch(7, 3, "Ada")))
}
