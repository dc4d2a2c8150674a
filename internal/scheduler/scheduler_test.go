package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []any
	targets  []*actor.PID
}

func (s *recordingSender) Send(pid *actor.PID, message interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	s.targets = append(s.targets, pid)
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestRefreshScheduler(t *testing.T) {

	logger := zap.Must(zap.NewDevelopment())
	SetQuartzLogger(logger)

	sender := &recordingSender{}
	target := actor.NewPID("nonhost", "master")

	s := NewRefreshScheduler(50*time.Millisecond, sender, target, logger)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sender.count() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	stopped := sender.count()
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, sender.count(), stopped+1, "no refresh after stop")

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i := range sender.messages {
		assert.Equal(t, domain.RefreshRequest{}, sender.messages[i])
		assert.Equal(t, target, sender.targets[i])
	}
}
