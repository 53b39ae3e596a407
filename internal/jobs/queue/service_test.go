package queue

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

func newTestService(t *testing.T, rdb *redis.Client, handler Handler) *Service {
	t.Helper()
	return NewService(zap.NewNop(),
		NewQueue(QueueOrders, "test", rdb, handler, 3, 10*time.Millisecond, zap.NewNop()),
		NewQueue(QueuePayments, "test", rdb, handler, 3, 10*time.Millisecond, zap.NewNop()),
	)
}

func TestService_UnknownQueueIsRejected(t *testing.T) {
	rdb := newTestRedis(t)
	svc := newTestService(t, rdb, nil)
	ctx := context.Background()

	_, err := svc.GetQueueMetrics(ctx, "shipping")
	assert.Error(t, err)

	assert.Error(t, svc.PauseQueue(ctx, "shipping"))
	assert.Error(t, svc.ResumeQueue(ctx, "shipping"))
	assert.Error(t, svc.EmptyQueue(ctx, "shipping"))
	assert.Error(t, svc.OnQueueEvent("shipping", EventCompleted, func(Event) {}))

	_, err = svc.CleanQueue(ctx, "shipping", time.Hour)
	assert.Error(t, err)
}

func TestService_TypedEnqueueRoutesToItsQueue(t *testing.T) {
	rdb := newTestRedis(t)
	svc := newTestService(t, rdb, nil)
	ctx := context.Background()

	_, err := svc.EnqueuePaymentJob(ctx, "capture-payment", jobs.PaymentJobData{
		OrderID: "order-1", Method: "card", Amount: 10, Currency: "EUR",
	}, nil)
	require.NoError(t, err)

	m, err := svc.GetQueueMetrics(ctx, QueuePayments)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Waiting)

	m, err = svc.GetQueueMetrics(ctx, QueueOrders)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Waiting)
}

func TestService_GetAllQueueMetricsStableOrder(t *testing.T) {
	rdb := newTestRedis(t)
	svc := newTestService(t, rdb, nil)

	all, err := svc.GetAllQueueMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, QueueOrders, all[0].QueueName)
	assert.Equal(t, QueuePayments, all[1].QueueName)
}

func TestService_GracefulShutdownWithoutActiveJobsReturnsPromptly(t *testing.T) {
	rdb := newTestRedis(t)
	svc := newTestService(t, rdb, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	// Sin jobs en vuelo el apagado no consume el timeout: pausa y cierra.
	started := time.Now()
	err := svc.GracefulShutdown(context.Background(), 30*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)

	for _, name := range []string{QueueOrders, QueuePayments} {
		paused, err := svc.queues[name].IsPaused(context.Background())
		require.NoError(t, err)
		assert.True(t, paused)
	}
}

func TestService_GracefulShutdownDrainsAndCloses(t *testing.T) {
	rdb := newTestRedis(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handler := func(ctx context.Context, job *Job) error {
		started <- struct{}{}
		<-release
		return nil
	}

	svc := newTestService(t, rdb, handler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	_, err := svc.EnqueueOrderJob(ctx, "process-order", jobs.OrderJobData{OrderID: "order-1"}, nil)
	require.NoError(t, err)

	// El job está en vuelo cuando arranca el apagado.
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("el job nunca llegó a ejecutarse")
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.GracefulShutdown(context.Background(), 10*time.Second)
	}()

	// Las colas quedan pausadas durante el drenaje.
	require.Eventually(t, func() bool {
		paused, err := svc.queues[QueueOrders].IsPaused(context.Background())
		return err == nil && paused
	}, 5*time.Second, 20*time.Millisecond)

	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("el apagado coordinado no terminó")
	}

	active, err := svc.totalActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)
}
