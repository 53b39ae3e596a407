package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// eventRecorder acumula los eventos emitidos por la cola.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	// ARRANGE
	rdb := newTestRedis(t)
	recorder := &eventRecorder{}

	var processed sync.Map
	handler := func(ctx context.Context, job *Job) error {
		processed.Store(job.ID, job.Name)
		return nil
	}

	q := NewQueue("orders", "test", rdb, handler, 3, 10*time.Millisecond, zap.NewNop())
	q.On(EventCompleted, recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Close()

	// ACT
	job, err := q.Enqueue(ctx, "process-order", map[string]string{"order_id": "order-1"}, nil)
	require.NoError(t, err)

	// ASSERT
	require.Eventually(t, func() bool {
		_, ok := processed.Load(job.ID)
		return ok && recorder.count(EventCompleted) == 1
	}, 5*time.Second, 20*time.Millisecond)

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(0), m.Waiting)
	assert.Equal(t, int64(0), m.Active)
}

func TestQueue_RetryableFailureRetriesThenDeadLetters(t *testing.T) {
	// ARRANGE
	rdb := newTestRedis(t)
	recorder := &eventRecorder{}

	var attempts int32
	var mu sync.Mutex
	handler := func(ctx context.Context, job *Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return jobs.Retryable(errors.New("gateway unavailable"))
	}

	q := NewQueue("payments", "test", rdb, handler, 2, 10*time.Millisecond, zap.NewNop())
	q.On(EventError, recorder.record)
	q.On(EventFailed, recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Close()

	// ACT
	_, err := q.Enqueue(ctx, "capture-payment", map[string]string{}, nil)
	require.NoError(t, err)

	// ASSERT: 1 reintento programado + dead-letter al agotar los 2 intentos
	require.Eventually(t, func() bool {
		return recorder.count(EventFailed) == 1
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, recorder.count(EventError))

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(0), m.Waiting)

	mu.Lock()
	assert.Equal(t, int32(2), attempts)
	mu.Unlock()
}

func TestQueue_NonRetryableFailureGoesStraightToDeadLetter(t *testing.T) {
	rdb := newTestRedis(t)
	recorder := &eventRecorder{}

	handler := func(ctx context.Context, job *Job) error {
		return jobs.NonRetryable(errors.New("invalid payment method"))
	}

	q := NewQueue("payments", "test", rdb, handler, 3, 10*time.Millisecond, zap.NewNop())
	q.On(EventFailed, recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Close()

	_, err := q.Enqueue(ctx, "capture-payment", map[string]string{}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recorder.count(EventFailed) == 1
	}, 5*time.Second, 20*time.Millisecond)

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(0), m.Delayed, "un fallo definitivo nunca pasa por delayed")
}

func TestQueue_PriorityJumpsTheLine(t *testing.T) {
	// Sin worker: se inspecciona la lista wait directamente. El consumo es
	// por la derecha, así que el último de la lista sale primero.
	rdb := newTestRedis(t)
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := q.Enqueue(ctx, "a", nil, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "b", nil, nil)
	require.NoError(t, err)
	urgent, err := q.Enqueue(ctx, "c", nil, &Options{Priority: 1})
	require.NoError(t, err)

	ids, err := rdb.LRange(ctx, "test:orders:wait", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, urgent.ID, ids[len(ids)-1], "el prioritario se consume primero")
	assert.Equal(t, first.ID, ids[len(ids)-2], "después sigue el orden FIFO")
}

func TestQueue_DelayedJobWaitsForPromotion(t *testing.T) {
	rdb := newTestRedis(t)
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "later", nil, &Options{Delay: 30 * time.Millisecond})
	require.NoError(t, err)

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Delayed)
	assert.Equal(t, int64(0), m.Waiting)

	// Aún no ha llegado su momento: la promoción no lo mueve.
	require.NoError(t, q.promoteDelayed(ctx))
	m, _ = q.Metrics(ctx)
	assert.Equal(t, int64(1), m.Delayed)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.promoteDelayed(ctx))

	ids, err := rdb.LRange(ctx, "test:orders:wait", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ids)
}

func TestQueue_BackoffIsExponential(t *testing.T) {
	q := NewQueue("orders", "test", nil, nil, 5, 5*time.Second, zap.NewNop())

	assert.Equal(t, 5*time.Second, q.backoffFor(1))
	assert.Equal(t, 10*time.Second, q.backoffFor(2))
	assert.Equal(t, 20*time.Second, q.backoffFor(3))
}

func TestQueue_PauseAndResume(t *testing.T) {
	rdb := newTestRedis(t)
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	ctx := context.Background()

	paused, err := q.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, q.Pause(ctx))
	paused, _ = q.IsPaused(ctx)
	assert.True(t, paused)

	require.NoError(t, q.Resume(ctx))
	paused, _ = q.IsPaused(ctx)
	assert.False(t, paused)
}

func TestQueue_EmptyDropsWaitingAndDelayed(t *testing.T) {
	rdb := newTestRedis(t)
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	ctx := context.Background()

	waiting, err := q.Enqueue(ctx, "a", nil, nil)
	require.NoError(t, err)
	delayed, err := q.Enqueue(ctx, "b", nil, &Options{Delay: time.Hour})
	require.NoError(t, err)

	require.NoError(t, q.Empty(ctx))

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Waiting)
	assert.Equal(t, int64(0), m.Delayed)

	// Los registros de ambos jobs también desaparecen.
	for _, id := range []string{waiting.ID, delayed.ID} {
		n, err := rdb.Exists(ctx, q.jobKey(id)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	}
}

func TestQueue_CleanRemovesOnlyOldFinishedJobs(t *testing.T) {
	rdb := newTestRedis(t)
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	ctx := context.Background()

	// Un completado antiguo y uno reciente, sembrados a mano.
	old := &Job{ID: "old-job", Name: "a", Queue: "orders"}
	recent := &Job{ID: "recent-job", Name: "b", Queue: "orders"}
	require.NoError(t, q.saveJob(ctx, old))
	require.NoError(t, q.saveJob(ctx, recent))

	oldScore := float64(time.Now().Add(-2 * time.Hour).UnixMilli())
	recentScore := float64(time.Now().UnixMilli())
	require.NoError(t, rdb.ZAdd(ctx, q.key("completed"), &redis.Z{Score: oldScore, Member: old.ID}).Err())
	require.NoError(t, rdb.ZAdd(ctx, q.key("completed"), &redis.Z{Score: recentScore, Member: recent.ID}).Err())

	removed, err := q.Clean(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Completed)

	n, _ := rdb.Exists(ctx, q.jobKey(recent.ID)).Result()
	assert.Equal(t, int64(1), n)
}

func TestQueue_RecoverStalledRequeuesOrphans(t *testing.T) {
	rdb := newTestRedis(t)
	recorder := &eventRecorder{}

	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	q.On(EventStalled, recorder.record)
	ctx := context.Background()

	// Simula un proceso caído: un job quedó en active y su lock ya expiró.
	orphan := &Job{ID: "orphan", Name: "a", Queue: "orders"}
	require.NoError(t, q.saveJob(ctx, orphan))
	require.NoError(t, rdb.LPush(ctx, q.key("active"), orphan.ID).Err())

	require.NoError(t, q.recoverStalled(ctx))

	ids, err := rdb.LRange(ctx, q.key("wait"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.ID}, ids)
	assert.Equal(t, 1, recorder.count(EventStalled))
}

func TestQueue_RecoverStalledLeavesHealthyPeerJobsAlone(t *testing.T) {
	// ARRANGE: dos instancias compitiendo contra el mismo Redis. La A está
	// ejecutando un job (lock vivo); el mantenimiento de la B no debe robarlo.
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	entered := make(chan struct{})
	release := make(chan struct{})
	var executions int32
	var mu sync.Mutex
	handler := func(ctx context.Context, job *Job) error {
		mu.Lock()
		executions++
		mu.Unlock()
		close(entered)
		<-release
		return nil
	}

	instanceA := NewQueue("payments", "test", rdb, handler, 3, time.Second, zap.NewNop())
	instanceB := NewQueue("payments", "test", rdb, nil, 3, time.Second, zap.NewNop())
	recorder := &eventRecorder{}
	instanceB.On(EventStalled, recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	instanceA.Start(ctx)
	defer instanceA.Close()

	job, err := instanceA.Enqueue(ctx, "capture-payment", map[string]string{"order_id": "order-1"}, nil)
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("el worker nunca llegó a ejecutar el job")
	}

	// El job en curso tiene su lock tomado.
	n, err := rdb.Exists(ctx, instanceA.lockKey(job.ID)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// ACT: mantenimiento de la instancia B con el job de la A en vuelo.
	require.NoError(t, instanceB.recoverStalled(ctx))

	// ASSERT: el job sigue en active, no volvió a wait ni se marcó colgado.
	active, err := rdb.LRange(ctx, instanceA.key("active"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, active)
	waiting, _ := rdb.LRange(ctx, instanceA.key("wait"), 0, -1).Result()
	assert.Empty(t, waiting)
	assert.Equal(t, 0, recorder.count(EventStalled))

	close(release)
	require.Eventually(t, func() bool {
		m, err := instanceA.Metrics(ctx)
		return err == nil && m.Completed == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, int32(1), executions, "un job sano se ejecuta una sola vez")
	mu.Unlock()
}

func TestQueue_RecoverStalledRequeuesAfterLockExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	recorder := &eventRecorder{}
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	q.On(EventStalled, recorder.record)
	ctx := context.Background()

	// Un proceso tomó el job y murió sin renovar el lock.
	stuck := &Job{ID: "stuck", Name: "a", Queue: "orders"}
	require.NoError(t, q.saveJob(ctx, stuck))
	require.NoError(t, rdb.LPush(ctx, q.key("active"), stuck.ID).Err())
	require.NoError(t, rdb.Set(ctx, q.lockKey(stuck.ID), "dead-worker", q.stallAfter).Err())

	// Con el lock vivo no se toca.
	require.NoError(t, q.recoverStalled(ctx))
	assert.Equal(t, 0, recorder.count(EventStalled))

	// Al expirar el TTL sí se recupera.
	mr.FastForward(q.stallAfter + time.Second)
	require.NoError(t, q.recoverStalled(ctx))

	ids, err := rdb.LRange(ctx, q.key("wait"), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.ID}, ids)
	assert.Equal(t, 1, recorder.count(EventStalled))
}

func TestQueue_UnpersistedAttemptSkipsReschedule(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	recorder := &eventRecorder{}
	q := NewQueue("orders", "test", rdb, nil, 3, time.Second, zap.NewNop())
	q.On(EventError, recorder.record)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "flaky", nil, nil)
	require.NoError(t, err)
	// El worker lo habría movido de wait a active.
	require.NoError(t, rdb.LRem(ctx, q.key("wait"), 1, job.ID).Err())
	require.NoError(t, rdb.LPush(ctx, q.key("active"), job.ID).Err())

	// Redis deja de aceptar escrituras justo al terminar el intento.
	mr.SetError("LOADING Redis is loading the dataset in memory")
	q.finish(ctx, job, jobs.Retryable(errors.New("gateway timeout")))
	mr.SetError("")

	// Sin contador persistido no hay reprogramación: el job sigue en active
	// con el intento guardado intacto, a la espera de la recuperación.
	m, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Delayed)
	assert.Equal(t, int64(1), m.Active)
	assert.Equal(t, 1, recorder.count(EventError))

	stored, err := q.loadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Attempt)
}
