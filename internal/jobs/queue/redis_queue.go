package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
)

// Eventos del ciclo de vida que una cola emite hacia sus listeners.
const (
	EventCompleted = "completed"
	EventFailed    = "failed" // terminal: el job fue a dead-letter
	EventStalled   = "stalled"
	EventError     = "error" // intento fallido, habrá reintento
)

// Job es el sobre que viaja por la cola. Desde el encolado hasta el resultado
// el dato pertenece al backend; el servicio solo lo crea y lo lee.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Options ajusta un encolado concreto.
type Options struct {
	Priority int           // >0 salta al frente de la cola
	Delay    time.Duration // encolado diferido
	Attempts int           // sobreescribe el máximo por defecto
}

// Handler procesa un job. El error devuelto (clasificado con los marcadores
// del paquete jobs) decide entre reprogramar y dead-letter.
type Handler func(ctx context.Context, job *Job) error

// Event es lo que reciben los listeners registrados.
type Event struct {
	Type  string
	Queue string
	Job   *Job
	Err   error
}

type Listener func(evt Event)

// QueueMetrics es una proyección de solo lectura, recalculada bajo demanda.
type QueueMetrics struct {
	QueueName string    `json:"queue_name"`
	Waiting   int64     `json:"waiting"`
	Active    int64     `json:"active"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
	Delayed   int64     `json:"delayed"`
	Paused    bool      `json:"paused"`
	Timestamp time.Time `json:"timestamp"`
}

// Queue es una cola de jobs sobre estructuras Redis:
//
//	wait (list) → active (list) → completed/failed (zset por timestamp)
//	delayed (zset por instante de ejecución) → wait
//
// Un worker por cola procesa de uno en uno; el paralelismo real viene de
// ejecutar varias instancias del servicio contra el mismo Redis.
type Queue struct {
	name            string
	prefix          string
	rdb             *redis.Client
	handler         Handler
	defaultAttempts int
	backoff         time.Duration
	stallAfter      time.Duration
	workerID        string // dueño de los locks que toma este proceso
	log             *zap.Logger

	mu        sync.Mutex
	listeners map[string][]Listener
	current   string // job en curso de ESTE proceso

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(name, prefix string, rdb *redis.Client, handler Handler, defaultAttempts int, backoff time.Duration, log *zap.Logger) *Queue {
	return &Queue{
		name:            name,
		prefix:          prefix,
		rdb:             rdb,
		handler:         handler,
		defaultAttempts: defaultAttempts,
		backoff:         backoff,
		stallAfter:      30 * time.Second,
		workerID:        uuid.NewString(),
		log:             log,
		listeners:       make(map[string][]Listener),
		stopCh:          make(chan struct{}),
	}
}

func newJobID() string { return uuid.NewString() }

func (q *Queue) Name() string { return q.name }

func (q *Queue) key(suffix string) string {
	return fmt.Sprintf("%s:%s:%s", q.prefix, q.name, suffix)
}

func (q *Queue) jobKey(id string) string { return q.key("job:" + id) }

// lockKey es el lock de ejecución de un job: existe, con TTL, mientras un
// worker lo tiene en curso. Un lock expirado marca al job como colgado.
func (q *Queue) lockKey(id string) string { return q.key("lock:" + id) }

// On registra un listener para un evento del ciclo de vida.
func (q *Queue) On(event string, fn Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners[event] = append(q.listeners[event], fn)
}

func (q *Queue) emit(evt Event) {
	q.mu.Lock()
	fns := append([]Listener(nil), q.listeners[evt.Type]...)
	q.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// Enqueue crea el job y lo deja en wait (o delayed). Los errores del backend
// se propagan sin envolver.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}, opts *Options) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	job := &Job{
		ID:          newJobID(),
		Name:        name,
		Queue:       q.name,
		Payload:     data,
		MaxAttempts: q.defaultAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	var delay time.Duration
	if opts != nil {
		if opts.Attempts > 0 {
			job.MaxAttempts = opts.Attempts
		}
		job.Priority = opts.Priority
		delay = opts.Delay
	}

	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	if delay > 0 {
		runAt := float64(time.Now().Add(delay).UnixMilli())
		if err := q.rdb.ZAdd(ctx, q.key("delayed"), &redis.Z{Score: runAt, Member: job.ID}).Err(); err != nil {
			return nil, err
		}
		return job, nil
	}

	if err := q.push(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (q *Queue) push(ctx context.Context, job *Job) error {
	// BRPopLPush consume por la derecha: LPush es FIFO, RPush salta la cola.
	if job.Priority > 0 {
		return q.rdb.RPush(ctx, q.key("wait"), job.ID).Err()
	}
	return q.rdb.LPush(ctx, q.key("wait"), job.ID).Err()
}

func (q *Queue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, q.jobKey(job.ID), data, 0).Err()
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Start lanza el worker y el timer de mantenimiento. Antes de consumir,
// recupera los jobs con lock expirado que un proceso caído dejó en active.
func (q *Queue) Start(ctx context.Context) {
	if err := q.recoverStalled(ctx); err != nil {
		q.log.Warn("⚠️ No se pudieron recuperar jobs colgados", zap.String("queue", q.name), zap.Error(err))
	}

	q.wg.Add(2)
	go q.workLoop(ctx)
	go q.timerLoop(ctx)

	q.log.Info("🏭 Cola iniciada", zap.String("queue", q.name))
}

func (q *Queue) workLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		default:
		}

		paused, err := q.IsPaused(ctx)
		if err == nil && paused {
			time.Sleep(250 * time.Millisecond)
			continue
		}

		id, err := q.rdb.BRPopLPush(ctx, q.key("wait"), q.key("active"), time.Second).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			q.emit(Event{Type: EventError, Queue: q.name, Err: err})
			q.log.Error("Error al sacar job de la cola", zap.String("queue", q.name), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		acquired, err := q.rdb.SetNX(ctx, q.lockKey(id), q.workerID, q.stallAfter).Result()
		if err != nil {
			q.rdb.LRem(ctx, q.key("active"), 1, id)
			q.rdb.LPush(ctx, q.key("wait"), id)
			q.log.Error("No se pudo tomar el lock del job", zap.String("queue", q.name), zap.String("job_id", id), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if !acquired {
			// Otro proceso ya reclamó este job; el duplicado se descarta.
			q.rdb.LRem(ctx, q.key("active"), 1, id)
			continue
		}

		job, err := q.loadJob(ctx, id)
		if err != nil {
			// Sin registro del job no hay nada que ejecutar: se limpia la lista.
			q.rdb.LRem(ctx, q.key("active"), 1, id)
			q.rdb.Del(ctx, q.lockKey(id))
			q.log.Error("Job sin registro en Redis", zap.String("queue", q.name), zap.String("job_id", id), zap.Error(err))
			continue
		}

		if q.alreadyFinished(ctx, id) {
			// Copia rezagada de un job ya terminado (por ejemplo, tras una
			// recuperación de colgados que lo reencoló). No se re-ejecuta.
			q.rdb.LRem(ctx, q.key("active"), 1, id)
			q.rdb.Del(ctx, q.lockKey(id))
			continue
		}

		q.setCurrent(id)
		release := q.holdLock(ctx, id)
		execErr := q.handler(ctx, job)
		release()
		q.setCurrent("")

		q.finish(ctx, job, execErr)
	}
}

// alreadyFinished comprueba si el job ya está en completed o failed.
func (q *Queue) alreadyFinished(ctx context.Context, id string) bool {
	for _, set := range []string{"completed", "failed"} {
		if err := q.rdb.ZScore(ctx, q.key(set), id).Err(); err == nil {
			return true
		}
	}
	return false
}

// holdLock renueva el TTL del lock mientras el handler ejecuta. Devuelve la
// función que detiene la renovación.
func (q *Queue) holdLock(ctx context.Context, id string) func() {
	done := make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.stallAfter / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				q.rdb.Expire(ctx, q.lockKey(id), q.stallAfter)
			}
		}
	}()
	return func() { close(done) }
}

func (q *Queue) setCurrent(id string) {
	q.mu.Lock()
	q.current = id
	q.mu.Unlock()
}

func (q *Queue) currentJob() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// finish saca el job de active y decide su destino: completado, reintento
// con backoff exponencial, o dead-letter.
func (q *Queue) finish(ctx context.Context, job *Job, execErr error) {
	now := float64(time.Now().UnixMilli())

	job.Attempt++
	saveErr := q.saveJob(ctx, job)
	if saveErr != nil {
		q.log.Error("No se pudo persistir el contador de intentos",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.Error(saveErr),
		)
	}

	if execErr == nil {
		q.rdb.LRem(ctx, q.key("active"), 1, job.ID)
		q.rdb.ZAdd(ctx, q.key("completed"), &redis.Z{Score: now, Member: job.ID})
		q.rdb.Del(ctx, q.lockKey(job.ID))
		q.emit(Event{Type: EventCompleted, Queue: q.name, Job: job})
		return
	}

	if job.Attempt < job.MaxAttempts && jobs.IsRetryableError(execErr) {
		if saveErr != nil {
			// Con el contador sin persistir no se reprograma: el job sigue en
			// active con el lock liberado y la recuperación de colgados lo
			// devolverá a wait.
			q.rdb.Del(ctx, q.lockKey(job.ID))
			q.emit(Event{Type: EventError, Queue: q.name, Job: job, Err: execErr})
			return
		}
		q.rdb.LRem(ctx, q.key("active"), 1, job.ID)
		delay := q.backoffFor(job.Attempt)
		runAt := float64(time.Now().Add(delay).UnixMilli())
		q.rdb.ZAdd(ctx, q.key("delayed"), &redis.Z{Score: runAt, Member: job.ID})
		q.rdb.Del(ctx, q.lockKey(job.ID))
		q.emit(Event{Type: EventError, Queue: q.name, Job: job, Err: execErr})
		q.log.Warn("Job reprogramado",
			zap.String("queue", q.name),
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Duration("delay", delay),
		)
		return
	}

	q.rdb.LRem(ctx, q.key("active"), 1, job.ID)
	q.rdb.ZAdd(ctx, q.key("failed"), &redis.Z{Score: now, Member: job.ID})
	q.rdb.Del(ctx, q.lockKey(job.ID))
	q.emit(Event{Type: EventFailed, Queue: q.name, Job: job, Err: execErr})
	q.log.Error("💀 Job enviado a dead-letter",
		zap.String("queue", q.name),
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempt),
		zap.Error(execErr),
	)
}

// backoffFor aplica backoff exponencial sobre el retraso base.
func (q *Queue) backoffFor(attempt int) time.Duration {
	mult := math.Pow(2, float64(attempt-1))
	return time.Duration(float64(q.backoff) * mult)
}

func (q *Queue) timerLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	stallTicks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			if err := q.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
				q.log.Warn("Error al promover jobs diferidos", zap.String("queue", q.name), zap.Error(err))
			}

			stallTicks++
			if stallTicks*500 >= int(q.stallAfter.Milliseconds()) {
				stallTicks = 0
				if err := q.recoverStalled(ctx); err != nil && ctx.Err() == nil {
					q.log.Warn("Error en recuperación de jobs colgados", zap.String("queue", q.name), zap.Error(err))
				}
			}
		}
	}
}

// promoteDelayed mueve a wait los jobs cuyo instante de ejecución ya llegó.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.key("delayed"), id).Result()
		if err != nil {
			return err
		}
		// Otro proceso pudo promoverlo antes; solo lo encola quien lo quitó.
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.key("wait"), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// recoverStalled devuelve a wait los jobs de active cuyo lock expiró: su
// worker murió o dejó de renovar. Un lock vivo significa que otro proceso lo
// está ejecutando con normalidad y no se toca.
func (q *Queue) recoverStalled(ctx context.Context) error {
	ids, err := q.rdb.LRange(ctx, q.key("active"), 0, -1).Result()
	if err != nil {
		return err
	}

	current := q.currentJob()
	for _, id := range ids {
		if id == current {
			continue
		}
		// Reclamar el lock antes de mover nada: si sigue vivo, SetNX falla y
		// el job queda donde está.
		claimed, err := q.rdb.SetNX(ctx, q.lockKey(id), q.workerID, q.stallAfter).Result()
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		removed, err := q.rdb.LRem(ctx, q.key("active"), 1, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			q.rdb.Del(ctx, q.lockKey(id))
			continue
		}
		if err := q.rdb.LPush(ctx, q.key("wait"), id).Err(); err != nil {
			return err
		}
		q.rdb.Del(ctx, q.lockKey(id))

		job, _ := q.loadJob(ctx, id)
		q.emit(Event{Type: EventStalled, Queue: q.name, Job: job})
		q.log.Warn("♻️ Job colgado devuelto a la cola",
			zap.String("queue", q.name),
			zap.String("job_id", id),
		)
	}
	return nil
}

// Metrics recalcula el snapshot de la cola bajo demanda.
func (q *Queue) Metrics(ctx context.Context) (*QueueMetrics, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.key("wait"))
	active := pipe.LLen(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	paused := pipe.Exists(ctx, q.key("paused"))

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &QueueMetrics{
		QueueName: q.name,
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
		Paused:    paused.Val() > 0,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ActiveCount devuelve cuántos jobs están en ejecución ahora mismo.
func (q *Queue) ActiveCount(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key("active")).Result()
}

func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	n, err := q.rdb.Exists(ctx, q.key("paused")).Result()
	return n > 0, err
}

// Pause deja de aceptar trabajo nuevo; el job en curso termina.
func (q *Queue) Pause(ctx context.Context) error {
	return q.rdb.Set(ctx, q.key("paused"), "1", 0).Err()
}

func (q *Queue) Resume(ctx context.Context) error {
	return q.rdb.Del(ctx, q.key("paused")).Err()
}

// Empty vacía wait y delayed junto con sus registros. No toca active.
func (q *Queue) Empty(ctx context.Context) error {
	waiting, err := q.rdb.LRange(ctx, q.key("wait"), 0, -1).Result()
	if err != nil {
		return err
	}
	delayed, err := q.rdb.ZRange(ctx, q.key("delayed"), 0, -1).Result()
	if err != nil {
		return err
	}

	for _, id := range append(waiting, delayed...) {
		q.rdb.Del(ctx, q.jobKey(id))
	}

	return q.rdb.Del(ctx, q.key("wait"), q.key("delayed")).Err()
}

// Clean elimina los registros de completados y fallidos más antiguos que
// grace, y devuelve cuántos jobs se retiraron.
func (q *Queue) Clean(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-grace).UnixMilli(), 10)

	var removed int64
	for _, set := range []string{"completed", "failed"} {
		ids, err := q.rdb.ZRangeByScore(ctx, q.key(set), &redis.ZRangeBy{
			Min: "-inf", Max: cutoff,
		}).Result()
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			q.rdb.Del(ctx, q.jobKey(id))
		}
		if err := q.rdb.ZRemRangeByScore(ctx, q.key(set), "-inf", cutoff).Err(); err != nil {
			return removed, err
		}
		removed += int64(len(ids))
	}
	return removed, nil
}

// Close detiene worker y timer y espera a que terminen.
func (q *Queue) Close() {
	q.stopOnce.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}
