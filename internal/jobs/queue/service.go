package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
	"github.com/davicafu/orderflow/pkg/metrics"
)

// Nombres de las colas del servicio.
const (
	QueueOrders        = "orders"
	QueuePayments      = "payments"
	QueueInventory     = "inventory"
	QueueNotifications = "notifications"
)

// Service agrupa las colas tipadas del servicio: encolado por categoría,
// métricas, operaciones administrativas y apagado coordinado.
type Service struct {
	queues  map[string]*Queue
	order   []string // orden estable para GetAllQueueMetrics
	metrics *metrics.Metrics // opcional
	log     *zap.Logger
}

func NewService(log *zap.Logger, queues ...*Queue) *Service {
	s := &Service{
		queues: make(map[string]*Queue, len(queues)),
		log:    log,
	}
	for _, q := range queues {
		s.queues[q.Name()] = q
		s.order = append(s.order, q.Name())
	}
	return s
}

// WithMetrics registra listeners de observabilidad prometheus en cada cola.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	for name, q := range s.queues {
		name := name
		q.On(EventCompleted, func(Event) { m.Jobs.CompletedTotal.WithLabelValues(name).Inc() })
		q.On(EventFailed, func(Event) { m.Jobs.FailedTotal.WithLabelValues(name).Inc() })
		q.On(EventStalled, func(Event) { m.Jobs.StalledTotal.WithLabelValues(name).Inc() })
	}
	return s
}

// Start arranca los workers de todas las colas.
func (s *Service) Start(ctx context.Context) {
	for _, name := range s.order {
		s.queues[name].Start(ctx)
	}
}

func (s *Service) queue(name string) (*Queue, error) {
	q, ok := s.queues[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", name)
	}
	return q, nil
}

// ---------------- Encolado tipado por categoría ----------------

func (s *Service) EnqueueOrderJob(ctx context.Context, name string, data jobs.OrderJobData, opts *Options) (*Job, error) {
	return s.enqueue(ctx, QueueOrders, name, data, opts)
}

func (s *Service) EnqueuePaymentJob(ctx context.Context, name string, data jobs.PaymentJobData, opts *Options) (*Job, error) {
	return s.enqueue(ctx, QueuePayments, name, data, opts)
}

func (s *Service) EnqueueInventoryJob(ctx context.Context, name string, data jobs.InventoryJobData, opts *Options) (*Job, error) {
	return s.enqueue(ctx, QueueInventory, name, data, opts)
}

func (s *Service) EnqueueNotificationJob(ctx context.Context, name string, data jobs.NotificationJobData, opts *Options) (*Job, error) {
	return s.enqueue(ctx, QueueNotifications, name, data, opts)
}

func (s *Service) enqueue(ctx context.Context, queueName, jobName string, payload interface{}, opts *Options) (*Job, error) {
	q, err := s.queue(queueName)
	if err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, jobName, payload, opts)
}

// ---------------- Métricas ----------------

// GetQueueMetrics devuelve el snapshot de una cola. Un nombre desconocido es
// un error descriptivo, nunca un default silencioso.
func (s *Service) GetQueueMetrics(ctx context.Context, name string) (*QueueMetrics, error) {
	q, err := s.queue(name)
	if err != nil {
		return nil, err
	}
	m, err := q.Metrics(ctx)
	if err != nil {
		return nil, err
	}
	s.observeActive(m)
	return m, nil
}

func (s *Service) GetAllQueueMetrics(ctx context.Context) ([]*QueueMetrics, error) {
	out := make([]*QueueMetrics, 0, len(s.order))
	for _, name := range s.order {
		m, err := s.queues[name].Metrics(ctx)
		if err != nil {
			return nil, fmt.Errorf("metrics for queue %q: %w", name, err)
		}
		s.observeActive(m)
		out = append(out, m)
	}
	return out, nil
}

// observeActive refleja el snapshot en el gauge prometheus, si está conectado.
func (s *Service) observeActive(m *QueueMetrics) {
	if s.metrics != nil {
		s.metrics.Jobs.ActiveGauge.WithLabelValues(m.QueueName).Set(float64(m.Active))
	}
}

// ---------------- Operaciones administrativas ----------------

func (s *Service) PauseQueue(ctx context.Context, name string) error {
	q, err := s.queue(name)
	if err != nil {
		return err
	}
	return q.Pause(ctx)
}

func (s *Service) ResumeQueue(ctx context.Context, name string) error {
	q, err := s.queue(name)
	if err != nil {
		return err
	}
	return q.Resume(ctx)
}

func (s *Service) CleanQueue(ctx context.Context, name string, grace time.Duration) (int64, error) {
	q, err := s.queue(name)
	if err != nil {
		return 0, err
	}
	return q.Clean(ctx, grace)
}

func (s *Service) EmptyQueue(ctx context.Context, name string) error {
	q, err := s.queue(name)
	if err != nil {
		return err
	}
	return q.Empty(ctx)
}

// OnQueueEvent registra un listener de ciclo de vida en una cola concreta.
func (s *Service) OnQueueEvent(name, event string, fn Listener) error {
	q, err := s.queue(name)
	if err != nil {
		return err
	}
	q.On(event, fn)
	return nil
}

// GracefulShutdown pausa todas las colas, espera (sondeando cada segundo) a
// que los jobs activos lleguen a cero o venza el timeout, y cierra todas las
// colas pase lo que pase. Un job sin terminar al vencer el timeout queda para
// la recuperación de arranque del backend, no se fuerza su finalización.
func (s *Service) GracefulShutdown(ctx context.Context, timeout time.Duration) error {
	s.log.Info("🛑 Apagado coordinado de colas iniciado", zap.Duration("timeout", timeout))

	for _, name := range s.order {
		if err := s.queues[name].Pause(ctx); err != nil {
			s.log.Warn("No se pudo pausar cola en el apagado", zap.String("queue", name), zap.Error(err))
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		active, err := s.totalActive(ctx)
		if err != nil {
			s.log.Warn("No se pudo leer jobs activos durante el apagado", zap.Error(err))
			break
		}
		if active == 0 {
			break
		}
		if time.Now().After(deadline) {
			s.log.Warn("⏱️ Timeout de apagado con jobs activos; se abandonan al backend",
				zap.Int64("active", active),
			)
			break
		}
		time.Sleep(time.Second)
	}

	for _, name := range s.order {
		s.queues[name].Close()
	}

	s.log.Info("✅ Colas cerradas")
	return nil
}

func (s *Service) totalActive(ctx context.Context) (int64, error) {
	var total int64
	for _, name := range s.order {
		n, err := s.queues[name].ActiveCount(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
