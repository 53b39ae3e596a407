package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/jobs"
	"github.com/davicafu/orderflow/internal/jobs/queue"
	"github.com/davicafu/orderflow/internal/order/domain"
	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedEvents "github.com/davicafu/orderflow/internal/shared/domain/events"
)

// EventPublisher es el puerto hacia la tabla outbox.
type EventPublisher interface {
	Publish(ctx context.Context, evt sharedEvents.DomainEvent, metadata map[string]string, scope sharedDomain.TxScope) error
}

// JobEnqueuer es el puerto hacia el servicio de colas de jobs.
type JobEnqueuer interface {
	EnqueuePaymentJob(ctx context.Context, name string, data jobs.PaymentJobData, opts *queue.Options) (*queue.Job, error)
	EnqueueInventoryJob(ctx context.Context, name string, data jobs.InventoryJobData, opts *queue.Options) (*queue.Job, error)
	EnqueueNotificationJob(ctx context.Context, name string, data jobs.NotificationJobData, opts *queue.Options) (*queue.Job, error)
}

// OrderService implementa los casos de uso de pedidos. Cada mutación escribe
// el pedido y su evento de outbox en la misma transacción, y después empuja
// los pasos asíncronos del flujo como jobs.
type OrderService struct {
	repo     domain.OrderRepository
	events   EventPublisher
	enqueuer JobEnqueuer
	log      *zap.Logger
}

func NewOrderService(repo domain.OrderRepository, events EventPublisher, enqueuer JobEnqueuer, log *zap.Logger) *OrderService {
	return &OrderService{
		repo:     repo,
		events:   events,
		enqueuer: enqueuer,
		log:      log,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, customerID string, lines []domain.OrderLine) (*domain.Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("order needs at least one line")
	}

	total := 0.0
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("invalid quantity for product %s", l.ProductID)
		}
		total += float64(l.Quantity) * l.Price
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     domain.StatusPending,
		Lines:      lines,
		Total:      total,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	evt, err := s.newEvent(domain.OrderCreated, order)
	if err != nil {
		return nil, err
	}

	// El callback corre dentro de la transacción del repositorio: el evento
	// queda registrado si y solo si el pedido comitea.
	if err := s.repo.Create(ctx, order, func(scope sharedDomain.TxScope) error {
		return s.events.Publish(ctx, evt, map[string]string{"source": "orderflow"}, scope)
	}); err != nil {
		return nil, err
	}

	s.enqueueFulfilment(ctx, order, evt.EventID)

	return order, nil
}

func (s *OrderService) ConfirmOrder(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.StatusConfirmed, domain.OrderConfirmed, "order-confirmed")
}

func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.StatusCancelled, domain.OrderCancelled, "order-cancelled")
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *OrderService) transition(ctx context.Context, id uuid.UUID, status domain.Status, eventType, template string) error {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !order.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, status)
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()

	evt, err := s.newEvent(eventType, order)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, status, func(scope sharedDomain.TxScope) error {
		return s.events.Publish(ctx, evt, map[string]string{"source": "orderflow"}, scope)
	}); err != nil {
		return err
	}

	s.notify(ctx, order, template, evt.EventID)

	if status == domain.StatusCancelled {
		// Al cancelar se devuelven las reservas de stock.
		for _, line := range order.Lines {
			if _, err := s.enqueuer.EnqueueInventoryJob(ctx, "release-stock", jobs.InventoryJobData{
				JobData:   jobs.JobData{CorrelationID: evt.EventID, CreatedAt: time.Now().UTC()},
				ProductID: line.ProductID,
				Action:    "release",
				Quantity:  line.Quantity,
			}, nil); err != nil {
				s.log.Error("No se pudo encolar liberación de stock",
					zap.String("order_id", order.ID.String()),
					zap.Error(err),
				)
			}
		}
	}

	return nil
}

// enqueueFulfilment empuja los pasos asíncronos del pedido recién creado:
// reservar stock, capturar el pago y avisar al cliente.
func (s *OrderService) enqueueFulfilment(ctx context.Context, order *domain.Order, correlationID string) {
	now := time.Now().UTC()

	for _, line := range order.Lines {
		if _, err := s.enqueuer.EnqueueInventoryJob(ctx, "reserve-stock", jobs.InventoryJobData{
			JobData:   jobs.JobData{CorrelationID: correlationID, CreatedAt: now},
			ProductID: line.ProductID,
			Action:    "reserve",
			Quantity:  line.Quantity,
		}, nil); err != nil {
			s.log.Error("No se pudo encolar reserva de stock",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", line.ProductID),
				zap.Error(err),
			)
		}
	}

	if _, err := s.enqueuer.EnqueuePaymentJob(ctx, "capture-payment", jobs.PaymentJobData{
		JobData:  jobs.JobData{CorrelationID: correlationID, CreatedAt: now},
		OrderID:  order.ID.String(),
		Method:   "card",
		Amount:   order.Total,
		Currency: "EUR",
	}, nil); err != nil {
		s.log.Error("No se pudo encolar captura de pago",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}

	s.notify(ctx, order, "order-created", correlationID)
}

func (s *OrderService) notify(ctx context.Context, order *domain.Order, template, correlationID string) {
	if _, err := s.enqueuer.EnqueueNotificationJob(ctx, "send-notification", jobs.NotificationJobData{
		JobData:   jobs.JobData{CorrelationID: correlationID, CreatedAt: time.Now().UTC()},
		Channel:   "email",
		Template:  template,
		Recipient: order.CustomerID,
		Variables: map[string]string{"order_id": order.ID.String()},
	}, nil); err != nil {
		s.log.Error("No se pudo encolar notificación",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *OrderService) newEvent(eventType string, order *domain.Order) (sharedEvents.DomainEvent, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return sharedEvents.DomainEvent{}, fmt.Errorf("marshal order payload: %w", err)
	}

	return sharedEvents.DomainEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateType: "order",
		AggregateID:   order.ID.String(),
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}
