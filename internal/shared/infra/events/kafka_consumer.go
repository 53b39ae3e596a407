package events

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/orderflow/internal/shared/infra/consumer"
	"github.com/davicafu/orderflow/pkg/metrics"
)

const retryCountHeader = "x-retry-count"

// ConsumerAdapter es el "oído" que escucha el topic de eventos entrantes y
// traduce las decisiones del pipeline al protocolo del broker:
//   - ack            → commit del offset
//   - retry-nack     → republicar en el topic origen con x-retry-count+1, y commit
//   - dead-letter    → publicar en el topic DLQ, y commit
//
// El commit se hace siempre para que la partición avance; la redistribución
// del mensaje viaja por los topics, no por el offset.
type ConsumerAdapter struct {
	reader      *kafka.Reader
	writer      *kafka.Writer // requeue y DLQ, topic por mensaje
	pipeline    *consumer.Pipeline
	sourceTopic string
	dlqTopic    string
	metrics     *metrics.Metrics // opcional
	log         *zap.Logger
}

func NewConsumerAdapter(
	reader *kafka.Reader,
	writer *kafka.Writer,
	pipeline *consumer.Pipeline,
	sourceTopic, dlqTopic string,
	log *zap.Logger,
) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:      reader,
		writer:      writer,
		pipeline:    pipeline,
		sourceTopic: sourceTopic,
		dlqTopic:    dlqTopic,
		log:         log,
	}
}

// WithMetrics conecta los contadores prometheus del consumidor.
func (c *ConsumerAdapter) WithMetrics(m *metrics.Metrics) *ConsumerAdapter {
	c.metrics = m
	return c
}

// Start inicia el bucle de consumo en una goroutine. Los mensajes se
// procesan de uno en uno; la ventana de prefetch la acota el QueueCapacity
// del reader (fair dispatch entre instancias competidoras).
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", c.sourceTopic),
		zap.String("dlq", c.dlqTopic),
		zap.String("group", c.reader.Config().GroupID),
	)

	go func() {
		for {
			// FetchMessage es bloqueante y NO comitea: el commit es manual.
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", c.sourceTopic))
					return
				}
				// Un error en la conexión ya establecida se loggea sin tirar
				// el proceso; el reader reintenta por dentro.
				c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
				continue
			}

			c.handle(ctx, msg)
		}
	}()
}

func (c *ConsumerAdapter) handle(ctx context.Context, msg kafka.Message) {
	started := time.Now()

	inbound := consumer.Inbound{
		Value:      msg.Value,
		RetryCount: retryCount(msg),
	}

	res := c.pipeline.Process(ctx, inbound)

	switch res.Decision {
	case consumer.DecisionRetry:
		if err := c.republish(ctx, msg, c.sourceTopic, inbound.RetryCount+1, res.Reason); err != nil {
			// Sin republicación no comiteamos: el broker reentregará el
			// mensaje original y el contador no se pierde.
			c.log.Error("No se pudo reencolar mensaje, se reentregará", zap.Error(err))
			return
		}

	case consumer.DecisionDeadLetter:
		if err := c.republish(ctx, msg, c.dlqTopic, inbound.RetryCount, res.Reason); err != nil {
			c.log.Error("No se pudo enviar mensaje al DLQ, se reentregará", zap.Error(err))
			return
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("Error al comitear offset", zap.Error(err))
		return
	}

	c.observe(res, time.Since(started))
}

func (c *ConsumerAdapter) republish(ctx context.Context, msg kafka.Message, topic string, retries int, reason string) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+2)
	for _, h := range msg.Headers {
		if h.Key == retryCountHeader {
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers, kafka.Header{
		Key:   retryCountHeader,
		Value: []byte(strconv.Itoa(retries)),
	})
	if topic == c.dlqTopic {
		headers = append(headers, kafka.Header{Key: "x-death-reason", Value: []byte(reason)})
	}

	return c.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}

func (c *ConsumerAdapter) observe(res consumer.Result, took time.Duration) {
	if c.metrics == nil {
		return
	}

	c.metrics.Consumer.MessagesTotal.WithLabelValues(res.Decision.String()).Inc()
	switch res.Reason {
	case "duplicate":
		c.metrics.Consumer.DuplicatesTotal.Inc()
	case "no_handler":
		c.metrics.Consumer.UnroutableTotal.Inc()
	}
	if res.EventType != "" {
		c.metrics.Consumer.ProcessDuration.WithLabelValues(res.EventType).Observe(took.Seconds())
	}
	c.metrics.Consumer.IdempotencySize.Set(float64(c.pipeline.CacheLen()))
}

// Close cierra reader y writer al apagar el servicio.
func (c *ConsumerAdapter) Close() error {
	if err := c.reader.Close(); err != nil {
		return err
	}
	return c.writer.Close()
}

func retryCount(msg kafka.Message) int {
	for _, h := range msg.Headers {
		if h.Key == retryCountHeader {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 0
}
