package events

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopology declara en el broker los topics que el servicio necesita:
// su propio topic de salida, el topic de eventos entrantes y el DLQ. Se
// ejecuta una vez en el arranque; si falla, el proceso no debe continuar
// (la supervisión lo reiniciará).
func EnsureTopology(ctx context.Context, broker string, topics []string, log *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", broker, err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             t,
			NumPartitions:     -1, // defaults del broker
			ReplicationFactor: -1,
		})
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	log.Info("✅ Topología del broker declarada", zap.Strings("topics", topics))
	return nil
}
