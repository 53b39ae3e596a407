package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	adminHttp "github.com/davicafu/orderflow/internal/admin/http"
	config "github.com/davicafu/orderflow/internal/config"
	"github.com/davicafu/orderflow/internal/infra/analytics/clickhouse"
	"github.com/davicafu/orderflow/internal/infra/db/mongodb"
	"github.com/davicafu/orderflow/internal/infra/db/postgres"
	"github.com/davicafu/orderflow/internal/infra/db/sqlite"
	"github.com/davicafu/orderflow/internal/infra/local"
	inventoryEvents "github.com/davicafu/orderflow/internal/inventory/infra/inbound/events"
	"github.com/davicafu/orderflow/internal/jobs"
	"github.com/davicafu/orderflow/internal/jobs/processors"
	"github.com/davicafu/orderflow/internal/jobs/queue"
	orderApp "github.com/davicafu/orderflow/internal/order/application"
	orderDomain "github.com/davicafu/orderflow/internal/order/domain"
	orderHttp "github.com/davicafu/orderflow/internal/order/infra/inbound/http"
	orderRepo "github.com/davicafu/orderflow/internal/order/infra/outbound/db/postgres"
	orderSqliteRepo "github.com/davicafu/orderflow/internal/order/infra/outbound/db/sqlite"
	paymentEvents "github.com/davicafu/orderflow/internal/payment/infra/inbound/events"
	sharedDomain "github.com/davicafu/orderflow/internal/shared/domain"
	sharedConsumer "github.com/davicafu/orderflow/internal/shared/infra/consumer"
	infraEvents "github.com/davicafu/orderflow/internal/shared/infra/events"
	sharedOutbox "github.com/davicafu/orderflow/internal/shared/infra/outbox"
	infraRelayer "github.com/davicafu/orderflow/internal/shared/infra/relayer"
	"github.com/davicafu/orderflow/pkg/logger"
	"github.com/davicafu/orderflow/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	// _ "github.com/mattn/go-sqlite3" // requires gcc
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// ---------------- DB ----------------
	var (
		db         *sql.DB
		outboxRepo sharedDomain.OutboxRepository
		err        error
	)

	switch {
	case cfg.LocalDeployment:
		log.Info("⚡️ Despliegue local: SQLite como almacenamiento")
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		if err := sqlite.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize SQLite", zap.Error(err))
		}
		outboxRepo = sqlite.NewOutboxRepoSQLite(db)

	case cfg.MongoURI != "":
		log.Info("🚀 MongoDB como almacenamiento de outbox")
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		outboxRepo = mongodb.NewOutboxRepoMongoDB(client, cfg.MongoDB)

		// Los pedidos siguen en Postgres; Mongo solo guarda el outbox.
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open Postgres", zap.Error(err))
		}

	default:
		log.Info("🚀 Postgres como almacenamiento")
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open Postgres", zap.Error(err))
		}
		if err := postgres.InitPostgres(db); err != nil {
			log.Fatal("failed to initialize Postgres", zap.Error(err))
		}
		outboxRepo = postgres.NewOutboxRepoPostgres(db)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}

	var ordersRepo orderDomain.OrderRepository
	if cfg.LocalDeployment {
		if err := orderSqliteRepo.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize orders table", zap.Error(err))
		}
		ordersRepo = orderSqliteRepo.NewOrderRepoSQLite(db)
	} else {
		if err := orderRepo.InitPostgres(db); err != nil {
			log.Fatal("failed to initialize orders table", zap.Error(err))
		}
		ordersRepo = orderRepo.NewOrderRepoPostgres(db)
	}

	// ---------------- Kafka ----------------
	topics := []string{cfg.ServiceTopic, cfg.InboundTopic, cfg.DLQTopic}
	if err := infraEvents.EnsureTopology(ctx, cfg.KafkaBrokers[0], topics, log); err != nil {
		log.Fatal("failed to ensure Kafka topology", zap.Error(err))
	}

	// Writer genérico: el topic viaja en cada mensaje (relay, requeue y DLQ).
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Balancer: &kafka.Hash{},
	}
	defer writer.Close()

	eventPublisher := infraEvents.NewKafkaPublisher(writer, log)

	// ---------------- Colas de jobs ----------------
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to ping Redis", zap.Error(err))
	}
	defer rdb.Close()

	gateway := local.NewPaymentGateway(log)
	stockStore := local.NewStockStore(100, log)
	sender := local.NewNotificationSender(log)

	newQueue := func(name string, proc jobs.Processor) *queue.Queue {
		exec := jobs.NewExecutor(proc, cfg.JobAttempts, log)
		return queue.NewQueue(name, cfg.QueuePrefix, rdb, queue.ExecutorHandler(exec), cfg.JobAttempts, cfg.JobBackoff, log)
	}

	queueService := queue.NewService(log,
		newQueue(queue.QueueOrders, processors.NewOrderProcessor(log)),
		newQueue(queue.QueuePayments, processors.NewPaymentProcessor(gateway, log)),
		newQueue(queue.QueueInventory, processors.NewInventoryProcessor(stockStore, log)),
		newQueue(queue.QueueNotifications, processors.NewNotificationProcessor(sender, log)),
	).WithMetrics(m)
	queueService.Start(ctx)

	// --------------- Servicio --------------
	outboxPublisher := sharedOutbox.NewPublisher(outboxRepo, log)
	orderService := orderApp.NewOrderService(ordersRepo, outboxPublisher, queueService, log)

	// ------------ Outbox Relay ------------
	// Se podría ejecutar externamente
	relay := infraRelayer.NewOutboxWorker(
		outboxRepo, eventPublisher, orderDomain.NewEventRegistry(),
		cfg.OutboxPeriod, cfg.OutboxLimit, log,
	).WithWarnCycles(cfg.OutboxWarnCycles).WithMetrics(m)

	if cfg.ClickHouseAddr != "" {
		archive, err := clickhouse.NewEventArchive(cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, sin archivado de eventos", zap.Error(err))
		} else {
			relay.WithArchiver(archive)
			log.Info("✅ ClickHouse conectado, archivado de eventos habilitado")
		}
	}
	relay.Start(ctx)

	// ---------------- Consumidor ----------------
	idempotency := sharedConsumer.NewIdempotencyCache(cfg.IdempotencyTTL)
	idempotency.StartSweeper(ctx, cfg.IdempotencySweep, log)

	handlerRegistry := sharedConsumer.NewRegistry(log)
	handlerRegistry.Register(inventoryEvents.NewStockEventHandler(orderService, log))
	handlerRegistry.Register(paymentEvents.NewPaymentEventHandler(orderService, log))

	pipeline := sharedConsumer.NewPipeline(handlerRegistry, idempotency, cfg.MaxRetries, log)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.InboundTopic,
		GroupID:       cfg.ConsumerGroup,
		MinBytes:      10e3, // 10KB
		MaxBytes:      10e6, // 10MB
		QueueCapacity: cfg.Prefetch,
	})
	defer reader.Close()

	consumerAdapter := infraEvents.NewConsumerAdapter(
		reader, writer, pipeline, cfg.InboundTopic, cfg.DLQTopic, log,
	).WithMetrics(m)
	consumerAdapter.Start(ctx)

	// ---------------- HTTP ----------------
	router := gin.Default()
	orderHttp.RegisterOrderRoutes(router, orderHttp.NewOrderHandler(orderService))
	adminHttp.RegisterAdminRoutes(router, adminHttp.NewAdminHandler(queueService), registry)

	go func() {
		log.Info("🚀 Server running",
			zap.String("url", "http://localhost:"+cfg.HTTPPort),
		)
		if err := router.Run(":" + cfg.HTTPPort); err != nil {
			log.Fatal("failed to start server: %v", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Señal recibida, apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
	defer cancel()
	if err := queueService.GracefulShutdown(shutdownCtx, 30*time.Second); err != nil {
		log.Warn("⚠️ Apagado de colas con jobs activos", zap.Error(err))
	}

	log.Info("✅ Apagado completo")
}
