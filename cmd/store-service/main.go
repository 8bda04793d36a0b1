// cmd/store-service/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orchard/internal/pkg/bootstrap"
	"orchard/internal/pkg/config"
	"orchard/internal/pkg/httpclient"
	"orchard/internal/pkg/logger"
	"orchard/internal/pkg/mq"
	"orchard/internal/pkg/zookeeper"
	"orchard/internal/service/store/application"
	"orchard/internal/service/store/infrastructure"
	"orchard/internal/service/store/infrastructure/adapter"
	"orchard/internal/service/store/interfaces"

	deliveryinfra "orchard/internal/service/delivery/infrastructure"
)

const (
	serviceName = "store-service"

	orderCreationConsumerGroup  = "order-creation-consumer-group"
	deliveryStatusConsumerGroup = "store-delivery-status-consumer-group"
	dltConsumerGroup            = "store-dlt-consumer-group"
	orderDeadLetterTopic        = "order-creation-dlt"

	timeoutMonitorRole = "order-timeout-monitor"

	// 单个订单在责任链中的处理超时上限
	orderProcessingTimeout = 30 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()
	tracer := otel.Tracer(serviceName)

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	orderRepo := infrastructure.NewGormOrderRepository(db)

	// 出站适配器：仓储和银行走同步 HTTP，配送和通知走 Kafka
	httpClient := httpclient.NewClient(tracer)
	warehouse := adapter.NewWarehouseHTTPAdapter(httpClient, cfg.Services.Warehouse)
	bank := adapter.NewBankHTTPAdapter(httpClient, cfg.Services.Bank)
	delivery := adapter.NewDeliveryKafkaAdapter(cfg.Infra.Kafka.Brokers)
	notifier := adapter.NewNotificationKafkaAdapter(cfg.Infra.Kafka.Brokers)
	defer notifier.Close()

	rules, err := adapter.NewCelRuleEngine(adapter.DefaultRules)
	if err != nil {
		log.Fatalf("failed to compile order validation rules: %v", err)
	}

	orderProducer := infrastructure.NewOrderProducerAdapter(
		mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, infrastructure.OrderCreationTopic))

	appService := application.NewOrderApplicationService(
		orderRepo, orderProcessingTimeout, tracer, orderProducer,
		rules, warehouse, bank, delivery, notifier,
	)
	httpHandler := interfaces.NewStoreHandler(appService)

	failureHandler := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, orderDeadLetterTopic)
	defer failureHandler.Close()

	orderConsumer := interfaces.NewOrderConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, infrastructure.OrderCreationTopic, orderCreationConsumerGroup),
		appService, failureHandler,
	)
	statusConsumer := interfaces.NewDeliveryStatusConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, deliveryinfra.DeliveryStatusTopic, deliveryStatusConsumerGroup),
		appService, failureHandler,
	)
	dltConsumer := interfaces.NewDltConsumerAdapter(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, orderDeadLetterTopic, dltConsumerGroup),
	)

	monitor := application.NewTimeoutMonitor(
		orderRepo, warehouse, bank, delivery, notifier,
		cfg.Saga.StageTimeout, cfg.Saga.ScanInterval, tracer,
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Background: func(ctx context.Context, appCtx bootstrap.AppCtx) {
			orderConsumer.Start(ctx)
			statusConsumer.Start(ctx)
			dltConsumer.Start(ctx)
			defer orderConsumer.Stop(ctx)
			defer statusConsumer.Stop(ctx)
			defer dltConsumer.Stop(ctx)

			// 超时监控是单例任务，多实例部署时先选主再跑
			zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
			if err != nil {
				log.Fatalf("failed to connect to zookeeper: %v", err)
			}
			defer zkConn.Close()

			elector, err := zookeeper.NewElector(zkConn, timeoutMonitorRole)
			if err != nil {
				log.Fatalf("failed to create elector: %v", err)
			}
			if err := elector.Campaign(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("leader campaign aborted")
				return
			}
			defer elector.Resign()

			logger.Ctx(ctx).Info().Msg("✅ elected leader, starting order timeout monitor")
			monitor.Run(ctx)
		},
	})
}
