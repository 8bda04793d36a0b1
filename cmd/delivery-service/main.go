// cmd/delivery-service/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orchard/internal/pkg/bootstrap"
	"orchard/internal/pkg/config"
	"orchard/internal/pkg/logger"
	"orchard/internal/pkg/mq"
	"orchard/internal/pkg/zookeeper"
	"orchard/internal/service/delivery/application"
	"orchard/internal/service/delivery/infrastructure"
	"orchard/internal/service/delivery/interfaces"
)

const (
	serviceName             = "delivery-service"
	requestConsumerGroup    = "delivery-request-consumer-group"
	cancelConsumerGroup     = "delivery-cancellation-consumer-group"
	deliveryDeadLetterTopic = "delivery-requests-dlt"
	progressLeaderRole      = "delivery-progress-loop"
)

func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}

	statusPublisher := infrastructure.NewKafkaStatusPublisher(cfg.Infra.Kafka.Brokers)
	defer statusPublisher.Close()

	service := application.NewDeliveryService(
		infrastructure.NewGormDeliveryRepository(db),
		statusPublisher,
		application.ProbabilisticLoss(cfg.Delivery.LossRatePercent),
		otel.Tracer(serviceName),
	)

	failureHandler := mq.NewFailureHandler(cfg.Infra.Kafka.Brokers, deliveryDeadLetterTopic)
	defer failureHandler.Close()

	requestConsumer := interfaces.NewDeliveryRequestConsumer(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, interfaces.DeliveryRequestTopic, requestConsumerGroup),
		service, failureHandler,
	)
	cancelConsumer := interfaces.NewCancellationConsumer(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, interfaces.DeliveryCancellationTopic, cancelConsumerGroup),
		service, failureHandler,
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		Background: func(ctx context.Context, appCtx bootstrap.AppCtx) {
			requestConsumer.Start(ctx)
			cancelConsumer.Start(ctx)
			defer requestConsumer.Stop(ctx)
			defer cancelConsumer.Stop(ctx)

			// 配送推进循环是单例任务，多实例部署时先选主再跑
			zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
			if err != nil {
				log.Fatalf("failed to connect to zookeeper: %v", err)
			}
			defer zkConn.Close()

			elector, err := zookeeper.NewElector(zkConn, progressLeaderRole)
			if err != nil {
				log.Fatalf("failed to create elector: %v", err)
			}
			if err := elector.Campaign(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("leader campaign aborted")
				return
			}
			defer elector.Resign()

			logger.Ctx(ctx).Info().Msg("✅ elected leader, starting delivery progress loop")
			service.Run(ctx, cfg.Delivery.ProgressInterval)
		},
	})
}
