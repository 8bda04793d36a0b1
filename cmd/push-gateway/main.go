// cmd/push-gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orchard/internal/pkg/bootstrap"
	"orchard/internal/pkg/config"
	"orchard/internal/pkg/mq"
	"orchard/internal/pkg/redis"
	"orchard/internal/pkg/session"
	"orchard/internal/service/pushgateway"
	"orchard/internal/service/store/infrastructure/adapter"
)

const (
	serviceName                     = "push-gateway"
	notificationConsumerGroupPrefix = "push-gateway-"
)

func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()

	nodeID := serviceName + "-" + uuid.New().String()[:8]

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	defer redisClient.Close()

	hub := pushgateway.NewHub(nodeID, session.NewManager(redisClient))

	// 每个网关节点用独立的消费组，所有节点都能看到全量通知，
	// 各自只推送连在自己身上的用户。
	consumer := pushgateway.NewNotificationConsumer(
		mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, adapter.NotificationTopic, notificationConsumerGroupPrefix+nodeID),
		hub,
	)
	defer consumer.Stop()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/ws", hub.ServeWs)
		},
		Background: func(ctx context.Context, appCtx bootstrap.AppCtx) {
			go hub.Run(ctx)
			consumer.Start(ctx)
		},
	})
}
