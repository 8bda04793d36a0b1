// cmd/bank-service/main.go
package main

import (
	"log"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orchard/internal/pkg/bootstrap"
	"orchard/internal/pkg/config"
	"orchard/internal/service/bank/application"
	"orchard/internal/service/bank/infrastructure"
	"orchard/internal/service/bank/interfaces"
)

const serviceName = "bank-service"

func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()

	db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}

	// 交易结果异步广播到 Kafka，同步响应之外多一条对账通道
	resultPublisher := infrastructure.NewKafkaResultPublisher(cfg.Infra.Kafka.Brokers)
	defer resultPublisher.Close()

	service := application.NewBankService(
		infrastructure.NewGormAccountRepository(db),
		infrastructure.NewGormTransactionRepository(db),
		resultPublisher,
		application.ProbabilisticSettlement(cfg.Bank.SettleSuccessRate),
		otel.Tracer(serviceName),
	)
	handler := interfaces.NewBankHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
	})
}
