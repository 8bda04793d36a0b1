// cmd/warehouse-service/main.go
package main

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"orchard/internal/pkg/bootstrap"
	"orchard/internal/pkg/config"
	"orchard/internal/pkg/redis"
	"orchard/internal/service/warehouse/application"
	"orchard/internal/service/warehouse/infrastructure"
	"orchard/internal/service/warehouse/interfaces"
)

const serviceName = "warehouse-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init(serviceName)
	cfg := config.GetCurrentConfig()

	// 1. 数据库连接。库存台账走原生 SQL 热路径，用独立连接池，
	// 避免 CAS 重试和 GORM 查询互相抢连接；预留单和仓库目录走 GORM。
	db, err := gorm.Open(gormmysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}
	sqlDB, err := sql.Open("mysql", cfg.Infra.Mysql.DSN)
	if err != nil {
		log.Fatalf("failed to open ledger connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 2. Redis 可售量缓存
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
	if err != nil {
		log.Fatalf("failed to initialize redis client: %v", err)
	}
	defer redisClient.Close()

	// 3. 组装应用服务
	service := application.NewWarehouseService(
		infrastructure.NewMySQLInventoryLedger(sqlDB),
		infrastructure.NewGormReservationRepository(db),
		infrastructure.NewGormWarehouseRepository(db),
		infrastructure.NewRedisAvailabilityCache(redisClient.GetClient()),
		otel.Tracer(serviceName),
	)
	handler := interfaces.NewWarehouseHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
	})
}
