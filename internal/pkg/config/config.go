// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了所有服务的基础设施与业务参数。
// 每个服务只读取自己关心的部分。
type Config struct {
	Infra    InfraConfig    `yaml:"infra"`
	Services ServicesConfig `yaml:"services"`
	Saga     SagaConfig     `yaml:"saga"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Bank     BankConfig     `yaml:"bank"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
}

// ServicesConfig 保存同步调用的下游服务地址。
type ServicesConfig struct {
	Warehouse string `yaml:"warehouse"`
	Bank      string `yaml:"bank"`
}

type SagaConfig struct {
	// StageTimeout 是订单停留在任意中间状态的最长时间，
	// 超过后由超时监控器发起补偿。
	StageTimeout time.Duration `yaml:"stageTimeout"`
	// ScanInterval 必须小于 StageTimeout。
	ScanInterval time.Duration `yaml:"scanInterval"`
}

type DeliveryConfig struct {
	ProgressInterval time.Duration `yaml:"progressInterval"`
	// LossRatePercent 模拟包裹丢失概率 (0-100)，默认 5。
	LossRatePercent int `yaml:"lossRatePercent"`
}

type BankConfig struct {
	// SettleSuccessRate 模拟银行结算成功率 (0.0-1.0)。
	SettleSuccessRate float64 `yaml:"settleSuccessRate"`
}

var (
	current Config
	once    sync.Once
)

// Load 从 CONFIG_FILE 指定的 yaml 文件加载配置，缺省值兜底，
// 少量高频项允许用环境变量覆盖，方便容器部署。
func Load() error {
	var loadErr error
	once.Do(func() {
		current = defaults()
		path := os.Getenv("CONFIG_FILE")
		if path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				loadErr = fmt.Errorf("read config file %s: %w", path, err)
				return
			}
			if err := yaml.Unmarshal(data, &current); err != nil {
				loadErr = fmt.Errorf("parse config file %s: %w", path, err)
				return
			}
		}
		applyEnvOverrides(&current)
	})
	return loadErr
}

// GetCurrentConfig 返回进程级配置。必须先调用 Load。
func GetCurrentConfig() *Config {
	return &current
}

func defaults() Config {
	var c Config
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/orchard?parseTime=true"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Zookeeper.Servers = []string{"localhost:2181"}
	c.Infra.Nacos.ServerAddrs = "localhost:8848"
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	c.Services.Warehouse = "http://localhost:8082"
	c.Services.Bank = "http://localhost:8083"
	c.Saga.StageTimeout = 15 * time.Second
	c.Saga.ScanInterval = 5 * time.Second
	c.Delivery.ProgressInterval = 5 * time.Second
	c.Delivery.LossRatePercent = 5
	c.Bank.SettleSuccessRate = 0.95
	return c
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Infra.Redis.Addr = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZK_SERVERS"); v != "" {
		c.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		c.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		c.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		c.Infra.Nacos.Group = v
	}
	if v := os.Getenv("WAREHOUSE_SERVICE_URL"); v != "" {
		c.Services.Warehouse = v
	}
	if v := os.Getenv("BANK_SERVICE_URL"); v != "" {
		c.Services.Bank = v
	}
}
