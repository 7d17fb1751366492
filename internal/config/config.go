package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CassandraConfig 规则库（Cassandra）配置
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
}

// DatabaseConfig 水表库（PostgreSQL）配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NatsConfig 消息总线（NATS）配置
type NatsConfig struct {
	URL string
}

// EntitiesConfig 实体图谱 API（OAuth2 password grant）配置
type EntitiesConfig struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// EngineConfig 规则引擎配置
type EngineConfig struct {
	// 每个入口点事件窗口保留时长（秒），用于事件时间推理
	WindowRetention int
	// 单次评估的最大循环次数
	MaxCycle int
	// 事件插入队列长度（写满时阻塞形成背压）
	InsertBuffer int
	// 报警计数键的滚动窗口（秒）
	AlarmCountTTL int
}

// Config 服务配置
type Config struct {
	Cassandra CassandraConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Nats      NatsConfig
	Entities  EntitiesConfig
	Engine    EngineConfig

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置并校验必填项
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Cassandra.Hosts = splitHosts(getEnv("CASSANDRA_HOSTS", "localhost:9042"))
	cfg.Cassandra.Keyspace = getEnv("CASSANDRA_KEYSPACE", "rules_keyspace")
	cfg.Cassandra.Username = getEnv("CASSANDRA_USER", "")
	cfg.Cassandra.Password = getEnv("CASSANDRA_PASSWORD", "")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hydrometers")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Nats.URL = getEnv("NATS_URL", "nats://localhost:4222")

	cfg.Entities.BaseURL = getEnv("ENTITIES_BASE_URL", "")
	cfg.Entities.AuthURL = getEnv("ENTITIES_AUTH_URL", "")
	cfg.Entities.ClientID = getEnv("ENTITIES_CLIENT_ID", "")
	cfg.Entities.ClientSecret = getEnv("ENTITIES_CLIENT_SECRET", "")
	cfg.Entities.Username = getEnv("ENTITIES_USERNAME", "")
	cfg.Entities.Password = getEnv("ENTITIES_PASSWORD", "")

	cfg.Engine.WindowRetention = getEnvInt("ENGINE_WINDOW_RETENTION", 3600)
	cfg.Engine.MaxCycle = getEnvInt("ENGINE_MAX_CYCLE", 100)
	cfg.Engine.InsertBuffer = getEnvInt("ENGINE_INSERT_BUFFER", 256)
	cfg.Engine.AlarmCountTTL = getEnvInt("ALARM_COUNT_TTL", 86400)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate 校验必填配置，缺失时中止启动
func (c *Config) validate() error {
	if len(c.Cassandra.Hosts) == 0 {
		return fmt.Errorf("config: CASSANDRA_HOSTS is required")
	}
	if c.Nats.URL == "" {
		return fmt.Errorf("config: NATS_URL is required")
	}
	// 实体图谱可不配置（规则不声明 entities 时不会访问），
	// 但 BaseURL 与 AuthURL 必须成对出现
	if (c.Entities.BaseURL == "") != (c.Entities.AuthURL == "") {
		return fmt.Errorf("config: ENTITIES_BASE_URL and ENTITIES_AUTH_URL must be set together")
	}
	return nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
