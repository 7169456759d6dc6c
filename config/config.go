package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// 赔率供应商配置
	VendorAPIBaseURL string
	VendorAPIToken   string
	LeagueIDs        []string

	// Bookmaker 过滤配置 (live/cold 分开, 回退到 Bookmakers)
	Bookmakers     []string
	LiveBookmakers []string
	ColdBookmakers []string

	// 数据库配置
	DatabaseURL string

	// Redis 配置
	RedisURL string

	// 服务器配置
	Port string

	// 其他配置
	Environment string

	// 轮询配置
	MaxEventsPerRequest      int
	RequestBurst             int     // 令牌桶容量
	RequestsPerSecond        float64 // 令牌桶补充速率
	TickIntervalSeconds      int     // 一次轮询周期后的固定休眠
	DiscoveryIntervalSeconds int     // 赛事发现缓存间隔

	// 流配置
	OddsStreamMaxLen int64 // 0 = 不限制

	// Tick 发布配置
	AMQPURL      string
	AMQPExchange string

	// 通知配置
	NotifyMaxAttempts    int
	NotifyDedupeTTLHours int
	WebhookTimeout       int // 秒
	MQTTBrokerURL        string
	MQTTUsername         string
	MQTTPassword         string

	// 监控配置
	HeartbeatStaleSeconds int
	BacklogWarnThreshold  int64
}

func Load() *Config {
	return &Config{
		// 赔率供应商配置
		VendorAPIBaseURL: getEnv("VENDOR_API_BASE_URL", "https://api.oddsvendor.example.com/v2"),
		VendorAPIToken:   getEnv("VENDOR_API_TOKEN", ""),
		LeagueIDs:        getEnvList("LEAGUE_IDS", ""),

		// Bookmaker 过滤配置
		Bookmakers:     getEnvList("BOOKMAKERS", ""),
		LiveBookmakers: getEnvList("LIVE_BOOKMAKERS", ""),
		ColdBookmakers: getEnvList("COLD_BOOKMAKERS", ""),

		// 数据库配置
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/oddsalert?sslmode=disable"),

		// Redis 配置
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// 服务器配置
		Port: getEnv("PORT", "8080"),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),

		// 轮询配置
		MaxEventsPerRequest:      getEnvInt("MAX_EVENTS_PER_REQUEST", 10),
		RequestBurst:             getEnvInt("REQUEST_BURST", 30),
		RequestsPerSecond:        getEnvFloat("REQUESTS_PER_SECOND", 0.5),
		TickIntervalSeconds:      getEnvInt("TICK_INTERVAL_SECONDS", 15),
		DiscoveryIntervalSeconds: getEnvInt("DISCOVERY_INTERVAL_SECONDS", 300),

		// 流配置
		OddsStreamMaxLen: int64(getEnvInt("ODDS_STREAM_MAX_LEN", 100000)),

		// Tick 发布配置
		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "odds.ticks"),

		// 通知配置
		NotifyMaxAttempts:    getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyDedupeTTLHours: getEnvInt("NOTIFY_DEDUPE_TTL_HOURS", 168),
		WebhookTimeout:       getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 10),
		MQTTBrokerURL:        getEnv("MQTT_BROKER_URL", ""),
		MQTTUsername:         getEnv("MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("MQTT_PASSWORD", ""),

		// 监控配置
		HeartbeatStaleSeconds: getEnvInt("HEARTBEAT_STALE_SECONDS", 120),
		BacklogWarnThreshold:  int64(getEnvInt("BACKLOG_WARN_THRESHOLD", 10000)),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt 只在未设置或无法解析时回退默认值, 显式的 0 是合法配置
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
